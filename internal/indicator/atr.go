package indicator

import (
	"math"
	"strconv"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// ATR calculates Wilder's Average True Range.
// True range needs the previous close, so the first candle only seeds state and
// the first ATR value appears after period true ranges.
type ATR struct {
	period    int
	count     int
	prevClose float64
	smma      *SMMA
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR_" + strconv.Itoa(a.period) }

func (a *ATR) Update(candle model.Candle) {
	a.count++
	if a.count > 1 {
		a.smma.Add(trueRange(candle, a.prevClose))
	}
	a.prevClose = candle.Close
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

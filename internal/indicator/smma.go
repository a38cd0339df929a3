package indicator

import (
	"strconv"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + x) / period.
// ATR feeds it true-range values through Add.
type SMMA struct {
	period  int
	source  Source
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA over closes with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period, source: Close}
}

func (s *SMMA) Name() string { return "SMMA_" + strconv.Itoa(s.period) }

func (s *SMMA) Update(candle model.Candle) { s.Add(s.source(candle)) }

// Add feeds a raw value.
func (s *SMMA) Add(x float64) {
	s.count++

	if s.count <= s.period {
		s.sum += x
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + x) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

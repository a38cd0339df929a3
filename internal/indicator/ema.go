package indicator

import (
	"strconv"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// EMA calculates Exponential Moving Average.
// The first value is the simple average of the first period inputs; after that
// EMA = price*k + prev*(1-k) with k = 2/(period+1).
// O(1) per update — no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	source     Source
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA over closes with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
		source:     Close,
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(candle model.Candle) {
	price := e.source(candle)
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

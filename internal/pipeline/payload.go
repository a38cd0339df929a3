package pipeline

import (
	"encoding/json"
	"time"

	"github.com/xdaguy/LTCBOT/internal/execution"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// ChartPoint is one close price of a chart series.
type ChartPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Payload is what subscribers receive inside the broadcast envelope. Chart
// series are flattened into chart_data_<timeframe> keys.
type Payload struct {
	strategy.Signal

	Symbol    string   `json:"symbol"`
	Timestamp int64    `json:"timestamp"` // tick event time, unix ms
	CycleID   string   `json:"cycle_id"`
	RSI       *float64 `json:"rsi"`
	EMAShort  *float64 `json:"ema_short"`
	EMALong   *float64 `json:"ema_long"`

	InvariantViolation bool                      `json:"invariant_violation,omitempty"`
	Automation         execution.AutomationState `json:"automation"`
	Orders             []execution.StepResult    `json:"orders,omitempty"`

	Charts map[string][]ChartPoint `json:"-"`
}

func newPayload(symbol string, in Input, res Result, charts map[string][]ChartPoint) Payload {
	return Payload{
		Signal:             res.Signal,
		Symbol:             symbol,
		Timestamp:          in.Tick.EventTime.UnixMilli(),
		CycleID:            in.CycleID,
		RSI:                res.Signal.Indicators.RSI,
		EMAShort:           res.Signal.Indicators.EMAShort,
		EMALong:            res.Signal.Indicators.EMALong,
		InvariantViolation: res.Violation != nil,
		Automation:         res.Automation,
		Orders:             res.Report.Steps,
		Charts:             charts,
	}
}

func (p Payload) MarshalJSON() ([]byte, error) {
	type plain Payload
	base, err := json.Marshal(plain(p))
	if err != nil || len(p.Charts) == 0 {
		return base, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for tf, series := range p.Charts {
		if series == nil {
			series = []ChartPoint{}
		}
		raw, err := json.Marshal(series)
		if err != nil {
			return nil, err
		}
		fields["chart_data_"+tf] = raw
	}
	return json.Marshal(fields)
}

// chartSeries returns the last limit closes as chart points.
func chartSeries(candles []model.Candle, limit int) []ChartPoint {
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]ChartPoint, len(candles))
	for i, c := range candles {
		out[i] = ChartPoint{Time: c.OpenTime.UTC().Format(time.RFC3339), Value: c.Close}
	}
	return out
}

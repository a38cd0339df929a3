package indicator

import (
	"math"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Params configures the lookback periods of the engine.
type Params struct {
	RSIPeriod    int `yaml:"rsi_period"`
	EMAShort     int `yaml:"ema_short"`
	EMALong      int `yaml:"ema_long"`
	ADXPeriod    int `yaml:"adx_period"`
	ATRPeriod    int `yaml:"atr_period"`
	VolumePeriod int `yaml:"volume_period"`
}

// DefaultParams returns RSI 14, EMA 9/21, ADX 14, ATR 14, volume mean 20.
func DefaultParams() Params {
	return Params{
		RSIPeriod:    14,
		EMAShort:     9,
		EMALong:      21,
		ADXPeriod:    14,
		ATRPeriod:    14,
		VolumePeriod: 20,
	}
}

// Lookback returns the number of candles needed before every snapshot field is defined.
func (p Params) Lookback() int {
	n := p.RSIPeriod + 1
	for _, v := range []int{p.EMAShort, p.EMALong, 2 * p.ADXPeriod, p.ATRPeriod + 1, p.VolumePeriod} {
		if v > n {
			n = v
		}
	}
	return n
}

// Snapshot holds every indicator value for one candle. Fields that are still
// warming up at that index are NaN and must never feed a decision.
type Snapshot struct {
	Close          float64 `json:"close"`
	RSI            float64 `json:"rsi"`
	EMAShort       float64 `json:"ema_short"`
	EMALong        float64 `json:"ema_long"`
	ADX            float64 `json:"adx"`
	ADXPos         float64 `json:"adx_pos"`
	ADXNeg         float64 `json:"adx_neg"`
	ATR            float64 `json:"atr"`
	VolumeRatio    float64 `json:"volume_ratio"`
	CandleSizePct  float64 `json:"candle_size_pct"`
	EMADistancePct float64 `json:"ema_distance_pct"`
}

// Engine computes the indicator snapshot series for a candle window.
// It holds only configuration, so one Engine can serve every cycle.
type Engine struct {
	params Params
}

// NewEngine creates an indicator engine with the given periods.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine's lookback configuration.
func (e *Engine) Params() Params { return e.params }

// ComputeCandles validates candles as a window and computes its snapshots.
// Zero or negative closes fail with *model.InvalidInputError.
func (e *Engine) ComputeCandles(candles []model.Candle) ([]Snapshot, error) {
	w, err := model.NewWindow("", candles)
	if err != nil {
		return nil, err
	}
	return e.Compute(w), nil
}

// Compute returns one Snapshot per candle in w, oldest first.
// Window construction already guarantees positive closes, so every ratio has a
// non-zero denominator.
func (e *Engine) Compute(w *model.Window) []Snapshot {
	p := e.params
	rsi := NewRSI(p.RSIPeriod)
	emaShort := NewEMA(p.EMAShort)
	emaLong := NewEMA(p.EMALong)
	adx := NewADX(p.ADXPeriod)
	atr := NewATR(p.ATRPeriod)
	vol := NewSMA(p.VolumePeriod, Volume)

	out := make([]Snapshot, w.Len())
	for i := 0; i < w.Len(); i++ {
		c := w.At(i)

		rsi.Update(c)
		emaShort.Update(c)
		emaLong.Update(c)
		adx.Update(c)
		atr.Update(c)
		vol.Update(c)

		s := Snapshot{
			Close:          c.Close,
			RSI:            valueOrNaN(rsi),
			EMAShort:       valueOrNaN(emaShort),
			EMALong:        valueOrNaN(emaLong),
			ADX:            valueOrNaN(adx),
			ADXPos:         math.NaN(),
			ADXNeg:         math.NaN(),
			ATR:            valueOrNaN(atr),
			VolumeRatio:    math.NaN(),
			CandleSizePct:  math.Abs(c.Close-c.Open) / c.Close * 100,
			EMADistancePct: math.NaN(),
		}
		if adx.DIReady() {
			s.ADXPos = adx.PlusDI()
			s.ADXNeg = adx.MinusDI()
		}
		if vol.Ready() {
			s.VolumeRatio = 0
			if mean := vol.Value(); mean > 0 {
				s.VolumeRatio = c.Volume / mean
			}
		}
		if emaShort.Ready() && emaLong.Ready() {
			s.EMADistancePct = math.Abs(emaShort.Value()-emaLong.Value()) / c.Close * 100
		}
		out[i] = s
	}
	return out
}

func valueOrNaN(ind Indicator) float64 {
	if !ind.Ready() {
		return math.NaN()
	}
	return ind.Value()
}

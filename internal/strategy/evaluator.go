package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/portfolio"
)

// Thresholds are the confirmation limits of the evaluator.
type Thresholds struct {
	MinEMADistance float64 `yaml:"min_ema_distance"` // % of close
	RSIOversold    float64 `yaml:"rsi_oversold"`
	RSIOverbought  float64 `yaml:"rsi_overbought"`
	ADXThreshold   float64 `yaml:"adx_threshold"`
	MinVolumeRatio float64 `yaml:"min_volume_ratio"`
	MinCandleSize  float64 `yaml:"min_candle_size"` // % of close

	// Label cut-offs only; they never gate a signal.
	VeryStrongADX   float64 `yaml:"very_strong_adx"`
	HighVolumeRatio float64 `yaml:"high_volume_ratio"`
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinEMADistance:  0.1,
		RSIOversold:     30,
		RSIOverbought:   70,
		ADXThreshold:    25,
		MinVolumeRatio:  0.8,
		MinCandleSize:   0.05,
		VeryStrongADX:   50,
		HighVolumeRatio: 1.5,
	}
}

// Validate rejects threshold sets that can never or always fire.
func (t Thresholds) Validate() error {
	if t.RSIOversold <= 0 || t.RSIOverbought >= 100 || t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("rsi thresholds %.1f/%.1f invalid", t.RSIOversold, t.RSIOverbought)
	}
	if t.MinEMADistance < 0 || t.MinCandleSize < 0 || t.MinVolumeRatio < 0 {
		return errors.New("minimum filters must not be negative")
	}
	return nil
}

// Evaluator applies the five-factor rule to the last three snapshots.
// It is pure: the same snapshots and price always give the same Signal.
type Evaluator struct {
	th       Thresholds
	lookback int
	risk     *portfolio.RiskCalculator
}

// NewEvaluator creates an evaluator. lookback is the candle count after which
// every indicator is defined; it is reported in warm-up errors.
func NewEvaluator(th Thresholds, lookback int, risk *portfolio.RiskCalculator) *Evaluator {
	return &Evaluator{th: th, lookback: lookback, risk: risk}
}

// Thresholds returns the evaluator configuration.
func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate decides the signal for the newest snapshot at the given price.
//
// A window that is still warming up yields HOLD with *model.IndicatorWarmupError.
// BUY and SELL firing together yields BUY with *model.InvariantViolation; callers
// must not trade on it. If SL/TP cannot be computed the signal degrades to HOLD
// and the calculator error is returned.
func (e *Evaluator) Evaluate(snaps []indicator.Snapshot, price float64) (Signal, error) {
	sig := Signal{Kind: KindHold, Price: price}
	n := len(snaps)
	if n == 0 {
		sig.EMATrend, sig.RSIStatus, sig.TrendStrength, sig.VolumeStrength = Neutral, Neutral, StrengthWeak, VolumeLow
		return sig, &model.IndicatorWarmupError{Indicator: "window", Need: e.need(), Have: 0}
	}

	t := snaps[n-1]
	sig.Indicators = indicatorsOf(t)
	e.label(&sig, t)

	if n < 3 {
		return sig, &model.IndicatorWarmupError{Indicator: "window", Need: e.need(), Have: n}
	}
	t1, t2 := snaps[n-2], snaps[n-3]
	if name, ok := firstUndefined(t, t1, t2); !ok {
		return sig, &model.IndicatorWarmupError{Indicator: name, Need: e.need(), Have: n}
	}

	kind, violation := resolve(e.buy(t, t1, t2), e.sell(t, t1, t2))
	if kind == KindHold {
		return sig, nil
	}

	side, _ := kind.Side()
	lv, err := e.risk.Levels(price, side, t.ATR, t.ADX)
	if err != nil {
		return sig, errors.Join(violation, fmt.Errorf("%s levels: %w", kind, err))
	}
	sig.Kind = kind
	sig.StopLoss = &lv.StopLoss
	sig.TakeProfit = &lv.TakeProfit
	if violation != nil {
		return sig, violation
	}
	return sig, nil
}

func (e *Evaluator) need() int {
	if e.lookback < 3 {
		return 3
	}
	return e.lookback
}

// resolve applies the tie-break: BUY is checked first and wins, but both
// firing at once is reported as an invariant violation.
func resolve(buy, sell bool) (Kind, error) {
	switch {
	case buy && sell:
		return KindBuy, &model.InvariantViolation{What: "BUY and SELL conditions both true on the same candle"}
	case buy:
		return KindBuy, nil
	case sell:
		return KindSell, nil
	}
	return KindHold, nil
}

func (e *Evaluator) buy(t, t1, t2 indicator.Snapshot) bool {
	th := e.th
	cross := t1.EMAShort <= t1.EMALong && t.EMAShort > t.EMALong && t.EMADistancePct >= th.MinEMADistance
	rsi := t.RSI < th.RSIOversold && t1.RSI < th.RSIOversold && t.RSI > t1.RSI && t1.RSI > t2.RSI
	trend := t.ADX > th.ADXThreshold && t.ADXPos > t.ADXNeg
	return cross && rsi && trend && e.filters(t)
}

func (e *Evaluator) sell(t, t1, t2 indicator.Snapshot) bool {
	th := e.th
	cross := t1.EMAShort >= t1.EMALong && t.EMAShort < t.EMALong && t.EMADistancePct >= th.MinEMADistance
	rsi := t.RSI > th.RSIOverbought && t1.RSI > th.RSIOverbought && t.RSI < t1.RSI && t1.RSI < t2.RSI
	trend := t.ADX > th.ADXThreshold && t.ADXNeg > t.ADXPos
	return cross && rsi && trend && e.filters(t)
}

// filters are the direction-free volume and candle-size checks.
func (e *Evaluator) filters(t indicator.Snapshot) bool {
	return t.VolumeRatio >= e.th.MinVolumeRatio && t.CandleSizePct >= e.th.MinCandleSize
}

func (e *Evaluator) label(sig *Signal, t indicator.Snapshot) {
	th := e.th

	sig.EMATrend = Neutral
	switch {
	case t.EMAShort > t.EMALong:
		sig.EMATrend = TrendBullish
	case t.EMAShort < t.EMALong:
		sig.EMATrend = TrendBearish
	}

	sig.RSIStatus = Neutral
	switch {
	case t.RSI < th.RSIOversold:
		sig.RSIStatus = RSIOversold
	case t.RSI > th.RSIOverbought:
		sig.RSIStatus = RSIOverbought
	}

	sig.TrendStrength = StrengthWeak
	switch {
	case t.ADX >= th.VeryStrongADX:
		sig.TrendStrength = StrengthVeryStrong
	case t.ADX > th.ADXThreshold:
		sig.TrendStrength = StrengthStrong
	}

	sig.VolumeStrength = VolumeLow
	switch {
	case t.VolumeRatio >= th.HighVolumeRatio:
		sig.VolumeStrength = VolumeHigh
	case t.VolumeRatio >= th.MinVolumeRatio:
		sig.VolumeStrength = VolumeNormal
	}
}

// firstUndefined returns the name of the first required value that is still
// warming up, or ok=true when every input is defined.
func firstUndefined(t, t1, t2 indicator.Snapshot) (string, bool) {
	required := []struct {
		name string
		v    float64
	}{
		{"ema_short", t.EMAShort}, {"ema_long", t.EMALong}, {"ema_distance", t.EMADistancePct},
		{"rsi", t.RSI}, {"adx", t.ADX}, {"adx_pos", t.ADXPos}, {"adx_neg", t.ADXNeg},
		{"atr", t.ATR}, {"volume_ratio", t.VolumeRatio}, {"candle_size", t.CandleSizePct},
		{"ema_short", t1.EMAShort}, {"ema_long", t1.EMALong}, {"rsi", t1.RSI},
		{"rsi", t2.RSI},
	}
	for _, r := range required {
		if math.IsNaN(r.v) {
			return r.name, false
		}
	}
	return "", true
}

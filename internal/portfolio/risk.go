package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// RiskParams configures stop-loss / take-profit placement.
type RiskParams struct {
	ADXThreshold     float64 `yaml:"adx_threshold"`
	BaseTPMultiplier float64 `yaml:"base_tp_multiplier"`
	BaseSLMultiplier float64 `yaml:"base_sl_multiplier"`

	// Clamps, in percent of entry price.
	MaxSLPercent float64 `yaml:"max_sl_percent"`
	MinTPPercent float64 `yaml:"min_tp_percent"`

	MinRiskReward float64 `yaml:"min_risk_reward"`
	TickSize      float64 `yaml:"tick_size"` // price precision of the instrument
}

// DefaultRiskParams returns the LTCUSDT defaults.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		ADXThreshold:     25,
		BaseTPMultiplier: 3.0,
		BaseSLMultiplier: 1.5,
		MaxSLPercent:     2.0,
		MinTPPercent:     1.0,
		MinRiskReward:    2.0,
		TickSize:         0.01,
	}
}

// Validate checks that the parameters can produce a usable level pair.
func (p RiskParams) Validate() error {
	switch {
	case p.BaseTPMultiplier <= 0 || p.BaseSLMultiplier <= 0:
		return errors.New("risk multipliers must be positive")
	case p.MaxSLPercent <= 0 || p.MaxSLPercent >= 100:
		return fmt.Errorf("max_sl_percent %.2f out of range (0,100)", p.MaxSLPercent)
	case p.MinTPPercent < 0:
		return fmt.Errorf("min_tp_percent %.2f must not be negative", p.MinTPPercent)
	case p.MinRiskReward <= 0:
		return fmt.Errorf("min_risk_reward %.2f must be positive", p.MinRiskReward)
	case p.TickSize <= 0:
		return fmt.Errorf("tick_size %v must be positive", p.TickSize)
	}
	return nil
}

// minATRAdjustment keeps targets on the correct side of entry when ADX is far below threshold.
const minATRAdjustment = 0.1

// Levels is a stop-loss / take-profit pair.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// RiskReward returns reward/risk measured from entry.
func (l Levels) RiskReward(entry float64) float64 {
	risk := math.Abs(entry - l.StopLoss)
	if risk == 0 {
		return math.Inf(1)
	}
	return math.Abs(l.TakeProfit-entry) / risk
}

// RiskCalculator derives SL/TP from ATR volatility scaled by ADX trend strength.
// It is stateless and safe for concurrent use.
type RiskCalculator struct {
	params RiskParams
	tick   decimal.Decimal
}

// NewRiskCalculator creates a calculator with the given parameters.
func NewRiskCalculator(params RiskParams) *RiskCalculator {
	return &RiskCalculator{params: params, tick: decimal.NewFromFloat(params.TickSize)}
}

// Params returns the calculator configuration.
func (rc *RiskCalculator) Params() RiskParams { return rc.params }

// Levels computes stop-loss and take-profit for an entry on side.
//
// Distances are ATR multiples widened by (1 + (adx - threshold)/100). The stop
// distance is capped at MaxSLPercent of entry and the target distance floored at
// MinTPPercent; if the result still pays less than MinRiskReward the target is
// pushed out to risk x MinRiskReward. Prices are then snapped to the tick: the stop
// toward entry (never onto it), the target away from entry, and the reward/risk
// floor is checked once more on the rounded prices.
func (rc *RiskCalculator) Levels(entry float64, side model.Side, atr, adx float64) (Levels, error) {
	p := rc.params
	if !(entry > 0) || math.IsInf(entry, 0) {
		return Levels{}, fmt.Errorf("risk: entry price %v must be positive", entry)
	}
	if !(atr > 0) || math.IsInf(atr, 0) {
		return Levels{}, fmt.Errorf("risk: atr %v must be positive", atr)
	}
	if math.IsNaN(adx) {
		return Levels{}, errors.New("risk: adx undefined")
	}
	if side != model.SideBuy && side != model.SideSell {
		return Levels{}, fmt.Errorf("risk: unknown side %q", side)
	}

	adj := 1 + (adx-p.ADXThreshold)/100
	if adj < minATRAdjustment {
		adj = minATRAdjustment
	}
	tpDist := atr * p.BaseTPMultiplier * adj
	slDist := atr * p.BaseSLMultiplier * adj

	if maxSL := entry * p.MaxSLPercent / 100; slDist > maxSL {
		slDist = maxSL
	}
	if minTP := entry * p.MinTPPercent / 100; tpDist < minTP {
		tpDist = minTP
	}
	if tpDist < slDist*p.MinRiskReward {
		tpDist = slDist * p.MinRiskReward
	}

	e := decimal.NewFromFloat(entry)
	minRR := decimal.NewFromFloat(p.MinRiskReward)

	var sl, tp decimal.Decimal
	if side == model.SideBuy {
		sl = rc.ceil(decimal.NewFromFloat(entry - slDist))
		if sl.GreaterThanOrEqual(e) {
			sl = rc.floor(e)
			if sl.GreaterThanOrEqual(e) {
				sl = sl.Sub(rc.tick)
			}
		}
		if !sl.IsPositive() {
			return Levels{}, fmt.Errorf("risk: stop-loss %s not above zero", sl)
		}
		tp = rc.ceil(decimal.NewFromFloat(entry + tpDist))
		if need := e.Add(e.Sub(sl).Mul(minRR)); tp.LessThan(need) {
			tp = rc.ceil(need)
		}
	} else {
		sl = rc.floor(decimal.NewFromFloat(entry + slDist))
		if sl.LessThanOrEqual(e) {
			sl = rc.ceil(e)
			if sl.LessThanOrEqual(e) {
				sl = sl.Add(rc.tick)
			}
		}
		tp = rc.floor(decimal.NewFromFloat(entry - tpDist))
		if need := e.Sub(sl.Sub(e).Mul(minRR)); tp.GreaterThan(need) {
			tp = rc.floor(need)
		}
		if !tp.IsPositive() {
			return Levels{}, fmt.Errorf("risk: take-profit %s not above zero", tp)
		}
	}

	return Levels{StopLoss: sl.InexactFloat64(), TakeProfit: tp.InexactFloat64()}, nil
}

func (rc *RiskCalculator) ceil(d decimal.Decimal) decimal.Decimal {
	return d.Div(rc.tick).Ceil().Mul(rc.tick)
}

func (rc *RiskCalculator) floor(d decimal.Decimal) decimal.Decimal {
	return d.Div(rc.tick).Floor().Mul(rc.tick)
}

// Package strategy turns indicator snapshots into BUY/SELL/HOLD signals.
//
// A signal requires five confirmations on the latest candle: an EMA cross with
// enough separation, RSI in the extreme zone and turning, an ADX trend in the
// same direction, sufficient volume, and a non-trivial candle body. Every
// signal carries diagnostic labels whether or not it fires.
package strategy

import (
	"math"
	"time"

	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/model"
)

// Kind is the signal direction.
type Kind string

const (
	KindHold Kind = "HOLD"
	KindBuy  Kind = "BUY"
	KindSell Kind = "SELL"
)

// Side maps BUY/SELL to an order side. HOLD has no side.
func (k Kind) Side() (model.Side, bool) {
	switch k {
	case KindBuy:
		return model.SideBuy, true
	case KindSell:
		return model.SideSell, true
	}
	return "", false
}

// Diagnostic labels.
const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	Neutral      = "NEUTRAL"

	RSIOversold   = "OVERSOLD"
	RSIOverbought = "OVERBOUGHT"

	StrengthVeryStrong = "VERY_STRONG"
	StrengthStrong     = "STRONG"
	StrengthWeak       = "WEAK"

	VolumeHigh   = "HIGH"
	VolumeNormal = "NORMAL"
	VolumeLow    = "LOW"
)

// Indicators is the JSON view of the latest snapshot. Warm-up values are null.
type Indicators struct {
	RSI            *float64 `json:"rsi"`
	EMAShort       *float64 `json:"ema_short"`
	EMALong        *float64 `json:"ema_long"`
	ADX            *float64 `json:"adx"`
	ADXPos         *float64 `json:"adx_pos"`
	ADXNeg         *float64 `json:"adx_neg"`
	ATR            *float64 `json:"atr"`
	VolumeRatio    *float64 `json:"volume_ratio"`
	CandleSizePct  *float64 `json:"candle_size"`
	EMADistancePct *float64 `json:"ema_distance"`
}

func indicatorsOf(s indicator.Snapshot) Indicators {
	return Indicators{
		RSI:            defined(s.RSI),
		EMAShort:       defined(s.EMAShort),
		EMALong:        defined(s.EMALong),
		ADX:            defined(s.ADX),
		ADXPos:         defined(s.ADXPos),
		ADXNeg:         defined(s.ADXNeg),
		ATR:            defined(s.ATR),
		VolumeRatio:    defined(s.VolumeRatio),
		CandleSizePct:  defined(s.CandleSizePct),
		EMADistancePct: defined(s.EMADistancePct),
	}
}

func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Signal is the evaluator output for one cycle. StopLoss and TakeProfit are set
// only for BUY and SELL.
type Signal struct {
	Kind           Kind       `json:"signal"`
	Price          float64    `json:"price"`
	StopLoss       *float64   `json:"stop_loss"`
	TakeProfit     *float64   `json:"take_profit"`
	Indicators     Indicators `json:"indicators"`
	EMATrend       string     `json:"ema_trend"`
	RSIStatus      string     `json:"rsi_status"`
	TrendStrength  string     `json:"trend_strength"`
	VolumeStrength string     `json:"volume_strength"`
	Timeframe      string     `json:"timeframe,omitempty"`
	CandleTime     time.Time  `json:"candle_time"`
}

// Actionable reports whether the signal asks for a position change.
func (s Signal) Actionable() bool { return s.Kind == KindBuy || s.Kind == KindSell }

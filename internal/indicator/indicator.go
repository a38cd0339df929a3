// Package indicator provides technical indicator calculations over candle data.
//
// Every indicator is a streaming accumulator: candles are fed oldest-first through
// Update, and Value is meaningful once Ready reports true. The recurrences (Wilder
// smoothing, SMA-seeded EMA) are written out explicitly so that identical candle
// sequences always produce bit-identical values.
package indicator

import "github.com/xdaguy/LTCBOT/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_9", "RSI_14").
	Name() string

	// Update feeds the next candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Source selects the input series an indicator reads from a candle.
type Source func(model.Candle) float64

// Close reads the close price.
func Close(c model.Candle) float64 { return c.Close }

// Volume reads the candle volume.
func Volume(c model.Candle) float64 { return c.Volume }

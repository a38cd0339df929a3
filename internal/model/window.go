package model

import (
	"fmt"
	"math"
)

// Window is an ordered run of candles for one timeframe, oldest first.
// A Window is built fresh for every evaluation cycle and never mutated afterwards.
type Window struct {
	Timeframe string
	candles   []Candle
}

// NewWindow validates candles and wraps them in a Window.
// Open times must be strictly increasing and every close must be a positive number;
// anything else is rejected with an InvalidInputError.
func NewWindow(timeframe string, candles []Candle) (*Window, error) {
	if len(candles) == 0 {
		return nil, &InvalidInputError{Field: "candles", Reason: "empty window"}
	}
	for i, c := range candles {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 {
			return nil, &InvalidInputError{Index: i, Field: "close", Reason: fmt.Sprintf("non-positive close %v", c.Close)}
		}
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			return nil, &InvalidInputError{Index: i, Field: "open_time", Reason: "open times not strictly increasing"}
		}
	}
	cp := make([]Candle, len(candles))
	copy(cp, candles)
	return &Window{Timeframe: timeframe, candles: cp}, nil
}

// Len returns the number of candles in the window.
func (w *Window) Len() int { return len(w.candles) }

// At returns the i-th candle (0 = oldest).
func (w *Window) At(i int) Candle { return w.candles[i] }

// Last returns the most recent candle.
func (w *Window) Last() Candle { return w.candles[len(w.candles)-1] }

// Candles returns a copy of the underlying candles.
func (w *Window) Candles() []Candle {
	cp := make([]Candle, len(w.candles))
	copy(cp, w.candles)
	return cp
}

package model

import (
	"errors"
	"fmt"
)

// ReasonCode classifies an order failure so callers can tell rejections apart.
type ReasonCode string

const (
	ReasonOK                  ReasonCode = "OK"
	ReasonInsufficientBalance ReasonCode = "INSUFFICIENT_BALANCE"
	ReasonQuantityBounds      ReasonCode = "QUANTITY_OUT_OF_BOUNDS"
	ReasonPrecision           ReasonCode = "PRECISION"
	ReasonReduceOnly          ReasonCode = "REDUCE_ONLY_REJECTED"
	ReasonTimeout             ReasonCode = "TIMEOUT"
	ReasonNetwork             ReasonCode = "NETWORK"
	ReasonRejected            ReasonCode = "REJECTED"
)

// DataFetchError reports that market or account data could not be read from the exchange.
// The cycle is skipped and retried on the next tick.
type DataFetchError struct {
	Op  string // e.g. "klines", "position"
	Err error
}

func (e *DataFetchError) Error() string { return fmt.Sprintf("data fetch %s: %v", e.Op, e.Err) }
func (e *DataFetchError) Unwrap() error { return e.Err }

// InvalidInputError reports malformed candle data such as a non-positive close.
type InvalidInputError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input at index %d (%s): %s", e.Index, e.Field, e.Reason)
}

// IndicatorWarmupError reports that the window is too short for an indicator's lookback.
// It is not a failure: the evaluator answers HOLD.
type IndicatorWarmupError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *IndicatorWarmupError) Error() string {
	return fmt.Sprintf("indicator %s warming up: need %d candles, have %d", e.Indicator, e.Need, e.Have)
}

// OrderExecutionError reports that the exchange rejected or failed an order.
type OrderExecutionError struct {
	Side     Side
	Quantity float64
	Reason   ReasonCode
	Message  string
	Err      error
}

func (e *OrderExecutionError) Error() string {
	return fmt.Sprintf("order %s %g failed [%s]: %s", e.Side, e.Quantity, e.Reason, e.Message)
}
func (e *OrderExecutionError) Unwrap() error { return e.Err }

// InvariantViolation marks a state that correct indicator math can never produce,
// such as BUY and SELL triggering on the same candle.
type InvariantViolation struct {
	What string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.What }

// IsWarmup reports whether err is (or wraps) an IndicatorWarmupError.
func IsWarmup(err error) bool {
	var w *IndicatorWarmupError
	return errors.As(err, &w)
}

// ReasonOf extracts the ReasonCode from an OrderExecutionError, or REJECTED otherwise.
func ReasonOf(err error) ReasonCode {
	var oe *OrderExecutionError
	if errors.As(err, &oe) {
		return oe.Reason
	}
	return ReasonRejected
}

package model

import "time"

// MarkPrice is a single mark-price update from the exchange stream.
type MarkPrice struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	EventTime time.Time `json:"event_time"` // exchange event time (UTC)
}

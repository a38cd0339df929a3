package model

import "time"

// TradeIntent records why an order was attempted.
type TradeIntent string

const (
	IntentOpenLong   TradeIntent = "OPEN_LONG"
	IntentOpenShort  TradeIntent = "OPEN_SHORT"
	IntentCloseLong  TradeIntent = "CLOSE_LONG"
	IntentCloseShort TradeIntent = "CLOSE_SHORT"
	IntentManual     TradeIntent = "MANUAL"
)

// TradeAttempt is one row of the trade log: every order attempt, successful or not.
type TradeAttempt struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Type      OrderType   `json:"type"`
	Side      Side        `json:"side"`
	Intent    TradeIntent `json:"intent"`
	Quantity  float64     `json:"quantity"`
	Price     *float64    `json:"price,omitempty"`
	Status    OrderStatus `json:"status"`
	Reason    ReasonCode  `json:"reason"`
	Message   string      `json:"message"`
	OrderID   string      `json:"order_id,omitempty"`
}

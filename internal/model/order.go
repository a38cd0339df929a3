package model

import "time"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest describes one order placement.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price,omitempty"` // LIMIT only
	ReduceOnly bool      `json:"reduce_only"`
}

// OrderStatus is the outcome class of a placement attempt.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusError    OrderStatus = "ERROR"
)

// Order is the exchange's view of an accepted order.
type Order struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Type        OrderType `json:"type"`
	Quantity    float64   `json:"quantity"`
	ExecutedQty float64   `json:"executed_qty"`
	AvgPrice    float64   `json:"avg_price"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrderResult is returned by every placement attempt.
type OrderResult struct {
	Status  OrderStatus `json:"status"`
	Reason  ReasonCode  `json:"reason"`
	Message string      `json:"message"`
	Order   *Order      `json:"order,omitempty"`
}

package model

import "context"

// ── Exchange & storage ports ──
// The signal/execution core depends only on these interfaces; the Binance adapter,
// the paper broker and the SQLite journal provide the implementations.

// CandleFetcher returns the most recent candles for a timeframe, oldest first.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// PositionReader returns the live position for a symbol.
type PositionReader interface {
	GetPosition(ctx context.Context, symbol string) (Position, error)
}

// OrderPlacer places an order. Rejections are returned as *OrderExecutionError
// alongside a result whose Reason carries the same code.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Broker is the full trading surface the executor needs.
type Broker interface {
	PositionReader
	OrderPlacer
}

// TradeLogger persists every order attempt.
type TradeLogger interface {
	LogTradeAttempt(ctx context.Context, attempt TradeAttempt) error
}

// TradeLogReader lists recent trade-log rows, newest first.
type TradeLogReader interface {
	RecentTrades(ctx context.Context, limit int) ([]TradeAttempt, error)
}

// MarketInfo is the read-only account/market surface used by the REST API.
type MarketInfo interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	Balances(ctx context.Context) ([]Balance, error)
}

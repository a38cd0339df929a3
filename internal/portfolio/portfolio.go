// Package portfolio holds the position view and the stop-loss / take-profit
// calculator for the traded symbol.
//
// The exchange is the only source of position truth; nothing here stores a
// position between cycles.
package portfolio

import (
	"math"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// PositionView is the position as reported to API clients.
type PositionView struct {
	Symbol        string              `json:"symbol"`
	State         model.PositionState `json:"state"`
	Amount        float64             `json:"position_amt"`
	EntryPrice    float64             `json:"entry_price"`
	MarkPrice     float64             `json:"mark_price"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
	Notional      float64             `json:"notional"`
	PnLPercent    float64             `json:"pnl_percent"` // unrealized P&L over entry notional
	LiqPrice      float64             `json:"liquidation_price"`
}

// View derives the API view of an exchange-reported position.
func View(p model.Position) PositionView {
	v := PositionView{
		Symbol:        p.Symbol,
		State:         p.State(),
		Amount:        p.Amount,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		Notional:      math.Abs(p.Amount) * p.MarkPrice,
		LiqPrice:      p.LiqPrice,
	}
	if cost := math.Abs(p.Amount) * p.EntryPrice; cost > 0 {
		v.PnLPercent = p.UnrealizedPnL / cost * 100
	}
	return v
}

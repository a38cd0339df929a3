package model

// PositionState is the side of the account's position, derived from the signed amount.
type PositionState string

const (
	StateFlat  PositionState = "FLAT"
	StateLong  PositionState = "LONG"
	StateShort PositionState = "SHORT"
)

// Position is the exchange-reported position for one symbol.
// Amount is signed: positive = long, negative = short, zero = flat.
type Position struct {
	Symbol        string  `json:"symbol"`
	Amount        float64 `json:"position_amt"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	LiqPrice      float64 `json:"liquidation_price"`
}

// State derives FLAT/LONG/SHORT from the signed amount.
func (p Position) State() PositionState {
	switch {
	case p.Amount > 0:
		return StateLong
	case p.Amount < 0:
		return StateShort
	default:
		return StateFlat
	}
}

// Size returns the absolute position amount.
func (p Position) Size() float64 {
	if p.Amount < 0 {
		return -p.Amount
	}
	return p.Amount
}

// Balance is one asset row of the futures wallet.
type Balance struct {
	Asset            string  `json:"asset"`
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"available_balance"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
}

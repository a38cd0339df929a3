package execution

import (
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// Step is one order the executor must place.
type Step struct {
	Side       model.Side        `json:"side"`
	Quantity   float64           `json:"quantity"`
	ReduceOnly bool              `json:"reduce_only"`
	Intent     model.TradeIntent `json:"intent"`
}

// Decide maps a signal and the live position to the orders that bring the
// account in line with the signal. It holds no state: the position passed in
// is the only record of where the account stands.
//
//	BUY:  SHORT → close |amt| then open size; FLAT → open size; LONG → nothing
//	SELL: LONG  → close amt then open size;  FLAT → open size; SHORT → nothing
//	HOLD: nothing
func Decide(kind strategy.Kind, pos model.Position, size float64) []Step {
	side, ok := kind.Side()
	if !ok || size <= 0 {
		return nil
	}

	var steps []Step
	switch state := pos.State(); {
	case side == model.SideBuy && state == model.StateLong,
		side == model.SideSell && state == model.StateShort:
		// already positioned; no pyramiding
		return nil
	case side == model.SideBuy && state == model.StateShort:
		steps = append(steps, Step{Side: model.SideBuy, Quantity: pos.Size(), ReduceOnly: true, Intent: model.IntentCloseShort})
	case side == model.SideSell && state == model.StateLong:
		steps = append(steps, Step{Side: model.SideSell, Quantity: pos.Size(), ReduceOnly: true, Intent: model.IntentCloseLong})
	}

	open := model.IntentOpenLong
	if side == model.SideSell {
		open = model.IntentOpenShort
	}
	return append(steps, Step{Side: side, Quantity: size, Intent: open})
}

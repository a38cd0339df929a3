package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID     string     `json:"order_id"`
	Side        model.Side `json:"side"`
	Quantity    float64    `json:"quantity"`
	FillPrice   float64    `json:"fill_price"`
	Slippage    float64    `json:"slippage"`
	ReduceOnly  bool       `json:"reduce_only"`
	RealizedPnL float64    `json:"realized_pnl"`
	FilledAt    time.Time  `json:"filled_at"`
}

// PaperConfig sets the simulation parameters.
type PaperConfig struct {
	Symbol         string
	InitialBalance float64 // USDT
	Leverage       float64
	SlippageBps    float64 // basis points of slippage (e.g., 5 = 0.05%)
	MinQty         float64
}

// PaperBroker simulates a one-way futures account for one symbol. It fills
// market orders at the last mark price and enforces reduce-only and margin
// rules with the same reason codes as the exchange.
type PaperBroker struct {
	mu       sync.RWMutex
	cfg      PaperConfig
	mark     float64
	amount   float64 // signed
	entry    float64
	wallet   float64
	fills    []Fill
	orderSeq int64
	logger   *slog.Logger
}

// NewPaperBroker creates a flat paper account.
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &PaperBroker{
		cfg:    cfg,
		wallet: cfg.InitialBalance,
		fills:  make([]Fill, 0, 256),
		logger: slog.Default().With("component", "paper"),
	}
}

// SetMarkPrice feeds the price used for fills and P&L.
func (p *PaperBroker) SetMarkPrice(price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.mark = price
	p.mu.Unlock()
}

// MarkPrice returns the last fed mark price.
func (p *PaperBroker) MarkPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.mark <= 0 {
		return 0, fmt.Errorf("paper: no mark price for %s yet", symbol)
	}
	return p.mark, nil
}

// GetPosition returns the simulated position.
func (p *PaperBroker) GetPosition(_ context.Context, symbol string) (model.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.Position{
		Symbol:        symbol,
		Amount:        p.amount,
		EntryPrice:    p.entry,
		MarkPrice:     p.mark,
		UnrealizedPnL: p.unrealizedLocked(),
	}, nil
}

// Balances returns the simulated USDT wallet.
func (p *PaperBroker) Balances(context.Context) ([]model.Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	upnl := p.unrealizedLocked()
	return []model.Balance{{
		Asset:            "USDT",
		Balance:          p.wallet,
		AvailableBalance: p.availableLocked(),
		UnrealizedPnL:    upnl,
	}}, nil
}

// PlaceOrder fills a market order immediately.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return p.reject(req, model.ReasonTimeout, err.Error())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Type != model.OrderTypeMarket {
		return p.reject(req, model.ReasonRejected, "paper broker supports MARKET orders only")
	}
	if !(req.Quantity > 0) || req.Quantity < p.cfg.MinQty {
		return p.reject(req, model.ReasonQuantityBounds, fmt.Sprintf("quantity %v below minimum %v", req.Quantity, p.cfg.MinQty))
	}
	if p.mark <= 0 {
		return p.reject(req, model.ReasonRejected, "no mark price")
	}

	signed := req.Quantity
	if req.Side == model.SideSell {
		signed = -signed
	}
	closing := p.amount != 0 && math.Signbit(signed) != math.Signbit(p.amount)
	if req.ReduceOnly && (!closing || req.Quantity > math.Abs(p.amount)+1e-12) {
		return p.reject(req, model.ReasonReduceOnly, "reduce-only order would increase position")
	}

	fillPrice := p.mark
	slippage := fillPrice * p.cfg.SlippageBps / 10000
	if req.Side == model.SideBuy {
		fillPrice += slippage // buy higher
	} else {
		fillPrice -= slippage // sell lower
	}

	// Opening exposure must be covered by margin.
	opening := req.Quantity
	if closing {
		opening = math.Max(0, req.Quantity-math.Abs(p.amount))
	}
	if need := opening * fillPrice / p.cfg.Leverage; need > p.availableLocked()+1e-9 {
		return p.reject(req, model.ReasonInsufficientBalance, fmt.Sprintf("margin %.4f exceeds available %.4f", need, p.availableLocked()))
	}

	realized := p.applyLocked(signed, fillPrice)
	p.orderSeq++
	fill := Fill{
		OrderID:     "PAPER-" + strconv.FormatInt(p.orderSeq, 10),
		Side:        req.Side,
		Quantity:    req.Quantity,
		FillPrice:   fillPrice,
		Slippage:    slippage,
		ReduceOnly:  req.ReduceOnly,
		RealizedPnL: realized,
		FilledAt:    time.Now(),
	}
	p.fills = append(p.fills, fill)

	p.logger.Info("paper fill", "side", req.Side, "qty", req.Quantity, "price", fillPrice,
		"slip", slippage, "order", fill.OrderID, "position", p.amount, "realized", realized)

	return model.OrderResult{
		Status:  model.OrderStatusFilled,
		Reason:  model.ReasonOK,
		Message: fmt.Sprintf("paper filled at %.4f", fillPrice),
		Order: &model.Order{
			OrderID:     fill.OrderID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Type:        req.Type,
			Quantity:    req.Quantity,
			ExecutedQty: req.Quantity,
			AvgPrice:    fillPrice,
			Status:      string(model.OrderStatusFilled),
			UpdatedAt:   fill.FilledAt,
		},
	}, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperBroker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// applyLocked updates position and wallet for a signed fill and returns realized P&L.
func (p *PaperBroker) applyLocked(signed, price float64) float64 {
	realized := 0.0
	switch {
	case p.amount == 0 || math.Signbit(signed) == math.Signbit(p.amount):
		total := p.amount + signed
		p.entry = (p.entry*math.Abs(p.amount) + price*math.Abs(signed)) / math.Abs(total)
		p.amount = total
	default:
		closed := math.Min(math.Abs(signed), math.Abs(p.amount))
		dir := 1.0
		if p.amount < 0 {
			dir = -1
		}
		realized = (price - p.entry) * closed * dir
		p.wallet += realized
		rest := p.amount + signed
		switch {
		case math.Abs(rest) < 1e-12:
			p.amount, p.entry = 0, 0
		case math.Signbit(rest) != math.Signbit(p.amount):
			// flipped through zero
			p.amount, p.entry = rest, price
		default:
			p.amount = rest
		}
	}
	return realized
}

func (p *PaperBroker) unrealizedLocked() float64 {
	if p.amount == 0 || p.mark <= 0 {
		return 0
	}
	return (p.mark - p.entry) * p.amount
}

func (p *PaperBroker) availableLocked() float64 {
	used := math.Abs(p.amount) * p.entry / p.cfg.Leverage
	return p.wallet + p.unrealizedLocked() - used
}

func (p *PaperBroker) reject(req model.OrderRequest, reason model.ReasonCode, msg string) (model.OrderResult, error) {
	res := model.OrderResult{Status: model.OrderStatusRejected, Reason: reason, Message: msg}
	return res, &model.OrderExecutionError{Side: req.Side, Quantity: req.Quantity, Reason: reason, Message: msg}
}

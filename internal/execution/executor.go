// Package execution places and unwinds orders for the traded symbol.
//
// The position is re-read from the exchange on every call and never cached,
// so manual trades made outside the bot are always picked up. Between that read
// and the orders there is an unavoidable race window against concurrent
// external trading on the same account.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// Observer receives one call per order attempt.
type Observer interface {
	ObserveOrder(side model.Side, status model.OrderStatus, reason model.ReasonCode)
}

// StepResult is the outcome of one placed step.
type StepResult struct {
	Step   Step              `json:"step"`
	Result model.OrderResult `json:"result"`
}

// Report describes what one Execute call did.
type Report struct {
	Position model.Position `json:"position"`
	Steps    []StepResult   `json:"steps"`
}

// Config holds the executor settings.
type Config struct {
	Symbol  string
	Timeout time.Duration // per exchange call
}

// Executor turns actionable signals into close/open order sequences.
type Executor struct {
	cfg      Config
	broker   model.Broker
	journal  model.TradeLogger
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an executor. journal and observer may be nil.
func NewExecutor(cfg Config, broker model.Broker, journal model.TradeLogger, observer Observer) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Executor{
		cfg:      cfg,
		broker:   broker,
		journal:  journal,
		observer: observer,
		logger:   slog.Default().With("component", "executor"),
		now:      time.Now,
	}
}

// Execute brings the position in line with sig. It does nothing when automation
// is disabled or the signal is HOLD. Steps run in order; if one fails the rest
// are not attempted and the error is returned.
func (e *Executor) Execute(ctx context.Context, sig strategy.Signal, auto AutomationState) (Report, error) {
	var rep Report
	if !auto.Enabled || !sig.Actionable() {
		return rep, nil
	}

	pos, err := e.position(ctx)
	if err != nil {
		return rep, err
	}
	rep.Position = pos

	steps := Decide(sig.Kind, pos, auto.PositionSize)
	if len(steps) == 0 {
		e.logger.Debug("position already aligned", "signal", sig.Kind, "state", pos.State(), "amount", pos.Amount)
		return rep, nil
	}

	for _, st := range steps {
		res, err := e.place(ctx, st, sig.Price)
		rep.Steps = append(rep.Steps, StepResult{Step: st, Result: res})
		if err != nil {
			e.logger.Warn("order step failed, aborting sequence",
				"intent", st.Intent, "side", st.Side, "qty", st.Quantity, "reason", res.Reason, "error", err)
			return rep, err
		}
	}
	return rep, nil
}

// PlaceManual places a market order requested by an operator.
func (e *Executor) PlaceManual(ctx context.Context, side model.Side, qty float64) (model.OrderResult, error) {
	if side != model.SideBuy && side != model.SideSell {
		return model.OrderResult{}, fmt.Errorf("invalid side %q", side)
	}
	if !(qty > 0) || math.IsInf(qty, 0) {
		return model.OrderResult{}, fmt.Errorf("invalid quantity %v", qty)
	}
	return e.place(ctx, Step{Side: side, Quantity: qty, Intent: model.IntentManual}, 0)
}

func (e *Executor) position(ctx context.Context) (model.Position, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	pos, err := e.broker.GetPosition(cctx, e.cfg.Symbol)
	if err != nil {
		return model.Position{}, &model.DataFetchError{Op: "position", Err: err}
	}
	return pos, nil
}

func (e *Executor) place(ctx context.Context, st Step, refPrice float64) (model.OrderResult, error) {
	req := model.OrderRequest{
		Symbol:     e.cfg.Symbol,
		Side:       st.Side,
		Type:       model.OrderTypeMarket,
		Quantity:   st.Quantity,
		ReduceOnly: st.ReduceOnly,
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	res, err := e.broker.PlaceOrder(cctx, req)
	cancel()

	if err != nil {
		err = asOrderError(err, st)
		var oe *model.OrderExecutionError
		errors.As(err, &oe)
		if res.Status == "" || res.Status == model.OrderStatusFilled || res.Status == model.OrderStatusNew {
			res.Status = model.OrderStatusError
		}
		res.Reason = oe.Reason
		if res.Message == "" {
			res.Message = oe.Message
		}
	} else if res.Reason == "" {
		res.Reason = model.ReasonOK
	}

	e.record(ctx, st, res, refPrice)
	if e.observer != nil {
		e.observer.ObserveOrder(st.Side, res.Status, res.Reason)
	}
	if err == nil {
		e.logger.Info("order placed", "intent", st.Intent, "side", st.Side, "qty", st.Quantity,
			"reduce_only", st.ReduceOnly, "status", res.Status, "order_id", orderID(res))
	}
	return res, err
}

// record writes the attempt to the trade log. Failures are logged only; the
// trading sequence never depends on the log.
func (e *Executor) record(ctx context.Context, st Step, res model.OrderResult, refPrice float64) {
	if e.journal == nil {
		return
	}
	att := model.TradeAttempt{
		Timestamp: e.now().UTC(),
		Symbol:    e.cfg.Symbol,
		Type:      model.OrderTypeMarket,
		Side:      st.Side,
		Intent:    st.Intent,
		Quantity:  st.Quantity,
		Status:    res.Status,
		Reason:    res.Reason,
		Message:   res.Message,
		OrderID:   orderID(res),
	}
	if res.Order != nil && res.Order.AvgPrice > 0 {
		p := res.Order.AvgPrice
		att.Price = &p
	} else if refPrice > 0 {
		p := refPrice
		att.Price = &p
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()
	if err := e.journal.LogTradeAttempt(lctx, att); err != nil {
		e.logger.Error("trade log write failed", "intent", st.Intent, "error", err)
	}
}

// asOrderError normalizes any placement failure into *model.OrderExecutionError.
func asOrderError(err error, st Step) error {
	var oe *model.OrderExecutionError
	if errors.As(err, &oe) {
		return err
	}
	reason := model.ReasonRejected
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = model.ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = model.ReasonNetwork
	}
	return &model.OrderExecutionError{Side: st.Side, Quantity: st.Quantity, Reason: reason, Message: err.Error(), Err: err}
}

func orderID(res model.OrderResult) string {
	if res.Order == nil {
		return ""
	}
	return res.Order.OrderID
}

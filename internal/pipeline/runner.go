package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xdaguy/LTCBOT/internal/logger"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/notification"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

const (
	mirrorTimeout = 3 * time.Second
	alertTimeout  = 10 * time.Second
)

// Broadcaster delivers a composed payload to subscribers.
type Broadcaster interface {
	Broadcast(payload []byte, srcTS time.Time) int
}

// Publisher mirrors a payload to an external bus.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Observer is notified of runner activity; metrics and health implement it.
type Observer interface {
	ObserveTick(tick model.MarkPrice)
	ObserveCoalesced()
	ObserveCycle(res Result)
}

// RunnerOptions holds the optional collaborators of a Runner.
type RunnerOptions struct {
	Mirror   Publisher
	Notifier notification.Notifier
	Observer Observer

	// OnTick runs on the feed goroutine for every tick, before it is queued.
	// The paper broker uses it to track the mark price.
	OnTick func(model.MarkPrice)
}

// Runner drives cycles from a tick channel. A single worker runs cycles one
// at a time; a tick that arrives while a cycle is in flight replaces any
// tick still waiting, so only the newest pending tick is evaluated.
type Runner struct {
	cycle  *Cycle
	out    Broadcaster
	opts   RunnerOptions
	symbol string
	logger *slog.Logger

	pending *mailbox[model.MarkPrice]
	mirror  *mailbox[[]byte]

	seq      uint64 // worker goroutine only
	lastTick atomic.Pointer[model.MarkPrice]
}

func NewRunner(cycle *Cycle, out Broadcaster, opts RunnerOptions) *Runner {
	return &Runner{
		cycle:   cycle,
		out:     out,
		opts:    opts,
		symbol:  cycle.cfg.Symbol,
		logger:  slog.Default().With("component", "runner"),
		pending: newMailbox[model.MarkPrice](),
		mirror:  newMailbox[[]byte](),
	}
}

// LastTick returns the most recent tick seen, if any.
func (r *Runner) LastTick() (model.MarkPrice, bool) {
	t := r.lastTick.Load()
	if t == nil {
		return model.MarkPrice{}, false
	}
	return *t, true
}

// Evaluate runs an evaluation-only pass at the last seen price.
func (r *Runner) Evaluate(ctx context.Context) (strategy.Signal, error) {
	price := 0.0
	if t, ok := r.LastTick(); ok {
		price = t.Price
	}
	return r.cycle.Evaluate(ctx, price)
}

// Run consumes ticks until ctx is done or ticks is closed. When ticks is
// closed, a tick still waiting in the mailbox is processed before Run
// returns.
func (r *Runner) Run(ctx context.Context, ticks <-chan model.MarkPrice) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.work(ctx, stop)
	}()
	if r.opts.Mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.mirrorLoop(ctx, stop)
		}()
	}
	defer wg.Wait()
	defer close(stop)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			r.offer(tick)
		}
	}
}

func (r *Runner) offer(tick model.MarkPrice) {
	t := tick
	r.lastTick.Store(&t)
	if r.opts.OnTick != nil {
		r.opts.OnTick(tick)
	}
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveTick(tick)
	}
	if r.pending.offer(tick) && r.opts.Observer != nil {
		r.opts.Observer.ObserveCoalesced()
	}
}

func (r *Runner) work(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-r.pending.ch:
			r.process(ctx, tick)
		case <-stop:
			select {
			case tick := <-r.pending.ch:
				r.process(ctx, tick)
			default:
			}
			return
		}
	}
}

func (r *Runner) process(ctx context.Context, tick model.MarkPrice) {
	r.seq++
	id := logger.NewCycleID(r.symbol, r.seq, time.Now())
	ctx = logger.WithCycleID(ctx, id)
	log := r.logger.With(logger.Attrs(ctx)...)

	res := r.cycle.Run(ctx, Input{Tick: tick, CycleID: id})
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveCycle(res)
	}

	if len(res.Report.Steps) > 0 {
		r.alertOrders(res)
	}
	if res.Failed() {
		log.Warn("cycle skipped", "result", res.Label, "error", res.Err, "duration", res.Duration)
		return
	}
	if res.Violation != nil {
		r.alert(notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Signal invariant violated",
			Message: res.Violation.Error(),
			Symbol:  r.symbol,
			CycleID: id,
		})
	}

	n := r.out.Broadcast(res.Payload, tick.EventTime)
	log.Debug("cycle complete", "signal", res.Signal.Kind, "price", res.Signal.Price,
		"delivered", n, "duration", res.Duration)

	if r.opts.Mirror != nil && r.mirror.offer(res.Payload) {
		log.Debug("mirror backlog, older payload replaced")
	}
}

func (r *Runner) alertOrders(res Result) {
	for _, st := range res.Report.Steps {
		level := notification.AlertInfo
		title := fmt.Sprintf("%s %s %g", st.Step.Intent, st.Step.Side, st.Step.Quantity)
		if st.Result.Status == model.OrderStatusRejected || st.Result.Status == model.OrderStatusError {
			level = notification.AlertWarning
			title += " failed"
		}
		r.alert(notification.Alert{
			Level:   level,
			Title:   title,
			Message: fmt.Sprintf("status=%s reason=%s %s", st.Result.Status, st.Result.Reason, st.Result.Message),
			Symbol:  r.symbol,
			CycleID: res.CycleID,
		})
	}
}

func (r *Runner) alert(a notification.Alert) {
	notification.Dispatch(r.opts.Notifier, a, alertTimeout)
}

func (r *Runner) mirrorLoop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case payload := <-r.mirror.ch:
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
			if err := r.opts.Mirror.Publish(pctx, payload); err != nil {
				r.logger.Warn("mirror publish failed", "error", err)
			}
			cancel()
		}
	}
}

// mailbox is a one-slot queue where a new value replaces a waiting one.
type mailbox[T any] struct {
	mu sync.Mutex
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

// offer queues v and reports whether it displaced a waiting value.
func (m *mailbox[T]) offer(v T) (replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.ch:
		replaced = true
	default:
	}
	m.ch <- v
	return replaced
}

// Package pipeline runs one evaluation cycle per mark-price tick: fetch
// candles, compute indicators, evaluate the signal, optionally trade, and
// compose the broadcast payload. Cycles never overlap.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xdaguy/LTCBOT/internal/execution"
	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/logger"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// Cycle result labels, used in logs and the ltcbot_cycles_total metric.
const (
	ResultOK           = "ok"
	ResultViolation    = "invariant_violation"
	ResultFetchError   = "fetch_error"
	ResultInvalidInput = "invalid_input"
	ResultExecError    = "exec_error"
	ResultTimeout      = "timeout"
	ResultError        = "error"
)

// Config holds the cycle settings.
type Config struct {
	Symbol          string
	SignalTimeframe string
	ChartTimeframes []string
	CandleLimit     int
	ChartLimit      int
	ExchangeTimeout time.Duration // per exchange call
	CycleTimeout    time.Duration // whole cycle
}

// Executor places the orders for an actionable signal.
type Executor interface {
	Execute(ctx context.Context, sig strategy.Signal, auto execution.AutomationState) (execution.Report, error)
}

// Input is what triggers one cycle.
type Input struct {
	Tick    model.MarkPrice
	CycleID string
}

// Result is the outcome of one cycle. Payload is set only when the cycle
// succeeded and may be broadcast.
type Result struct {
	CycleID    string
	Label      string
	Signal     strategy.Signal
	Automation execution.AutomationState
	Report     execution.Report
	Payload    []byte
	Violation  error
	Err        error
	Duration   time.Duration
}

// Failed reports whether the cycle must be skipped by subscribers.
func (r Result) Failed() bool { return r.Err != nil }

// Cycle evaluates one tick. It keeps no state between calls.
type Cycle struct {
	cfg       Config
	fetcher   model.CandleFetcher
	engine    *indicator.Engine
	evaluator *strategy.Evaluator
	executor  Executor
	auto      *execution.Automation
	logger    *slog.Logger
	now       func() time.Time
}

func NewCycle(cfg Config, fetcher model.CandleFetcher, engine *indicator.Engine,
	evaluator *strategy.Evaluator, executor Executor, auto *execution.Automation) *Cycle {
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 5 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 4 * cfg.ExchangeTimeout
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.ChartLimit <= 0 {
		cfg.ChartLimit = 100
	}
	return &Cycle{
		cfg:       cfg,
		fetcher:   fetcher,
		engine:    engine,
		evaluator: evaluator,
		executor:  executor,
		auto:      auto,
		logger:    slog.Default().With("component", "pipeline"),
		now:       time.Now,
	}
}

// Run executes one cycle. Failures are reported in the Result, never as a
// panic or a returned error.
func (c *Cycle) Run(ctx context.Context, in Input) Result {
	start := c.now()
	// Read the flag once; a flip during the cycle applies from the next one.
	res := Result{CycleID: in.CycleID, Automation: c.auto.Snapshot()}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	c.run(ctx, in, &res)
	if res.Err != nil {
		res.Label = Classify(res.Err)
		res.Payload = nil
	}
	res.Duration = c.now().Sub(start)
	return res
}

func (c *Cycle) run(ctx context.Context, in Input, res *Result) {
	log := c.logger.With(logger.Attrs(ctx)...)

	candles, err := c.fetch(ctx, c.cfg.SignalTimeframe, c.cfg.CandleLimit)
	if err != nil {
		res.Err = err
		return
	}
	charts, err := c.charts(ctx, candles)
	if err != nil {
		res.Err = err
		return
	}

	sig, violation, err := c.evaluate(candles, signalPrice(in.Tick.Price, candles))
	if err != nil {
		res.Err = err
		return
	}
	res.Signal = sig
	res.Label = ResultOK

	switch {
	case violation != nil:
		res.Violation = violation
		res.Label = ResultViolation
		log.Error("invariant violation, order placement suppressed",
			"critical", true, "error", violation, "signal", sig.Kind, "price", sig.Price)
	case res.Automation.Enabled && sig.Actionable():
		rep, err := c.executor.Execute(ctx, sig, res.Automation)
		res.Report = rep
		if err != nil {
			res.Err = err
			return
		}
	}

	payload, err := json.Marshal(newPayload(c.cfg.Symbol, in, *res, charts))
	if err != nil {
		res.Err = fmt.Errorf("encode payload: %w", err)
		return
	}
	res.Payload = payload
}

// Evaluate fetches the signal timeframe and evaluates it at price without
// trading. A non-positive or non-finite price uses the latest close. An invariant
// violation is returned alongside the signal.
func (c *Cycle) Evaluate(ctx context.Context, price float64) (strategy.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	candles, err := c.fetch(ctx, c.cfg.SignalTimeframe, c.cfg.CandleLimit)
	if err != nil {
		return strategy.Signal{}, err
	}
	sig, violation, err := c.evaluate(candles, signalPrice(price, candles))
	if err != nil {
		return strategy.Signal{}, err
	}
	if violation != nil {
		return sig, violation
	}
	return sig, nil
}

// evaluate returns the signal, the invariant violation if one was detected,
// and an error only when the candles themselves are unusable.
func (c *Cycle) evaluate(candles []model.Candle, price float64) (strategy.Signal, *model.InvariantViolation, error) {
	snaps, err := c.engine.ComputeCandles(candles)
	if err != nil {
		return strategy.Signal{}, nil, err
	}

	sig, err := c.evaluator.Evaluate(snaps, price)
	sig.Timeframe = c.cfg.SignalTimeframe
	sig.CandleTime = candles[len(candles)-1].OpenTime

	var violation *model.InvariantViolation
	switch {
	case err == nil:
	case errors.As(err, &violation):
		if sig.Kind == strategy.KindHold {
			c.logger.Warn("levels unavailable", "error", err)
		}
		return sig, violation, nil
	case model.IsWarmup(err):
		c.logger.Debug("indicators warming up", "error", err)
	default:
		c.logger.Warn("signal degraded to HOLD", "error", err)
	}
	return sig, nil, nil
}

// signalPrice is the price a signal is quoted at: the tick's mark price, or
// the latest close when the mark price is unusable.
func signalPrice(mark float64, candles []model.Candle) float64 {
	if mark > 0 && !math.IsInf(mark, 0) {
		return mark
	}
	return candles[len(candles)-1].Close
}

func (c *Cycle) fetch(ctx context.Context, tf string, limit int) ([]model.Candle, error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.ExchangeTimeout)
	defer cancel()

	candles, err := c.fetcher.FetchCandles(fctx, c.cfg.Symbol, tf, limit)
	if err != nil {
		var fe *model.DataFetchError
		var ie *model.InvalidInputError
		if errors.As(err, &fe) || errors.As(err, &ie) {
			return nil, err
		}
		return nil, &model.DataFetchError{Op: "klines " + tf, Err: err}
	}
	if len(candles) == 0 {
		return nil, &model.DataFetchError{Op: "klines " + tf, Err: errors.New("no candles returned")}
	}
	return candles, nil
}

// charts returns the close series for every chart timeframe. The signal
// timeframe reuses the candles already fetched.
func (c *Cycle) charts(ctx context.Context, signal []model.Candle) (map[string][]ChartPoint, error) {
	out := make(map[string][]ChartPoint, len(c.cfg.ChartTimeframes))
	for _, tf := range c.cfg.ChartTimeframes {
		if _, done := out[tf]; done {
			continue
		}
		candles := signal
		if tf != c.cfg.SignalTimeframe {
			var err error
			if candles, err = c.fetch(ctx, tf, c.cfg.ChartLimit); err != nil {
				return nil, err
			}
		}
		out[tf] = chartSeries(candles, c.cfg.ChartLimit)
	}
	return out, nil
}

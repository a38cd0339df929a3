package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xdaguy/LTCBOT/internal/execution"
	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/portfolio"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// trendReversal is a steady decline of 1 per candle followed by two sharp
// up candles. EMA(9) crosses above EMA(21) exactly on the last candle, RSI
// rises over the last three candles and +DI leads -DI.
func trendReversal(step time.Duration) []model.Candle {
	closes := make([]float64, 0, 43)
	for i := 0; i <= 40; i++ {
		closes = append(closes, float64(100-i))
	}
	closes = append(closes, 70, 120)
	return candlesFrom(closes, step)
}

func flat(n int, step time.Duration) []model.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 80 + float64(i%2)*0.5
	}
	return candlesFrom(closes, step)
}

func candlesFrom(closes []float64, step time.Duration) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			OpenTime: t0.Add(time.Duration(i) * step),
			Open:     c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100,
		}
	}
	return out
}

// permissive thresholds let the trendReversal series fire BUY.
func permissive() strategy.Thresholds {
	return strategy.Thresholds{
		RSIOversold:     100,
		RSIOverbought:   0,
		VeryStrongADX:   50,
		HighVolumeRatio: 1.5,
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	candles map[string][]model.Candle
	errs    map[string]error
	calls   map[string]int

	// When block is set the first call waits on it (or ctx) after closing entered.
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		candles: map[string][]model.Candle{
			"15m": trendReversal(15 * time.Minute),
			"1m":  flat(60, time.Minute),
			"1h":  flat(30, time.Hour),
		},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error) {
	if f.block != nil {
		first := false
		f.once.Do(func() { first = true; close(f.entered) })
		if first {
			select {
			case <-f.block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[tf]++
	if err := f.errs[tf]; err != nil {
		return nil, err
	}
	return f.candles[tf], nil
}

func (f *fakeFetcher) callCount(tf string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tf]
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []execution.AutomationState
	rep   execution.Report
	err   error
}

func (e *fakeExecutor) Execute(_ context.Context, sig strategy.Signal, auto execution.AutomationState) (execution.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, auto)
	return e.rep, e.err
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type captureBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *captureBroadcaster) Broadcast(payload []byte, _ time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return 1
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

type recordingObserver struct {
	mu        sync.Mutex
	ticks     int
	coalesced int
	results   []Result
}

func (o *recordingObserver) ObserveTick(model.MarkPrice) {
	o.mu.Lock()
	o.ticks++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCoalesced() {
	o.mu.Lock()
	o.coalesced++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCycle(res Result) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() (ticks, coalesced int, results []Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticks, o.coalesced, append([]Result(nil), o.results...)
}

type capturePublisher struct {
	mu   sync.Mutex
	sent [][]byte
}

func (p *capturePublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

var errExchangeDown = errors.New("exchange down")

func testConfig() Config {
	return Config{
		Symbol:          "LTCUSDT",
		SignalTimeframe: "15m",
		ChartTimeframes: []string{"1m", "15m", "1h"},
		CandleLimit:     100,
		ChartLimit:      50,
		ExchangeTimeout: 2 * time.Second,
		CycleTimeout:    5 * time.Second,
	}
}

func newTestCycle(t *testing.T, f model.CandleFetcher, ex Executor, auto *execution.Automation) *Cycle {
	t.Helper()
	params := indicator.DefaultParams()
	risk := portfolio.NewRiskCalculator(portfolio.DefaultRiskParams())
	ev := strategy.NewEvaluator(permissive(), params.Lookback(), risk)
	return NewCycle(testConfig(), f, indicator.NewEngine(params), ev, ex, auto)
}

func buyTick() model.MarkPrice {
	return model.MarkPrice{Symbol: "LTCUSDT", Price: 120, EventTime: t0.Add(11 * time.Hour)}
}

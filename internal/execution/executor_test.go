package execution

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// fakeBroker records every order and fails the calls listed in failAt (1-based).
type fakeBroker struct {
	mu     sync.Mutex
	pos    model.Position
	posErr error
	failAt map[int]model.ReasonCode
	block  bool
	reads  int
	orders []model.OrderRequest
}

func (b *fakeBroker) GetPosition(_ context.Context, symbol string) (model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	p := b.pos
	p.Symbol = symbol
	return p, b.posErr
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	b.mu.Lock()
	b.orders = append(b.orders, req)
	n := len(b.orders)
	reason, fail := b.failAt[n]
	block := b.block
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return model.OrderResult{}, ctx.Err()
	}
	if fail {
		return model.OrderResult{Status: model.OrderStatusRejected, Reason: reason, Message: "rejected"},
			&model.OrderExecutionError{Side: req.Side, Quantity: req.Quantity, Reason: reason, Message: "rejected"}
	}
	return model.OrderResult{
		Status: model.OrderStatusFilled,
		Order:  &model.Order{OrderID: "1", Side: req.Side, Quantity: req.Quantity, AvgPrice: 80},
	}, nil
}

func (b *fakeBroker) placed() []model.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.OrderRequest(nil), b.orders...)
}

type memLog struct {
	mu   sync.Mutex
	rows []model.TradeAttempt
	err  error
}

func (m *memLog) LogTradeAttempt(_ context.Context, a model.TradeAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, a)
	return m.err
}

type countingObserver struct{ n int }

func (c *countingObserver) ObserveOrder(model.Side, model.OrderStatus, model.ReasonCode) { c.n++ }

func buySignal() strategy.Signal { return strategy.Signal{Kind: strategy.KindBuy, Price: 80} }

var enabled = AutomationState{Enabled: true, PositionSize: 0.1}

func newTestExecutor(b *fakeBroker, l model.TradeLogger) *Executor {
	return NewExecutor(Config{Symbol: "LTCUSDT", Timeout: time.Second}, b, l, nil)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		kind   strategy.Kind
		amount float64
		want   []Step
	}{
		{"hold", strategy.KindHold, 0, nil},
		{"buy flat", strategy.KindBuy, 0, []Step{{Side: model.SideBuy, Quantity: 0.1, Intent: model.IntentOpenLong}}},
		{"buy long", strategy.KindBuy, 0.3, nil},
		{"buy short", strategy.KindBuy, -0.5, []Step{
			{Side: model.SideBuy, Quantity: 0.5, ReduceOnly: true, Intent: model.IntentCloseShort},
			{Side: model.SideBuy, Quantity: 0.1, Intent: model.IntentOpenLong},
		}},
		{"sell flat", strategy.KindSell, 0, []Step{{Side: model.SideSell, Quantity: 0.1, Intent: model.IntentOpenShort}}},
		{"sell short", strategy.KindSell, -0.2, nil},
		{"sell long", strategy.KindSell, 0.7, []Step{
			{Side: model.SideSell, Quantity: 0.7, ReduceOnly: true, Intent: model.IntentCloseLong},
			{Side: model.SideSell, Quantity: 0.1, Intent: model.IntentOpenShort},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.kind, model.Position{Amount: tt.amount}, 0.1)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecute_ShortToLong(t *testing.T) {
	b := &fakeBroker{pos: model.Position{Amount: -0.5}}
	log := &memLog{}
	rep, err := newTestExecutor(b, log).Execute(context.Background(), buySignal(), enabled)
	require.NoError(t, err)

	orders := b.placed()
	require.Len(t, orders, 2)
	assert.Equal(t, model.SideBuy, orders[0].Side)
	assert.Equal(t, 0.5, orders[0].Quantity)
	assert.True(t, orders[0].ReduceOnly)
	assert.Equal(t, model.SideBuy, orders[1].Side)
	assert.Equal(t, 0.1, orders[1].Quantity)
	assert.False(t, orders[1].ReduceOnly)

	require.Len(t, rep.Steps, 2)
	require.Len(t, log.rows, 2)
	assert.Equal(t, model.IntentCloseShort, log.rows[0].Intent)
	assert.Equal(t, model.IntentOpenLong, log.rows[1].Intent)
	assert.Equal(t, model.ReasonOK, log.rows[1].Reason)
}

func TestExecute_FailedCloseSkipsOpen(t *testing.T) {
	b := &fakeBroker{pos: model.Position{Amount: -0.5}, failAt: map[int]model.ReasonCode{1: model.ReasonReduceOnly}}
	log := &memLog{}
	obs := &countingObserver{}
	ex := NewExecutor(Config{Symbol: "LTCUSDT", Timeout: time.Second}, b, log, obs)

	_, err := ex.Execute(context.Background(), buySignal(), enabled)
	require.Error(t, err)
	assert.Equal(t, model.ReasonReduceOnly, model.ReasonOf(err))

	// The close was attempted and rejected; the open never reached the broker.
	orders := b.placed()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].ReduceOnly)

	require.Len(t, log.rows, 1)
	assert.Equal(t, model.OrderStatusRejected, log.rows[0].Status)
	assert.Equal(t, model.ReasonReduceOnly, log.rows[0].Reason)
	assert.Equal(t, 1, obs.n)
}

func TestExecute_NoOrders(t *testing.T) {
	tests := []struct {
		name string
		sig  strategy.Signal
		auto AutomationState
		pos  float64
	}{
		{"automation disabled", buySignal(), AutomationState{PositionSize: 0.1}, 0},
		{"hold", strategy.Signal{Kind: strategy.KindHold}, enabled, 0},
		{"already long", buySignal(), enabled, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{pos: model.Position{Amount: tt.pos}}
			_, err := newTestExecutor(b, nil).Execute(context.Background(), tt.sig, tt.auto)
			require.NoError(t, err)
			assert.Empty(t, b.placed())
		})
	}
}

func TestExecute_PositionReadFailure(t *testing.T) {
	b := &fakeBroker{posErr: errors.New("connection reset")}
	_, err := newTestExecutor(b, nil).Execute(context.Background(), buySignal(), enabled)

	var de *model.DataFetchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "position", de.Op)
	assert.Empty(t, b.placed())
}

func TestExecute_TimeoutIsClassified(t *testing.T) {
	b := &fakeBroker{block: true}
	ex := NewExecutor(Config{Symbol: "LTCUSDT", Timeout: 20 * time.Millisecond}, b, nil, nil)

	_, err := ex.Execute(context.Background(), buySignal(), enabled)
	require.Error(t, err)
	assert.Equal(t, model.ReasonTimeout, model.ReasonOf(err))
}

func TestExecute_TradeLogFailureDoesNotAbort(t *testing.T) {
	b := &fakeBroker{pos: model.Position{Amount: -0.5}}
	log := &memLog{err: errors.New("disk full")}

	_, err := newTestExecutor(b, log).Execute(context.Background(), buySignal(), enabled)
	require.NoError(t, err)
	assert.Len(t, b.placed(), 2)
}

func TestPlaceManual(t *testing.T) {
	b := &fakeBroker{}
	log := &memLog{}
	ex := newTestExecutor(b, log)

	_, err := ex.PlaceManual(context.Background(), model.Side("LONG"), 1)
	assert.Error(t, err)
	for _, qty := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = ex.PlaceManual(context.Background(), model.SideSell, qty)
		assert.Error(t, err, "quantity %v", qty)
	}
	assert.Empty(t, b.placed(), "invalid quantities never reach the broker")

	res, err := ex.PlaceManual(context.Background(), model.SideSell, 0.2)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, res.Status)
	require.Len(t, log.rows, 1)
	assert.Equal(t, model.IntentManual, log.rows[0].Intent)
	require.NotNil(t, log.rows[0].Price)
	assert.Equal(t, 80.0, *log.rows[0].Price)
}

func TestAutomation(t *testing.T) {
	a := NewAutomation(0.1)
	assert.False(t, a.Enabled())

	var seen []bool
	a.OnChange(func(s AutomationState) { seen = append(seen, s.Enabled) })

	snap := a.Snapshot()
	a.Start()
	assert.True(t, a.Enabled())
	assert.False(t, snap.Enabled, "earlier snapshot is unaffected")

	require.Error(t, a.SetPositionSize(0))
	require.Error(t, a.SetPositionSize(-1))
	require.NoError(t, a.SetPositionSize(0.25))
	assert.Equal(t, 0.25, a.Snapshot().PositionSize)

	a.Stop()
	assert.False(t, a.Enabled())
	assert.Equal(t, []bool{true, true, false}, seen)
}

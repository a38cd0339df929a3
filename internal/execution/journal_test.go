package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdaguy/LTCBOT/internal/model"
)

func TestJournal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	j, err := NewJournal(filepath.Join(t.TempDir(), "db", "trades.db"))
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Ping(ctx))

	price := 81.25
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.LogTradeAttempt(ctx, model.TradeAttempt{
		Timestamp: ts, Symbol: "LTCUSDT", Type: model.OrderTypeMarket, Side: model.SideBuy,
		Intent: model.IntentOpenLong, Quantity: 0.1, Price: &price,
		Status: model.OrderStatusFilled, Reason: model.ReasonOK, OrderID: "42",
	}))
	require.NoError(t, j.LogTradeAttempt(ctx, model.TradeAttempt{
		Timestamp: ts.Add(time.Minute), Symbol: "LTCUSDT", Type: model.OrderTypeMarket, Side: model.SideSell,
		Intent: model.IntentManual, Quantity: 0.2,
		Status: model.OrderStatusRejected, Reason: model.ReasonInsufficientBalance, Message: "margin",
	}))

	rows, err := j.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// newest first
	assert.Equal(t, model.IntentManual, rows[0].Intent)
	assert.Nil(t, rows[0].Price)
	assert.Equal(t, model.ReasonInsufficientBalance, rows[0].Reason)

	assert.Equal(t, "42", rows[1].OrderID)
	require.NotNil(t, rows[1].Price)
	assert.Equal(t, 81.25, *rows[1].Price)
	assert.True(t, ts.Equal(rows[1].Timestamp))

	one, err := j.RecentTrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

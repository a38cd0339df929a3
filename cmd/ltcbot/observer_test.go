package main

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/xdaguy/LTCBOT/internal/metrics"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/pipeline"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast([]byte, time.Time) int { return 3 }

func TestObserver(t *testing.T) {
	m := metrics.New(nil)
	o := &observer{m: m, health: metrics.NewHealthStatus()}

	o.ObserveTick(model.MarkPrice{Price: 80, EventTime: time.Now()})
	o.ObserveTick(model.MarkPrice{Price: 81, EventTime: time.Now()})
	o.ObserveCoalesced()
	o.ObserveCycle(pipeline.Result{Label: pipeline.ResultOK, Signal: strategy.Signal{Kind: strategy.KindBuy}})
	o.ObserveCycle(pipeline.Result{Label: pipeline.ResultFetchError, Err: errors.New("down")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksCoalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(pipeline.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(pipeline.ResultFetchError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signals.WithLabelValues("BUY")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Cycles))
}

func TestMeteredBroadcaster(t *testing.T) {
	m := metrics.New(nil)
	b := &meteredBroadcaster{next: nopBroadcaster{}, latency: m.BroadcastLatency}

	assert.Equal(t, 3, b.Broadcast([]byte(`{}`), time.Now().Add(-50*time.Millisecond)))
	b.Broadcast([]byte(`{}`), time.Time{})
	assert.Equal(t, 1, testutil.CollectAndCount(m.BroadcastLatency))
}

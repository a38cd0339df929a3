package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xdaguy/LTCBOT/internal/metrics"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/pipeline"
)

// observer feeds runner activity into Prometheus and the health report.
type observer struct {
	m      *metrics.Metrics
	health *metrics.HealthStatus
}

func (o *observer) ObserveTick(t model.MarkPrice) {
	o.m.Ticks.Inc()
	o.health.SetLastTickTime(t.EventTime)
}

func (o *observer) ObserveCoalesced() { o.m.TicksCoalesced.Inc() }

func (o *observer) ObserveCycle(res pipeline.Result) {
	o.m.Cycles.WithLabelValues(res.Label).Inc()
	o.m.CycleDuration.Observe(res.Duration.Seconds())
	if !res.Failed() {
		o.m.Signals.WithLabelValues(string(res.Signal.Kind)).Inc()
	}
	o.health.SetCycle(time.Now(), res.Label)
}

// meteredBroadcaster records tick-to-delivery latency around a broadcaster.
type meteredBroadcaster struct {
	next    pipeline.Broadcaster
	latency prometheus.Histogram
}

func (b *meteredBroadcaster) Broadcast(payload []byte, srcTS time.Time) int {
	n := b.next.Broadcast(payload, srcTS)
	if !srcTS.IsZero() {
		b.latency.Observe(time.Since(srcTS).Seconds())
	}
	return n
}

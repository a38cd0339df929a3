package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Metrics holds the bot's Prometheus collectors. They live on their own
// registry so tests can build as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks          prometheus.Counter
	TicksCoalesced prometheus.Counter
	FeedReconnects prometheus.Counter

	Cycles        *prometheus.CounterVec // labels: result
	CycleDuration prometheus.Histogram
	Signals       *prometheus.CounterVec // labels: kind
	Orders        *prometheus.CounterVec // labels: side, status, reason

	WSSubscribers    prometheus.Gauge
	BroadcastRemoved prometheus.Counter
	BroadcastLatency prometheus.Histogram

	AutomationEnabled prometheus.Gauge

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// New builds and registers every collector on reg, or on a fresh registry
// when reg is nil. Go runtime and process collectors are included.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ltcbot_ticks_total",
			Help: "Mark-price ticks received from the feed",
		}),
		TicksCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ltcbot_ticks_coalesced_total",
			Help: "Ticks replaced in the mailbox before a cycle picked them up",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ltcbot_feed_reconnects_total",
			Help: "Mark-price feed disconnects followed by a reconnect attempt",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ltcbot_cycles_total",
			Help: "Pipeline cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ltcbot_cycle_duration_seconds",
			Help:    "Wall time of one pipeline cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ltcbot_signals_total",
			Help: "Evaluated signals by kind",
		}, []string{"kind"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ltcbot_orders_total",
			Help: "Order attempts by side, status and reason",
		}, []string{"side", "status", "reason"}),
		WSSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ltcbot_ws_subscribers",
			Help: "Connected WebSocket subscribers",
		}),
		BroadcastRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ltcbot_broadcast_removed_total",
			Help: "Subscribers removed after a failed send",
		}),
		BroadcastLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ltcbot_broadcast_latency_seconds",
			Help:    "Latency from tick event time to fan-out",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		AutomationEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ltcbot_automation_enabled",
			Help: "1 when automated trading is enabled",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ltcbot_redis_circuit_breaker_state",
			Help: "Redis mirror circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ltcbot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis mirror circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks,
		m.TicksCoalesced,
		m.FeedReconnects,
		m.Cycles,
		m.CycleDuration,
		m.Signals,
		m.Orders,
		m.WSSubscribers,
		m.BroadcastRemoved,
		m.BroadcastLatency,
		m.AutomationEnabled,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)
	return m
}

// ObserveOrder counts one order attempt.
func (m *Metrics) ObserveOrder(side model.Side, status model.OrderStatus, reason model.ReasonCode) {
	r := string(reason)
	if r == "" {
		r = "none"
	}
	m.Orders.WithLabelValues(string(side), string(status), r).Inc()
}

// SetAutomation mirrors the automation flag.
func (m *Metrics) SetAutomation(enabled bool) {
	if enabled {
		m.AutomationEnabled.Set(1)
		return
	}
	m.AutomationEnabled.Set(0)
}

// SetBreakerState records a breaker transition; entering state 1 (open)
// counts as a trip.
func (m *Metrics) SetBreakerState(state int) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

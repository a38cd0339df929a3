package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the liveness checker can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the state behind /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected   bool
	LastTickTime    time.Time
	LastCycleAt     time.Time
	LastCycleResult string
	JournalOK       bool
	JournalLatency  time.Duration
	RedisEnabled    bool
	RedisConnected  bool
	RedisLatency    time.Duration
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// SetCycle records when the last cycle finished and its result label.
func (h *HealthStatus) SetCycle(at time.Time, result string) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastCycleResult = result
	h.mu.Unlock()
}

// EnableRedis marks the Redis mirror as configured, so its state counts
// toward overall health.
func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.mu.Unlock()
}

func ping(ctx context.Context, p Pinger) (bool, time.Duration) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, time.Since(start)
}

// CheckJournal pings the trade-log store.
func (h *HealthStatus) CheckJournal(ctx context.Context, p Pinger) {
	ok, lat := ping(ctx, p)
	h.mu.Lock()
	h.JournalOK, h.JournalLatency, h.LastCheckAt = ok, lat, h.now()
	h.mu.Unlock()
}

// CheckRedis pings the payload mirror.
func (h *HealthStatus) CheckRedis(ctx context.Context, p Pinger) {
	ok, lat := ping(ctx, p)
	h.mu.Lock()
	h.RedisConnected, h.RedisLatency, h.LastCheckAt = ok, lat, h.now()
	h.mu.Unlock()
}

// StartLivenessChecker pings journal and redis (either may be nil) every
// interval until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, journal, redis Pinger, interval time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if journal != nil {
			h.CheckJournal(pingCtx, journal)
		}
		if redis != nil {
			h.CheckRedis(pingCtx, redis)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

type healthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	FeedConnected   bool    `json:"feed_connected"`
	LastTickTime    string  `json:"last_tick_time"`
	TickAge         string  `json:"tick_age"`
	LastCycleAt     string  `json:"last_cycle_at"`
	LastCycleResult string  `json:"last_cycle_result"`
	JournalOK       bool    `json:"journal_ok"`
	JournalLatency  float64 `json:"journal_latency_ms"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatency    float64 `json:"redis_latency_ms"`
	LastCheckAt     string  `json:"last_check_at"`
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ServeHTTP handles /healthz. The journal is required; a configured but
// unreachable Redis or a dropped feed degrades the status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	if !h.FeedConnected || (h.RedisEnabled && !h.RedisConnected) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !h.JournalOK {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = h.now().Sub(h.LastTickTime).Round(time.Millisecond).String()
	}

	rep := healthReport{
		Status:          status,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    formatTime(h.LastTickTime),
		TickAge:         tickAge,
		LastCycleAt:     formatTime(h.LastCycleAt),
		LastCycleResult: h.LastCycleResult,
		JournalOK:       h.JournalOK,
		JournalLatency:  ms(h.JournalLatency),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatency:    ms(h.RedisLatency),
		LastCheckAt:     formatTime(h.LastCheckAt),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(rep)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	mux.Handle("/healthz", health)
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "component", "metrics", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "component", "metrics", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

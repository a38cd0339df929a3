package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xdaguy/LTCBOT/internal/model"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.Ticks.Inc()
	if got := testutil.ToFloat64(b.Ticks); got != 0 {
		t.Errorf("second instance shares state: %v", got)
	}
}

func TestObserveOrder(t *testing.T) {
	m := New(nil)
	m.ObserveOrder(model.SideBuy, model.OrderStatusFilled, "")
	m.ObserveOrder(model.SideSell, model.OrderStatusRejected, model.ReasonReduceOnly)
	m.ObserveOrder(model.SideSell, model.OrderStatusRejected, model.ReasonReduceOnly)

	if got := testutil.ToFloat64(m.Orders.WithLabelValues("BUY", string(model.OrderStatusFilled), "none")); got != 1 {
		t.Errorf("buy filled = %v", got)
	}
	if got := testutil.ToFloat64(m.Orders.WithLabelValues("SELL", string(model.OrderStatusRejected), "REDUCE_ONLY_REJECTED")); got != 2 {
		t.Errorf("sell rejected = %v", got)
	}
}

func TestSetBreakerStateCountsTrips(t *testing.T) {
	m := New(nil)
	m.SetBreakerState(1)
	m.SetBreakerState(2)
	m.SetBreakerState(1)
	m.SetBreakerState(0)
	if got := testutil.ToFloat64(m.RedisCircuitBreakerTrips); got != 2 {
		t.Errorf("trips = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RedisCircuitBreakerState); got != 0 {
		t.Errorf("state = %v, want 0", got)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := New(nil)
	m.Cycles.WithLabelValues("ok").Inc()
	m.SetAutomation(true)
	srv := NewServer(":0", m, NewHealthStatus())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{`ltcbot_cycles_total{result="ok"} 1`, "ltcbot_automation_enabled 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *HealthStatus)
		wantCode int
		want     string
	}{
		{"healthy", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.CheckJournal(context.Background(), pinger{})
		}, http.StatusOK, "healthy"},
		{"feed down", func(h *HealthStatus) {
			h.CheckJournal(context.Background(), pinger{})
		}, http.StatusServiceUnavailable, "degraded"},
		{"redis configured but down", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.EnableRedis()
			h.CheckJournal(context.Background(), pinger{})
			h.CheckRedis(context.Background(), pinger{err: errors.New("refused")})
		}, http.StatusServiceUnavailable, "degraded"},
		{"journal down", func(h *HealthStatus) {
			h.SetFeedConnected(true)
			h.CheckJournal(context.Background(), pinger{err: errors.New("locked")})
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			tt.setup(h)
			h.SetCycle(time.Now(), "ok")

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var rep healthReport
			if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
				t.Fatal(err)
			}
			if rep.Status != tt.want || rep.LastCycleResult != "ok" {
				t.Errorf("report = %+v", rep)
			}
		})
	}
}

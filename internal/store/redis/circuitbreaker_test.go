package redis

import (
	"errors"
	"testing"
	"time"
)

var errPublish = errors.New("publish failed")

// manualClock lets tests step past the cooldown without sleeping.
type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *manualClock) {
	clk := &manualClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(maxFailures, 10*time.Second)
	cb.now = clk.now
	return cb, clk
}

func fail() error    { return errPublish }
func succeed() error { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errPublish) {
			t.Fatalf("call %d: expected errPublish, got %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.CurrentState())
	}
	if cb.Trips() != 1 {
		t.Errorf("trips = %d, want 1", cb.Trips())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker must reject without calling: err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)
	cb.Execute(fail)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_TrialAfterCooldown(t *testing.T) {
	tests := []struct {
		name  string
		trial func() error
		want  State
		trips int
	}{
		{"trial succeeds", succeed, StateClosed, 1},
		{"trial fails", fail, StateOpen, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clk := newTestBreaker(2)
			cb.Execute(fail)
			cb.Execute(fail)

			clk.advance(9 * time.Second)
			if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("inside cooldown: expected ErrCircuitOpen, got %v", err)
			}

			clk.advance(2 * time.Second)
			cb.Execute(tt.trial)
			if cb.CurrentState() != tt.want {
				t.Errorf("state = %v, want %v", cb.CurrentState(), tt.want)
			}
			if cb.Trips() != tt.trips {
				t.Errorf("trips = %d, want %d", cb.Trips(), tt.trips)
			}
		})
	}
}

func TestCircuitBreaker_SingleTrial(t *testing.T) {
	cb, clk := newTestBreaker(1)
	cb.Execute(fail)
	clk.advance(time.Minute)

	var inner error
	err := cb.Execute(func() error {
		inner = cb.Execute(succeed)
		return nil
	})
	if err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("second caller during trial: expected ErrCircuitOpen, got %v", inner)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after trial, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, clk := newTestBreaker(1)
	var seen []State
	cb.OnStateChange = func(_, to State) { seen = append(seen, to) }

	cb.Execute(fail)
	clk.advance(time.Minute)
	cb.Execute(succeed)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

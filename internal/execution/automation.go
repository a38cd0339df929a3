package execution

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// AutomationState is an immutable view of the automation switch.
type AutomationState struct {
	Enabled      bool      `json:"is_trading"`
	PositionSize float64   `json:"position_size"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Automation is the shared start/stop switch. Readers take one Snapshot per
// cycle so a flip mid-cycle never half-applies; writers swap a new value in.
type Automation struct {
	mu       sync.Mutex // serializes writers
	state    atomic.Pointer[AutomationState]
	onChange func(AutomationState)
}

// NewAutomation creates a disabled switch with the given order size.
func NewAutomation(positionSize float64) *Automation {
	a := &Automation{}
	a.state.Store(&AutomationState{PositionSize: positionSize, UpdatedAt: time.Now()})
	return a
}

// OnChange registers a callback invoked after every state change.
func (a *Automation) OnChange(fn func(AutomationState)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Snapshot returns the current state.
func (a *Automation) Snapshot() AutomationState { return *a.state.Load() }

// Enabled reports whether automated orders are allowed.
func (a *Automation) Enabled() bool { return a.state.Load().Enabled }

// Start enables automated trading.
func (a *Automation) Start() AutomationState {
	return a.update(func(s *AutomationState) { s.Enabled = true })
}

// Stop disables automated trading. Cycles already past their snapshot finish
// with the state they read.
func (a *Automation) Stop() AutomationState {
	return a.update(func(s *AutomationState) { s.Enabled = false })
}

// SetPositionSize changes the quantity used for opening orders.
func (a *Automation) SetPositionSize(qty float64) error {
	if !(qty > 0) || math.IsInf(qty, 0) {
		return fmt.Errorf("position size %v must be positive", qty)
	}
	a.update(func(s *AutomationState) { s.PositionSize = qty })
	return nil
}

func (a *Automation) update(fn func(*AutomationState)) AutomationState {
	a.mu.Lock()
	next := *a.state.Load()
	fn(&next)
	next.UpdatedAt = time.Now()
	a.state.Store(&next)
	cb := a.onChange
	a.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	return next
}

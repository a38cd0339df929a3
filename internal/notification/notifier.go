// Package notification delivers operator alerts: executed trades, failed
// orders, and CRITICAL invariant breaches raised by the pipeline.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

func (l AlertLevel) rank() int {
	switch l {
	case AlertCritical:
		return 2
	case AlertWarning:
		return 1
	default:
		return 0
	}
}

// Alert is one notification.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	CycleID string     `json:"cycle_id,omitempty"`
	Time    time.Time  `json:"ts"`
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the default slog logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, alert.Title,
		"component", "notify",
		"alert_level", string(alert.Level),
		"message", alert.Message,
		"symbol", alert.Symbol,
		"cycle_id", alert.CycleID,
		"critical", alert.Level == AlertCritical,
	)
	return nil
}

// Multi sends to every backend and joins the failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MinLevel drops alerts below min before handing them to next.
func MinLevel(min AlertLevel, next Notifier) Notifier {
	return levelFilter{min: min, next: next}
}

type levelFilter struct {
	min  AlertLevel
	next Notifier
}

func (f levelFilter) Send(ctx context.Context, alert Alert) error {
	if alert.Level.rank() < f.min.rank() {
		return nil
	}
	return f.next.Send(ctx, alert)
}

// Dispatch sends alert in the background under timeout, stamping Time if it
// is unset. Delivery failures are logged.
func Dispatch(n Notifier, alert Alert, timeout time.Duration) {
	if n == nil {
		return
	}
	if alert.Time.IsZero() {
		alert.Time = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Send(ctx, alert); err != nil {
			slog.Warn("alert delivery failed", "component", "notify", "title", alert.Title, "error", err)
		}
	}()
}

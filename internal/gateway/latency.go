package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyStats summarizes tick-to-broadcast latency in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

// LatencyTracker keeps the last N tick-to-broadcast durations in a ring and
// reports percentiles over them. Thread-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	pos     int
	count   int
}

// NewLatencyTracker creates a tracker that holds the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]time.Duration, capacity)}
}

// Record adds one sample.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	lt.samples[lt.pos] = d
	lt.pos = (lt.pos + 1) % len(lt.samples)
	if lt.count < len(lt.samples) {
		lt.count++
	}
	lt.mu.Unlock()
}

// Stats returns percentiles over the retained samples; zero value when empty.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	ms := make([]float64, lt.count)
	for i := 0; i < lt.count; i++ {
		ms[i] = float64(lt.samples[i].Microseconds()) / 1000.0
	}
	lt.mu.Unlock()

	if len(ms) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(ms)
	return LatencyStats{
		Count: len(ms),
		P50:   percentile(ms, 0.50),
		P95:   percentile(ms, 0.95),
		P99:   percentile(ms, 0.99),
		Max:   ms[len(ms)-1],
	}
}

// percentile interpolates the p-th percentile (0.0–1.0) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

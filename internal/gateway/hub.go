// Package gateway fans signal payloads out to WebSocket subscribers.
//
// Every payload is wrapped in an envelope carrying a monotonically increasing
// sequence number. The latest envelope is replayed to new subscribers, and a
// short replay buffer lets a reconnecting client catch up from its last seq.
package gateway

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Subscriber receives envelopes. Send must not block; an error means the
// subscriber is gone or too slow and will be dropped.
type Subscriber interface {
	Send(msg []byte) error
}

// Hub tracks the active subscriber set and the latest envelope.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	latest []byte
	seq    int64

	replay  *ReplayBuffer
	Latency *LatencyTracker

	upgrader websocket.Upgrader
	logger   *slog.Logger

	// OnCountChange is called with the subscriber count after every change.
	OnCountChange func(n int)
}

// NewHub creates an empty hub. replaySize bounds the catch-up buffer. origins
// is the browser allowlist for upgrades; "*" or an empty list allows any.
func NewHub(replaySize int, origins ...string) *Hub {
	return &Hub{
		subs:    make(map[Subscriber]struct{}),
		replay:  NewReplayBuffer(replaySize),
		Latency: NewLatencyTracker(10000),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     allowOrigins(origins),
		},
		logger: slog.Default().With("component", "gateway"),
	}
}

// allowOrigins admits requests without an Origin header, since those do not
// come from a browser.
func allowOrigins(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
	}
}

// Subscribe adds s to the active set and queues the latest envelope for it.
func (h *Hub) Subscribe(s Subscriber) { h.add(s, true) }

func (h *Hub) add(s Subscriber, sendLatest bool) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	latest := h.latest
	n := len(h.subs)
	h.mu.Unlock()

	h.countChanged(n)
	if sendLatest && latest != nil {
		if err := s.Send(latest); err != nil {
			h.Unsubscribe(s)
		}
	}
}

// Unsubscribe removes s. Removing an unknown subscriber is a no-op.
func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c, isClient := s.(*Client); isClient {
		c.close()
	}
	h.countChanged(n)
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Has reports whether s is in the active set.
func (h *Hub) Has(s Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[s]
	return ok
}

// Latest returns the most recent envelope, or nil before the first broadcast.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Seq returns the sequence number of the latest envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) countChanged(n int) {
	if h.OnCountChange != nil {
		h.OnCountChange(n)
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription. A client that
// passes ?last_seq=N first receives every buffered envelope after N.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(conn, h)
	sendLatest := true
	if from, err := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64); err == nil {
		for _, e := range h.replay.Since(from) {
			c.Send(e.Data)
		}
		sendLatest = false
	}
	h.add(c, sendLatest)

	h.logger.Info("ws client connected", "remote", conn.RemoteAddr().String(), "total", h.Count())
	go c.writePump()
	go c.readPump()
}

package gateway

import (
	"strconv"
	"time"
)

// Broadcaster builds envelopes and delivers them to every subscriber.
type Broadcaster struct {
	hub *Hub

	// OnRemove is called once per subscriber dropped after a failed Send.
	OnRemove func()
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast wraps payload in an envelope and sends it to every subscriber.
// A subscriber whose Send fails is removed; the others still receive the
// envelope. srcTS is the tick time that triggered the payload and feeds the
// latency tracker; zero skips it. Returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(payload []byte, srcTS time.Time) int {
	now := time.Now().UTC()
	if !srcTS.IsZero() && b.hub.Latency != nil {
		if d := now.Sub(srcTS); d >= 0 {
			b.hub.Latency.Record(d)
		}
	}

	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	env := buildEnvelope("signal", payload, now, seq)
	b.hub.latest = env
	b.hub.mu.Unlock()

	b.hub.replay.Push(seq, env)

	delivered := 0
	var failed []Subscriber
	for _, s := range b.hub.snapshot() {
		if err := s.Send(env); err != nil {
			failed = append(failed, s)
			continue
		}
		delivered++
	}
	for _, s := range failed {
		b.hub.logger.Warn("dropping subscriber after failed send")
		b.hub.Unsubscribe(s)
		if b.OnRemove != nil {
			b.OnRemove()
		}
	}
	return delivered
}

// buildEnvelope hand-crafts {"type":..,"data":..,"ts":..,"seq":N}. data must
// already be valid JSON and is embedded as-is.
func buildEnvelope(typ string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(typ)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

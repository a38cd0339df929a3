package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	fail bool
	sent [][]byte
}

func (r *recordingSender) send(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errPublish
	}
	r.sent = append(r.sent, append([]byte(nil), payload...))
	return nil
}

func (r *recordingSender) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *recordingSender) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent...)
}

func TestKeyNames(t *testing.T) {
	p := newPublisher(PublisherConfig{Symbol: "ltcusdt"}, NewCircuitBreaker(1, time.Second))
	if p.channel != "pub:signal:LTCUSDT" {
		t.Errorf("channel = %q", p.channel)
	}
	if p.key != "latest:signal:LTCUSDT" {
		t.Errorf("key = %q", p.key)
	}
	if p.ttl != defaultLatestTTL {
		t.Errorf("ttl = %v, want default", p.ttl)
	}
}

func TestNewPublisher_RequiresSymbol(t *testing.T) {
	if _, err := NewPublisher(PublisherConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestPublisher_HoldsNewestWhileOpenAndFlushesOnClose(t *testing.T) {
	cb, clk := newTestBreaker(1)
	p := newPublisher(PublisherConfig{Symbol: "LTCUSDT"}, cb)
	rec := &recordingSender{fail: true}
	p.send = rec.send
	p.WatchBreaker(nil)

	ctx := context.Background()
	if err := p.Publish(ctx, []byte("a")); !errors.Is(err, errPublish) {
		t.Fatalf("publish after cooldown: %v", err)
	}
	if err := p.Publish(ctx, []byte("b")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second publish: expected ErrCircuitOpen, got %v", err)
	}
	p.Publish(ctx, []byte("c"))
	if !p.Pending() {
		t.Fatal("expected a held payload")
	}

	rec.setFail(false)
	clk.advance(time.Minute)
	if err := p.Publish(ctx, []byte("d")); err != nil {
		t.Fatalf("publish after cooldown: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Pending() || len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("held payload not flushed; sent=%q", rec.snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	sent := rec.snapshot()
	if string(sent[0]) != "d" || string(sent[1]) != "c" {
		t.Errorf("sent = %q, want [d c]", sent)
	}
}

func TestPublisher_WatchBreakerChainsHook(t *testing.T) {
	cb, _ := newTestBreaker(1)
	p := newPublisher(PublisherConfig{Symbol: "LTCUSDT"}, cb)
	p.send = (&recordingSender{fail: true}).send

	var got []State
	p.WatchBreaker(func(_, to State) { got = append(got, to) })
	p.Publish(context.Background(), []byte("x"))

	if len(got) != 1 || got[0] != StateOpen {
		t.Errorf("hook saw %v, want [open]", got)
	}
}

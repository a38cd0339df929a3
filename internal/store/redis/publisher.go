// Package redis mirrors broadcast payloads to Redis so that out-of-process
// consumers can subscribe to signals or read the latest one.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL   = 30 * time.Minute
	defaultMaxFailures = 5
	defaultCooldown    = 10 * time.Second
	publishTimeout     = 2 * time.Second
)

// PublisherConfig configures the payload mirror.
type PublisherConfig struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	Symbol    string
	LatestTTL time.Duration
}

// Publisher writes every payload to the pub:signal:<symbol> channel and the
// latest:signal:<symbol> key. Publishes go through a CircuitBreaker; while it
// is open only the newest payload is held and it is replayed once the breaker
// closes.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	channel string
	key     string
	ttl     time.Duration
	logger  *slog.Logger

	send func(ctx context.Context, payload []byte) error

	mu      sync.Mutex
	pending []byte
}

// NewPublisher connects to Redis and pings it.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("redis publisher: symbol is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := newPublisher(cfg, NewCircuitBreaker(defaultMaxFailures, defaultCooldown))
	p.client = client
	p.send = p.pipelined
	p.logger.Info("connected", "addr", cfg.Addr, "channel", p.channel)
	return p, nil
}

func newPublisher(cfg PublisherConfig, cb *CircuitBreaker) *Publisher {
	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	sym := strings.ToUpper(cfg.Symbol)
	p := &Publisher{
		breaker: cb,
		channel: ChannelName(sym),
		key:     LatestKey(sym),
		ttl:     ttl,
		logger:  slog.Default().With("component", "redis"),
	}
	return p
}

// ChannelName is the pub/sub channel for a symbol's payloads.
func ChannelName(symbol string) string { return "pub:signal:" + symbol }

// LatestKey is the key holding a symbol's most recent payload.
func LatestKey(symbol string) string { return "latest:signal:" + symbol }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// WatchBreaker chains fn onto the breaker's state hook and arranges for the
// held payload to be flushed whenever the breaker closes. Call it once,
// before the first Publish.
func (p *Publisher) WatchBreaker(fn func(from, to State)) {
	p.breaker.OnStateChange = func(from, to State) {
		if fn != nil {
			fn(from, to)
		}
		if to == StateClosed && from != StateClosed {
			go p.flush()
		}
	}
}

// Publish mirrors payload. ErrCircuitOpen means the payload was held rather
// than sent.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.breaker.Execute(func() error { return p.send(ctx, payload) })
	if errors.Is(err, ErrCircuitOpen) {
		p.hold(payload)
	}
	return err
}

func (p *Publisher) pipelined(ctx context.Context, payload []byte) error {
	_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.Set(ctx, p.key, payload, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *Publisher) hold(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	p.mu.Lock()
	p.pending = buf
	p.mu.Unlock()
}

// Pending reports whether a payload is waiting for the breaker to close.
func (p *Publisher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func (p *Publisher) flush() {
	p.mu.Lock()
	payload := p.pending
	p.pending = nil
	p.mu.Unlock()
	if payload == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.send(ctx, payload); err != nil {
		p.logger.Warn("flush held payload failed", "error", err)
		return
	}
	p.logger.Info("flushed held payload", "bytes", len(payload))
}

// LatestPayload returns the stored latest payload, or nil when none exists.
func (p *Publisher) LatestPayload(ctx context.Context) ([]byte, error) {
	b, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", p.key, err)
	}
	return b, nil
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

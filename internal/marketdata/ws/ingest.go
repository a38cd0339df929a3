// Package ws streams mark-price updates from the Binance futures WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// IngestConfig holds configuration for the mark-price stream.
type IngestConfig struct {
	URL    string // e.g. wss://fstream.binance.com/ws
	Symbol string

	RetryDelay    time.Duration // first reconnect delay
	MaxRetryDelay time.Duration // exponential backoff cap
	ReadTimeout   time.Duration // no frame for this long ⇒ reconnect
}

// Ingest connects to the mark-price stream and pushes updates into a channel.
// It reconnects with exponential backoff until its context is cancelled.
type Ingest struct {
	cfg    IngestConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	// Optional hooks
	OnConnect    func()
	OnDisconnect func(err error)
}

// New creates a new Ingest instance.
func New(cfg IngestConfig) *Ingest {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Minute
	}
	return &Ingest{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: slog.Default().With("component", "feed", "symbol", cfg.Symbol),
	}
}

// StreamURL returns the per-symbol 1s mark-price stream endpoint.
func (ing *Ingest) StreamURL() string {
	return strings.TrimRight(ing.cfg.URL, "/") + "/" + strings.ToLower(ing.cfg.Symbol) + "@markPrice@1s"
}

// Start streams mark prices into tickCh. When tickCh is full the update is
// dropped; consumers only ever need the latest price. Blocks until ctx is
// cancelled.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.MarkPrice) error {
	delay := ing.cfg.RetryDelay
	for {
		connected, err := ing.session(ctx, tickCh)
		if ctx.Err() != nil {
			return nil
		}
		if ing.OnDisconnect != nil {
			ing.OnDisconnect(err)
		}
		if connected {
			delay = ing.cfg.RetryDelay
		}
		ing.logger.Warn("mark-price stream disconnected, reconnecting", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > ing.cfg.MaxRetryDelay {
			delay = ing.cfg.MaxRetryDelay
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded, which resets the backoff.
func (ing *Ingest) session(ctx context.Context, tickCh chan<- model.MarkPrice) (connected bool, err error) {
	conn, resp, err := ing.dialer.DialContext(ctx, ing.StreamURL(), nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: %s: %w", ing.StreamURL(), resp.Status, err)
		}
		return false, fmt.Errorf("dial %s: %w", ing.StreamURL(), err)
	}
	defer conn.Close()

	ing.logger.Info("mark-price stream connected", "url", ing.StreamURL())
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(ing.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(ing.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		mp, err := parseMarkPrice(msg)
		if err != nil {
			ing.logger.Debug("skipping frame", "error", err)
			continue
		}
		if mp.Symbol != "" && !strings.EqualFold(mp.Symbol, ing.cfg.Symbol) {
			continue
		}

		select {
		case tickCh <- mp:
		default:
			ing.logger.Debug("tick channel full, dropping mark price", "price", mp.Price)
		}
	}
}

type markPriceMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// parseMarkPrice decodes a markPriceUpdate event.
func parseMarkPrice(b []byte) (model.MarkPrice, error) {
	var m markPriceMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return model.MarkPrice{}, fmt.Errorf("decode: %w", err)
	}
	if m.Event != "markPriceUpdate" {
		return model.MarkPrice{}, fmt.Errorf("unexpected event %q", m.Event)
	}
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil || price <= 0 {
		return model.MarkPrice{}, fmt.Errorf("bad price %q", m.Price)
	}

	ts := time.Now().UTC()
	if m.EventTime > 0 {
		ts = time.UnixMilli(m.EventTime).UTC()
	}
	return model.MarkPrice{Symbol: m.Symbol, Price: price, EventTime: ts}, nil
}

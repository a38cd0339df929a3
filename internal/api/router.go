// Package api serves the REST control surface and mounts the WebSocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/xdaguy/LTCBOT/internal/execution"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/portfolio"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
	totpHeader        = "X-TOTP"
)

// SignalSource evaluates the strategy on demand without trading.
type SignalSource interface {
	Evaluate(ctx context.Context) (strategy.Signal, error)
}

// Trader places manual market orders.
type Trader interface {
	PlaceManual(ctx context.Context, side model.Side, qty float64) (model.OrderResult, error)
}

// Deps are the collaborators behind the routes. Stream may be nil, in which
// case /ws is not mounted.
type Deps struct {
	Symbol     string
	Market     model.MarketInfo
	Positions  model.PositionReader
	Signals    SignalSource
	Trader     Trader
	Automation *execution.Automation
	Trades     model.TradeLogReader
	Stream     http.Handler

	TOTPSecret  string        // empty disables the start-automation check
	CORSOrigins []string      // "*" allows any origin
	Timeout     time.Duration // per-request bound on exchange calls
}

type server struct {
	d      Deps
	logger *slog.Logger
}

// NewRouter builds the HTTP handler for the control API.
func NewRouter(d Deps) http.Handler {
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	s := &server{d: d, logger: slog.Default().With("component", "api")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("GET /position", s.handlePosition)
	mux.HandleFunc("GET /price", s.handlePrice)
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.HandleFunc("POST /trade", s.handleTrade)
	mux.HandleFunc("POST /autotrading/start", s.handleStart)
	mux.HandleFunc("POST /autotrading/stop", s.handleStop)
	mux.HandleFunc("GET /autotrading/status", s.handleStatus)
	mux.HandleFunc("POST /autotrading/size", s.handleSize)
	mux.HandleFunc("GET /trades", s.handleTrades)
	if d.Stream != nil {
		mux.Handle("GET /ws", d.Stream)
	}
	return cors(d.CORSOrigins, mux)
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running", "symbol": s.d.Symbol})
}

func (s *server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.d.Timeout)
	defer cancel()
	bals, err := s.d.Market.Balances(ctx)
	if err != nil {
		s.fail(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bals)
}

func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.d.Timeout)
	defer cancel()
	pos, err := s.d.Positions.GetPosition(ctx, s.d.Symbol)
	if err != nil {
		s.fail(w, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio.View(pos))
}

func (s *server) handlePrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.d.Timeout)
	defer cancel()
	price, err := s.d.Market.MarkPrice(ctx, s.d.Symbol)
	if err != nil {
		s.fail(w, "price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": s.d.Symbol, "price": price})
}

func (s *server) handleSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := s.d.Signals.Evaluate(r.Context())
	var violation *model.InvariantViolation
	if err != nil && !errors.As(err, &violation) {
		s.fail(w, "signal", err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// handleTrade accepts side and quantity as query or form values.
func (s *server) handleTrade(w http.ResponseWriter, r *http.Request) {
	side := model.Side(strings.ToUpper(r.FormValue("side")))
	if side != model.SideBuy && side != model.SideSell {
		writeError(w, http.StatusBadRequest, "invalid side, must be BUY or SELL")
		return
	}
	qty, err := strconv.ParseFloat(r.FormValue("quantity"), 64)
	if err != nil || !(qty > 0) || math.IsInf(qty, 0) {
		writeError(w, http.StatusBadRequest, "quantity must be a positive number")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.d.Timeout)
	defer cancel()
	res, err := s.d.Trader.PlaceManual(ctx, side, qty)
	if err != nil {
		s.logger.Warn("manual order failed", "side", side, "quantity", qty, "reason", model.ReasonOf(err), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
		return
	}
	s.logger.Info("manual order placed", "side", side, "quantity", qty, "status", res.Status)
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.d.TOTPSecret != "" && !totp.Validate(r.Header.Get(totpHeader), s.d.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+totpHeader)
		return
	}
	st := s.d.Automation.Start()
	s.logger.Info("automation started", "position_size", st.PositionSize)
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "automation": st})
}

func (s *server) handleStop(w http.ResponseWriter, _ *http.Request) {
	st := s.d.Automation.Stop()
	s.logger.Info("automation stopped")
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "automation": st})
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Automation.Snapshot())
}

func (s *server) handleSize(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseFloat(r.FormValue("position_size"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "position_size must be a number")
		return
	}
	if err := s.d.Automation.SetPositionSize(qty); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.d.Automation.Snapshot())
}

func (s *server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTradeLimit)
	}
	rows, err := s.d.Trades.RecentTrades(r.Context(), limit)
	if err != nil {
		s.fail(w, "trades", err)
		return
	}
	if rows == nil {
		rows = []model.TradeAttempt{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func cors(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		return next
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+totpHeader)
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

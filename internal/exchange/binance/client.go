// Package binance adapts the Binance USDⓈ-M futures REST API to the exchange
// ports used by the pipeline and the REST API.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Config holds the API credentials and instrument precision.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	QtyStep   float64 // lot step; quantities are truncated to it
}

// Client implements model.CandleFetcher, model.Broker and model.MarketInfo.
type Client struct {
	api     *futures.Client
	qtyStep decimal.Decimal
	logger  *slog.Logger
}

// New creates a futures client. Testnet selects the Binance futures testnet
// endpoints for every client created afterwards.
func New(cfg Config) *Client {
	futures.UseTestnet = cfg.Testnet
	step := cfg.QtyStep
	if step <= 0 {
		step = 0.001
	}
	return &Client{
		api:     gobinance.NewFuturesClient(cfg.APIKey, cfg.APISecret),
		qtyStep: decimal.NewFromFloat(step),
		logger:  slog.Default().With("component", "binance", "testnet", cfg.Testnet),
	}
}

// SyncFilters reads the lot step from exchange info, replacing the configured one.
// It returns the price tick so callers can align SL/TP rounding.
func (c *Client) SyncFilters(ctx context.Context, symbol string) (tick float64, err error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, &model.DataFetchError{Op: "exchange_info", Err: err}
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if lot := s.LotSizeFilter(); lot != nil {
			if step, err := decimal.NewFromString(lot.StepSize); err == nil && step.IsPositive() {
				c.qtyStep = step
			}
		}
		if pf := s.PriceFilter(); pf != nil {
			tick, _ = strconv.ParseFloat(pf.TickSize, 64)
		}
		c.logger.Info("symbol filters loaded", "symbol", symbol, "qty_step", c.qtyStep.String(), "tick", tick)
		return tick, nil
	}
	return 0, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// FetchCandles returns the latest limit klines, oldest first. The last kline
// is the one still forming.
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	klines, err := c.api.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, &model.DataFetchError{Op: "klines " + timeframe, Err: err}
	}
	out := make([]model.Candle, 0, len(klines))
	for i, k := range klines {
		cd, err := parseKline(k)
		if err != nil {
			return nil, &model.InvalidInputError{Index: i, Field: "kline", Reason: err.Error()}
		}
		out = append(out, cd)
	}
	return out, nil
}

func parseKline(k *futures.Kline) (model.Candle, error) {
	var (
		cd  = model.Candle{OpenTime: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	fields := []struct {
		dst *float64
		src string
	}{
		{&cd.Open, k.Open}, {&cd.High, k.High}, {&cd.Low, k.Low}, {&cd.Close, k.Close}, {&cd.Volume, k.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return cd, err
		}
	}
	return cd, nil
}

// GetPosition returns the one-way position for symbol; no row means flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	rows, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return model.Position{}, &model.DataFetchError{Op: "position", Err: err}
	}
	pos := model.Position{Symbol: symbol}
	for _, r := range rows {
		if r.Symbol != symbol {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		pos.Amount += amt
		pos.EntryPrice = parseFloat(r.EntryPrice)
		pos.MarkPrice = parseFloat(r.MarkPrice)
		pos.UnrealizedPnL += parseFloat(r.UnRealizedProfit)
		pos.LiqPrice = parseFloat(r.LiquidationPrice)
	}
	return pos, nil
}

// PlaceOrder submits a MARKET (or LIMIT GTC) order. Failures carry a ReasonCode
// from Classify.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	qty := c.formatQty(req.Quantity)
	if qty == "0" {
		return reject(req, model.ReasonQuantityBounds, fmt.Sprintf("quantity %v below lot step %s", req.Quantity, c.qtyStep))
	}

	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.Type == model.OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).TimeInForce(futures.TimeInForceTypeGTC).Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		reason := Classify(err)
		c.logger.Warn("order rejected", "side", req.Side, "qty", qty, "reduce_only", req.ReduceOnly, "reason", reason, "error", err)
		return reject(req, reason, err.Error(), err)
	}

	order := &model.Order{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      resp.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    parseFloat(resp.OrigQuantity),
		ExecutedQty: parseFloat(resp.ExecutedQuantity),
		AvgPrice:    parseFloat(resp.AvgPrice),
		Status:      string(resp.Status),
		UpdatedAt:   time.UnixMilli(resp.UpdateTime).UTC(),
	}
	status := model.OrderStatusNew
	if resp.Status == futures.OrderStatusTypeFilled {
		status = model.OrderStatusFilled
	}
	return model.OrderResult{Status: status, Reason: model.ReasonOK, Message: "order " + order.Status, Order: order}, nil
}

// MarkPrice returns the current mark price from the premium index.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, &model.DataFetchError{Op: "mark_price", Err: err}
	}
	for _, p := range res {
		if p.Symbol == symbol {
			return parseFloat(p.MarkPrice), nil
		}
	}
	return 0, &model.DataFetchError{Op: "mark_price", Err: fmt.Errorf("no premium index for %s", symbol)}
}

// Balances returns non-zero wallet balances.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	rows, err := c.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, &model.DataFetchError{Op: "balance", Err: err}
	}
	out := make([]model.Balance, 0, len(rows))
	for _, r := range rows {
		b := model.Balance{
			Asset:            r.Asset,
			Balance:          parseFloat(r.Balance),
			AvailableBalance: parseFloat(r.AvailableBalance),
			UnrealizedPnL:    parseFloat(r.CrossUnPnl),
		}
		if b.Balance == 0 && b.AvailableBalance == 0 {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// formatQty truncates q to the lot step. Non-finite quantities format as "0".
func (c *Client) formatQty(q float64) string {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return "0"
	}
	d := decimal.NewFromFloat(q).Div(c.qtyStep).Floor().Mul(c.qtyStep)
	if !d.IsPositive() {
		return "0"
	}
	return d.String()
}

func reject(req model.OrderRequest, reason model.ReasonCode, msg string, cause ...error) (model.OrderResult, error) {
	var err error
	if len(cause) > 0 {
		err = cause[0]
	}
	res := model.OrderResult{Status: model.OrderStatusRejected, Reason: reason, Message: msg}
	if reason == model.ReasonTimeout || reason == model.ReasonNetwork {
		res.Status = model.OrderStatusError
	}
	return res, &model.OrderExecutionError{Side: req.Side, Quantity: req.Quantity, Reason: reason, Message: msg, Err: err}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

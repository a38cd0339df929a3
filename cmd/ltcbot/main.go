package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/xdaguy/LTCBOT/config"
	"github.com/xdaguy/LTCBOT/internal/api"
	"github.com/xdaguy/LTCBOT/internal/exchange/binance"
	"github.com/xdaguy/LTCBOT/internal/execution"
	"github.com/xdaguy/LTCBOT/internal/gateway"
	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/logger"
	"github.com/xdaguy/LTCBOT/internal/marketdata/ws"
	"github.com/xdaguy/LTCBOT/internal/metrics"
	"github.com/xdaguy/LTCBOT/internal/model"
	"github.com/xdaguy/LTCBOT/internal/notification"
	"github.com/xdaguy/LTCBOT/internal/pipeline"
	"github.com/xdaguy/LTCBOT/internal/portfolio"
	"github.com/xdaguy/LTCBOT/internal/store/redis"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "component", "main", "error", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("unknown LOG_LEVEL, using info", "component", "main", "value", cfg.LogLevel)
	}
	log := logger.Init("ltcbot", level).With("component", "main")
	log.Info("starting", "symbol", cfg.Symbol, "mode", cfg.TradingMode, "testnet", cfg.TestMode,
		"signal_tf", cfg.SignalTimeframe)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Observability ----
	m := metrics.New(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, m, health)
	metricsSrv.Start()

	// ---- Storage ----
	journal, err := execution.NewJournal(cfg.TradeLogPath)
	if err != nil {
		log.Error("trade log unavailable", "path", cfg.TradeLogPath, "error", err)
		os.Exit(1)
	}

	// ---- Exchange ----
	exchange := binance.New(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.TestMode,
		QtyStep:   cfg.QtyStep,
	})
	syncCtx, cancelSync := context.WithTimeout(ctx, cfg.ExchangeTimeout)
	if tick, err := exchange.SyncFilters(syncCtx, cfg.Symbol); err != nil {
		log.Warn("exchange filters unavailable, using configured precision", "error", err)
	} else if tick > 0 {
		cfg.Strategy.Risk.TickSize = tick
	}
	cancelSync()

	var (
		broker model.Broker
		market model.MarketInfo
		paper  *execution.PaperBroker
	)
	switch cfg.TradingMode {
	case config.ModeLive:
		broker, market = exchange, exchange
	default:
		paper = execution.NewPaperBroker(execution.PaperConfig{
			Symbol:         cfg.Symbol,
			InitialBalance: cfg.PaperBalance,
			Leverage:       cfg.PaperLeverage,
			SlippageBps:    cfg.PaperSlippageBps,
			MinQty:         cfg.PaperMinQty,
		})
		broker, market = paper, paper
	}

	// ---- Signal and execution core ----
	auto := execution.NewAutomation(cfg.PositionSize)
	auto.OnChange(func(s execution.AutomationState) { m.SetAutomation(s.Enabled) })
	executor := execution.NewExecutor(execution.Config{Symbol: cfg.Symbol, Timeout: cfg.ExchangeTimeout}, broker, journal, m)

	params := cfg.Strategy.Indicators
	risk := portfolio.NewRiskCalculator(cfg.Strategy.Risk)
	evaluator := strategy.NewEvaluator(cfg.Strategy.Thresholds, params.Lookback(), risk)
	cycle := pipeline.NewCycle(pipeline.Config{
		Symbol:          cfg.Symbol,
		SignalTimeframe: cfg.SignalTimeframe,
		ChartTimeframes: cfg.ChartTimeframes,
		CandleLimit:     cfg.CandleLimit,
		ChartLimit:      cfg.ChartLimit,
		ExchangeTimeout: cfg.ExchangeTimeout,
		CycleTimeout:    cfg.CycleTimeout,
	}, exchange, indicator.NewEngine(params), evaluator, executor, auto)

	// ---- Fan-out ----
	hub := gateway.NewHub(cfg.ReplaySize, cfg.CORSOrigins...)
	hub.OnCountChange = func(n int) { m.WSSubscribers.Set(float64(n)) }
	broadcaster := gateway.NewBroadcaster(hub)
	broadcaster.OnRemove = m.BroadcastRemoved.Inc
	out := &meteredBroadcaster{next: broadcaster, latency: m.BroadcastLatency}

	// ---- Redis mirror (optional) ----
	var (
		mirror      pipeline.Publisher
		redisPinger metrics.Pinger
		pub         *redis.Publisher
	)
	if cfg.RedisAddr != "" {
		health.EnableRedis()
		pub, err = redis.NewPublisher(redis.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Symbol:   cfg.Symbol,
		})
		if err != nil {
			log.Warn("redis mirror disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			pub.WatchBreaker(func(from, to redis.State) {
				m.SetBreakerState(int(to))
				log.Warn("redis circuit breaker", "from", from, "to", to)
			})
			mirror, redisPinger = pub, pub
			if last, err := pub.LatestPayload(ctx); err == nil && last != nil {
				out.Broadcast(last, time.Time{})
				log.Info("seeded stream with last mirrored payload")
			}
		}
	}
	health.StartLivenessChecker(ctx, journal, redisPinger, 15*time.Second)

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.MinLevel(notification.AlertWarning,
			notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)))
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	opts := pipeline.RunnerOptions{
		Mirror:   mirror,
		Notifier: notifiers,
		Observer: &observer{m: m, health: health},
	}
	if paper != nil {
		opts.OnTick = func(t model.MarkPrice) { paper.SetMarkPrice(t.Price) }
	}
	runner := pipeline.NewRunner(cycle, out, opts)

	// ---- REST API ----
	apiSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Symbol:      cfg.Symbol,
			Market:      market,
			Positions:   broker,
			Signals:     runner,
			Trader:      executor,
			Automation:  auto,
			Trades:      journal,
			Stream:      hub,
			TOTPSecret:  cfg.ControlTOTPSecret,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     cfg.ExchangeTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", "addr", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server error", "error", err)
			stop()
		}
	}()

	// ---- Feed → runner ----
	ticks := make(chan model.MarkPrice, 16)
	feed := ws.New(ws.IngestConfig{URL: cfg.FeedURL, Symbol: cfg.Symbol})
	feed.OnConnect = func() { health.SetFeedConnected(true) }
	feed.OnDisconnect = func(error) {
		health.SetFeedConnected(false)
		m.FeedReconnects.Inc()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(ticks)
		if err := feed.Start(ctx, ticks); err != nil {
			log.Error("feed stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("runner stopped", "error", err)
		}
	}()

	notification.Dispatch(notifiers, notification.Alert{
		Level:   notification.AlertInfo,
		Title:   "LTCBOT started",
		Message: string(cfg.TradingMode) + " mode",
		Symbol:  cfg.Symbol,
	}, 10*time.Second)

	// ---- Wait for shutdown signal ----
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	auto.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", "error", err)
	}
	wg.Wait()
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
	if pub != nil {
		pub.Close()
	}
	if err := journal.Close(); err != nil {
		log.Warn("trade log close", "error", err)
	}
	log.Info("shutdown complete")
}

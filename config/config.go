package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xdaguy/LTCBOT/internal/indicator"
	"github.com/xdaguy/LTCBOT/internal/portfolio"
	"github.com/xdaguy/LTCBOT/internal/strategy"
)

// TradingMode selects where orders go.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Symbol      string
	TradingMode TradingMode
	TestMode    bool // Binance futures testnet

	// Binance credentials
	BinanceAPIKey    string
	BinanceAPISecret string

	// Market data
	FeedURL         string
	SignalTimeframe string
	ChartTimeframes []string
	CandleLimit     int
	ChartLimit      int

	// Execution
	PositionSize    float64
	QtyStep         float64
	ExchangeTimeout time.Duration
	CycleTimeout    time.Duration

	// Paper broker
	PaperBalance     float64
	PaperLeverage    float64
	PaperSlippageBps float64
	PaperMinQty      float64

	// Infrastructure
	HTTPAddr      string
	MetricsAddr   string
	TradeLogPath  string
	RedisAddr     string // empty disables the mirror
	RedisPassword string
	RedisDB       int
	ReplaySize    int
	CORSOrigins   []string
	LogLevel      string

	// Control plane
	ControlTOTPSecret string

	// Alerts
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string

	StrategyConfigPath string
	Strategy           Strategy
}

// Strategy groups the tunables that may be overridden from a YAML file.
type Strategy struct {
	Indicators indicator.Params     `yaml:"indicators"`
	Thresholds strategy.Thresholds  `yaml:"thresholds"`
	Risk       portfolio.RiskParams `yaml:"risk"`
}

// DefaultStrategy returns the production defaults.
func DefaultStrategy() Strategy {
	return Strategy{
		Indicators: indicator.DefaultParams(),
		Thresholds: strategy.DefaultThresholds(),
		Risk:       portfolio.DefaultRiskParams(),
	}
}

// Load reads configuration from the environment, after preloading a .env
// file when one exists, and applies STRATEGY_CONFIG if set. The result is
// validated.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var p parser
	cfg := &Config{
		Symbol:      strings.ToUpper(getEnv("SYMBOL", "LTCUSDT")),
		TradingMode: TradingMode(strings.ToLower(getEnv("TRADING_MODE", string(ModePaper)))),
		TestMode:    p.bool("TEST_MODE", true),

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),

		FeedURL:         getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),
		SignalTimeframe: getEnv("SIGNAL_TIMEFRAME", "15m"),
		ChartTimeframes: splitList(getEnv("CHART_TIMEFRAMES", "1m,15m,1h")),
		CandleLimit:     p.int("CANDLE_LIMIT", 100),
		ChartLimit:      p.int("CHART_LIMIT", 100),

		PositionSize:    p.float("POSITION_SIZE", 0.1),
		QtyStep:         p.float("QTY_STEP", 0.001),
		ExchangeTimeout: p.duration("EXCHANGE_TIMEOUT", 5*time.Second),
		CycleTimeout:    p.duration("CYCLE_TIMEOUT", 20*time.Second),

		PaperBalance:     p.float("PAPER_BALANCE", 1000),
		PaperLeverage:    p.float("PAPER_LEVERAGE", 10),
		PaperSlippageBps: p.float("PAPER_SLIPPAGE_BPS", 2),
		PaperMinQty:      p.float("PAPER_MIN_QTY", 0.001),

		HTTPAddr:      getEnv("HTTP_ADDR", ":8000"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		TradeLogPath:  getEnv("TRADE_LOG_PATH", "data/trades.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),
		ReplaySize:    p.int("WS_REPLAY_SIZE", 64),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ControlTOTPSecret: getEnv("CONTROL_TOTP_SECRET", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),

		StrategyConfigPath: getEnv("STRATEGY_CONFIG", ""),
		Strategy:           DefaultStrategy(),
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	if cfg.StrategyConfigPath != "" {
		s, err := LoadStrategy(cfg.StrategyConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Strategy = s
		slog.Info("strategy overrides loaded", "component", "config", "path", cfg.StrategyConfigPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStrategy reads a YAML file over the defaults; keys absent from the
// file keep their default values.
func LoadStrategy(path string) (Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Strategy{}, fmt.Errorf("config: read strategy file: %w", err)
	}
	s := DefaultStrategy()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Strategy{}, fmt.Errorf("config: parse strategy file %s: %w", path, err)
	}
	return s, nil
}

// Validate checks ranges and that live mode has credentials.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Symbol == "" {
		add("SYMBOL is empty")
	}
	switch c.TradingMode {
	case ModePaper:
	case ModeLive:
		if c.BinanceAPIKey == "" || c.BinanceAPISecret == "" {
			add("TRADING_MODE=live requires BINANCE_API_KEY and BINANCE_API_SECRET")
		}
	default:
		add("TRADING_MODE must be %q or %q, got %q", ModePaper, ModeLive, c.TradingMode)
	}
	if c.SignalTimeframe == "" {
		add("SIGNAL_TIMEFRAME is empty")
	}
	if c.PositionSize <= 0 {
		add("POSITION_SIZE must be > 0, got %v", c.PositionSize)
	}
	if c.QtyStep <= 0 {
		add("QTY_STEP must be > 0, got %v", c.QtyStep)
	}
	if c.ExchangeTimeout <= 0 || c.CycleTimeout <= 0 {
		add("EXCHANGE_TIMEOUT and CYCLE_TIMEOUT must be > 0")
	}
	if c.CycleTimeout < c.ExchangeTimeout {
		add("CYCLE_TIMEOUT (%v) must be >= EXCHANGE_TIMEOUT (%v)", c.CycleTimeout, c.ExchangeTimeout)
	}
	if c.TradingMode == ModePaper && (c.PaperBalance <= 0 || c.PaperLeverage <= 0) {
		add("PAPER_BALANCE and PAPER_LEVERAGE must be > 0")
	}
	if c.ReplaySize < 0 {
		add("WS_REPLAY_SIZE must be >= 0")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		add("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if err := c.Strategy.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CandleLimit < c.Strategy.Indicators.Lookback()+2 {
		add("CANDLE_LIMIT %d is too small to warm up the indicators", c.CandleLimit)
	}
	if c.ChartLimit <= 0 {
		add("CHART_LIMIT must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (s Strategy) validate() error {
	ip := s.Indicators
	if ip.RSIPeriod < 1 || ip.EMAShort < 1 || ip.EMALong < 1 || ip.ADXPeriod < 1 || ip.ATRPeriod < 1 || ip.VolumePeriod < 1 {
		return errors.New("indicator periods must be >= 1")
	}
	if ip.EMAShort >= ip.EMALong {
		return fmt.Errorf("ema_short (%d) must be < ema_long (%d)", ip.EMAShort, ip.EMALong)
	}
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	return s.Risk.Validate()
}

// parser collects env parse failures so Load reports all of them at once.
type parser struct{ errs []error }

func (p *parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(p.errs...))
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

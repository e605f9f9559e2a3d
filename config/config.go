package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tradePilot/internal/adapters/logger"
)

// Config holds the environment-sourced part of the configuration:
// credentials, paths and the log level. Trading parameters live in the
// settings file referenced by SettingsPath.
type Config struct {
	// Exchange API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Advisor API
	AnthropicAPIKey string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Operational settings
	SettingsPath string
	Settings     *Settings
}

// Settings holds the trading parameters, loaded from a YAML file so the
// operational profile can be edited and versioned apart from secrets.
type Settings struct {
	ListenAddr            string   `yaml:"listen_addr"`
	Symbols               []string `yaml:"symbols"`
	Leverage              int      `yaml:"leverage"`
	TakeProfitPercent     float64  `yaml:"take_profit_percent"`
	StopLossPercent       float64  `yaml:"stop_loss_percent"`
	TrendTouchMinChange   *float64 `yaml:"trend_touch_min_change"` // nil = default; explicit 0 disables the gate
	ReverseTrading        bool     `yaml:"reverse_trading"`
	SettleDelaySeconds    int      `yaml:"settle_delay_seconds"`
	QuoteAsset            string   `yaml:"quote_asset"`
	StatusIntervalSeconds int      `yaml:"status_interval_seconds"`

	Sizing  SizingSettings  `yaml:"sizing"`
	Monitor MonitorSettings `yaml:"monitor"`
	Retry   RetrySettings   `yaml:"retry"`
	Market  MarketSettings  `yaml:"market"`
	Advisor AdvisorSettings `yaml:"advisor"`

	// Overrides adjusts individual trading parameters for one symbol;
	// anything left unset inherits the global value.
	Overrides map[string]SymbolOverride `yaml:"overrides"`
}

// SizingSettings selects how entries are sized.
type SizingSettings struct {
	Mode        string  `yaml:"mode"`         // "fixed" or "percent"
	Percent     float64 `yaml:"percent"`      // percent of available balance
	FixedAmount float64 `yaml:"fixed_amount"` // quote currency per trade
}

// MonitorSettings tunes the threshold polling loop.
type MonitorSettings struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	ErrorBackoffSeconds int `yaml:"error_backoff_seconds"`
}

// RetrySettings bounds outbound call retries.
type RetrySettings struct {
	Attempts     int `yaml:"attempts"`
	DelaySeconds int `yaml:"delay_seconds"`
}

// MarketSettings sizes the snapshot the advisor sees.
type MarketSettings struct {
	CandleLimit    int `yaml:"candle_limit"`
	OrderBookDepth int `yaml:"orderbook_depth"`
}

// AdvisorSettings configures the AI gate client. Zero values fall back
// to the client's own defaults.
type AdvisorSettings struct {
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SymbolOverride replaces selected parameters for one symbol.
type SymbolOverride struct {
	Leverage          *int     `yaml:"leverage"`
	TakeProfitPercent *float64 `yaml:"take_profit_percent"`
	StopLossPercent   *float64 `yaml:"stop_loss_percent"`
}

// SymbolParams is the effective per-symbol parameter set after
// overrides are applied.
type SymbolParams struct {
	Leverage          int
	TakeProfitPercent float64
	StopLossPercent   float64
}

const (
	defaultListenAddr            = ":8000"
	defaultLeverage              = 5
	defaultTakeProfitPercent     = 3.0
	defaultStopLossPercent       = 1.5
	defaultTrendTouchMinChange   = 3.3
	defaultSettleDelaySeconds    = 2
	defaultQuoteAsset            = "USDT"
	defaultStatusIntervalSeconds = 60
	defaultSizingMode            = "percent"
	defaultSizingPercent         = 10.0
	defaultSizingFixedAmount     = 100.0
	defaultMonitorInterval       = 1
	defaultErrorBackoff          = 5
	defaultRetryAttempts         = 3
	defaultRetryDelaySeconds     = 1
	defaultCandleLimit           = 200
	defaultOrderBookDepth        = 50
)

// LoadConfig loads configuration from environment variables (.env file)
// and the YAML settings file named by SETTINGS_PATH.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", "")
	if cfg.AnthropicAPIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY must be set")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trade_pilot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	cfg.SettingsPath = getEnv("SETTINGS_PATH", "settings.yaml")
	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.Settings = settings
		errs = append(errs, settings.validate()...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// LoadSettings reads and parses the settings file, applying defaults for
// anything left unset.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = defaultListenAddr
	}
	if s.Leverage == 0 {
		s.Leverage = defaultLeverage
	}
	if s.TakeProfitPercent == 0 {
		s.TakeProfitPercent = defaultTakeProfitPercent
	}
	if s.StopLossPercent == 0 {
		s.StopLossPercent = defaultStopLossPercent
	}
	if s.TrendTouchMinChange == nil {
		v := defaultTrendTouchMinChange
		s.TrendTouchMinChange = &v
	}
	if s.SettleDelaySeconds == 0 {
		s.SettleDelaySeconds = defaultSettleDelaySeconds
	}
	if s.QuoteAsset == "" {
		s.QuoteAsset = defaultQuoteAsset
	}
	if s.StatusIntervalSeconds == 0 {
		s.StatusIntervalSeconds = defaultStatusIntervalSeconds
	}
	if s.Sizing.Mode == "" {
		s.Sizing.Mode = defaultSizingMode
	}
	if s.Sizing.Percent == 0 {
		s.Sizing.Percent = defaultSizingPercent
	}
	if s.Sizing.FixedAmount == 0 {
		s.Sizing.FixedAmount = defaultSizingFixedAmount
	}
	if s.Monitor.IntervalSeconds == 0 {
		s.Monitor.IntervalSeconds = defaultMonitorInterval
	}
	if s.Monitor.ErrorBackoffSeconds == 0 {
		s.Monitor.ErrorBackoffSeconds = defaultErrorBackoff
	}
	if s.Retry.Attempts == 0 {
		s.Retry.Attempts = defaultRetryAttempts
	}
	if s.Retry.DelaySeconds == 0 {
		s.Retry.DelaySeconds = defaultRetryDelaySeconds
	}
	if s.Market.CandleLimit == 0 {
		s.Market.CandleLimit = defaultCandleLimit
	}
	if s.Market.OrderBookDepth == 0 {
		s.Market.OrderBookDepth = defaultOrderBookDepth
	}
}

func (s *Settings) validate() []string {
	var errs []string
	if len(s.Symbols) == 0 {
		errs = append(errs, "settings: symbols must not be empty")
	}
	if s.Leverage <= 0 {
		errs = append(errs, "settings: leverage must be positive")
	}
	if s.TakeProfitPercent <= 0 {
		errs = append(errs, "settings: take_profit_percent must be positive")
	}
	if s.StopLossPercent <= 0 {
		errs = append(errs, "settings: stop_loss_percent must be positive")
	}
	if *s.TrendTouchMinChange < 0 {
		errs = append(errs, "settings: trend_touch_min_change cannot be negative")
	}
	if s.SettleDelaySeconds < 0 {
		errs = append(errs, "settings: settle_delay_seconds cannot be negative")
	}
	switch s.Sizing.Mode {
	case "fixed":
		if s.Sizing.FixedAmount <= 0 {
			errs = append(errs, "settings: sizing.fixed_amount must be positive in fixed mode")
		}
	case "percent":
		if s.Sizing.Percent <= 0 || s.Sizing.Percent > 100 {
			errs = append(errs, "settings: sizing.percent must be in (0, 100]")
		}
	default:
		errs = append(errs, fmt.Sprintf("settings: unknown sizing.mode %q", s.Sizing.Mode))
	}
	if s.Retry.Attempts <= 0 {
		errs = append(errs, "settings: retry.attempts must be positive")
	}
	for symbol, o := range s.Overrides {
		if o.Leverage != nil && *o.Leverage <= 0 {
			errs = append(errs, fmt.Sprintf("settings: overrides.%s.leverage must be positive", symbol))
		}
		if o.TakeProfitPercent != nil && *o.TakeProfitPercent <= 0 {
			errs = append(errs, fmt.Sprintf("settings: overrides.%s.take_profit_percent must be positive", symbol))
		}
		if o.StopLossPercent != nil && *o.StopLossPercent <= 0 {
			errs = append(errs, fmt.Sprintf("settings: overrides.%s.stop_loss_percent must be positive", symbol))
		}
	}
	return errs
}

// ParamsFor returns the effective parameters for one symbol: the global
// values with any per-symbol overrides applied.
func (s *Settings) ParamsFor(symbol string) SymbolParams {
	p := SymbolParams{
		Leverage:          s.Leverage,
		TakeProfitPercent: s.TakeProfitPercent,
		StopLossPercent:   s.StopLossPercent,
	}
	o, ok := s.Overrides[symbol]
	if !ok {
		return p
	}
	if o.Leverage != nil {
		p.Leverage = *o.Leverage
	}
	if o.TakeProfitPercent != nil {
		p.TakeProfitPercent = *o.TakeProfitPercent
	}
	if o.StopLossPercent != nil {
		p.StopLossPercent = *o.StopLossPercent
	}
	return p
}

// SymbolParamMap resolves ParamsFor for every configured symbol.
func (s *Settings) SymbolParamMap() map[string]SymbolParams {
	out := make(map[string]SymbolParams, len(s.Symbols))
	for _, symbol := range s.Symbols {
		out[symbol] = s.ParamsFor(symbol)
	}
	return out
}

// TrendTouchGate returns the minimum percent move that sends a trend
// touch signal to the advisor. Zero disables the gate.
func (s *Settings) TrendTouchGate() float64 {
	return *s.TrendTouchMinChange
}

// Duration accessors for the seconds-typed settings.

func (s *Settings) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelaySeconds) * time.Second
}

func (s *Settings) MonitorInterval() time.Duration {
	return time.Duration(s.Monitor.IntervalSeconds) * time.Second
}

func (s *Settings) MonitorErrorBackoff() time.Duration {
	return time.Duration(s.Monitor.ErrorBackoffSeconds) * time.Second
}

func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.Retry.DelaySeconds) * time.Second
}

func (s *Settings) StatusInterval() time.Duration {
	return time.Duration(s.StatusIntervalSeconds) * time.Second
}

func (s *Settings) AdvisorTimeout() time.Duration {
	return time.Duration(s.Advisor.TimeoutSeconds) * time.Second
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MinInterval = 5 * time.Second
	MaxInterval = 3600 * time.Second
)

var (
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidCurrency = errors.New("invalid currency")
)

var currencyRe = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Trading  TradingConfig  `yaml:"trading"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ExchangeConfig struct {
	Name string `yaml:"name"` // binance or tinkoff

	// binance
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`

	// tinkoff
	Token        string `yaml:"token"`
	AccountID    string `yaml:"account_id"`
	Sandbox      bool   `yaml:"sandbox"`
	UniverseSize int    `yaml:"universe_size"` // top MOEX shares by turnover

	Paper PaperConfig `yaml:"paper"`
}

type PaperConfig struct {
	Enabled  bool               `yaml:"enabled"`
	FeePct   float64            `yaml:"fee_pct"`
	Balances map[string]float64 `yaml:"balances"`
}

type ModelConfig struct {
	ID              string  `yaml:"id"`
	DaysGap         int     `yaml:"days_gap"`
	MarketPhase     float64 `yaml:"market_phase"`
	WasteRange      float64 `yaml:"waste_range"`
	MaxLoss         float64 `yaml:"max_loss"`
	MaxGain         float64 `yaml:"max_gain"`
	MinGainForOrder float64 `yaml:"min_gain_for_order"`
}

type TradingConfig struct {
	Model               string        `yaml:"model"`
	Models              []ModelConfig `yaml:"models"`
	OrderAmount         float64       `yaml:"order_amount"`
	BaseCurrency        string        `yaml:"base_currency"`
	QuoteCurrencies     []string      `yaml:"quote_currencies"`
	ScreeningGap        string        `yaml:"screening_gap"`
	BuyingGap           string        `yaml:"buying_gap"`
	UpdatingGap         string        `yaml:"updating_gap"`
	ForecastConcurrency int           `yaml:"forecast_concurrency"`
	StartDisabled       bool          `yaml:"start_disabled"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Commands bool   `yaml:"commands"`
}

type WebConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a yaml document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Exchange.Name == "" {
		cfg.Exchange.Name = "binance"
	}
	if cfg.Exchange.Name == "binance" && cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.binance.com"
	}
	if cfg.Trading.OrderAmount == 0 {
		cfg.Trading.OrderAmount = 15
	}
	if cfg.Exchange.Name == "tinkoff" && cfg.Exchange.UniverseSize == 0 {
		cfg.Exchange.UniverseSize = 50
	}
	if cfg.Trading.BaseCurrency == "" {
		cfg.Trading.BaseCurrency = "USDT"
		if cfg.Exchange.Name == "tinkoff" {
			cfg.Trading.BaseCurrency = "RUB"
		}
	}
	if cfg.Exchange.Paper.Enabled && len(cfg.Exchange.Paper.Balances) == 0 {
		cfg.Exchange.Paper.Balances = map[string]float64{cfg.Trading.BaseCurrency: 1000}
	}
	if len(cfg.Trading.QuoteCurrencies) == 0 {
		cfg.Trading.QuoteCurrencies = []string{cfg.Trading.BaseCurrency}
	}
	if cfg.Trading.ScreeningGap == "" {
		cfg.Trading.ScreeningGap = "1m"
	}
	if cfg.Trading.BuyingGap == "" {
		cfg.Trading.BuyingGap = "30s"
	}
	if cfg.Trading.UpdatingGap == "" {
		cfg.Trading.UpdatingGap = "10s"
	}
	if cfg.Trading.ForecastConcurrency == 0 {
		cfg.Trading.ForecastConcurrency = 10
	}
	if len(cfg.Trading.Models) == 0 {
		cfg.Trading.Models = []ModelConfig{{
			ID:              "default",
			DaysGap:         10,
			MarketPhase:     1,
			WasteRange:      3,
			MaxLoss:         -5,
			MaxGain:         5,
			MinGainForOrder: 1,
		}}
	}
	if cfg.Trading.Model == "" {
		cfg.Trading.Model = cfg.Trading.Models[0].ID
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/coin-trader.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case "binance":
		if !c.Exchange.Paper.Enabled && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
			return fmt.Errorf("exchange.api_key and exchange.api_secret are required for live binance trading")
		}
	case "tinkoff":
		if c.Exchange.Token == "" {
			return fmt.Errorf("exchange.token is required for tinkoff")
		}
	default:
		return fmt.Errorf("unknown exchange.name %q", c.Exchange.Name)
	}

	if c.Trading.OrderAmount <= 0 {
		return fmt.Errorf("trading.order_amount must be positive, got %v", c.Trading.OrderAmount)
	}
	if err := ValidateCurrency(c.Trading.BaseCurrency); err != nil {
		return fmt.Errorf("trading.base_currency: %w", err)
	}
	for _, q := range c.Trading.QuoteCurrencies {
		if err := ValidateCurrency(q); err != nil {
			return fmt.Errorf("trading.quote_currencies: %w", err)
		}
	}

	gaps := []struct {
		name  string
		value string
	}{
		{"trading.screening_gap", c.Trading.ScreeningGap},
		{"trading.buying_gap", c.Trading.BuyingGap},
		{"trading.updating_gap", c.Trading.UpdatingGap},
	}
	for _, g := range gaps {
		d, err := time.ParseDuration(g.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", g.name, g.value, err)
		}
		if err := ValidateInterval(d); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}

	if _, err := c.ActiveModel(); err != nil {
		return err
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ActiveModel returns the model block selected by trading.model.
func (c *Config) ActiveModel() (ModelConfig, error) {
	for _, m := range c.Trading.Models {
		if m.ID == c.Trading.Model {
			return m, nil
		}
	}
	return ModelConfig{}, fmt.Errorf("trading.model %q not found in trading.models", c.Trading.Model)
}

func (c *Config) IsPaper() bool {
	return c.Exchange.Paper.Enabled
}

func (c *Config) IsSandbox() bool {
	return c.Exchange.Sandbox
}

func (c *Config) ScreeningInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.ScreeningGap)
	return d
}

func (c *Config) BuyingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.BuyingGap)
	return d
}

func (c *Config) UpdatingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.UpdatingGap)
	return d
}

// ValidateInterval rejects refresh intervals outside [MinInterval, MaxInterval].
func ValidateInterval(d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidInterval, d, MinInterval, MaxInterval)
	}
	return nil
}

// ValidateCurrency accepts upper-case asset codes like USDT or BTC.
func ValidateCurrency(s string) error {
	if !currencyRe.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return nil
}

// NormalizeCurrency trims and upper-cases a user supplied asset code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

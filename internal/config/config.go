package config

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"chaser/internal/history"
	"chaser/internal/risk"
)

// Environment variable names for the venue credentials. Secrets never
// live in the config file.
const (
	EnvAPIKey    = "BYBIT_API_KEY"
	EnvAPISecret = "BYBIT_API_SECRET"
)

// Config is the full engine configuration.
type Config struct {
	Symbol string `yaml:"symbol"`

	Feed    FeedConfig     `yaml:"feed"`
	Trade   TradeConfig    `yaml:"trade"`
	Chaser  ChaserConfig   `yaml:"chaser"`
	Durable DurableConfig  `yaml:"durable"`
	Risk    RiskConfig     `yaml:"risk"`
	History history.Config `yaml:"history"`
	Profile ProfileConfig  `yaml:"profile"`

	// Secrets, resolved from the environment.
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// FeedConfig controls the public market data session.
type FeedConfig struct {
	URL   string `yaml:"url"`
	Depth int    `yaml:"depth"`
}

// TradeConfig controls the private execution session.
type TradeConfig struct {
	URL             string  `yaml:"url"`
	Category        string  `yaml:"category"`
	Enabled         bool    `yaml:"enabled"`
	OrderRatePerSec float64 `yaml:"order_rate_per_sec"`
	AuthTimeoutMs   int     `yaml:"auth_timeout_ms"`
}

// AuthTimeout returns the auth ack timeout as a duration.
func (c TradeConfig) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutMs) * time.Millisecond
}

// ChaserConfig holds the strategy parameters. Timer fields are
// milliseconds.
type ChaserConfig struct {
	QtyBase     float64 `yaml:"qty_base"`
	StepMax     int     `yaml:"step_max"`
	TpPct       float64 `yaml:"tp_pct"`
	SlPct       float64 `yaml:"sl_pct"`
	EpsilonTick float64 `yaml:"epsilon_tick"`
	EpsilonSafe float64 `yaml:"epsilon_safe"`
	ChaseDelta  float64 `yaml:"chase_delta"`
	TickSize    float64 `yaml:"tick_size"`
	CloseTicks  int     `yaml:"close_ticks"`
	TOrderMs    int     `yaml:"t_order_ms"`
	TStaleMs    int     `yaml:"t_stale_ms"`
	TGraceMs    int     `yaml:"t_grace_ms"`
	TickEveryMs int     `yaml:"tick_every_ms"`
	ShortFirst  bool    `yaml:"short_first"`
}

// RiskConfig holds the pre-trade limits. The rate window is
// milliseconds.
type RiskConfig struct {
	KillSwitch           bool    `yaml:"kill_switch"`
	MaxOrderQty          float64 `yaml:"max_order_qty"`
	MaxPriceDeviationPct float64 `yaml:"max_price_deviation_pct"`
	OrderRateLimit       int     `yaml:"order_rate_limit"`
	OrderRateWindowMs    int     `yaml:"order_rate_window_ms"`
}

// Engine converts the limits into a risk engine config.
func (c RiskConfig) Engine() risk.Config {
	return risk.Config{
		KillSwitch:           c.KillSwitch,
		MaxOrderQty:          c.MaxOrderQty,
		MaxPriceDeviationPct: c.MaxPriceDeviationPct,
		OrderRateLimit:       c.OrderRateLimit,
		OrderRateWindow:      time.Duration(c.OrderRateWindowMs) * time.Millisecond,
	}
}

// DurableConfig controls the shared-memory mirror.
type DurableConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	Channel      string `yaml:"channel"`
	RingSize     int    `yaml:"ring_size"`
	BookStream   uint32 `yaml:"book_stream"`
	SignalStream uint32 `yaml:"signal_stream"`
	OrderStream  uint32 `yaml:"order_stream"`
}

// ProfileConfig enables continuous profiling.
type ProfileConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Symbol: "BTCUSDT",
		Feed: FeedConfig{
			Depth: 50,
		},
		Trade: TradeConfig{
			URL:             "wss://stream.bybit.com/v5/trade",
			Category:        "linear",
			OrderRatePerSec: 10,
			AuthTimeoutMs:   10_000,
		},
		Chaser: ChaserConfig{
			QtyBase:     0.001,
			StepMax:     6,
			TpPct:       0.0005,
			SlPct:       0.001,
			EpsilonTick: 0.01,
			EpsilonSafe: 0.01,
			ChaseDelta:  50,
			TickSize:    0.1,
			CloseTicks:  10,
			TOrderMs:    5_000,
			TStaleMs:    10_000,
			TGraceMs:    500,
			TickEveryMs: 1,
		},
		Durable: DurableConfig{
			Enabled:      true,
			Channel:      "chaser",
			RingSize:     1 << 20,
			BookStream:   1001,
			SignalStream: 1002,
			OrderStream:  1003,
		},
	}
}

// Load reads the YAML file when path is non-empty, layers it over the
// defaults, and resolves secrets from the environment. Trading stays
// suppressed through the risk kill switch unless explicitly enabled.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.APIKey = os.Getenv(EnvAPIKey)
	cfg.APISecret = os.Getenv(EnvAPISecret)
	cfg.Risk.KillSwitch = cfg.Risk.KillSwitch || !cfg.Trade.Enabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("symbol is empty")
	}
	if c.Chaser.QtyBase <= 0 {
		return errors.New("qty_base must be > 0")
	}
	if c.Chaser.StepMax < 0 {
		return errors.New("step_max must be >= 0")
	}
	if c.Chaser.TpPct <= 0 || c.Chaser.SlPct <= 0 {
		return errors.New("tp_pct and sl_pct must be > 0")
	}
	if c.Feed.Depth <= 0 {
		return errors.New("feed depth must be > 0")
	}
	if c.Trade.Enabled && (c.APIKey == "" || c.APISecret == "") {
		return errors.Errorf("trading enabled but %s/%s are not set", EnvAPIKey, EnvAPISecret)
	}
	return nil
}

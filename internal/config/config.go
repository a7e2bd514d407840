// Package config loads the YAML configuration. Risk limits and fee rates
// are policy values supplied here, never hardcoded in the engine.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Trading  TradingConfig  `mapstructure:"trading"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Decision DecisionConfig `mapstructure:"decision"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Forward  ForwardConfig  `mapstructure:"forward"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// TradingConfig holds the risk and fee policy of the simulated account.
type TradingConfig struct {
	Symbols         []string      `mapstructure:"symbols"`
	StartCapital    float64       `mapstructure:"start_capital"`
	TakerFeeRate    float64       `mapstructure:"taker_fee_rate"`
	MakerFeeRate    float64       `mapstructure:"maker_fee_rate"`
	MaxRiskFraction float64       `mapstructure:"max_risk_fraction"`
	MinLeverage     int           `mapstructure:"min_leverage"`
	MaxLeverage     int           `mapstructure:"max_leverage"`
	GuardFraction   float64       `mapstructure:"guard_fraction"`
	Interval        time.Duration `mapstructure:"interval"`
}

// ExchangeConfig points at the market data source.
type ExchangeConfig struct {
	RESTURL   string `mapstructure:"rest_url"`
	StreamURL string `mapstructure:"stream_url"`
	CacheDir  string `mapstructure:"cache_dir"`
}

// DecisionConfig configures the decision source.
type DecisionConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects and configures the persistence backends. The file
// backend is canonical; postgres and clickhouse mirrors are optional.
type StorageConfig struct {
	Dir           string `mapstructure:"dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// NotifyConfig configures the Telegram notifier. Empty token disables it.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

// ForwardConfig configures best-effort live order forwarding. Empty endpoint
// disables it.
type ForwardConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads config.yaml from path, layered over .env and environment
// variables (prefix LAB_, e.g. LAB_DECISION_API_KEY).
func Load(path string) (*Config, error) {
	// Missing .env is fine; real deployments often use the environment only.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvPrefix("LAB")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file: defaults plus environment.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.start_capital", 10000.0)
	v.SetDefault("trading.taker_fee_rate", 0.000275)
	v.SetDefault("trading.maker_fee_rate", 0.0)
	v.SetDefault("trading.max_risk_fraction", 0.02)
	v.SetDefault("trading.min_leverage", 1)
	v.SetDefault("trading.max_leverage", 20)
	v.SetDefault("trading.guard_fraction", 0.2)
	v.SetDefault("trading.interval", "15m")
	v.SetDefault("exchange.cache_dir", "data/klines")
	v.SetDefault("storage.dir", "data/state")
	v.SetDefault("decision.temperature", 0.1)
	v.SetDefault("decision.timeout", "60s")
	v.SetDefault("metrics.listen_addr", ":9090")
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("config: no trading symbols")
	}
	if c.Trading.StartCapital <= 0 {
		return fmt.Errorf("config: start_capital must be positive")
	}
	if c.Trading.MaxRiskFraction <= 0 || c.Trading.MaxRiskFraction > 1 {
		return fmt.Errorf("config: max_risk_fraction must be in (0, 1]")
	}
	if c.Trading.MinLeverage < 1 || c.Trading.MaxLeverage < c.Trading.MinLeverage {
		return fmt.Errorf("config: leverage bounds invalid")
	}
	if c.Trading.GuardFraction < 0 || c.Trading.GuardFraction >= 1 {
		return fmt.Errorf("config: guard_fraction must be in [0, 1)")
	}
	if c.Trading.TakerFeeRate < 0 || c.Trading.MakerFeeRate < 0 {
		return fmt.Errorf("config: fee rates must be non-negative")
	}
	return nil
}

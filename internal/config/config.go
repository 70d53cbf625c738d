// Package config loads and validates engine configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/tradequorum/internal/synthesis"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig          `mapstructure:"app"`
	Engine     EngineConfig       `mapstructure:"engine"`
	Sizing     SizingConfig       `mapstructure:"sizing"`
	History    HistoryConfig      `mapstructure:"history"`
	Database   DatabaseConfig     `mapstructure:"database"`
	Redis      RedisConfig        `mapstructure:"redis"`
	NATS       NATSConfig         `mapstructure:"nats"`
	Monitoring MonitoringConfig   `mapstructure:"monitoring"`
	Weights    map[string]float64 `mapstructure:"agent_weights"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// EngineConfig contains decision pipeline settings
type EngineConfig struct {
	ProducerTimeoutMS int    `mapstructure:"producer_timeout_ms"` // per-producer deadline
	MaxConcurrency    int    `mapstructure:"max_concurrency"`     // parallel producer calls
	RatePerSecond     int    `mapstructure:"rate_per_second"`     // producer request rate
	Symbols           string `mapstructure:"symbols"`
}

// SizingConfig contains position sizing settings
type SizingConfig struct {
	RiskFraction        float64 `mapstructure:"risk_fraction"`         // 0.02 (2% of portfolio per trade)
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"` // 0.10 (10% exposure cap)
}

// HistoryConfig contains decision log settings
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
	Enabled  bool   `mapstructure:"enabled"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
	TTLSec   int    `mapstructure:"ttl_seconds"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TRADEQUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Weight defaults are applied after unmarshaling, not via SetDefault:
	// viper merges per-key map defaults into a user-supplied map, which
	// would contaminate an explicit profile with leftover default keys.
	if len(cfg.Weights) == 0 {
		cfg.Weights = synthesis.DefaultWeights()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "TradeQuorum")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("engine.producer_timeout_ms", 5000)
	v.SetDefault("engine.max_concurrency", 3)
	v.SetDefault("engine.rate_per_second", 10)
	v.SetDefault("engine.symbols", "BTC-USD")

	v.SetDefault("sizing.risk_fraction", 0.02)
	v.SetDefault("sizing.max_position_fraction", 0.10)

	v.SetDefault("history.capacity", 100)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tradequorum")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.enabled", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl_seconds", 300)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("monitoring.prometheus_port", 9090)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks ranges and renormalizes agent weights so they sum
// to 1. A weight profile that does not sum to 1 is accepted with a
// warning rather than rejected, since operators commonly edit one
// weight without rebalancing the rest.
func (c *Config) Validate() error {
	if c.Sizing.RiskFraction <= 0 || c.Sizing.RiskFraction >= 1 {
		return fmt.Errorf("sizing.risk_fraction must be in (0, 1), got %v", c.Sizing.RiskFraction)
	}
	if c.Sizing.MaxPositionFraction <= 0 || c.Sizing.MaxPositionFraction >= 1 {
		return fmt.Errorf("sizing.max_position_fraction must be in (0, 1), got %v", c.Sizing.MaxPositionFraction)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive, got %d", c.History.Capacity)
	}
	if c.Engine.ProducerTimeoutMS <= 0 {
		return fmt.Errorf("engine.producer_timeout_ms must be positive, got %d", c.Engine.ProducerTimeoutMS)
	}
	if c.Engine.MaxConcurrency <= 0 {
		return fmt.Errorf("engine.max_concurrency must be positive, got %d", c.Engine.MaxConcurrency)
	}

	total := 0.0
	for producer, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("agent_weights.%s must be non-negative, got %v", producer, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("agent_weights must contain at least one positive weight")
	}
	if math.Abs(total-1.0) > 1e-6 {
		log.Warn().
			Float64("total", total).
			Msg("Agent weights do not sum to 1, renormalizing")
		for producer, w := range c.Weights {
			c.Weights[producer] = w / total
		}
	}

	return nil
}

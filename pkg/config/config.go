package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Solana      SolanaConfig     `mapstructure:"solana"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Validation  ValidationConfig `mapstructure:"validation"`
	Market      MarketConfig     `mapstructure:"market"`
	Execution   ExecutionConfig  `mapstructure:"execution"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SolanaConfig holds chain connectivity configuration
type SolanaConfig struct {
	RPC            string        `mapstructure:"rpc_url"`
	WSEndpoint     string        `mapstructure:"ws_endpoint"`
	Commitment     string        `mapstructure:"commitment"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RedisConfig holds the optional shared cache tier configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds TTL and sweep configuration for the state cache
type CacheConfig struct {
	PoolTTL       time.Duration `mapstructure:"pool_ttl"`
	MarketTTL     time.Duration `mapstructure:"market_ttl"`
	SignatureTTL  time.Duration `mapstructure:"signature_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ValidationConfig holds pool safety check configuration
type ValidationConfig struct {
	MinLiquidity   uint64  `mapstructure:"min_liquidity"`
	MaxLiquidity   uint64  `mapstructure:"max_liquidity"`
	MinVolume24h   uint64  `mapstructure:"min_volume_24h"`
	MaxPriceImpact float64 `mapstructure:"max_price_impact"`
	MinHolders     int     `mapstructure:"min_holders"`
	CheckMutable   bool    `mapstructure:"check_mutable"`
	CheckSocials   bool    `mapstructure:"check_socials"`
	CheckRenounced bool    `mapstructure:"check_renounced"`
	CheckFreezable bool    `mapstructure:"check_freezable"`
	CheckBurned    bool    `mapstructure:"check_burned"`
}

// MarketConfig holds market event distributor configuration
type MarketConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
}

// ExecutionConfig holds transaction build/submit configuration
type ExecutionConfig struct {
	MaxRetries               int               `mapstructure:"max_retries"`
	RetryBaseDelay           time.Duration     `mapstructure:"retry_base_delay"`
	RetryMaxDelay            time.Duration     `mapstructure:"retry_max_delay"`
	ConfirmationTimeout      time.Duration     `mapstructure:"confirmation_timeout"`
	ConfirmationPollInterval time.Duration     `mapstructure:"confirmation_poll_interval"`
	ComputeUnitLimit         uint32            `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice         uint64            `mapstructure:"compute_unit_price"`
	LookupTableAddresses     []string          `mapstructure:"lookup_table_addresses"`
	WalletKeyfiles           map[string]string `mapstructure:"wallet_keyfiles"`
	MetricsFlushInterval     time.Duration     `mapstructure:"metrics_flush_interval"`
	Strategies               StrategiesConfig  `mapstructure:"strategies"`
}

// StrategiesConfig holds per-backend execution strategy configuration
type StrategiesConfig struct {
	Broadcast BroadcastStrategyConfig `mapstructure:"broadcast"`
	Relay     RelayStrategyConfig     `mapstructure:"relay"`
	Bundle    BundleStrategyConfig    `mapstructure:"bundle"`
}

// BroadcastStrategyConfig configures the direct RPC broadcast backend
type BroadcastStrategyConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Priority      int  `mapstructure:"priority"`
	SkipPreflight bool `mapstructure:"skip_preflight"`
}

// RelayStrategyConfig configures the accelerated relay backend
type RelayStrategyConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Priority    int    `mapstructure:"priority"`
	Endpoint    string `mapstructure:"endpoint"`
	TipLamports uint64 `mapstructure:"tip_lamports"`
}

// BundleStrategyConfig configures the bundle auction backend
type BundleStrategyConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Priority    int    `mapstructure:"priority"`
	Endpoint    string `mapstructure:"endpoint"`
	TipAccount  string `mapstructure:"tip_account"`
	TipLamports uint64 `mapstructure:"tip_lamports"`
}

// Load loads configuration from file and environment variables. Invalid or
// missing required options fail here so the process never starts degraded.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables take the highest priority
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("TRADING_CORE")

	v.BindEnv("log_level", "TRADING_CORE_LOG_LEVEL")
	v.BindEnv("environment", "TRADING_CORE_ENVIRONMENT")
	v.BindEnv("solana.rpc_url", "TRADING_CORE_SOLANA_RPC_URL")
	v.BindEnv("solana.ws_endpoint", "TRADING_CORE_SOLANA_WS_ENDPOINT")
	v.BindEnv("solana.commitment", "TRADING_CORE_SOLANA_COMMITMENT")
	v.BindEnv("redis.enabled", "TRADING_CORE_REDIS_ENABLED")
	v.BindEnv("redis.addr", "TRADING_CORE_REDIS_ADDR")
	v.BindEnv("redis.password", "TRADING_CORE_REDIS_PASSWORD")
	v.BindEnv("execution.strategies.relay.endpoint", "TRADING_CORE_RELAY_ENDPOINT")
	v.BindEnv("execution.strategies.bundle.endpoint", "TRADING_CORE_BUNDLE_ENDPOINT")
	v.BindEnv("execution.strategies.bundle.tip_account", "TRADING_CORE_BUNDLE_TIP_ACCOUNT")

	// Local development convenience
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	// YAML config file is optional; env vars can provide everything
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/trading-core")

		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the loaded configuration for missing or inconsistent
// required options
func (c *Config) Validate() error {
	if c.Solana.RPC == "" {
		return fmt.Errorf("solana.rpc_url must be set")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment must be processed, confirmed or finalized, got %q", c.Solana.Commitment)
	}
	if c.Solana.RequestTimeout <= 0 {
		return fmt.Errorf("solana.request_timeout must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis.enabled is true")
	}

	if c.Cache.PoolTTL <= 0 || c.Cache.MarketTTL <= 0 || c.Cache.SignatureTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be positive")
	}

	if c.Validation.MaxLiquidity > 0 && c.Validation.MaxLiquidity < c.Validation.MinLiquidity {
		return fmt.Errorf("validation.max_liquidity (%d) is below validation.min_liquidity (%d)",
			c.Validation.MaxLiquidity, c.Validation.MinLiquidity)
	}
	if c.Validation.MaxPriceImpact < 0 {
		return fmt.Errorf("validation.max_price_impact must not be negative")
	}

	if c.Market.RefreshInterval <= 0 {
		return fmt.Errorf("market.refresh_interval must be positive")
	}
	if c.Market.ReconnectDelay <= 0 {
		return fmt.Errorf("market.reconnect_delay must be positive")
	}

	if c.Execution.MaxRetries < 1 {
		return fmt.Errorf("execution.max_retries must be at least 1")
	}
	if c.Execution.RetryBaseDelay <= 0 || c.Execution.RetryMaxDelay < c.Execution.RetryBaseDelay {
		return fmt.Errorf("execution retry delays are inconsistent")
	}
	if c.Execution.ConfirmationTimeout <= 0 || c.Execution.ConfirmationPollInterval <= 0 {
		return fmt.Errorf("execution confirmation timings must be positive")
	}

	if c.Execution.Strategies.Relay.Enabled && c.Execution.Strategies.Relay.Endpoint == "" {
		return fmt.Errorf("execution.strategies.relay.endpoint must be set when the relay strategy is enabled")
	}
	if c.Execution.Strategies.Bundle.Enabled {
		if c.Execution.Strategies.Bundle.Endpoint == "" {
			return fmt.Errorf("execution.strategies.bundle.endpoint must be set when the bundle strategy is enabled")
		}
		if c.Execution.Strategies.Bundle.TipAccount == "" {
			return fmt.Errorf("execution.strategies.bundle.tip_account must be set when the bundle strategy is enabled")
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// General
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Solana
	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_endpoint", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.request_timeout", "10s")

	// Redis (shared cache tier, optional)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	// Cache
	v.SetDefault("cache.pool_ttl", "24h")
	v.SetDefault("cache.market_ttl", "5s")
	v.SetDefault("cache.signature_ttl", "24h")
	v.SetDefault("cache.sweep_interval", "1h")

	// Validation
	v.SetDefault("validation.min_liquidity", 1_000_000_000)
	v.SetDefault("validation.max_liquidity", 0) // 0 disables the upper bound
	v.SetDefault("validation.min_volume_24h", 0)
	v.SetDefault("validation.max_price_impact", 10.0)
	v.SetDefault("validation.min_holders", 0)
	v.SetDefault("validation.check_mutable", false)
	v.SetDefault("validation.check_socials", false)
	v.SetDefault("validation.check_renounced", true)
	v.SetDefault("validation.check_freezable", true)
	v.SetDefault("validation.check_burned", true)

	// Market distributor
	v.SetDefault("market.refresh_interval", "1s")
	v.SetDefault("market.reconnect_delay", "5s")

	// Execution
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_base_delay", "500ms")
	v.SetDefault("execution.retry_max_delay", "8s")
	v.SetDefault("execution.confirmation_timeout", "45s")
	v.SetDefault("execution.confirmation_poll_interval", "1s")
	v.SetDefault("execution.compute_unit_limit", 200_000)
	v.SetDefault("execution.compute_unit_price", 10_000)
	v.SetDefault("execution.metrics_flush_interval", "1m")

	v.SetDefault("execution.strategies.broadcast.enabled", true)
	v.SetDefault("execution.strategies.broadcast.priority", 1)
	v.SetDefault("execution.strategies.broadcast.skip_preflight", true)
	v.SetDefault("execution.strategies.relay.enabled", false)
	v.SetDefault("execution.strategies.relay.priority", 2)
	v.SetDefault("execution.strategies.relay.tip_lamports", 100_000)
	v.SetDefault("execution.strategies.bundle.enabled", false)
	v.SetDefault("execution.strategies.bundle.priority", 3)
	v.SetDefault("execution.strategies.bundle.tip_lamports", 1_000_000)
}

// MetricsAddress returns the metrics server listen address
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf(":%d", c.Metrics.Port)
}

// Package config loads the observatory's configuration from the environment
// (optionally preloaded from a .env file), following the teacher's
// getEnv*-helper pattern generalized to the pipeline's own tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Security SecurityConfig
	Pipeline PipelineConfig
	Notifier NotifierConfig
	Logging  LoggingConfig
}

// NotifierConfig holds C7's Telegram credentials and the chat id C6/C8/C11
// dispatch alerts to.
type NotifierConfig struct {
	BotToken    string
	AlertChatID string
	Timeout     time.Duration
}

// ServerConfig configures the internal HTTP surface (health/metrics/settings).
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig configures the Postgres connection, kept from the teacher.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the KV backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SecurityConfig holds the internal HTTP surface's auth secrets.
type SecurityConfig struct {
	EncryptionKey  string // 32 bytes, AES-256-GCM key for venue credentials at rest
	OperatorUser   string
	OperatorPassHash string // bcrypt hash
}

// PipelineConfig is the set of recognised tunables from spec §6, with their
// documented defaults. A HotReload overlay (see hotreload.go) applies
// per-key overrides read from the `settings:config` KV hash on top of these.
type PipelineConfig struct {
	PriceInterval               time.Duration // price_update_interval_sec, default 1s
	MaxPriceAgeMs               int64         // max_price_age_ms, default 60000
	MinSpreadPct                float64       // min_spread_pct, default 2.0
	MaxSlippagePct              float64       // max_slippage_pct, default 2.0
	CooldownSec                 int           // alert_cooldown_seconds, default 300
	LaggingCooldownSec          int           // 600 for lagging signals
	MaxSignalAgeSec             int64         // default 120
	MaxTrackingHours            int           // default 168
	BaseCheckInterval           time.Duration // C8 coordinator loop, default 5s
	ConvergenceRatio            float64       // default 0.5
	AbsoluteConvergencePct      float64       // default 3.0
	DivergenceRatio             float64       // default 1.5
	DivergenceAlertRateLimit    time.Duration // default 1h
	SamplesPerHourLimit         int           // default 3600
	BaselineRetentionHours      int           // default 168
	SuggestedPositionUSD        float64       // default 10000
	MaxPositionSizeUSD          float64       // default 50000 (HardCap)
	MinExitLiquidityUSD         float64       // default 5000
	MinDexLiquidityUSD          float64       // default 1000
	HighSpreadThreshold         float64       // default 10
	MediumSpreadThreshold       float64       // default 5
	EnableAutoSignals           bool
	EnableManualSignals         bool
	EnableLaggingSignals        bool
	TickerDiscoveryInterval     time.Duration // default 24h
	PositionCheckInterval       time.Duration // C11, default 30s
	OrderbookQueueCapacity      int           // default 1000
	PendingSignalsQueueCapacity int           // default 500
}

// LoggingConfig selects the zap encoding/level for the process.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads a .env file (if present, ignored if missing) then builds Config
// from the environment, applying the spec's documented defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "observatory"),
			User:            getEnv("DB_USER", "observatory"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
			OperatorUser:     getEnv("OPERATOR_USER", "admin"),
			OperatorPassHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
		Pipeline: PipelineConfig{
			PriceInterval:               getEnvAsDuration("PRICE_UPDATE_INTERVAL", 1*time.Second),
			MaxPriceAgeMs:               getEnvAsInt64("MAX_PRICE_AGE_MS", 60_000),
			MinSpreadPct:                getEnvAsFloat("MIN_SPREAD_PCT", 2.0),
			MaxSlippagePct:              getEnvAsFloat("MAX_SLIPPAGE_PCT", 2.0),
			CooldownSec:                 getEnvAsInt("ALERT_COOLDOWN_SECONDS", 300),
			LaggingCooldownSec:          getEnvAsInt("LAGGING_COOLDOWN_SECONDS", 600),
			MaxSignalAgeSec:             getEnvAsInt64("MAX_SIGNAL_AGE_SEC", 120),
			MaxTrackingHours:            getEnvAsInt("MAX_TRACKING_HOURS", 168),
			BaseCheckInterval:           getEnvAsDuration("BASE_CHECK_INTERVAL", 5*time.Second),
			ConvergenceRatio:            getEnvAsFloat("CONVERGENCE_RATIO", 0.5),
			AbsoluteConvergencePct:      getEnvAsFloat("ABSOLUTE_CONVERGENCE_PCT", 3.0),
			DivergenceRatio:             getEnvAsFloat("DIVERGENCE_RATIO", 1.5),
			DivergenceAlertRateLimit:    getEnvAsDuration("DIVERGENCE_ALERT_RATE_LIMIT", 1*time.Hour),
			SamplesPerHourLimit:         getEnvAsInt("SAMPLES_PER_HOUR_LIMIT", 3600),
			BaselineRetentionHours:      getEnvAsInt("BASELINE_RETENTION_HOURS", 168),
			SuggestedPositionUSD:        getEnvAsFloat("SUGGESTED_POSITION_USD", 10_000),
			MaxPositionSizeUSD:          getEnvAsFloat("MAX_POSITION_SIZE_USD", 50_000),
			MinExitLiquidityUSD:         getEnvAsFloat("MIN_EXIT_LIQUIDITY_USD", 5_000),
			MinDexLiquidityUSD:          getEnvAsFloat("MIN_DEX_LIQUIDITY_USD", 1_000),
			HighSpreadThreshold:         getEnvAsFloat("HIGH_SPREAD_THRESHOLD", 10),
			MediumSpreadThreshold:       getEnvAsFloat("MEDIUM_SPREAD_THRESHOLD", 5),
			EnableAutoSignals:           getEnvAsBool("ENABLE_AUTO_SIGNALS", true),
			EnableManualSignals:         getEnvAsBool("ENABLE_MANUAL_SIGNALS", true),
			EnableLaggingSignals:        getEnvAsBool("ENABLE_LAGGING_SIGNALS", true),
			TickerDiscoveryInterval:     getEnvAsDuration("TICKER_DISCOVERY_INTERVAL", 24*time.Hour),
			PositionCheckInterval:       getEnvAsDuration("POSITION_CHECK_INTERVAL", 30*time.Second),
			OrderbookQueueCapacity:      getEnvAsInt("ORDERBOOK_QUEUE_CAPACITY", 1000),
			PendingSignalsQueueCapacity: getEnvAsInt("PENDING_SIGNALS_QUEUE_CAPACITY", 500),
		},
		Notifier: NotifierConfig{
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			AlertChatID: getEnv("TELEGRAM_ALERT_CHAT_ID", ""),
			Timeout:     getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Security.EncryptionKey != "" && len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

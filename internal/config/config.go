// Package config provides configuration management for the moment portfolio service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Chain     ChainConfig
	Market    MarketConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	Sample    SampleConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// ChainConfig holds Flow access node and indexer configuration
type ChainConfig struct {
	AccessNodeURL     string
	IndexerURL        string
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	MaxPages          int
	EventWindow       uint64 // blocks scanned per event query
	EventTypes        []string
}

// MarketConfig holds market quote source configuration
type MarketConfig struct {
	BaseURL            string
	Timeout            time.Duration
	MaxConcurrency     int
	FallbackAdjustment float64
	LastSaleTTL        time.Duration
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// AnalyticsConfig holds analytics tuning
type AnalyticsConfig struct {
	ParamsFile      string // optional YAML overrides
	CostBasisPolicy string // first_purchase, fifo_open_lot, weighted_average
}

// SampleConfig controls the illustrative data fallback
type SampleConfig struct {
	FallbackEnabled bool
	MomentCount     int
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Chain: ChainConfig{
			AccessNodeURL:     getEnv("FLOW_ACCESS_NODE_URL", "https://rest-mainnet.onflow.org"),
			IndexerURL:        getEnv("FLOW_INDEXER_URL", "https://rest-mainnet.onflow.org/indexer"),
			Timeout:           getEnvAsDuration("FLOW_TIMEOUT", 15*time.Second),
			MaxAttempts:       getEnvAsInt("FLOW_MAX_ATTEMPTS", 3),
			InitialBackoff:    getEnvAsDuration("FLOW_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:        getEnvAsDuration("FLOW_MAX_BACKOFF", 5*time.Second),
			RequestsPerSecond: getEnvAsFloat("FLOW_REQUESTS_PER_SECOND", 10),
			Burst:             getEnvAsInt("FLOW_BURST", 5),
			PageSize:          getEnvAsInt("FLOW_PAGE_SIZE", 100),
			MaxPages:          getEnvAsInt("FLOW_MAX_PAGES", 50),
			EventWindow:       uint64(getEnvAsInt("FLOW_EVENT_WINDOW", 250)),
			EventTypes:        getEnvAsList("FLOW_EVENT_TYPES", nil),
		},
		Market: MarketConfig{
			BaseURL:            getEnv("MARKET_BASE_URL", "https://api.nbatopshot.com/marketplace"),
			Timeout:            getEnvAsDuration("MARKET_TIMEOUT", 5*time.Second),
			MaxConcurrency:     getEnvAsInt("MARKET_MAX_CONCURRENCY", 16),
			FallbackAdjustment: getEnvAsFloat("MARKET_FALLBACK_ADJUSTMENT", 0.10),
			LastSaleTTL:        getEnvAsDuration("MARKET_LAST_SALE_TTL", 24*time.Hour),
			BreakerMaxFailures: getEnvAsInt("MARKET_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     getEnvAsDuration("MARKET_BREAKER_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "moment_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "moment_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Analytics: AnalyticsConfig{
			ParamsFile:      getEnv("ANALYTICS_PARAMS_FILE", ""),
			CostBasisPolicy: getEnv("COST_BASIS_POLICY", "first_purchase"),
		},
		Sample: SampleConfig{
			FallbackEnabled: getEnvAsBool("SAMPLE_FALLBACK_ENABLED", true),
			MomentCount:     getEnvAsInt("SAMPLE_MOMENT_COUNT", 24),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	if c.Chain.AccessNodeURL == "" {
		return fmt.Errorf("FLOW_ACCESS_NODE_URL is required")
	}
	if c.Chain.MaxAttempts < 1 {
		return fmt.Errorf("FLOW_MAX_ATTEMPTS must be at least 1, got %d", c.Chain.MaxAttempts)
	}
	if c.Market.FallbackAdjustment < 0 || c.Market.FallbackAdjustment >= 1 {
		return fmt.Errorf("MARKET_FALLBACK_ADJUSTMENT must be in [0, 1), got %v", c.Market.FallbackAdjustment)
	}
	switch c.Analytics.CostBasisPolicy {
	case "first_purchase", "fifo_open_lot", "weighted_average":
	default:
		return fmt.Errorf("unknown COST_BASIS_POLICY %q", c.Analytics.CostBasisPolicy)
	}
	return nil
}

// RedisAddr returns host:port for the Redis client
func (c RedisConfig) RedisAddr() string {
	return c.Host + ":" + c.Port
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

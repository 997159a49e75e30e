package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"spotstore/internal/adapters/logger" // Import the logger package for LogLevel
	"spotstore/internal/domain"
)

// Supported storage backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	StoreDriver          string
	DBPath               string // SQLite file
	PostgresDSN          string
	PostgresSchema       string
	PostgresMaxOpenConns int

	// Tables
	BarInterval    domain.Interval // spot_<BarInterval>
	LatestInterval domain.Interval // spot_<LatestInterval>_latest
	SourceName     string          // Value written to latest.source

	// Redis latest cache, disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string
}

// CacheEnabled reports whether the Redis latest cache should be used.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// LoadConfig loads configuration from environment variables.
// With no arguments it reads .env if present; named env files must exist.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		// Don't fail if .env doesn't exist (allow pure env vars)
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file(s) %s: %w", strings.Join(envFiles, ", "), err)
	}

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Storage
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite))
	cfg.DBPath = getEnv("DB_PATH", "./data/spotstore.db")
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")
	cfg.PostgresSchema = getEnv("POSTGRES_SCHEMA", "alpaca")

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set when STORE_DRIVER=postgres")
		}
		if cfg.PostgresSchema == "" {
			errs = append(errs, "POSTGRES_SCHEMA must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.StoreDriver))
	}

	cfg.PostgresMaxOpenConns, err = getEnvAsIntRequired("POSTGRES_MAX_OPEN_CONNS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POSTGRES_MAX_OPEN_CONNS: %v", err))
	} else if cfg.PostgresMaxOpenConns <= 0 {
		errs = append(errs, "POSTGRES_MAX_OPEN_CONNS must be positive")
	}

	// Tables
	cfg.BarInterval, err = domain.ParseInterval(getEnv("BAR_INTERVAL", "1h"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BAR_INTERVAL: %v", err))
	}
	cfg.LatestInterval, err = domain.ParseInterval(getEnv("LATEST_INTERVAL", "1d"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LATEST_INTERVAL: %v", err))
	}

	cfg.SourceName = getEnv("SOURCE_NAME", "alpaca")
	if err := domain.CheckLength("source", cfg.SourceName); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SOURCE_NAME: %v", err))
	}

	// Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsIntRequired("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	} else if cfg.RedisDB < 0 {
		errs = append(errs, "REDIS_DB cannot be negative")
	}

	ttlSeconds, err := getEnvAsIntRequired("REDIS_TTL_SECONDS", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_TTL_SECONDS: %v", err))
	} else if ttlSeconds < 0 {
		errs = append(errs, "REDIS_TTL_SECONDS cannot be negative")
	}
	cfg.RedisTTL = time.Duration(ttlSeconds) * time.Second

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// Package config provides configuration management for the intent scheduler.
// It loads settings from environment variables with sensible defaults and
// validates them so the service refuses to start with an unsafe setup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - LOG_FILE: Log file path; logs go to stdout when empty
//   - METRICS_ENABLED: Expose /metrics (default: true)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./intent_scheduler.db)
//   - POSTGRES_HOST, POSTGRES_PORT (5432), POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE (disable)
//   - DB_MAX_OPEN_CONNS: Connection pool size (default: 10)
//
// Redis Configuration (distributed rate limiting; disabled when REDIS_ADDRESS is empty):
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB (0), REDIS_POOL_SIZE (10)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT: Requests per window per caller (default: 100)
//   - RATE_LIMIT_WINDOW: Window length (default: 60s)
//
// Scheduling Engine:
//   - LEASE_DURATION: How long a claim is honored (default: 5m)
//
// Durations accept Go syntax plus whole days and weeks ("1d", "2w").
//   - PENDING_LIMIT: Maximum triggers returned by one pending call (default: 100)
//   - MAX_ENABLED_TRIGGERS: Enabled triggers allowed per user (default: 25)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"intent-scheduler/internal/common/utils"
)

// Config holds all configuration values for the intent scheduler. String
// fields hold the raw environment value; Validate checks that numeric and
// duration fields parse.
type Config struct {
	// Application settings
	Port           string
	LogLevel       string
	LogFormat      string
	LogFile        string
	MetricsEnabled bool

	// Database configuration
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	DBMaxOpenConns   string

	// Redis configuration for the distributed rate limiter
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Rate limiting configuration
	RateLimitEnabled bool
	RateLimitDefault string // requests per window
	RateLimitWindow  string // e.g. "60s", "1m"

	// Scheduling engine
	LeaseDuration      string
	PendingLimit       string
	MaxEnabledTriggers string
}

// Load creates a Config from environment variables, falling back to defaults.
// It does not validate; call Validate on the result.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogFile:        getEnv("LOG_FILE", ""),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./intent_scheduler.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "intent_scheduler"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
		DBMaxOpenConns:   getEnv("DB_MAX_OPEN_CONNS", "10"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),

		LeaseDuration:      getEnv("LEASE_DURATION", "5m"),
		PendingLimit:       getEnv("PENDING_LIMIT", "100"),
		MaxEnabledTriggers: getEnv("MAX_ENABLED_TRIGGERS", "25"),
	}
}

// getEnv returns the environment value for key, or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv parses a boolean environment value with strconv.ParseBool,
// returning defaultValue when unset or unparsable.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, formats and cross-field dependencies and
// returns the first problem found.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'console' or 'json'")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.IsPostgres() {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	} else if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required when using SQLite")
	}

	if n, err := strconv.Atoi(c.DBMaxOpenConns); err != nil || n < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be a positive number")
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return fmt.Errorf("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if d, err := utils.ParseDuration(c.RateLimitWindow); err != nil || d <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
	}

	if d, err := utils.ParseDuration(c.LeaseDuration); err != nil || d <= 0 {
		return fmt.Errorf("LEASE_DURATION must be a positive duration (e.g., '5m')")
	}
	if n, err := strconv.Atoi(c.PendingLimit); err != nil || n < 1 {
		return fmt.Errorf("PENDING_LIMIT must be a positive number")
	}
	if n, err := strconv.Atoi(c.MaxEnabledTriggers); err != nil || n < 1 {
		return fmt.Errorf("MAX_ENABLED_TRIGGERS must be a positive number")
	}

	return nil
}

// IsPostgres reports whether DATABASE_TYPE selects PostgreSQL.
func (c *Config) IsPostgres() bool {
	return c.DatabaseType == "postgres" || c.DatabaseType == "postgresql"
}

// Int returns the integer value of a field that Validate has already
// checked, or fallback when it does not parse.
func Int(value string, fallback int) int {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return fallback
}

// Duration returns the duration value of a field that Validate has already
// checked, or fallback when it does not parse.
func Duration(value string, fallback time.Duration) time.Duration {
	if d, err := utils.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

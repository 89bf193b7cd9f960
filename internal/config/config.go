package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	// RedisAddr enables the Redis-backed result cache when non-empty.
	// When empty the service computes everything directly.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ListenAddr string

	// RetentionDays controls how long computed KPI metric and anomaly
	// rows are kept before the retention worker deletes them.
	RetentionDays int

	// CacheTTLSeconds is the TTL applied to cached scorecards, forecasts
	// and insights. Alerts are never served from cache.
	CacheTTLSeconds int

	// ForecastLookbackDays bounds how much history feeds a forecast.
	// Clamped to 90 so per-call cost stays constant.
	ForecastLookbackDays int

	// MaxForecastHorizonDays bounds the forecast horizon. Clamped to 365.
	MaxForecastHorizonDays int

	// SeedTenant, when non-empty, installs the default restaurant KPI set
	// for that tenant at startup if it has no definitions yet.
	SeedTenant string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:              getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:          getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:            os.Getenv("APP_DATABASE_URL"),
		RedisAddr:              os.Getenv("APP_REDIS_ADDR"),
		RedisPassword:          os.Getenv("APP_REDIS_PASSWORD"),
		ListenAddr:             getenv("APP_LISTEN_ADDR", ":8080"),
		RetentionDays:          180,
		CacheTTLSeconds:        300,
		ForecastLookbackDays:   90,
		MaxForecastHorizonDays: 365,
		SeedTenant:             os.Getenv("APP_SEED_TENANT"),
	}

	if v := os.Getenv("APP_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("APP_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.CacheTTLSeconds = secs
		}
	}
	if v := os.Getenv("APP_FORECAST_LOOKBACK_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.ForecastLookbackDays = days
		}
	}
	if cfg.ForecastLookbackDays > 90 {
		cfg.ForecastLookbackDays = 90
	}
	if v := os.Getenv("APP_MAX_FORECAST_HORIZON_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.MaxForecastHorizonDays = days
		}
	}
	if cfg.MaxForecastHorizonDays > 365 {
		cfg.MaxForecastHorizonDays = 365
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

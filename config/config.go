// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port            int
	DatabasePath    string
	EODHDToken      string
	EODHDBaseURL    string
	EODHDRatePerSec int
	CacheTTL        time.Duration
	PolicyFile      string
	RefreshSchedule string // cron spec, empty disables scheduled refreshes
	Symbols         []string
	LogLevel        string
	LogPretty       bool
}

// Load reads configuration from environment variables, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8080),
		DatabasePath:    getEnv("DB_PATH", "fundamentals.db"),
		EODHDToken:      getEnv("EODHD_API_TOKEN", ""),
		EODHDBaseURL:    getEnv("EODHD_BASE_URL", "https://eodhd.com/api/fundamentals"),
		EODHDRatePerSec: getEnvAsInt("EODHD_RATE_PER_SEC", 5),
		CacheTTL:        getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		PolicyFile:      getEnv("POLICY_FILE", ""),
		RefreshSchedule: os.Getenv("REFRESH_SCHEDULE"),
		Symbols:         getEnvAsList("SYMBOLS"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
	}
	if _, set := os.LookupEnv("REFRESH_SCHEDULE"); !set {
		cfg.RefreshSchedule = "@daily"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.EODHDBaseURL == "" {
		return fmt.Errorf("EODHD_BASE_URL is required")
	}
	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

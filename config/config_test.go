package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "EODHD_API_TOKEN", "EODHD_BASE_URL", "EODHD_RATE_PER_SEC",
		"CACHE_TTL", "POLICY_FILE", "SYMBOLS", "LOG_LEVEL", "LOG_PRETTY"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "fundamentals.db", cfg.DatabasePath)
	assert.Equal(t, "https://eodhd.com/api/fundamentals", cfg.EODHDBaseURL)
	assert.Equal(t, 5, cfg.EODHDRatePerSec)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Empty(t, cfg.Symbols)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/f.db")
	t.Setenv("CACHE_TTL", "90m")
	t.Setenv("REFRESH_SCHEDULE", "0 6 * * 1-5")
	t.Setenv("SYMBOLS", " aapl.us, ,msft.us ")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/f.db", cfg.DatabasePath)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "0 6 * * 1-5", cfg.RefreshSchedule)
	assert.Equal(t, []string{"AAPL.US", "MSFT.US"}, cfg.Symbols)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_EmptyScheduleDisablesRefresh(t *testing.T) {
	t.Setenv("REFRESH_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.RefreshSchedule)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, DatabasePath: "x.db", EODHDBaseURL: "http://localhost", RefreshSchedule: "@hourly"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.RefreshSchedule = "every tuesday"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Port = 70000
	assert.Error(t, bad.Validate())

	bad = valid
	bad.DatabasePath = ""
	assert.Error(t, bad.Validate())
}

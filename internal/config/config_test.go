package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 24*time.Hour, cfg.HoldTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, 2*time.Minute, cfg.SweepLockTTL)
	assert.Equal(t, "expo.stands", cfg.Exchange)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE", "Memory")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("HOLD_TTL", "2h")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SWEEP_BATCH_SIZE", "25")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", " https://expo.example , ,https://admin.example")

	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 2*time.Hour, cfg.HoldTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Minute, cfg.SweepLockTTL)
	assert.Equal(t, 25, cfg.SweepBatchSize)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, []string{"https://expo.example", "https://admin.example"}, cfg.CORSOrigins)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HOLD_TTL", "a day")
	t.Setenv("SWEEP_BATCH_SIZE", "many")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg, err := load("")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.HoldTTL)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:          StorePostgres,
			HoldTTL:        24 * time.Hour,
			SweepInterval:  time.Minute,
			SweepBatchSize: 10,
			JWTSecret:      "secret",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"unknown store", func(c *Config) { c.Store = "mongo" }, false},
		{"memory store outside dev mode", func(c *Config) { c.Store = StoreMemory }, false},
		{"memory store in dev mode", func(c *Config) { c.Store, c.DevMode = StoreMemory, true }, true},
		{"interval equals ttl", func(c *Config) { c.SweepInterval = c.HoldTTL }, false},
		{"interval exceeds ttl", func(c *Config) { c.SweepInterval = 48 * time.Hour }, false},
		{"zero ttl", func(c *Config) { c.HoldTTL = 0 }, false},
		{"zero batch", func(c *Config) { c.SweepBatchSize = 0 }, false},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_MemoryStoreNeedsDevMode(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE", "memory")

	_, err := load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEV_MODE")
}

package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv runs the test from an empty directory (no .env) and clears
// every variable loadConfig reads. t.Setenv restores them afterwards.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"ENV_FILE", "APP_ENV", "SERVER_HOST", "SERVER_PORT", "STORE_BACKEND", "DB_URL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_NAMESPACE", "API_TOKEN_HASH",
		"LOG_LEVEL", "LOG_JSON", "LOG_FILE", "LOG_TO_STDOUT",
		"AI_TIMEOUT", "AI_RATE_LIMIT_PER_MINUTE", "AI_RATE_LIMIT_BURST", "ROLLUP_CACHE_TTL",
	} {
		t.Setenv(k, "")
		unsetEnv(t, k)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "localhost:3000", cfg.addr())
	assert.Equal(t, backendMemory, cfg.StoreBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "healthApp", cfg.RedisNamespace)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogToStdout)
	assert.Equal(t, 60*time.Second, cfg.AITimeout)
	assert.Equal(t, 20, cfg.AIRateLimitPerMinute)
	assert.Equal(t, 5, cfg.AIRateLimitBurst)
	assert.Equal(t, 10*time.Minute, cfg.RollUpCacheTTL)
	assert.False(t, cfg.isProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "0")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("AI_TIMEOUT", "15s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, backendRedis, cfg.StoreBackend)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 15*time.Second, cfg.AITimeout)
}

// TestLoadConfig_Production is the only case that switches gin to release mode.
func TestLoadConfig_Production(t *testing.T) {
	isolateEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("API_TOKEN_HASH", "$2a$10$abcdefghijklmnopqrstuu")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.isProduction())
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"port not a number":    {"SERVER_PORT": "http"},
		"port zero":            {"SERVER_PORT": "0"},
		"negative redis db":    {"REDIS_DB": "-1"},
		"bad bool":             {"LOG_JSON": "sometimes"},
		"bad duration":         {"AI_TIMEOUT": "soon"},
		"unknown backend":      {"STORE_BACKEND": "sqlite"},
		"postgres without url": {"STORE_BACKEND": "postgres"},
		"empty namespace":      {"REDIS_NAMESPACE": ""},
		"production no auth":   {"APP_ENV": "production"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENV_FILE", "does-not-exist.env")
	_, err := loadConfig()
	assert.Error(t, err, "an explicit ENV_FILE must exist")
}

func TestGetLevel(t *testing.T) {
	assert.Equal(t, "debug", getLevel("DEBUG").String())
	assert.Equal(t, "warning", getLevel("warn").String())
	assert.Equal(t, "info", getLevel("nonsense").String())
}

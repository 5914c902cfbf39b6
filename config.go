package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything read from the environment at start-up.
type Config struct {
	Env  string
	Host string
	Port int

	StoreBackend string // memory, postgres, or redis
	DBURL        string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string

	APITokenHash string

	LogLevel    string
	LogJSON     bool
	LogFile     string
	LogToStdout bool

	AITimeout            time.Duration
	AIRateLimitPerMinute int
	AIRateLimitBurst     int

	RollUpCacheTTL time.Duration
}

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

// loadConfig reads .env (or ENV_FILE) if present, then the environment.
func loadConfig() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	var err error

	cfg.Env = getEnv("APP_ENV", "local")
	cfg.Host = getEnv("SERVER_HOST", "localhost")
	if cfg.Port, err = parseIntEnv("SERVER_PORT", 3000); err != nil {
		return cfg, err
	}

	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", backendMemory))
	cfg.DBURL = getEnv("DB_URL", "")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = parseNonNegativeIntEnv("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	cfg.RedisNamespace = getEnv("REDIS_NAMESPACE", "healthApp")

	cfg.APITokenHash = getEnv("API_TOKEN_HASH", "")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	if cfg.LogJSON, err = parseBoolEnv("LOG_JSON", false); err != nil {
		return cfg, err
	}
	cfg.LogFile = getEnv("LOG_FILE", "")
	if cfg.LogToStdout, err = parseBoolEnv("LOG_TO_STDOUT", true); err != nil {
		return cfg, err
	}

	if cfg.AITimeout, err = parseDurationEnv("AI_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.AIRateLimitPerMinute, err = parseIntEnv("AI_RATE_LIMIT_PER_MINUTE", 20); err != nil {
		return cfg, err
	}
	if cfg.AIRateLimitBurst, err = parseIntEnv("AI_RATE_LIMIT_BURST", 5); err != nil {
		return cfg, err
	}

	if cfg.RollUpCacheTTL, err = parseDurationEnv("ROLLUP_CACHE_TTL", 10*time.Minute); err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case backendMemory, backendRedis:
	case backendPostgres:
		if c.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: memory, postgres, redis")
	}
	if c.RedisNamespace == "" {
		return fmt.Errorf("REDIS_NAMESPACE must not be empty")
	}
	if c.isProduction() && c.APITokenHash == "" {
		return fmt.Errorf("API_TOKEN_HASH is required in production")
	}
	return nil
}

func (c Config) isProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

func parseNonNegativeIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return parsed, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// loadEnvFile loads ENV_FILE when set, otherwise an optional .env in the
// working directory.
func loadEnvFile() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Package config loads the tracking proxy configuration from the environment
// and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/tracking-proxy/pkg/client"
	"github.com/Sternrassler/tracking-proxy/pkg/logging"
	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port      string           `validate:"required"`
	LogLevel  logging.LogLevel `validate:"required"`
	LogPretty bool

	RedisURL     string
	DatabasePath string `validate:"required"`

	ProviderBaseURL     string        `validate:"required,url"`
	ProviderOfficialURL string        `validate:"omitempty,url"`
	ProviderHost        string        `validate:"required"`
	ProviderTimeout     time.Duration `validate:"gt=0"`
	UserAgent           string        `validate:"required"`

	RetryMaxAttempts int           `validate:"min=1"`
	RetryDelay       time.Duration `validate:"gte=0"`
	RetryBackoff     float64       `validate:"gte=1"`

	CacheTTL      time.Duration `validate:"gt=0"`
	CacheCapacity int           `validate:"min=1"`

	BatchMaxItems    int `validate:"min=1"`
	BatchConcurrency int `validate:"min=1"`

	CORSAllowedOrigins []string
	TrustedProxy       bool
	RequestTimeout     time.Duration `validate:"gte=0"`
	RateLimitPerMinute int           `validate:"gte=0"`
	MonitorSchedule    string
	AdminPassword      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	level, err := logging.ParseLevel(k.String("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Port:      valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:  level,
		LogPretty: parseBool(k.String("LOG_PRETTY")),

		RedisURL:     strings.TrimSpace(k.String("REDIS_URL")),
		DatabasePath: valueOrDefault(k.String("DATABASE_PATH"), "data/tracking.db"),

		ProviderBaseURL:     valueOrDefault(k.String("PROVIDER_BASE_URL"), "http://localhost:8787/api/tracking"),
		ProviderOfficialURL: valueOrDefault(k.String("PROVIDER_OFFICIAL_URL"), "http://cbel.pgs-log.com/edi/pubTracking"),
		ProviderHost:        valueOrDefault(k.String("PROVIDER_HOST"), "cbel.pgs-log.com"),
		ProviderTimeout:     parseDuration(k.String("PROVIDER_TIMEOUT"), "30s"),
		UserAgent:           valueOrDefault(k.String("USER_AGENT"), "tracking-proxy/1.0"),

		RetryMaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryDelay:       parseDuration(k.String("RETRY_DELAY"), "1s"),
		RetryBackoff:     parseFloat(k.String("RETRY_BACKOFF"), 1.5),

		CacheTTL:      parseDuration(k.String("CACHE_TTL"), "5m"),
		CacheCapacity: parseInt(k.String("CACHE_CAPACITY"), 1000),

		BatchMaxItems:    parseInt(k.String("BATCH_MAX_ITEMS"), 50),
		BatchConcurrency: parseInt(k.String("BATCH_CONCURRENCY"), 5),

		CORSAllowedOrigins: splitAndTrim(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),
		TrustedProxy:       parseBool(k.String("TRUSTED_PROXY")),
		RequestTimeout:     parseDuration(k.String("REQUEST_TIMEOUT"), "2m"),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 60),
		MonitorSchedule:    valueOrDefault(k.String("MONITOR_SCHEDULE"), "@every 5m"),
		AdminPassword:      k.String("ADMIN_PASSWORD"),
	}

	// PROVIDER_OFFICIAL_URL=off disables the fallback
	if strings.EqualFold(cfg.ProviderOfficialURL, "off") {
		cfg.ProviderOfficialURL = ""
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ClientConfig returns the provider client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.ProviderBaseURL)
	cfg.OfficialURL = c.ProviderOfficialURL
	cfg.Host = c.ProviderHost
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.ProviderTimeout
	cfg.Retry.MaxAttempts = c.RetryMaxAttempts
	cfg.Retry.Delay = c.RetryDelay
	cfg.Retry.Backoff = c.RetryBackoff
	return cfg
}

// TrackingConfig returns the executor configuration without collaborators.
func (c *Config) TrackingConfig() tracking.Config {
	cfg := tracking.DefaultConfig()
	cfg.CacheTTL = c.CacheTTL
	cfg.CacheCapacity = c.CacheCapacity
	cfg.MaxBatchSize = c.BatchMaxItems
	cfg.BatchConcurrency = c.BatchConcurrency
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RedisOptions accepts a redis:// or rediss:// URL or a plain host:port
// address, the two forms REDIS_URL may take.
func RedisOptions(redisURL string) (*redis.Options, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	if !strings.Contains(redisURL, "://") {
		return &redis.Options{Addr: redisURL}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opts, nil
}

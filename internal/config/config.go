package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	LogFormat string
	LogLevel  string

	// Pricing tunables, minor currency units.
	SpecialHandlingFee int64
	TierFloors         []int64

	// Referral defaults applied at issuance.
	ReferralCreditAmount int64
	ReferralMaxUses      int
	ReferralCodeTTL      time.Duration

	BusinessName  string
	BusinessPhone string
	BookingURL    string

	QueuePrefix       string
	WorkerConcurrency int
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		SpecialHandlingFee: parseMoney(k.String("SPECIAL_HANDLING_FEE"), 2_500),
		TierFloors:         parseMoneyList(k.String("TIER_FLOORS")),

		ReferralCreditAmount: parseMoney(k.String("REFERRAL_CREDIT_AMOUNT"), 2_500),
		ReferralMaxUses:      parseInt(k.String("REFERRAL_MAX_USES"), 1),
		ReferralCodeTTL:      parseDuration(k.String("REFERRAL_CODE_TTL"), "0"),

		BusinessName:  valueOrDefault(k.String("BUSINESS_NAME"), "HaulPoint Junk Removal"),
		BusinessPhone: k.String("BUSINESS_PHONE"),
		BookingURL:    valueOrDefault(k.String("BOOKING_URL"), "https://haulpoint.example/booking"),

		QueuePrefix:       valueOrDefault(k.String("QUEUE_PREFIX"), "haulpoint"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 4),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if len(cfg.TierFloors) != 0 && len(cfg.TierFloors) != 4 {
		return nil, errors.New("TIER_FLOORS must list exactly four values")
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
		return value
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
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseMoney reads a minor-unit integer amount.
func parseMoney(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseMoneyList(value string) []int64 {
	parts := splitAndTrim(value)
	if len(parts) == 0 {
		return nil
	}
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
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
	var firstErr error
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

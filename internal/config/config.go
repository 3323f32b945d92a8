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
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string
	RunMigrations      bool

	RazorpayKeyID     string
	RazorpayKeySecret string
	WebhookSecret     string

	Pricing  PricingConfig
	Checkout CheckoutConfig
	Cache    CacheConfig
	Breaker  BreakerConfig
	Worker   WorkerConfig
	Obs      ObsConfig

	CouponRateLimit  string
	IdempotencyTTL   time.Duration
	QueueConcurrency int
}

// PricingConfig controls tax and currency for every priced response.
type PricingConfig struct {
	TaxRateBps int
	Currency   string
}

// CheckoutConfig controls checkout session lifetime and redirects.
type CheckoutConfig struct {
	SessionTTL      time.Duration
	LockTTL         time.Duration
	FrontendBaseURL string
}

// CacheConfig holds TTLs for Redis-backed read caches.
type CacheConfig struct {
	CourseTTL  time.Duration
	ProfileTTL time.Duration
}

// BreakerConfig tunes the circuit breaker guarding the payment gateway.
type BreakerConfig struct {
	FailureRate    float64
	MinSamples     int
	HalfOpenProbes int
	CoolDown       time.Duration
}

// WorkerConfig controls background jobs.
type WorkerConfig struct {
	RelayEvery      time.Duration
	RelayBatch      int
	ExpireEvery     time.Duration
	PendingOrderTTL time.Duration
	RetryBase       time.Duration
}

// ObsConfig holds logging and tracing settings.
type ObsConfig struct {
	LogFormat    string
	LogLevel     string
	TracingOn    bool
	OTLPEndpoint string
	ServiceName  string
	SampleRatio  float64
}

// Load reads configuration from environment variables and optional .env files.
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
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "scholaro"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS")),
		RazorpayKeyID:      strings.TrimSpace(k.String("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:  strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),
		WebhookSecret:      strings.TrimSpace(k.String("RAZORPAY_WEBHOOK_SECRET")),
		Pricing: PricingConfig{
			TaxRateBps: parseInt(k.String("PRICING_TAX_RATE_BPS"), 300),
			Currency:   strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		},
		Checkout: CheckoutConfig{
			SessionTTL:      parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
			LockTTL:         parseDuration(k.String("LOCK_TTL"), "10s"),
			FrontendBaseURL: strings.TrimRight(valueOrDefault(k.String("FRONTEND_BASE_URL"), "http://localhost:5173"), "/"),
		},
		Cache: CacheConfig{
			CourseTTL:  parseDuration(k.String("COURSE_CACHE_TTL"), "5m"),
			ProfileTTL: parseDuration(k.String("PROFILE_CACHE_TTL"), "15m"),
		},
		Breaker: BreakerConfig{
			FailureRate:    parseFloat(k.String("BREAKER_FAILURE_RATE"), 0.5),
			MinSamples:     parseInt(k.String("BREAKER_MIN_SAMPLES"), 10),
			HalfOpenProbes: parseInt(k.String("BREAKER_HALF_OPEN_PROBES"), 1),
			CoolDown:       parseDuration(k.String("BREAKER_COOLDOWN"), "15s"),
		},
		Worker: WorkerConfig{
			RelayEvery:      parseDuration(k.String("OUTBOX_RELAY_INTERVAL"), "30s"),
			RelayBatch:      parseInt(k.String("OUTBOX_RELAY_BATCH"), 100),
			ExpireEvery:     parseDuration(k.String("ORDER_EXPIRY_INTERVAL"), "5m"),
			PendingOrderTTL: parseDuration(k.String("PENDING_ORDER_TTL"), "30m"),
			RetryBase:       parseDuration(k.String("QUEUE_RETRY_BASE"), "5s"),
		},
		Obs: ObsConfig{
			LogFormat:    valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:     valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			TracingOn:    parseBool(k.String("OBS_TRACING_ENABLED")),
			OTLPEndpoint: k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  valueOrDefault(k.String("OTEL_SERVICE_NAME"), "scholaro-api"),
			SampleRatio:  parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 1),
		},
		CouponRateLimit:  valueOrDefault(k.String("COUPON_RATE_LIMIT"), "20-M"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		QueueConcurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}
	if cfg.Pricing.TaxRateBps < 0 || cfg.Pricing.TaxRateBps > 10000 {
		return nil, fmt.Errorf("PRICING_TAX_RATE_BPS out of range: %d", cfg.Pricing.TaxRateBps)
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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

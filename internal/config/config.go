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

	"github.com/noah-isme/toko-wenjoy/internal/obs"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	PublicBaseURL      string

	WenjoyAcquirerID    string
	WenjoyState         string
	WenjoyAPIKey        string
	WenjoyPrivateAPIKey string
	WenjoyReplayTTL     time.Duration
	CallbackBodyLimit   int64

	CheckoutLockTTL   time.Duration
	CheckoutRateLimit string

	MigrateOnStart bool
	MigrationsPath string

	QueueName        string
	QueueConcurrency int
	QueueMaxRetry    int
	NotifyEmailFrom  string

	Obs Obs
}

// Obs groups the observability toggles.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   []float64
	EnablePrometheus bool
	EnableTracing    bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
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
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "toko-wenjoy"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "storefront"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),

		WenjoyAcquirerID:    valueOrDefault(k.String("WENJOY_ACQUIRER_ID"), payment.ProviderWenjoy),
		WenjoyState:         valueOrDefault(k.String("WENJOY_STATE"), "test"),
		WenjoyAPIKey:        strings.TrimSpace(k.String("WENJOY_API_KEY")),
		WenjoyPrivateAPIKey: strings.TrimSpace(k.String("WENJOY_PRIVATE_API_KEY")),
		WenjoyReplayTTL:     parseDuration(k.String("WENJOY_REPLAY_TTL"), "24h"),
		CallbackBodyLimit:   parseInt64(k.String("WENJOY_CALLBACK_BODY_LIMIT"), 64<<10),

		CheckoutLockTTL:   parseDuration(k.String("CHECKOUT_LOCK_TTL"), "10s"),
		CheckoutRateLimit: valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "60-M"),

		MigrateOnStart: parseBool(k.String("MIGRATE_ON_START")),
		MigrationsPath: strings.TrimSpace(k.String("MIGRATIONS_PATH")),

		QueueName:        valueOrDefault(k.String("QUEUE_NAME"), "payments"),
		QueueConcurrency: int(parseInt64(k.String("QUEUE_CONCURRENCY"), 5)),
		QueueMaxRetry:    int(parseInt64(k.String("QUEUE_MAX_RETRY"), 10)),
		NotifyEmailFrom:  valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@toko.local"),

		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
			MetricsBuckets:   obs.ParseBucketsCSV(k.String("OBS_METRICS_BUCKETS_MS")),
			EnablePrometheus: parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("PUBLIC_BASE_URL is required")
	}
	if cfg.WenjoyAPIKey == "" || cfg.WenjoyPrivateAPIKey == "" {
		return nil, errors.New("WENJOY_API_KEY and WENJOY_PRIVATE_API_KEY are required")
	}
	if strings.Contains(cfg.WenjoyAPIKey, "~") || strings.Contains(cfg.WenjoyPrivateAPIKey, "~") {
		return nil, errors.New("wenjoy keys must not contain '~'")
	}

	return cfg, nil
}

// Acquirer returns the configured Wenjoy acquirer.
func (c *Config) Acquirer() payment.Acquirer {
	return payment.Acquirer{
		ID:            c.WenjoyAcquirerID,
		State:         c.WenjoyState,
		APIKey:        c.WenjoyAPIKey,
		PrivateAPIKey: c.WenjoyPrivateAPIKey,
		BaseURL:       c.PublicBaseURL,
	}
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
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
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

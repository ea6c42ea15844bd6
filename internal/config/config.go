package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// FailureThreshold is the number of consecutive failures that opens a circuit breaker.
	FailureThreshold = 3

	// ResetTimeout is how long an open breaker waits before allowing a probe call.
	ResetTimeout = 30 * time.Second

	// RingCapacity is the number of response times each breaker remembers.
	RingCapacity = 100

	// MaxRetries is the number of additional attempts after the first payment call.
	MaxRetries = 2

	// RetryBaseDelay is the initial backoff delay between payment attempts.
	RetryBaseDelay = 500 * time.Millisecond

	// RetryMaxDelay caps the backoff delay between payment attempts.
	RetryMaxDelay = 5 * time.Second

	// RetryMultiplier grows the backoff delay between attempts.
	RetryMultiplier = 2.0

	// RetryJitter is the randomization factor applied to each backoff delay.
	RetryJitter = 0.10

	// PaymentTimeout is the per-call timeout for processor payment requests.
	PaymentTimeout = 10 * time.Second

	// HealthTimeout is the per-probe timeout for processor health checks.
	HealthTimeout = 3 * time.Second

	// PollInterval is the minimum interval between health probes per processor.
	PollInterval = 5 * time.Second

	// MetricsWindowSize is the number of request outcomes the metrics ring retains.
	MetricsWindowSize = 1000

	// ThroughputWindow is the sliding window for throughput calculation.
	ThroughputWindow = 60 * time.Second

	// AuditCapacity is the number of audit entries retained per replica.
	AuditCapacity = 1000

	// DBMinConns and DBMaxConns bound the postgres connection pool.
	DBMinConns = 5
	DBMaxConns = 25

	// DBConnectTimeout bounds the initial connection handshake.
	DBConnectTimeout = 2 * time.Second

	// DBQueryTimeout bounds individual ledger queries.
	DBQueryTimeout = 30 * time.Second

	// DBIdleTimeout is how long an idle pooled connection survives.
	DBIdleTimeout = 30 * time.Second
)

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSL      bool
}

// DSN renders the config as a postgres connection string.
func (c DBConfig) DSN() string {
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

// Config holds the runtime configuration loaded from the environment.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DB       DBConfig
	RedisURL string

	DefaultProcessorURL  string
	FallbackProcessorURL string

	SimulatePayments bool
	P99Threshold     time.Duration
	CacheTTL         time.Duration
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	return Config{
		Port:     envOr("PORT", "3000"),
		Env:      envOr("NODE_ENV", "production"),
		LogLevel: envOr("LOG_LEVEL", "info"),
		DB: DBConfig{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "5432"),
			Name:     envOr("DB_NAME", "payments"),
			User:     envOr("DB_USER", "postgres"),
			Password: envOr("DB_PASSWORD", "postgres"),
			SSL:      envBool("DB_SSL", false),
		},
		RedisURL:             envOr("REDIS_URL", "redis://localhost:6379"),
		DefaultProcessorURL:  envOr("PROCESSOR_DEFAULT_URL", "http://payment-processor-default:8080"),
		FallbackProcessorURL: envOr("PROCESSOR_FALLBACK_URL", "http://payment-processor-fallback:8080"),
		SimulatePayments:     envBool("SIMULATE_PAYMENTS", false),
		P99Threshold:         time.Duration(envInt("P99_THRESHOLD", 1000)) * time.Millisecond,
		CacheTTL:             time.Duration(envInt("CACHE_TTL", 300)) * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

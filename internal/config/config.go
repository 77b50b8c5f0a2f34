package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Billing  BillingConfig
	Chat     ChatConfig
	TopUp    TopUpConfig
	Presence PresenceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the optional audit stream. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	QueueSize  int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	BootstrapStaffUser    string
	BootstrapStaffPass    string
}

// BillingConfig holds the metering rate and ticker cadence.
type BillingConfig struct {
	PricePerHour int64
	TickMillis   int
}

// ChatConfig tunes the message relay.
type ChatConfig struct {
	DedupWindowSeconds int
	RateLimit          int
	RateWindowSeconds  int
	PreviewLength      int
	HistoryLimit       int
}

// TopUpConfig holds request-creation limits.
type TopUpConfig struct {
	MinAmount int64
}

// PresenceConfig configures the stale session sweeper.
type PresenceConfig struct {
	SweepSchedule string
	SendQueueSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	pricePerHour, err := strconv.ParseInt(getEnv("BILLING_PRICE_PER_HOUR", "5000"), 10, 64)
	if err != nil || pricePerHour <= 0 {
		return nil, fmt.Errorf("invalid BILLING_PRICE_PER_HOUR: %q", os.Getenv("BILLING_PRICE_PER_HOUR"))
	}

	minTopUp, err := strconv.ParseInt(getEnv("TOPUP_MIN_AMOUNT", "10000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TOPUP_MIN_AMOUNT: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "netcafe-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "netcafe.audit"),
			QueueSize:  getEnvAsInt("KAFKA_AUDIT_QUEUE_SIZE", 1024),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 720),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapStaffUser:    getEnv("BOOTSTRAP_STAFF_USERNAME", "admin"),
			BootstrapStaffPass:    os.Getenv("BOOTSTRAP_STAFF_PASSWORD"),
		},
		Billing: BillingConfig{
			PricePerHour: pricePerHour,
			TickMillis:   getEnvAsInt("BILLING_TICK_MILLIS", 1000),
		},
		Chat: ChatConfig{
			DedupWindowSeconds: getEnvAsInt("CHAT_DEDUP_WINDOW_SECONDS", 2),
			RateLimit:          getEnvAsInt("CHAT_RATE_LIMIT", 20),
			RateWindowSeconds:  getEnvAsInt("CHAT_RATE_WINDOW_SECONDS", 10),
			PreviewLength:      getEnvAsInt("CHAT_PREVIEW_LENGTH", 60),
			HistoryLimit:       getEnvAsInt("CHAT_HISTORY_LIMIT", 200),
		},
		TopUp: TopUpConfig{
			MinAmount: minTopUp,
		},
		Presence: PresenceConfig{
			SweepSchedule: getEnv("PRESENCE_SWEEP_SCHEDULE", "@every 1m"),
			SendQueueSize: getEnvAsInt("PRESENCE_SEND_QUEUE_SIZE", 64),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TickInterval returns the billing ticker period.
func (b BillingConfig) TickInterval() time.Duration {
	if b.TickMillis <= 0 {
		return time.Second
	}
	return time.Duration(b.TickMillis) * time.Millisecond
}

// DedupWindow returns the trailing window used for duplicate send detection.
func (c ChatConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

// RateWindow returns the send rate limiting window.
func (c ChatConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// Enabled reports whether audit events are forwarded to Kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

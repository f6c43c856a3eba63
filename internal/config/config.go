package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Salla     SallaConfig
	Sender    SenderConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
}

// ObservabilityConfig drives logging, tracing and the OTel meter provider.
type ObservabilityConfig struct {
	LogLevel           string
	LogFormat          string
	OTelEnabled        bool
	OTLPEndpoint       string
	OTLPProtocol       string
	SamplingRatio      float64
	SlowQueryThreshold time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SallaConfig struct {
	APIBaseURL     string
	OAuthBaseURL   string
	ClientID       string
	ClientSecret   string
	WebhookSecret  string
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

type SenderConfig struct {
	Provider    string
	WebhookURL  string
	WebhookAuth string
	Timeout     time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPSubject  string
}

type SchedulerConfig struct {
	Enabled        bool
	RunInterval    time.Duration
	MaxConcurrency int
	TenantTimeout  time.Duration
	RunGuardTTL    time.Duration
}

type RateLimitConfig struct {
	TriggerRate  float64
	TriggerBurst int
}

const (
	DBTypePostgres = "postgres"
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
	DBTypeMemory   = "memory"
)

const (
	SenderProviderNoOp    = "noop"
	SenderProviderWebhook = "webhook"
	SenderProviderSMTP    = "smtp"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "recoverly"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		Observability: ObservabilityConfig{
			LogLevel:           strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:          strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTelEnabled:        getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OTLPProtocol:       strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio:      getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQueryThreshold: getenvDuration("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", DBTypePostgres)),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "recoverly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Salla: SallaConfig{
			APIBaseURL:     strings.TrimRight(getenv("SALLA_API_BASE_URL", "https://api.salla.dev/admin/v2"), "/"),
			OAuthBaseURL:   strings.TrimRight(getenv("SALLA_OAUTH_BASE_URL", "https://accounts.salla.sa"), "/"),
			ClientID:       strings.TrimSpace(getenv("SALLA_CLIENT_ID", "")),
			ClientSecret:   strings.TrimSpace(getenv("SALLA_CLIENT_SECRET", "")),
			WebhookSecret:  strings.TrimSpace(getenv("SALLA_WEBHOOK_SECRET", "")),
			RequestTimeout: getenvDuration("SALLA_REQUEST_TIMEOUT", 15*time.Second),
			RatePerSecond:  getenvFloat("SALLA_RATE_PER_SECOND", 2),
			RateBurst:      getenvInt("SALLA_RATE_BURST", 4),
		},
		Sender: SenderConfig{
			Provider:    strings.ToLower(getenv("SENDER_PROVIDER", SenderProviderNoOp)),
			WebhookURL:  strings.TrimSpace(getenv("SENDER_WEBHOOK_URL", "")),
			WebhookAuth: strings.TrimSpace(getenv("SENDER_WEBHOOK_TOKEN", "")),
			Timeout:     getenvDuration("SENDER_TIMEOUT", 10*time.Second),

			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@recoverly.local"),
			SMTPSubject:  getenv("SMTP_SUBJECT", "You left something in your cart"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:    getenvDuration("SCHEDULER_RUN_INTERVAL", 5*time.Minute),
			MaxConcurrency: getenvInt("SCHEDULER_MAX_CONCURRENCY", 4),
			TenantTimeout:  getenvDuration("SCHEDULER_TENANT_TIMEOUT", 2*time.Minute),
			RunGuardTTL:    getenvDuration("SCHEDULER_RUN_GUARD_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			TriggerRate:  getenvFloat("TRIGGER_RATE_PER_SECOND", 0.2),
			TriggerBurst: getenvInt("TRIGGER_RATE_BURST", 3),
		},
	}

	return cfg
}

// IsMemory reports whether the process runs on the in-memory store.
func (c Config) IsMemory() bool {
	return c.DBType == DBTypeMemory
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

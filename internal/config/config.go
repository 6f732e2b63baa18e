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
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Logger        LoggerConfig
	Auth          AuthConfig
	Policy        PolicyConfig
	Integration   IntegrationConfig
	Notification  NotificationConfig
	Observability ObservabilityConfig
	Bootstrap     BootstrapConfig
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

// RedisConfig holds Redis connection values. An empty Addr disables the
// ticket read cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig tunes the ticket read cache.
type CacheConfig struct {
	TicketTTLSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// PolicyConfig carries the identity allow-lists consulted by the access
// policy. Both lists hold usernames, matched case-insensitively.
type PolicyConfig struct {
	ApproverUsernames []string
	CreatorUsernames  []string
}

// IntegrationConfig configures the SAP creation bypass. An empty shared
// secret disables the endpoint outright.
type IntegrationConfig struct {
	SharedSecret      string
	SubmitterUsername string
	SubmitterEmail    string
}

// NotificationConfig holds outbound notification settings.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
	QueueSize  int
	Workers    int
}

// ObservabilityConfig controls the metrics listener.
type ObservabilityConfig struct {
	MetricsAddr string
}

// BootstrapConfig seeds the initial manager account. Leaving the
// username empty skips admin seeding entirely.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-lifecycle-service"),
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
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TicketTTLSeconds: getEnvAsInt("CACHE_TICKET_TTL_SECONDS", 300),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Policy: PolicyConfig{
			ApproverUsernames: getEnvAsList("POLICY_APPROVER_USERNAMES"),
			CreatorUsernames:  getEnvAsList("POLICY_CREATOR_USERNAMES"),
		},
		Integration: IntegrationConfig{
			SharedSecret:      os.Getenv("INTEGRATION_SHARED_SECRET"),
			SubmitterUsername: getEnv("INTEGRATION_SUBMITTER_USERNAME", "sap.integration"),
			SubmitterEmail:    getEnv("INTEGRATION_SUBMITTER_EMAIL", "sap-integration@devdesk.local"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", ""),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:  getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:    getEnvAsInt("NOTIFY_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			MetricsAddr: getEnv("METRICS_ADDR", ":9100"),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: os.Getenv("BOOTSTRAP_ADMIN_USERNAME"),
			AdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", "admin@devdesk.local"),
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

// TicketTTL returns the cache TTL duration.
func (c CacheConfig) TicketTTL() time.Duration {
	if c.TicketTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TicketTTLSeconds) * time.Second
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
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

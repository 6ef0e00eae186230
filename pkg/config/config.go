package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv       string `validate:"oneof=development staging production test"`
	LogLevel     string `validate:"oneof=debug info warn error"`
	HTTPAddr     string
	PublicOrigin string

	// Database
	DatabaseURL    string `validate:"required_if=AppEnv production"`
	DatabaseDriver string `validate:"omitempty,oneof=auto postgres postgresql sqlite"`
	SQLitePath     string

	// Cache
	RedisURL              string
	CacheProductsTTL      time.Duration `validate:"gt=0s"`
	CacheUserAccessTTL    time.Duration `validate:"gt=0s"`
	CacheMemorySize       int           `validate:"gt=0"`
	CachePushInvalidation bool

	// RabbitMQ
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration `validate:"gt=0s"`
	OutboxBatchSize        int           `validate:"gt=0"`
	OutboxMaxRetries       int           `validate:"gt=0"`
	OutboxStatsInterval    time.Duration `validate:"gt=0s"`
	OutboxRetentionDays    int           `validate:"gte=0"`
	OutboxCleanupInterval  time.Duration `validate:"gt=0s"`
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string

	// Payment processor
	StripeAPIKey         string `validate:"required_if=AppEnv production"`
	StripeWebhookSecret  string `validate:"required_if=AppEnv production"`
	StripeDefaultPriceID string
	StripeAPIBaseURL     string

	// Identity provider
	AuthJWTSecret   string `validate:"required_if=AppEnv production"`
	AuthJWTIssuer   string
	AuthJWTAudience string

	// Video CDN
	CloudflareAccountID  string
	CloudflareAPIToken   string
	StreamCustomerCode   string
	StreamSigningKeyID   string
	StreamSigningKey     string
	StreamTokenTTL       time.Duration `validate:"gt=0s"`
	CloudflareAPIBaseURL string

	// Circuit breaker
	BreakerFailureThreshold int `validate:"gte=1"`
	BreakerTimeout          time.Duration

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		HTTPAddr:     getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		PublicOrigin: strings.TrimRight(getEnv("PUBLIC_ORIGIN", "http://localhost:3000"), "/"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "auto"),
		SQLitePath:     getEnv("SQLITE_PATH", ""),

		RedisURL:              getEnv("REDIS_URL", ""),
		CacheProductsTTL:      getDurationEnv("CACHE_PRODUCTS_TTL", time.Hour),
		CacheUserAccessTTL:    getDurationEnv("CACHE_USER_ACCESS_TTL", 2*time.Minute),
		CacheMemorySize:       getIntEnv("CACHE_MEMORY_SIZE", 1024),
		CachePushInvalidation: getBoolEnv("CACHE_PUSH_INVALIDATION", false),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", false),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		StripeAPIKey:         getEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeDefaultPriceID: getEnv("STRIPE_DEFAULT_PRICE_ID", ""),
		StripeAPIBaseURL:     getEnv("STRIPE_API_BASE_URL", ""),

		AuthJWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTIssuer:   getEnv("AUTH_JWT_ISSUER", ""),
		AuthJWTAudience: getEnv("AUTH_JWT_AUDIENCE", "authenticated"),

		CloudflareAccountID:  getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		CloudflareAPIToken:   getEnv("CLOUDFLARE_API_TOKEN", ""),
		StreamCustomerCode:   getEnv("CLOUDFLARE_STREAM_CUSTOMER_CODE", ""),
		StreamSigningKeyID:   getEnv("CLOUDFLARE_STREAM_KEY_ID", ""),
		StreamSigningKey:     getEnv("CLOUDFLARE_STREAM_SIGNING_KEY", ""),
		StreamTokenTTL:       getDurationEnv("STREAM_TOKEN_TTL", time.Hour),
		CloudflareAPIBaseURL: getEnv("CLOUDFLARE_API_BASE_URL", ""),

		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerTimeout:          getDurationEnv("BREAKER_TIMEOUT", 30*time.Second),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges, and that production has its secrets and a
// database URL.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_if":
			problems = append(problems, fe.Field()+" is required in "+c.AppEnv)
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			problems = append(problems, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesRedis reports whether a Redis cache is configured.
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

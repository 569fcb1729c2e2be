package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	HTTP          ServerConfig
	MySQL         MySQLConfig
	Cache         CacheConfig
	Log           LogConfig
	Stripe        StripeConfig
	Robokassa     RobokassaConfig
	Subscriptions SubscriptionsConfig
	Jobs          JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type CacheConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

type StripeConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

type RobokassaConfig struct {
	Password2 string
}

type SubscriptionsConfig struct {
	MaxFailedPayments   int32
	GracePeriodDays     int
	EntitlementCacheTTL time.Duration
	ProStatusCacheTTL   time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ExpireSweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "subscriptions-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Cache: CacheConfig{
			Addr: getEnv("CACHE_ADDR", "localhost:6379"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
		},
		Robokassa: RobokassaConfig{
			Password2: getEnv("ROBOKASSA_PASSWORD2", ""),
		},
		Subscriptions: SubscriptionsConfig{
			MaxFailedPayments:   int32(getIntEnv("SUBSCRIPTIONS_MAX_FAILED_PAYMENTS", 3)),
			GracePeriodDays:     getIntEnv("SUBSCRIPTIONS_GRACE_PERIOD_DAYS", 3),
			EntitlementCacheTTL: getMinutesEnv("SUBSCRIPTIONS_ENTITLEMENT_CACHE_TTL_MINUTES", 5*time.Minute),
			ProStatusCacheTTL:   getMinutesEnv("SUBSCRIPTIONS_PRO_STATUS_CACHE_TTL_MINUTES", 2*time.Minute),
			JobBatchSize:        int32(getIntEnv("SUBSCRIPTIONS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ExpireSweepInterval: getMinutesEnv("SUBSCRIPTIONS_EXPIRE_SWEEP_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

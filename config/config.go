package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Commerce          CommerceConfig
	Paynow            PaynowConfig
	PayPal            PayPalConfig
	Stripe            StripeConfig
	Payments          PaymentsConfig
	Checkout          CheckoutConfig
	Jobs              JobsConfig
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

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type CommerceConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type PaynowConfig struct {
	IntegrationID  string
	IntegrationKey string
	BaseURL        string
	MobileMethod   string
	HTTPTimeout    time.Duration
}

type PayPalConfig struct {
	ClientID    string
	Secret      string
	BaseURL     string
	HTTPTimeout time.Duration
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type PaymentsConfig struct {
	DefaultCurrency     string
	ClaimRetryWait      time.Duration
	MaxPollAttempts     int32
	PendingCheckoutTTL  time.Duration
	PendingPurgeGrace   time.Duration
	ReconcileStaleAfter time.Duration
	SyncMaxAttempts     int32
	SyncRetryInterval   time.Duration
	JobBatchSize        int32
}

type CheckoutConfig struct {
	PublicBaseURL      string
	SuccessRedirectURL string
	FailureRedirectURL string
}

type JobsConfig struct {
	ReconcileInterval    time.Duration
	SyncDispatchInterval time.Duration
	PurgePendingInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	commerceBaseURL := os.Getenv("COMMERCE_BASE_URL")
	if commerceBaseURL == "" {
		return nil, errors.New("COMMERCE_BASE_URL environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "checkout-service"),
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
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Commerce: CommerceConfig{
			BaseURL:     commerceBaseURL,
			APIKey:      getEnv("COMMERCE_API_KEY", ""),
			HTTPTimeout: getSecondsEnv("COMMERCE_HTTP_TIMEOUT_SECONDS", 15*time.Second),
		},
		Paynow: PaynowConfig{
			IntegrationID:  getEnv("PAYNOW_INTEGRATION_ID", ""),
			IntegrationKey: getEnv("PAYNOW_INTEGRATION_KEY", ""),
			BaseURL:        getEnv("PAYNOW_BASE_URL", ""),
			MobileMethod:   getEnv("PAYNOW_MOBILE_METHOD", "ecocash"),
			HTTPTimeout:    getSecondsEnv("PAYNOW_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		PayPal: PayPalConfig{
			ClientID:    getEnv("PAYPAL_CLIENT_ID", ""),
			Secret:      getEnv("PAYPAL_SECRET", ""),
			BaseURL:     getEnv("PAYPAL_BASE_URL", ""),
			HTTPTimeout: getSecondsEnv("PAYPAL_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			DefaultCurrency:     getEnv("PAYMENTS_DEFAULT_CURRENCY", "USD"),
			ClaimRetryWait:      getSecondsEnv("PAYMENTS_CLAIM_RETRY_WAIT_SECONDS", 2*time.Second),
			MaxPollAttempts:     int32(getIntEnv("PAYMENTS_MAX_POLL_ATTEMPTS", 60)),
			PendingCheckoutTTL:  getMinutesEnv("PAYMENTS_PENDING_CHECKOUT_TTL_MINUTES", 60*time.Minute),
			PendingPurgeGrace:   getMinutesEnv("PAYMENTS_PENDING_PURGE_GRACE_MINUTES", 24*time.Hour),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			SyncMaxAttempts:     int32(getIntEnv("PAYMENTS_SYNC_MAX_ATTEMPTS", 10)),
			SyncRetryInterval:   getMinutesEnv("PAYMENTS_SYNC_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Checkout: CheckoutConfig{
			PublicBaseURL:      getEnv("CHECKOUT_PUBLIC_BASE_URL", ""),
			SuccessRedirectURL: getEnv("CHECKOUT_SUCCESS_REDIRECT_URL", "/checkout/success"),
			FailureRedirectURL: getEnv("CHECKOUT_FAILURE_REDIRECT_URL", "/checkout/failed"),
		},
		Jobs: JobsConfig{
			ReconcileInterval:    getMinutesEnv("JOBS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			SyncDispatchInterval: getMinutesEnv("JOBS_SYNC_DISPATCH_INTERVAL_MINUTES", time.Minute),
			PurgePendingInterval: getMinutesEnv("JOBS_PURGE_PENDING_INTERVAL_MINUTES", 30*time.Minute),
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

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

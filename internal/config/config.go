package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	MonCash  ProviderConfig
	NatCash  ProviderConfig
	Stripe   StripeConfig
	Workers  WorkerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
	// BaseURL is the public URL of this gateway; provider callbacks and
	// hosted checkout links are built from it
	BaseURL string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// ProviderConfig holds OAuth2 processor credentials (MonCash, NatCash)
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	GatewayURL   string
}

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// WorkerConfig holds queue worker concurrency settings
type WorkerConfig struct {
	PaymentConcurrency int
	WebhookConcurrency int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			Env:     getEnv("SERVER_ENV", "development"),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "dhecash"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-in-production"),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		MonCash: ProviderConfig{
			ClientID:     getEnv("MONCASH_CLIENT_ID", ""),
			ClientSecret: getEnv("MONCASH_CLIENT_SECRET", ""),
			BaseURL:      getEnv("MONCASH_BASE_URL", "https://sandbox.moncashbutton.digicelgroup.com"),
			GatewayURL:   getEnv("MONCASH_GATEWAY_URL", "https://sandbox.moncashbutton.digicelgroup.com"),
		},
		NatCash: ProviderConfig{
			ClientID:     getEnv("NATCASH_CLIENT_ID", ""),
			ClientSecret: getEnv("NATCASH_CLIENT_SECRET", ""),
			BaseURL:      getEnv("NATCASH_BASE_URL", "https://api.natcash.natcom.com.ht"),
			GatewayURL:   getEnv("NATCASH_GATEWAY_URL", "https://pay.natcash.natcom.com.ht"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
		},
		Workers: WorkerConfig{
			PaymentConcurrency: getEnvAsInt("PAYMENT_WORKER_CONCURRENCY", 5),
			WebhookConcurrency: getEnvAsInt("WEBHOOK_WORKER_CONCURRENCY", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

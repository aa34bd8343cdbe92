package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the payment orchestrator
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Notification collaborator
	NotificationServiceURL string

	// Monnify (primary provider)
	MonnifyBaseURL       string
	MonnifyAPIKey        string
	MonnifySecretKey     string
	MonnifyContractCode  string
	MonnifyWebhookSecret string

	// Stripe (secondary card processor)
	StripeSecretKey string
}

// Load reads configuration from the environment, with a .env file picked up
// when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		DatabaseURL:            buildDatabaseURL(),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NATSURL:                getEnv("NATS_URL", "nats://localhost:4222"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8090"),
		MonnifyBaseURL:         getEnv("MONNIFY_BASE_URL", "https://sandbox.monnify.com/api/v1"),
		MonnifyAPIKey:          os.Getenv("MONNIFY_API_KEY"),
		MonnifySecretKey:       os.Getenv("MONNIFY_SECRET_KEY"),
		MonnifyContractCode:    os.Getenv("MONNIFY_CONTRACT_CODE"),
		MonnifyWebhookSecret:   os.Getenv("MONNIFY_WEBHOOK_SECRET"),
		StripeSecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
	}
}

// buildDatabaseURL constructs the database URL from individual components
func buildDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "password")
	dbname := getEnv("DB_NAME", "payments")
	sslmode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

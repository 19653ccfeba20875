package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
	Port       string
	BaseURL    string

	RedisAddr     string
	RedisPassword string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string

	GoogleClientID string
	GoogleSecret   string
	GoogleRedirect string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Multicard (карты UZS)
	MulticardBaseURL   string
	MulticardAppID     string
	MulticardSecret    string
	MulticardStoreID   string
	MulticardCallback  string
	PaymentReturnURL   string
	PaymentPendingTTL  time.Duration
	RabbitMQURL        string
	PaymentEventsQueue string

	UniversityRankingURL string

	AdminEmail    string
	AdminPassword string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ttl, err := time.ParseDuration(getenvOrDefault("PAYMENT_PENDING_TTL", "24h"))
	if err != nil {
		log.Printf("invalid PAYMENT_PENDING_TTL, using 24h: %v", err)
		ttl = 24 * time.Hour
	}

	return &Config{
		DBHost:               os.Getenv("DB_HOST"),
		DBPort:               getenvOrDefault("DB_PORT", "5432"),
		DBUser:               os.Getenv("DB_USER"),
		DBPassword:           os.Getenv("DB_PASSWORD"),
		DBName:               os.Getenv("DB_NAME"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		Port:                 getenvOrDefault("PORT", "8080"),
		BaseURL:              getenvOrDefault("BASE_URL", "http://localhost:8080"),
		RedisAddr:            getenvOrDefault("REDIS_ADDR", fmt.Sprintf("%s:6379", os.Getenv("DB_HOST"))),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		SMTPHost:             os.Getenv("SMTP_HOST"),
		SMTPPort:             getenvOrDefault("SMTP_PORT", "587"),
		SMTPUser:             os.Getenv("SMTP_USER"),
		SMTPPass:             os.Getenv("SMTP_PASS"),
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleSecret:         os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirect:       os.Getenv("GOOGLE_REDIRECT_URI"),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		MulticardBaseURL:     getenvOrDefault("MULTICARD_BASE_URL", "https://dev-mesh.multicard.uz"),
		MulticardAppID:       os.Getenv("MULTICARD_APPLICATION_ID"),
		MulticardSecret:      os.Getenv("MULTICARD_SECRET"),
		MulticardStoreID:     os.Getenv("MULTICARD_STORE_ID"),
		MulticardCallback:    getenvOrDefault("MULTICARD_CALLBACK_URL", "http://localhost:8080/api/payments/multicard/callback"),
		PaymentReturnURL:     getenvOrDefault("PAYMENT_RETURN_URL", "http://localhost:3000/payment/return"),
		PaymentPendingTTL:    ttl,
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		PaymentEventsQueue:   getenvOrDefault("PAYMENT_EVENTS_QUEUE", "payment_events"),
		UniversityRankingURL: os.Getenv("UNIVERSITY_RANKING_URL"),
		AdminEmail:           os.Getenv("ADMIN_EMAIL"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
	}
}

// DSN для gorm.io/driver/postgres
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// getenvOrDefault returns the environment variable value if set, otherwise returns def
func getenvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

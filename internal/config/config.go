package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Booking rules
	Booking BookingConfig

	// Payment verification configuration
	Payment PaymentConfig

	// Redis configuration (idempotency cache)
	Redis RedisConfig

	// Kafka configuration (domain events)
	Kafka KafkaConfig

	// Plan catalog configuration
	Catalog CatalogConfig

	// Cron configuration
	Cron CronConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	Timezone    string // marketplace time zone used for "today" checks
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BookingConfig holds booking validation limits
type BookingConfig struct {
	MaxPartySize int
}

// PaymentConfig holds payment verification settings
type PaymentConfig struct {
	ProviderCurrency string             // currency the payment provider captures in
	ExchangeRates    map[string]float64 // "FROM:TO" -> multiplier
	AmountTolerance  float64
}

// RedisConfig holds the idempotency cache connection
type RedisConfig struct {
	URL            string // empty = in-memory store
	IdempotencyTTL time.Duration
}

// KafkaConfig holds the domain event publisher settings
type KafkaConfig struct {
	Brokers      []string // empty = events are only logged
	Topic        string
	Compression  string // gzip, snappy, lz4, zstd
	BatchTimeout time.Duration
	MaxAttempts  int
}

// CatalogConfig selects where plans are read from
type CatalogConfig struct {
	PlanFile string // empty = plans table
}

// CronConfig holds background job schedules
type CronConfig struct {
	ReconciliationSchedule string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	rates, err := ParseExchangeRates(getEnv("EXCHANGE_RATES", "DOP:USD=0.0172413793"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Timezone:    getEnv("TIMEZONE", "America/Santo_Domingo"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Booking: BookingConfig{
			MaxPartySize: getEnvAsInt("MAX_PARTY_SIZE", 50),
		},
		Payment: PaymentConfig{
			ProviderCurrency: strings.ToUpper(getEnv("PAYMENT_PROVIDER_CURRENCY", "USD")),
			ExchangeRates:    rates,
			AmountTolerance:  getEnvAsFloat("AMOUNT_TOLERANCE", 0.01),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			IdempotencyTTL: time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:        getEnv("KAFKA_TOPIC", "marketplace.events"),
			Compression:  strings.ToLower(getEnv("KAFKA_COMPRESSION", "snappy")),
			BatchTimeout: time.Duration(getEnvAsInt("KAFKA_BATCH_TIMEOUT_MS", 50)) * time.Millisecond,
			MaxAttempts:  getEnvAsInt("KAFKA_MAX_ATTEMPTS", 5),
		},
		Catalog: CatalogConfig{
			PlanFile: getEnv("PLAN_CATALOG_FILE", ""),
		},
		Cron: CronConfig{
			ReconciliationSchedule: getEnv("RECONCILIATION_SCHEDULE", "0 0 * * * *"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.MaxPartySize < 1 {
		return fmt.Errorf("MAX_PARTY_SIZE must be at least 1")
	}

	if len(c.Payment.ProviderCurrency) != 3 {
		return fmt.Errorf("PAYMENT_PROVIDER_CURRENCY must be a 3-letter code, got %q", c.Payment.ProviderCurrency)
	}

	if c.Payment.AmountTolerance <= 0 {
		return fmt.Errorf("AMOUNT_TOLERANCE must be positive")
	}

	switch c.Kafka.Compression {
	case "", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("KAFKA_COMPRESSION must be one of gzip, snappy, lz4, zstd, got %q", c.Kafka.Compression)
	}

	if c.Kafka.MaxAttempts < 0 {
		return fmt.Errorf("KAFKA_MAX_ATTEMPTS must not be negative")
	}

	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Server.Timezone, err)
	}

	return nil
}

// Location returns the marketplace time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseExchangeRates parses "DOP:USD=0.0172,EUR:USD=1.08" into a rate table
func ParseExchangeRates(raw string) (map[string]float64, error) {
	rates := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid exchange rate %q: expected FROM:TO=rate", pair)
		}
		from, to, ok := strings.Cut(key, ":")
		if !ok || len(from) != 3 || len(to) != 3 {
			return nil, fmt.Errorf("invalid exchange rate pair %q", key)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("invalid exchange rate value for %s: %q", key, value)
		}
		rates[strings.ToUpper(from)+":"+strings.ToUpper(to)] = rate
	}
	return rates, nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

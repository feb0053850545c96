package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExchangeRates(t *testing.T) {
	t.Run("Multiple pairs normalized to upper case", func(t *testing.T) {
		rates, err := ParseExchangeRates("dop:usd=0.0172, EUR:USD=1.08")
		require.NoError(t, err)
		assert.InDelta(t, 0.0172, rates["DOP:USD"], 1e-9)
		assert.InDelta(t, 1.08, rates["EUR:USD"], 1e-9)
	})

	t.Run("Empty input yields an empty table", func(t *testing.T) {
		rates, err := ParseExchangeRates("")
		require.NoError(t, err)
		assert.Empty(t, rates)
	})

	invalid := []string{
		"DOPUSD=1",
		"DOP:USD",
		"DOLLAR:USD=1",
		"DOP:USD=abc",
		"DOP:USD=0",
		"DOP:USD=-2",
	}
	for _, raw := range invalid {
		t.Run("Rejects "+raw, func(t *testing.T) {
			_, err := ParseExchangeRates(raw)
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Timezone: "UTC"},
		Database: DatabaseConfig{URL: "postgres://localhost/tourlink"},
		JWT:      JWTConfig{Secret: "secret"},
		Booking:  BookingConfig{MaxPartySize: 10},
		Payment:  PaymentConfig{ProviderCurrency: "USD", AmountTolerance: 0.01},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database url", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "DATABASE_URL"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "JWT_SECRET"},
		{name: "party size zero", mutate: func(c *Config) { c.Booking.MaxPartySize = 0 }, wantErr: "MAX_PARTY_SIZE"},
		{name: "bad provider currency", mutate: func(c *Config) { c.Payment.ProviderCurrency = "US" }, wantErr: "PAYMENT_PROVIDER_CURRENCY"},
		{name: "zero tolerance", mutate: func(c *Config) { c.Payment.AmountTolerance = 0 }, wantErr: "AMOUNT_TOLERANCE"},
		{name: "unknown kafka compression", mutate: func(c *Config) { c.Kafka.Compression = "brotli" }, wantErr: "KAFKA_COMPRESSION"},
		{name: "negative kafka attempts", mutate: func(c *Config) { c.Kafka.MaxAttempts = -1 }, wantErr: "KAFKA_MAX_ATTEMPTS"},
		{name: "unknown timezone", mutate: func(c *Config) { c.Server.Timezone = "Mars/Olympus" }, wantErr: "TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Reads environment with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tourlink")
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("EXCHANGE_RATES", "DOP:USD=0.02")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
		t.Setenv("JWT_ACCESS_TOKEN_EXPIRY", "600")
		t.Setenv("TIMEZONE", "UTC")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTokenExpiry)
		assert.Equal(t, "USD", cfg.Payment.ProviderCurrency)
		assert.InDelta(t, 0.02, cfg.Payment.ExchangeRates["DOP:USD"], 1e-9)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "snappy", cfg.Kafka.Compression)
		assert.Equal(t, 50*time.Millisecond, cfg.Kafka.BatchTimeout)
		assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
		assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
		assert.Equal(t, time.UTC, cfg.Location())
	})

	t.Run("Missing secret fails", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tourlink")
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("Malformed exchange rates fail", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tourlink")
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("EXCHANGE_RATES", "DOP=1")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Invalid integer falls back to default", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tourlink")
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("MAX_PARTY_SIZE", "many")
		t.Setenv("TIMEZONE", "UTC")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Booking.MaxPartySize)
	})
}

func TestLoad_KafkaTuning(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tourlink")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("KAFKA_COMPRESSION", "ZSTD")
	t.Setenv("KAFKA_BATCH_TIMEOUT_MS", "200")
	t.Setenv("KAFKA_MAX_ATTEMPTS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "zstd", cfg.Kafka.Compression)
	assert.Equal(t, 200*time.Millisecond, cfg.Kafka.BatchTimeout)
	assert.Equal(t, 8, cfg.Kafka.MaxAttempts)
}

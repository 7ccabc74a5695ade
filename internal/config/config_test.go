package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "inr", cfg.Payment.Currency)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Booking.CheckoutTTL)
	assert.Equal(t, "postgres", cfg.Booking.InventoryBackend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Len(t, cfg.Kafka.Topics.All(), 4)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_CURRENCY", "USD")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("CHECKOUT_TTL", "120")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://tickets.example.com/")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Booking.CheckoutTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "https://tickets.example.com", cfg.Payment.PublicBaseURL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList("a:9092, b:9092,"))
	assert.Nil(t, splitList("-"))
	assert.Nil(t, splitList(""))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_TTL_MINUTES", "15")
	t.Setenv("REDIS_ADDR", "-")
	t.Setenv("KAFKA_BROKERS", "-")
	t.Setenv("SELLER_PENDING_STATUSES", "PROCESSING,SHIPPED")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"PROCESSING", "SHIPPED"}, cfg.Business.SellerPendingStatuses)
	assert.True(t, cfg.Business.PaymentConfirmationRequired)
}

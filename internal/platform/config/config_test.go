package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 5*time.Minute, cfg.Notify.BatchWindow)
		assert.Equal(t, 10*time.Minute, cfg.Notify.LeaseTimeout)
		assert.Equal(t, time.Monday, cfg.Scan.DigestWeekday)
		assert.Equal(t, "governance.notifications", cfg.Kafka.NotificationTopic)
		assert.NotEmpty(t, cfg.Server.JWTSigningKey)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
		t.Setenv("DIGEST_WEEKDAY", "Friday")
		t.Setenv("NOTIFY_POLL_INTERVAL", "2s")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, time.Friday, cfg.Scan.DigestWeekday)
		assert.Equal(t, 2*time.Second, cfg.Notify.PollInterval)
	})

	t.Run("production requires signing key", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SIGNING_KEY", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
	})

	t.Run("malformed values are reported", func(t *testing.T) {
		t.Setenv("NOTIFY_BATCH_SIZE", "many")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOTIFY_BATCH_SIZE")
	})
}

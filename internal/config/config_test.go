package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "test-secret")
	dir := writeConfig(t, `
server:
  port: 9090
outbox:
  broker: memory
notification:
  retry_base: 10s
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.HealthPort)
	assert.Equal(t, 10*time.Second, cfg.Notification.RetryBase)
	assert.Equal(t, 5, cfg.Notification.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.PayMongo.SignatureTolerance)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL())
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
}

func TestLoadConfigSecretsOverrideFile(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "from-env")
	t.Setenv("IGABAY_ADYEN_HMAC_KEY", "AABBCC")
	t.Setenv("IGABAY_PAYMONGO_WEBHOOK_SECRET", "whsk_env")
	dir := writeConfig(t, `
jwt:
  secret: from-file
adyen:
  hmac_key: "001122"
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "AABBCC", cfg.Adyen.HMACKey)
	assert.Equal(t, "whsk_env", cfg.PayMongo.WebhookSecret)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "s")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Outbox.Broker)
	assert.Equal(t, "Asia/Manila", cfg.Booking.Timezone)
}

func TestValidate(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "")
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")

	t.Setenv("IGABAY_JWT_SECRET", "s")
	dir := writeConfig(t, `
outbox:
  broker: kafka
`)
	_, err = LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestValidateRejectsZeroIntervals(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "s")
	dir := writeConfig(t, `
reminder:
  poll_interval: 0s
notification:
  retry_interval: 0s
retention:
  interval: -1h
outbox:
  poll_interval: 0s
`)
	_, err := LoadConfig(dir)
	require.Error(t, err)
	for _, key := range []string{"reminder.poll_interval", "notification.retry_interval", "retention.interval", "outbox.poll_interval"} {
		assert.Contains(t, err.Error(), key+" must be positive")
	}
}

func TestBookingLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, BookingConfig{Timezone: "Nowhere/Invalid"}.Location())
}

func TestEncryptionKeyValidation(t *testing.T) {
	t.Setenv("IGABAY_JWT_SECRET", "s")
	t.Setenv("IGABAY_DATABASE_ENCRYPTION_KEY", "abcd")
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.encryption_key")

	key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	t.Setenv("IGABAY_DATABASE_ENCRYPTION_KEY", key)
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, key, cfg.Database.EncryptionKey)
}

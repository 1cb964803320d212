package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("IDENTITY_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "knowledgeshare-identity", cfg.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.ResetTTL)
	assert.Equal(t, 24*time.Hour, cfg.VerificationTTL)
	assert.Equal(t, 8, cfg.MinPasswordLen)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.TLS)
	assert.Empty(t, cfg.SMTP.Host)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IDENTITY_JWT_SECRET", "test-secret")
	t.Setenv("IDENTITY_ADDR", ":9090")
	t.Setenv("IDENTITY_ACCESS_TTL", "5m")
	t.Setenv("IDENTITY_MIN_PASSWORD_LEN", "12")
	t.Setenv("IDENTITY_SMTP_HOST", "smtp.example.com")
	t.Setenv("IDENTITY_SMTP_TLS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 12, cfg.MinPasswordLen)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.False(t, cfg.SMTP.TLS)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("IDENTITY_JWT_SECRET", "test-secret")
	t.Setenv("IDENTITY_ACCESS_TTL", "not-a-duration")
	t.Setenv("IDENTITY_RATE_BURST", "-3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 20, cfg.RateBurst)
}

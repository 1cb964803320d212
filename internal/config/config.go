// Package config loads service configuration from the environment with
// sensible defaults, so TTLs and policy values are wiring, not code.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the api binary needs to start.
type Config struct {
	Addr         string
	PGDSN        string
	JWTSecret    string
	Issuer       string
	BaseURL      string
	StoreTimeout time.Duration

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerificationTTL time.Duration
	MinPasswordLen  int

	RateBurst     int
	RatePerSecond int

	SMTP SMTPConfig
}

// SMTPConfig configures the outbound mailer. An empty Host disables real
// delivery; tokens are then logged for operator-side pickup in dev setups.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Load reads configuration from IDENTITY_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:            envString("IDENTITY_ADDR", ":8080"),
		PGDSN:           envString("IDENTITY_PG_DSN", ""),
		JWTSecret:       envString("IDENTITY_JWT_SECRET", ""),
		Issuer:          envString("IDENTITY_ISSUER", "knowledgeshare-identity"),
		BaseURL:         envString("IDENTITY_BASE_URL", "http://localhost:8080"),
		StoreTimeout:    envDuration("IDENTITY_STORE_TIMEOUT", 5*time.Second),
		AccessTTL:       envDuration("IDENTITY_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      envDuration("IDENTITY_REFRESH_TTL", 30*24*time.Hour),
		ResetTTL:        envDuration("IDENTITY_RESET_TTL", time.Hour),
		VerificationTTL: envDuration("IDENTITY_VERIFICATION_TTL", 24*time.Hour),
		MinPasswordLen:  envInt("IDENTITY_MIN_PASSWORD_LEN", 8),
		RateBurst:       envInt("IDENTITY_RATE_BURST", 20),
		RatePerSecond:   envInt("IDENTITY_RATE_PER_SECOND", 10),
		SMTP: SMTPConfig{
			Host:     envString("IDENTITY_SMTP_HOST", ""),
			Port:     envInt("IDENTITY_SMTP_PORT", 587),
			Username: envString("IDENTITY_SMTP_USERNAME", ""),
			Password: envString("IDENTITY_SMTP_PASSWORD", ""),
			From:     envString("IDENTITY_SMTP_FROM", "no-reply@knowledgeshare.local"),
			FromName: envString("IDENTITY_SMTP_FROM_NAME", "KnowledgeShare"),
			TLS:      envBool("IDENTITY_SMTP_TLS", true),
		},
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: IDENTITY_JWT_SECRET is required")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT_MINUTES", "")
	t.Setenv("DATABASE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 30, cfg.APIRateLimit)
	assert.Equal(t, 60, cfg.VoiceRateLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TIMEOUT_MINUTES", "5")
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("API_RATE_LIMIT", "lots")
	_, err := Load()
	assert.ErrorContains(t, err, "API_RATE_LIMIT")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)
}

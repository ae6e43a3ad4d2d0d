package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "test-secret", cfg.JWTSecret)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 100, cfg.HistorySize)
	assert.Equal(t, 30*time.Second, cfg.StreamKeepAlive)
	assert.Equal(t, 90*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 30*time.Second, cfg.PresenceSweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("HISTORY_SIZE", "25")
	t.Setenv("PRESENCE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25, cfg.HistorySize)
	assert.Equal(t, 2*time.Minute, cfg.PresenceTTL)
}

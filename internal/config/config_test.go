package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXCHANGE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EXCHANGE_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOCK_TIMEOUT_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8001, LockTimeout: time.Second}
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 8001
	cfg.LockTimeout = 0
	assert.Error(t, cfg.Validate())
}

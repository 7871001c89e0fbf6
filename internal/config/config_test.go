package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "file:localsync.db", cfg.DatabaseURL, "default store is a local sqlite file")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/localsync")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "postgres://localhost:5432/localsync", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_RejectsBadPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := LoadConfig()
	assert.Error(t, err)
}

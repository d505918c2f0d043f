package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "s3cret")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"localhost:6379"}, cfg.RedisAddresses)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.RmqURI)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"CHAT_JWT_SECRET=from-file\nCHAT_REDIS_ADDRS=a:1, b:2\nCHAT_HEARTBEAT=5s\nCHAT_HTTP_ADDR=:9000\n",
	), 0o600))
	t.Setenv("CHAT_HTTP_ADDR", ":7000")
	// godotenv never overrides variables that are already set.
	t.Cleanup(func() {
		for _, k := range []string{"CHAT_JWT_SECRET", "CHAT_REDIS_ADDRS", "CHAT_HEARTBEAT"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JwtSecret)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.RedisAddresses)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	t.Setenv("CHAT_HEARTBEAT", "soon")
	t.Setenv("CHAT_REDIS_SENTINEL", "true")

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAT_JWT_SECRET is required")
	assert.Contains(t, err.Error(), "CHAT_HEARTBEAT")
	assert.Contains(t, err.Error(), "CHAT_REDIS_MASTER")
}

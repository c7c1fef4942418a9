package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jmomden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Model.Degree)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
model:
  degree: 3
  family: normal
server:
  port: 9090
  read_timeout: 3s
cache:
  enabled: true
  addr: redis:6379
  ttl: 10m
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Model.Degree)
	assert.Equal(t, "normal", cfg.Model.Family)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "model: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "model:\n  degree: 0\n"))
	assert.ErrorContains(t, err, "degree")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JMOMDEN_HTTP_PORT", "7000")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("PG_DSN", "postgres://u@db/jmomden")
	t.Setenv("JMOMDEN_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "cache:6379", cfg.Cache.Addr)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "postgres://u@db/jmomden", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown family", func(c *Config) { c.Model.Family = "beta" }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }},
		{"cache without addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" }},
		{"database without dsn", func(c *Config) { c.Database.Enabled = true }},
		{"pool size", func(c *Config) { c.Database.MaxOpenConns = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.App.HTTPPort)
	assert.Equal(t, 300, cfg.Security.SignatureTimeoutSeconds)
	assert.Equal(t, 16, cfg.Security.NonceLength)
	assert.True(t, cfg.Security.EnableTimestampValidation)
	assert.True(t, cfg.Security.EnableReplayProtection)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 1000, cfg.RateLimit.DefaultLimit)
	assert.Equal(t, 75, cfg.RateLimit.KeyExpireSeconds)
	assert.Equal(t, 30000, cfg.Proxy.DefaultTimeoutMS)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 5, cfg.CircuitBreaker.WindowMinutes)
	assert.Equal(t, 1, cfg.CircuitBreaker.OpenTimeoutMinutes)
	assert.Equal(t, 15, cfg.CircuitBreaker.KeyExpireMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_SECURITY__NONCE_LENGTH", "24")
	t.Setenv("GATEWAY_APP__HTTP_PORT", "9999")
	t.Setenv("GATEWAY_RATE_LIMIT__DEFAULT_LIMIT", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Security.NonceLength)
	assert.Equal(t, 9999, cfg.App.HTTPPort)
	assert.Equal(t, 50, cfg.RateLimit.DefaultLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, 300, cfg.Security.SignatureTimeoutSeconds)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
app:
  http_port: 8181
security:
  ip_whitelist:
    - 10.0.0.0/8
    - 127.0.0.1
rate_limit:
  default_limit: 5
redis:
  host: redis.internal
  op_timeout: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GATEWAY_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.App.HTTPPort)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Security.IPWhitelist)
	assert.Equal(t, 5, cfg.RateLimit.DefaultLimit)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.OpTimeout)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  http_port: 8181\n"), 0o600))
	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("GATEWAY_APP__HTTP_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.HTTPPort)
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", "/nonexistent/gateway.yaml")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.App.HTTPPort = 0 }},
		{"bad env", func(c *Config) { c.App.Env = "prod" }},
		{"zero nonce length", func(c *Config) { c.Security.NonceLength = 0 }},
		{"bad whitelist entry", func(c *Config) { c.Security.IPWhitelist = []string{"not-an-ip"} }},
		{"ipv6 cidr", func(c *Config) { c.Security.IPWhitelist = []string{"2001:db8::/32"} }},
		{"short master key", func(c *Config) { c.Security.AuthConfigMasterKey = "short" }},
		{"key expire below window", func(c *Config) { c.RateLimit.KeyExpireSeconds = 10 }},
		{"zero proxy timeout", func(c *Config) { c.Proxy.DefaultTimeoutMS = 0 }},
		{"zero breaker threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }},
		{"bad metering mode", func(c *Config) { c.Metering.Mode = "fanout" }},
		{"queue metering without redis", func(c *Config) { c.Metering.Mode = "queue" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "text" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AcceptsGoodWhitelist(t *testing.T) {
	cfg := Default()
	cfg.Security.IPWhitelist = []string{"10.0.0.0/8", "203.0.113.7", "2001:db8::1"}
	assert.NoError(t, cfg.Validate())
}

func TestDecodeMasterKey(t *testing.T) {
	raw32 := "0123456789abcdef0123456789abcdef"
	key, err := DecodeMasterKey(raw32)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = DecodeMasterKey("tiny")
	assert.Error(t, err)
}

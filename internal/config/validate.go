package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for values the gateway cannot run
// with. It is called once at startup; a non-nil error aborts boot.
func (c *Config) Validate() error {
	if c.App.HTTPPort <= 0 || c.App.HTTPPort > 65535 {
		return fmt.Errorf("app.http_port must be in (0, 65535], got %d", c.App.HTTPPort)
	}

	switch c.App.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("app.env must be development, staging or production, got %q", c.App.Env)
	}

	if c.Security.NonceLength <= 0 {
		return fmt.Errorf("security.nonce_length must be positive, got %d", c.Security.NonceLength)
	}
	if c.Security.SignatureTimeoutSeconds <= 0 {
		return fmt.Errorf("security.signature_timeout_seconds must be positive, got %d", c.Security.SignatureTimeoutSeconds)
	}
	for _, entry := range c.Security.IPWhitelist {
		if err := validateWhitelistEntry(entry); err != nil {
			return fmt.Errorf("security.ip_whitelist: %w", err)
		}
	}
	if key := c.Security.AuthConfigMasterKey; key != "" {
		if _, err := DecodeMasterKey(key); err != nil {
			return fmt.Errorf("security.authcfg_master_key: %w", err)
		}
	}

	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	if c.RateLimit.KeyExpireSeconds < c.RateLimit.WindowSeconds {
		return fmt.Errorf("rate_limit.key_expire_seconds (%d) must be >= rate_limit.window_seconds (%d)",
			c.RateLimit.KeyExpireSeconds, c.RateLimit.WindowSeconds)
	}

	if c.Proxy.DefaultTimeoutMS <= 0 {
		return fmt.Errorf("proxy.default_timeout_ms must be positive, got %d", c.Proxy.DefaultTimeoutMS)
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuit_breaker.failure_threshold must be positive, got %d", c.CircuitBreaker.FailureThreshold)
		}
		if c.CircuitBreaker.WindowMinutes <= 0 || c.CircuitBreaker.OpenTimeoutMinutes <= 0 {
			return fmt.Errorf("circuit_breaker window and open timeout must be positive")
		}
	}

	switch c.Metering.Mode {
	case "direct", "queue":
	default:
		return fmt.Errorf("metering.mode must be direct or queue, got %q", c.Metering.Mode)
	}
	if c.Metering.Mode == "queue" && c.Redis.Host == "" {
		return fmt.Errorf("metering.mode=queue requires redis.host")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	return nil
}

// validateWhitelistEntry accepts a literal IP or an IPv4 CIDR.
// IPv6 entries are literal-only, so a parseable address is enough.
func validateWhitelistEntry(entry string) error {
	if entry == "" {
		return fmt.Errorf("empty entry")
	}
	if strings.Contains(entry, "/") {
		ip, _, err := net.ParseCIDR(entry)
		if err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		if ip.To4() == nil {
			return fmt.Errorf("IPv6 CIDR %q not supported, use a literal address", entry)
		}
		return nil
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("invalid IP %q", entry)
	}
	return nil
}

// DecodeMasterKey turns the configured master key into AES key bytes.
// A string of 16, 24 or 32 characters is used as the raw key, even if
// it is also valid base64; any other string is decoded as standard
// base64 and must yield 16, 24 or 32 bytes (44 characters for a
// 32-byte key).
func DecodeMasterKey(s string) ([]byte, error) {
	if keyLenOK(len(s)) {
		return []byte(s), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		if ok := keyLenOK(len(decoded)); ok {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("master key must be 16, 24 or 32 bytes (raw or base64)")
}

func keyLenOK(n int) bool {
	return n == 16 || n == 24 || n == 32
}

package config

import "time"

// Config holds all gateway configuration.
type Config struct {
	App            AppConfig            `koanf:"app"`
	Security       SecurityConfig       `koanf:"security"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
	Quota          QuotaConfig          `koanf:"quota"`
	Proxy          ProxyConfig          `koanf:"proxy"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Filters        FiltersConfig        `koanf:"filters"`
	Redis          RedisConfig          `koanf:"redis"`
	Database       DatabaseConfig       `koanf:"db"`
	Metering       MeteringConfig       `koanf:"metering"`
	Log            LogConfig            `koanf:"log"`
}

// AppConfig holds application settings.
type AppConfig struct {
	Name     string `koanf:"name"`
	Env      string `koanf:"env"` // development, staging, production
	HTTPPort int    `koanf:"http_port"`
}

// SecurityConfig holds signing and admission settings.
type SecurityConfig struct {
	IPWhitelist               []string `koanf:"ip_whitelist"`
	SignatureTimeoutSeconds   int      `koanf:"signature_timeout_seconds"`
	NonceLength               int      `koanf:"nonce_length"`
	EnableTimestampValidation bool     `koanf:"enable_timestamp_validation"`
	EnableReplayProtection    bool     `koanf:"enable_replay_protection"`
	AuthConfigMasterKey       string   `koanf:"authcfg_master_key"`
}

// RateLimitConfig holds the per-consumer sliding window settings plus
// the per-IP edge limit applied before the filter chain.
type RateLimitConfig struct {
	Enabled          bool `koanf:"enabled"`
	WindowSeconds    int  `koanf:"window_seconds"`
	DefaultLimit     int  `koanf:"default_limit"`
	KeyExpireSeconds int  `koanf:"key_expire_seconds"`
	EdgeRPS          int  `koanf:"edge_rps"` // 0 disables the edge limiter
}

// QuotaConfig controls the pre-consume gate.
type QuotaConfig struct {
	// FailOpen admits the request when the quota store itself is
	// unreachable. Default false: a broken quota store yields 503.
	FailOpen bool `koanf:"fail_open"`
}

// ProxyConfig holds upstream invocation settings.
type ProxyConfig struct {
	DefaultTimeoutMS     int  `koanf:"default_timeout_ms"`
	DefaultRetryCount    int  `koanf:"default_retry_count"`
	EnableRequestLogging bool `koanf:"enable_request_logging"`
}

// CircuitBreakerConfig holds the per-upstream breaker settings.
type CircuitBreakerConfig struct {
	Enabled            bool `koanf:"enabled"`
	FailureThreshold   int  `koanf:"failure_threshold"`
	WindowMinutes      int  `koanf:"window_minutes"`
	OpenTimeoutMinutes int  `koanf:"open_timeout_minutes"`
	KeyExpireMinutes   int  `koanf:"key_expire_minutes"`
}

// FiltersConfig toggles individual pipeline filters.
type FiltersConfig struct {
	RequestLogger     bool `koanf:"request_logger"`
	IPGuard           bool `koanf:"ip_guard"`
	Authenticator     bool `koanf:"authenticator"`
	InterfaceResolver bool `koanf:"interface_resolver"`
	RateLimiter       bool `koanf:"rate_limiter"`
	QuotaGate         bool `koanf:"quota_gate"`
}

// RedisConfig holds shared-store connection settings. An empty Host
// selects the in-process store (single-node deployments and tests).
type RedisConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	OpTimeout    time.Duration `koanf:"op_timeout"`
}

// Addr returns the host:port address for the Redis client.
func (c RedisConfig) Addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return addrJoin(host, port)
}

// DatabaseConfig holds the registry database settings.
type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	MaxConns     int32         `koanf:"max_conns"`
	MinConns     int32         `koanf:"min_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
	AutoMigrate  bool          `koanf:"auto_migrate"`
}

// MeteringConfig selects how successful invocations are counted.
type MeteringConfig struct {
	Mode        string `koanf:"mode"` // direct, queue
	Concurrency int    `koanf:"concurrency"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, console
}

// Default returns a Config populated with the documented defaults.
// Load starts from this value, so a missing file or env var never
// leaves a zero where the gateway expects a working setting.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:     "xiaoxin-gateway",
			Env:      "development",
			HTTPPort: 8080,
		},
		Security: SecurityConfig{
			SignatureTimeoutSeconds:   300,
			NonceLength:               16,
			EnableTimestampValidation: true,
			EnableReplayProtection:    true,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			WindowSeconds:    60,
			DefaultLimit:     1000,
			KeyExpireSeconds: 75,
		},
		Proxy: ProxyConfig{
			DefaultTimeoutMS:  30000,
			DefaultRetryCount: 3,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:            true,
			FailureThreshold:   5,
			WindowMinutes:      5,
			OpenTimeoutMinutes: 1,
			KeyExpireMinutes:   15,
		},
		Filters: FiltersConfig{
			RequestLogger:     true,
			IPGuard:           true,
			Authenticator:     true,
			InterfaceResolver: true,
			RateLimiter:       true,
			QuotaGate:         true,
		},
		Redis: RedisConfig{
			Port:        6379,
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
			OpTimeout:   time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:     25,
			MinConns:     5,
			QueryTimeout: 5 * time.Second,
		},
		Metering: MeteringConfig{
			Mode:        "direct",
			Concurrency: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

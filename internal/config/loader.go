// Package config provides file and environment based configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides.
// GATEWAY_SECURITY__NONCE_LENGTH=24 overrides security.nonce_length.
const envPrefix = "GATEWAY_"

// configFileVar names the env var pointing at an optional YAML config file.
const configFileVar = "GATEWAY_CONFIG_FILE"

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables always override file values; both
// override the built-in defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(configFileVar); path != "" {
		if err := loadFromFile(k, path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		return k.Load(file.Provider(path), yaml.Parser())
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// envKeyToPath maps GATEWAY_SECTION__KEY_NAME to section.key_name.
// A double underscore separates nesting levels so that single
// underscores survive inside key names.
func envKeyToPath(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// addrJoin joins a host and numeric port.
func addrJoin(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

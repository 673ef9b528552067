// Package config provides the YAML-based service configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenConfig maps one API bearer token to a user identity.
type TokenConfig struct {
	// Token is the bearer token presented in the Authorization header.
	Token string `yaml:"token" json:"token"`
	// UserID is the identity the token resolves to.
	UserID string `yaml:"user_id" json:"user_id"`
}

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// DatabaseURL is the Postgres connection string. When empty the
	// service runs on the in-memory store.
	DatabaseURL string `yaml:"database_url" json:"database_url"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DigestCron is a cron-style schedule (e.g. "0 7 * * *") for the
	// due-today digest log line. Empty disables the digest.
	DigestCron string `yaml:"digest_cron" json:"digest_cron"`

	// Tokens is the static API token list for the in-memory
	// authenticator.
	Tokens []TokenConfig `yaml:"tokens" json:"tokens"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     "127.0.0.1:8080",
		LogLevel:   "info",
		DigestCron: "",
		Tokens:     []TokenConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.Tokens == nil {
		c.Tokens = []TokenConfig{}
	}
}

// Validate reports configuration that cannot be normalized away.
func (c *Config) Validate() error {
	for i, t := range c.Tokens {
		if t.Token == "" || t.UserID == "" {
			return fmt.Errorf("tokens[%d]: token and user_id are required", i)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600)
// and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Package config holds the dtree service and CLI configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Verify  VerifyConfig  `yaml:"verify"`
	Tree    TreeConfig    `yaml:"tree"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxBatch        int    `yaml:"max_batch"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// VerifyConfig configures verification runs.
type VerifyConfig struct {
	TimeoutTicks int `yaml:"timeout_ticks"`
}

// TreeConfig names the tree programmed at startup.
type TreeConfig struct {
	Path string `yaml:"path"` // Tree file; empty means the built-in 15-node sample
}

// StoreConfig configures the tree library database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ValidLogLevels lists accepted logging.level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "5s",
			MaxBatch:        4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Verify: VerifyConfig{
			TimeoutTicks: 20,
		},
		Store: StoreConfig{
			DatabasePath: "data/dtree.db",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies DTREE_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DTREE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DTREE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("DTREE_TREE"); v != "" {
		c.Tree.Path = v
	}
	if v := os.Getenv("DTREE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DTREE_TIMEOUT_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Verify.TimeoutTicks = n
		}
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging.level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging.format: %s (valid: json, console)", c.Logging.Format)
	}

	if c.Verify.TimeoutTicks < 1 {
		return fmt.Errorf("verify.timeout_ticks must be positive, got %d", c.Verify.TimeoutTicks)
	}

	if c.Server.MaxBatch < 1 {
		return fmt.Errorf("server.max_batch must be positive, got %d", c.Server.MaxBatch)
	}

	for name, d := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// GetReadTimeout returns server.read_timeout, or 10s if unset or invalid.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns server.write_timeout, or 30s if unset or invalid.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 30*time.Second)
}

// GetShutdownTimeout returns server.shutdown_timeout, or 5s if unset or invalid.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads the node configuration from a YAML file with
// environment-variable overrides, and writes the resolved bank code back.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full node configuration.
type Config struct {
	App struct {
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`
	} `yaml:"app"`

	P2P struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		TimeoutSeconds int    `yaml:"timeout_seconds"` // per-session and proxy I/O timeout
	} `yaml:"p2p"`

	Bank struct {
		Code string `yaml:"code"` // written by the identity resolver on startup
	} `yaml:"bank"`

	Storage struct {
		Backend  string `yaml:"backend"` // "postgres" or "memory"
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Database string `yaml:"database"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Dashboard struct {
		Enabled     bool `yaml:"enabled"`
		Port        int  `yaml:"port"`
		EventBuffer int  `yaml:"event_buffer"`
	} `yaml:"dashboard"`
}

// LoadConfig reads the YAML file at path, fills in defaults and applies
// environment overrides. A missing file is not an error; defaults and the
// environment alone configure the node.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// first run; Save will create it
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogDir == "" {
		c.App.LogDir = "logs"
	}
	if c.P2P.Host == "" {
		c.P2P.Host = "0.0.0.0"
	}
	if c.P2P.Port == 0 {
		c.P2P.Port = 65525
	}
	if c.P2P.TimeoutSeconds == 0 {
		c.P2P.TimeoutSeconds = 5
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "postgres"
	}
	if c.Storage.Postgres.Host == "" {
		c.Storage.Postgres.Host = "localhost"
	}
	if c.Storage.Postgres.Port == 0 {
		c.Storage.Postgres.Port = 5432
	}
	if c.Storage.Postgres.Database == "" {
		c.Storage.Postgres.Database = "bank"
	}
	if c.Storage.Postgres.User == "" {
		c.Storage.Postgres.User = "postgres"
	}
	if c.Storage.Postgres.SSLMode == "" {
		c.Storage.Postgres.SSLMode = "disable"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8088
	}
	if c.Dashboard.EventBuffer == 0 {
		c.Dashboard.EventBuffer = 256
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.App.LogDir = v
	}
	if v := os.Getenv("BANK_HOST"); v != "" {
		c.P2P.Host = v
	}
	if v := os.Getenv("BANK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BANK_PORT: %w", err)
		}
		c.P2P.Port = port
	}
	if v := os.Getenv("BANK_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BANK_TIMEOUT_SECONDS: %w", err)
		}
		c.P2P.TimeoutSeconds = secs
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid POSTGRES_PORT: %w", err)
		}
		c.Storage.Postgres.Port = port
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		c.Storage.Postgres.Database = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_SSLMODE"); v != "" {
		c.Storage.Postgres.SSLMode = v
	}
	if v := os.Getenv("DASHBOARD_ENABLED"); v != "" {
		c.Dashboard.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DASHBOARD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DASHBOARD_PORT: %w", err)
		}
		c.Dashboard.Port = port
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.P2P.Port <= 0 || c.P2P.Port > 65535 {
		return fmt.Errorf("invalid p2p port: %d", c.P2P.Port)
	}
	if c.P2P.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.Storage.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", c.Dashboard.Port)
	}
	return nil
}

// Save writes the configuration back to path. Used to persist the bank
// code resolved at startup.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Timeout returns the session/proxy I/O timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.P2P.TimeoutSeconds) * time.Second
}

// PostgresDSN returns the connection string for the postgres backend.
func (c *Config) PostgresDSN() string {
	p := c.Storage.Postgres
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

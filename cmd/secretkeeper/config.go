package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Sessions SessionsConfig `yaml:"sessions"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// StoreConfig selects the account store.  Driver is one of fs, sqlite,
// postgres or datastore.
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	Project   string `yaml:"project"`
	Namespace string `yaml:"namespace"`
}

// SessionsConfig keeps sessions in memory unless RedisURL is set
type SessionsConfig struct {
	Lifetime    time.Duration `yaml:"lifetime"`
	CookieName  string        `yaml:"cookie_name"`
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

type AuthConfig struct {
	StateKey          string         `yaml:"state_key"`
	MinPasswordLength int            `yaml:"min_password_length"`
	Google            ProviderConfig `yaml:"google"`
	Github            ProviderConfig `yaml:"github"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig is used as is when no file is given
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Store:    StoreConfig{Driver: "fs", Path: "./data"},
		Sessions: SessionsConfig{Lifetime: 24 * time.Hour, CookieName: "secretkeeper_session"},
		Auth:     AuthConfig{MinPasswordLength: 1},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads the configuration from a YAML file on top of DefaultConfig.
// Environment variables in the file are expanded.  An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "fs":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the fs driver")
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	case "datastore":
		if c.Store.Project == "" {
			return fmt.Errorf("store.project is required for the datastore driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Sessions.Lifetime <= 0 {
		return fmt.Errorf("sessions.lifetime must be positive")
	}
	return nil
}

// Package config provides YAML-based configuration loading for Telecare.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Telecare configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Relay     RelayConfig     `yaml:"relay"`
	Widget    WidgetConfig    `yaml:"widget"`
	Consent   ConsentConfig   `yaml:"consent"`
	Session   SessionConfig   `yaml:"session"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// APIConfig holds settings for the REST API server.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RelayConfig holds settings for the real-time relay server.
type RelayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WidgetConfig holds settings for the embedded video widget.
type WidgetConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenSecret string `yaml:"token_secret"`
	TokenTTLMin int    `yaml:"token_ttl_min"`
}

// ConsentConfig tunes the end-of-session consent handshake.
type ConsentConfig struct {
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// SessionConfig tunes consultation session behavior.
type SessionConfig struct {
	DefaultDurationMin int `yaml:"default_duration_min"`
}

// JobsConfig holds cron schedules for background jobs.
type JobsConfig struct {
	ReminderSchedule   string `yaml:"reminder_schedule"`
	StaleSweepSchedule string `yaml:"stale_sweep_schedule"`
}

// RateLimitConfig tunes the per-client API rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Secrets may be
// supplied through the environment instead of the file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secret fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("TELECARE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("TELECARE_TOKEN_SECRET"); v != "" {
		c.Widget.TokenSecret = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "telecare"
	}
	if c.API.Port == 0 {
		c.API.Port = 5000
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 4000
	}
	if c.Widget.TokenTTLMin == 0 {
		c.Widget.TokenTTLMin = 120
	}
	if c.Consent.RequestTimeoutSec == 0 {
		c.Consent.RequestTimeoutSec = 60
	}
	if c.Session.DefaultDurationMin == 0 {
		c.Session.DefaultDurationMin = 30
	}
	if c.Jobs.ReminderSchedule == "" {
		c.Jobs.ReminderSchedule = "*/5 * * * *"
	}
	if c.Jobs.StaleSweepSchedule == "" {
		c.Jobs.StaleSweepSchedule = "*/10 * * * *"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Widget.TokenSecret == "" {
		errs = append(errs, "widget.token_secret is required (or TELECARE_TOKEN_SECRET)")
	}
	if c.API.Port == c.Relay.Port {
		errs = append(errs, "api.port and relay.port must differ")
	}
	if c.Consent.RequestTimeoutSec < 0 {
		errs = append(errs, "consent.request_timeout_sec must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RequestTimeout returns the consent timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Consent.RequestTimeoutSec) * time.Second
}

// TokenTTL returns the widget token lifetime as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Widget.TokenTTLMin) * time.Minute
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for the theia client and CLI.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Destination       string        `yaml:"destination"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	RetryLimit        int           `yaml:"retry_limit"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	AutoRenewSession  bool          `yaml:"auto_renew_session"`
	Progress          bool          `yaml:"progress"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for transient API request failures.
// Attempts counts retries on top of the initial request; a negative value
// disables retrying.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults. Credentials are never
// defaulted; they come from the environment, a file, or the caller.
func Default() Config {
	return Config{
		BaseURL:          "https://m2m.cr.usgs.gov/api/api/json/stable/",
		Destination:      "downloads",
		MaxConcurrency:   5,
		RetryLimit:       3,
		RequestTimeout:   30 * time.Second,
		AutoRenewSession: true,
		Retry: RetryConfig{
			Attempts:   1,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	BaseURL           string          `yaml:"base_url"`
	Username          string          `yaml:"username"`
	Password          string          `yaml:"password"`
	Destination       string          `yaml:"destination"`
	MaxConcurrency    int             `yaml:"max_concurrency"`
	RetryLimit        int             `yaml:"retry_limit"`
	RequestTimeout    string          `yaml:"request_timeout"`
	RequestsPerSecond float64         `yaml:"requests_per_second"`
	AutoRenewSession  *bool           `yaml:"auto_renew_session"`
	Progress          bool            `yaml:"progress"`
	Retry             yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Username != "" {
		cfg.Username = yc.Username
	}
	if yc.Password != "" {
		cfg.Password = yc.Password
	}
	if yc.Destination != "" {
		cfg.Destination = yc.Destination
	}
	if yc.MaxConcurrency != 0 {
		cfg.MaxConcurrency = yc.MaxConcurrency
	}
	if yc.RetryLimit != 0 {
		cfg.RetryLimit = yc.RetryLimit
	}
	if yc.RequestTimeout != "" {
		d, err := time.ParseDuration(yc.RequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if yc.RequestsPerSecond != 0 {
		cfg.RequestsPerSecond = yc.RequestsPerSecond
	}
	if yc.AutoRenewSession != nil {
		cfg.AutoRenewSession = *yc.AutoRenewSession
	}
	cfg.Progress = yc.Progress
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the THEIA_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("THEIA_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("THEIA_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("THEIA_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("THEIA_DESTINATION"); v != "" {
		c.Destination = v
	}
	if v := os.Getenv("THEIA_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_MAX_CONCURRENCY: %w", err)
		}
		c.MaxConcurrency = n
	}
	if v := os.Getenv("THEIA_RETRY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_RETRY_LIMIT: %w", err)
		}
		c.RetryLimit = n
	}
	if v := os.Getenv("THEIA_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("THEIA_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse THEIA_REQUESTS_PER_SECOND: %w", err)
		}
		c.RequestsPerSecond = f
	}
	if v := os.Getenv("THEIA_AUTO_RENEW_SESSION"); v != "" {
		c.AutoRenewSession = v == "true" || v == "1"
	}
	if v := os.Getenv("THEIA_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("THEIA_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("THEIA_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("THEIA_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse THEIA_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("config: username and password are required")
	}
	if c.MaxConcurrency <= 0 {
		return errors.New("config: max_concurrency must be positive")
	}
	if c.RetryLimit < 0 {
		return errors.New("config: retry_limit must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	return nil
}

// Override carries explicit overrides applied on top of a Config. Booleans
// are pointers so "set to false" is distinct from "not set".
type Override struct {
	BaseURL           string
	Username          string
	Password          string
	Destination       string
	MaxConcurrency    int
	RetryLimit        int
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	AutoRenewSession  *bool
	Progress          *bool
	Retry             RetryOverride
}

// RetryOverride overrides retry behavior.
type RetryOverride struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Merge applies the set fields of override to c, returning a new Config.
func (c Config) Merge(override Override) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Username != "" {
		c.Username = override.Username
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if override.Destination != "" {
		c.Destination = override.Destination
	}
	if override.MaxConcurrency != 0 {
		c.MaxConcurrency = override.MaxConcurrency
	}
	if override.RetryLimit != 0 {
		c.RetryLimit = override.RetryLimit
	}
	if override.RequestTimeout != 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.RequestsPerSecond != 0 {
		c.RequestsPerSecond = override.RequestsPerSecond
	}
	if override.AutoRenewSession != nil {
		c.AutoRenewSession = *override.AutoRenewSession
	}
	if override.Progress != nil {
		c.Progress = *override.Progress
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

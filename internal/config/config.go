// Package config loads the batch run configuration from YAML.
// Environment variables in ${VAR} form are expanded before parsing, and
// api_keys entries may be literals or secret references (env://, vault://).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osate/dispatch/pkg/provider"
)

// Config represents the complete run configuration.
type Config struct {
	Run       RunConfig        `yaml:"run"`
	Providers []ProviderConfig `yaml:"providers"`
	Vault     VaultConfig      `yaml:"vault"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// RunConfig contains batch-level settings.
type RunConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

// ProviderConfig defines one (provider, model) dispatch target.
type ProviderConfig struct {
	Name              string            `yaml:"name"`
	Type              string            `yaml:"type"`
	Model             string            `yaml:"model"`
	BaseURL           string            `yaml:"base_url"`
	APIKeys           []string          `yaml:"api_keys"` // literals or secret refs
	RequestsPerKey    int               `yaml:"requests_per_key"`
	MaxAttemptsPerKey int               `yaml:"max_attempts_per_key"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
	Headers           map[string]string `yaml:"headers"`
}

// VaultConfig enables the vault:// secret scheme when an address is set.
type VaultConfig struct {
	Address  string `yaml:"address"`
	Token    string `yaml:"token"`
	RoleID   string `yaml:"role_id"`
	SecretID string `yaml:"secret_id"`
	CACert   string `yaml:"ca_cert"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig exposes Prometheus metrics on an HTTP listener while a run
// is in flight.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Concurrency: 4,
			Timeout:     30 * time.Second,
			MaxTokens:   512,
			Temperature: 0.7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	if c.Run.Concurrency < 0 {
		return fmt.Errorf("run.concurrency cannot be negative")
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout cannot be negative")
	}

	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if _, err := provider.ParseType(p.Type); err != nil {
			return fmt.Errorf("provider[%d] %q: %w", i, p.Name, err)
		}
		if p.Model == "" {
			return fmt.Errorf("provider[%d] %q: model is required", i, p.Name)
		}
		if p.RequestsPerKey < 0 {
			return fmt.Errorf("provider[%d] %q: requests_per_key cannot be negative", i, p.Name)
		}
		if p.MaxAttemptsPerKey < 0 {
			return fmt.Errorf("provider[%d] %q: max_attempts_per_key cannot be negative", i, p.Name)
		}
	}
	return nil
}

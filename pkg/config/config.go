// Package config loads lyrad configuration from a YAML file with LYRA_*
// environment overrides. The file is optional; defaults plus environment
// are enough to run against the in-memory store.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// DatabaseURL selects the document store backend. Empty runs in-memory;
	// sqlite: and postgres:// DSNs select the SQL store.
	DatabaseURL string `yaml:"database_url"`
	// Provider names a registered LLM adapter (e.g. "openai", "gemini").
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model when non-empty.
	Model string `yaml:"model"`
	// PromptBudget caps the estimated tokens of chat history included per
	// request. Zero means the provider window is the only limit.
	PromptBudget int `yaml:"prompt_budget"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	// Stdout enables the pretty-printed stdout span exporter.
	Stdout bool `yaml:"stdout"`
}

// Default returns the base configuration the file and environment are
// merged onto.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		Provider: "openai",
	}
}

// Load reads path when non-empty, starts from defaults otherwise, then
// applies LYRA_* overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fromEnv() {
	if v := os.Getenv("LYRA_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("LYRA_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("LYRA_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("LYRA_MODEL"); v != "" {
		c.Model = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Provider == "" {
		errs = append(errs, errors.New("provider is required"))
	}
	if c.PromptBudget < 0 {
		errs = append(errs, fmt.Errorf("prompt_budget must not be negative, got %d", c.PromptBudget))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

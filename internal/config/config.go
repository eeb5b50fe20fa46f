// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Serve   ServeConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// ServeConfig holds dispatch loop configuration.
type ServeConfig struct {
	// BufferBytes sizes the scratch buffer for incoming messages. It
	// must be large enough for any message in the served interface.
	BufferBytes int `envconfig:"SERVE_BUFFER_BYTES" default:"256"`
	// ReplyBytes is the reply capacity demo clients declare.
	ReplyBytes int `envconfig:"SERVE_REPLY_BYTES" default:"256"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Serve: ServeConfig{
			BufferBytes: 256,
			ReplyBytes:  256,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

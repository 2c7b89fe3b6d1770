// Package config loads service configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the automations service configuration.
type Config struct {
	DatabaseURL      string        `env:"DATABASE_URL,required,notEmpty"`
	Port             string        `env:"PORT" envDefault:"8080"`
	ScanInterval     time.Duration `env:"SCAN_INTERVAL" envDefault:"1h"`
	ScanInitialDelay time.Duration `env:"SCAN_INITIAL_DELAY" envDefault:"5s"`
	WebhookTimeout   time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

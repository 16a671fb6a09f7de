/*
Package configs loads and validates the application's configuration.

All settings come from environment variables, parsed with envconfig and then
checked for values that would only fail later at runtime.
*/
package configs

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig contains every configuration parameter the server needs.
type AppConfig struct {
	// Environment selects runtime behavior: "development" or "production".
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Port is the HTTP listen port.
	Port int `envconfig:"PORT" default:"8080"`

	// AllowedOrigins is the comma-separated list of origins permitted for
	// CORS and WebSocket upgrades outside development.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// SinkBuffer is the per-session outbound event queue capacity.
	SinkBuffer int `envconfig:"SINK_BUFFER" default:"256"`
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parse environment configuration: %w", err)
	}

	if cfg.Environment != "development" && cfg.Environment != "production" {
		return nil, fmt.Errorf("invalid ENVIRONMENT %q: must be development or production", cfg.Environment)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (1024-65535)", cfg.Port)
	}

	if cfg.SinkBuffer < 1 {
		return nil, fmt.Errorf("SINK_BUFFER must be at least 1, got %d", cfg.SinkBuffer)
	}

	if cfg.Environment == "production" && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS is required in the production environment")
	}

	return cfg, nil
}

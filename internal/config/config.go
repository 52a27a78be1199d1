// Package config loads cloudkit configuration from defaults, a YAML config
// file, a .env file, CLOUDKIT_* environment variables and runtime overrides,
// in increasing order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// Config is the complete application configuration.
type Config struct {
	// Server configures the HTTP gateway started by "cloudkit serve".
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging configures the server logger and storage client diagnostics.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Storage is the storage client construction configuration.
	Storage storage.Options `mapstructure:"storage" yaml:"storage"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" default:"localhost"`
	Port            int           `mapstructure:"port" yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" default:"5m"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" default:"120s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" default:"10s"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" default:"*"`

	// RateLimit is the sustained request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" default:"50"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst" default:"100"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" default:"info"`
	Format string `mapstructure:"format" yaml:"format" default:"json"`
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit: must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_burst: must be positive when rate limiting is enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format: %q is not json or console", c.Logging.Format)
	}
	return nil
}

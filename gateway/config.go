package gateway

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/c360/streamagent/errors"
)

// Config holds configuration for the HTTP gateway
type Config struct {
	// Bind is the listen address; empty listens on all interfaces.
	Bind string `mapstructure:"bind" json:"bind"`
	Port int    `mapstructure:"port" json:"port"`

	// AllowPut enables asset POST, PUT and DELETE.
	AllowPut bool `mapstructure:"allow_put" json:"allow_put"`

	// MaxStreamInterval bounds the interval a streaming client may request.
	// Zero leaves it unbounded.
	MaxStreamInterval time.Duration `mapstructure:"max_stream_interval" json:"max_stream_interval"`

	// EnableCORS enables CORS headers (requires explicit cors_origins)
	EnableCORS bool `mapstructure:"enable_cors" json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins. Use ["*"] for development only.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins,omitempty"`

	// MaxRequestSize limits asset upload bodies in bytes (default: 1MB)
	MaxRequestSize int64 `mapstructure:"max_request_size" json:"max_request_size"`

	// ShutdownTimeout bounds graceful shutdown of open requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		Port:            5000,
		MaxRequestSize:  1024 * 1024,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate ensures the gateway configuration is valid
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.MaxStreamInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_stream_interval cannot be negative")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	return nil
}

// Address is the host:port the server listens on.
func (c Config) Address() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

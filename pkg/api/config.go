package api

import (
	"time"

	"github.com/sdwan-controller/pkg/config"
)

// HTTP server timeouts used when the config leaves them unset.
const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Config holds the northbound HTTP server settings.
type Config struct {
	Host string
	Port int

	// Zero timeouts are replaced with the defaults above when the
	// server is created.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableCORS bool

	// LogLevel switches Gin into debug mode when set to "debug".
	LogLevel string
}

// FromControllerConfig derives the server config from the controller's
// api section.
func FromControllerConfig(c config.APIConfig, logLevel string) *Config {
	cfg := &Config{
		Host:       c.Host,
		Port:       c.Port,
		EnableCORS: true,
		LogLevel:   logLevel,
	}
	cfg.applyDefaults()
	return cfg
}

// DefaultConfig returns the standalone defaults, used when no
// controller config is wired in.
func DefaultConfig() *Config {
	cfg := &Config{
		Host:       "127.0.0.1",
		Port:       8080,
		EnableCORS: true,
		LogLevel:   "info",
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration. Every field comes from the environment.
type Config struct {
	// Port is the TCP port the websocket listener binds to.
	Port     int    `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MaxUnhandledActions bounds the action queue. Zero means unbounded.
	MaxUnhandledActions int `env:"MAX_UNHANDLED_ACTIONS" envDefault:"10000"`
	EventQueueSize      int `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`

	ClientSendBuffer int           `env:"CLIENT_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE" envDefault:"1048576"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`

	// MessageRateLimit is the sustained number of inbound messages per second
	// allowed per connection. Zero disables rate limiting.
	MessageRateLimit float64 `env:"MESSAGE_RATE_LIMIT" envDefault:"0"`
	MessageRateBurst int     `env:"MESSAGE_RATE_BURST" envDefault:"50"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// TLSCertFile and TLSKeyFile enable wss when both are set.
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUnhandledActions < 0 {
		return fmt.Errorf("MAX_UNHANDLED_ACTIONS must not be negative")
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be at least 1")
	}
	if c.ClientSendBuffer < 1 {
		return fmt.Errorf("CLIENT_SEND_BUFFER must be at least 1")
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be at least 1")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be positive")
	}
	if c.MessageRateLimit < 0 {
		return fmt.Errorf("MESSAGE_RATE_LIMIT must not be negative")
	}
	if c.MessageRateLimit > 0 && c.MessageRateBurst < 1 {
		return fmt.Errorf("MESSAGE_RATE_BURST must be at least 1 when rate limiting is enabled")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// TLSEnabled reports whether the listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

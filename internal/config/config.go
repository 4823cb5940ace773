package config

import (
	"errors"
	"time"
)

// WSConfig holds WebSocket keepalive and delivery settings.
type WSConfig struct {
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// RequireToken makes /ws/:user_id demand a bearer token for the same user.
	RequireToken bool `mapstructure:"require_token" yaml:"require_token"`
}

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath       string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret          string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer          string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience        string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL           time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	CORSAllowOrigins   []string      `mapstructure:"cors_allow_origins" yaml:"cors_allow_origins"`
	MetricsEnabled     bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	WS                 WSConfig      `mapstructure:"ws" yaml:"ws"`
}

// MaxHistoryLimit caps the page size a client may request.
const MaxHistoryLimit = 200

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "quicklink.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "quicklink",
		JWTAudience:        "quicklink",
		TokenTTL:           30 * time.Minute,
		HistoryLimit:       50,
		RateLimitPerMinute: 120,
		CORSAllowOrigins:   []string{"*"},
		MetricsEnabled:     true,
		WS: WSConfig{
			SendBuffer:      32,
			WriteTimeout:    10 * time.Second,
			PingInterval:    30 * time.Second,
			MaxMessageBytes: 4 << 10,
		},
	}
}

// Validate reports the first setting that would make the server misbehave.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("addr must not be empty")
	case c.JWTSecret == "":
		return errors.New("jwt_secret must not be empty")
	case c.TokenTTL <= 0:
		return errors.New("token_ttl must be positive")
	case c.HistoryLimit <= 0 || c.HistoryLimit > MaxHistoryLimit:
		return errors.New("history_limit must be between 1 and 200")
	case c.WS.SendBuffer <= 0:
		return errors.New("ws.send_buffer must be positive")
	case c.WS.WriteTimeout <= 0:
		return errors.New("ws.write_timeout must be positive")
	case c.WS.PingInterval <= 0:
		return errors.New("ws.ping_interval must be positive")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

package config

import (
	"errors"
	"fmt"
	"time"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "change-me"

// Config holds server configuration values.
type Config struct {
	TCPAddr           string        `mapstructure:"tcp_addr" yaml:"tcp_addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	StoreDriver  string `mapstructure:"store_driver" yaml:"store_driver"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	DatabaseURL  string `mapstructure:"database_url" yaml:"database_url"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxLineBytes   int    `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	LinesPerMinute int    `mapstructure:"lines_per_minute" yaml:"lines_per_minute"`
	OutboxSize     int    `mapstructure:"outbox_size" yaml:"outbox_size"`
	WelcomeBanner  string `mapstructure:"welcome_banner" yaml:"welcome_banner"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		TCPAddr:           ":8085",
		HTTPAddr:          ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		StoreDriver:       StoreSQLite,
		DatabasePath:      "linechat.db",
		JWTSecret:         DefaultJWTSecret,
		JWTIssuer:         "linechat",
		JWTAudience:       "linechat-clients",
		JWTTTL:            24 * time.Hour,
		MaxLineBytes:      4096,
		OutboxSize:        64,
		WelcomeBanner:     "Welcome to telnet chat!",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.TCPAddr != "" {
		c.TCPAddr = other.TCPAddr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.StoreDriver != "" {
		c.StoreDriver = other.StoreDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.DatabaseURL != "" {
		c.DatabaseURL = other.DatabaseURL
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.MaxLineBytes != 0 {
		c.MaxLineBytes = other.MaxLineBytes
	}
	if other.LinesPerMinute != 0 {
		c.LinesPerMinute = other.LinesPerMinute
	}
	if other.OutboxSize != 0 {
		c.OutboxSize = other.OutboxSize
	}
	if other.WelcomeBanner != "" {
		c.WelcomeBanner = other.WelcomeBanner
	}
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if c.TCPAddr == "" {
		return errors.New("tcp_addr is required")
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabasePath == "" {
			return errors.New("database_path is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url (or CONNECTION_URL) is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	if c.MaxLineBytes <= 0 {
		return errors.New("max_line_bytes must be positive")
	}
	if c.OutboxSize <= 0 {
		return errors.New("outbox_size must be positive")
	}
	if c.LinesPerMinute < 0 {
		return errors.New("lines_per_minute must not be negative")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	return nil
}

package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Backend  BackendConfig  `mapstructure:"backend" validate:"required"`
	Document DocumentConfig `mapstructure:"document" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeHours int    `mapstructure:"token_lifetime_hours" validate:"required,gt=0"`
}

// BackendConfig contains the diffusion backend connection settings.
type BackendConfig struct {
	URL          string        `mapstructure:"url" validate:"required,url"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
	ClientID     string        `mapstructure:"client_id"`
}

// DocumentConfig contains the dimensions of the in-memory document the
// service operates on when no host editor is attached.
type DocumentConfig struct {
	Width  int `mapstructure:"width" validate:"required,gt=0"`
	Height int `mapstructure:"height" validate:"required,gt=0"`
}

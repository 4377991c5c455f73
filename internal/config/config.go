// Package config provides centralized configuration management for Skylab services.
// It uses envconfig for environment variable loading and validator for validation.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// EnvPrefix is the prefix shared by every Skylab environment variable.
	EnvPrefix = "SKYLAB"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig
	Server        ServerConfig
	Database      DatabaseConfig `envconfig:"DB"`
	Redis         RedisConfig
	Syncer        SyncerConfig
	Observability ObservabilityConfig
	Source        SourceConfig
	Exposure      ExposureConfig
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `default:"skylab"`
	Version         string        `default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Control ControlPlaneConfig
	Data    DataPlaneConfig
}

// Load reads configuration from environment variables with the SKYLAB prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks field rules first, then the rules that span fields, and
// finally the production policy.
//
// Database and Redis are only checked when some of their settings are
// present, because the data plane can run from a flag file alone. Binaries
// that need them call RequireDatabase and RequireRedis.
func (c *Config) Validate() error {
	if err := explain(newValidator().Struct(c)); err != nil {
		return err
	}

	if c.Database.IsSet() {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}
	if c.Redis.IsSet() {
		if err := c.Redis.validate(); err != nil {
			return err
		}
	}
	if c.Exposure.needsRedis() && !c.Redis.IsConfigured() {
		return fmt.Errorf("exposure sink %q requires redis configuration", c.Exposure.Sink)
	}

	if c.App.Environment == EnvironmentProduction {
		return c.validateProduction()
	}
	return nil
}

// RequireDatabase fails when no PostgreSQL connection is configured.
func (c *Config) RequireDatabase() error {
	if !c.Database.IsConfigured() {
		return fmt.Errorf("database configuration is required (set %s_DB_URL or the %s_DB_* components)", EnvPrefix, EnvPrefix)
	}
	return nil
}

// RequireRedis fails when no Redis connection is configured.
func (c *Config) RequireRedis() error {
	if !c.Redis.IsConfigured() {
		return fmt.Errorf("redis configuration is required (set %s_REDIS_URL or %s_REDIS_HOST)", EnvPrefix, EnvPrefix)
	}
	return nil
}

// RequireSource fails when the selected flag source cannot be served.
func (c *Config) RequireSource() error {
	if c.Source.Kind == SourceRedis {
		if err := c.RequireRedis(); err != nil {
			return fmt.Errorf("flag source %q: %w", c.Source.Kind, err)
		}
	}
	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("control_port", c.Server.Control.Port),
		slog.String("data_port", c.Server.Data.Port),
		slog.String("observability_port", c.Observability.Port),
		slog.String("source_kind", c.Source.Kind),
		slog.Bool("exposure_enabled", c.Exposure.Enabled),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
	)
}

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// DatabaseConfig contains PostgreSQL connection settings. Either URL or the
// Host, Port, Name and User components must be given.
type DatabaseConfig struct {
	URL      string
	Host     string `validate:"omitempty,trimmed"`
	Port     string `validate:"omitempty,tcpport"`
	Name     string `validate:"omitempty,trimmed,max=63"`
	User     string `validate:"omitempty,trimmed"`
	Password string
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns        int           `envconfig:"MAX_CONNS" default:"25" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`

	// Startup ping retries, with linear backoff.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`

	// AutoMigrate applies the embedded goose migrations on startup.
	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"true"`
}

// ConnectionString returns URL, or a postgres:// URL assembled from the
// components.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// IsConfigured reports whether enough is set to open a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

// IsSet reports whether any connection setting was provided. A partial
// configuration is still validated so that typos surface at startup.
func (c *DatabaseConfig) IsSet() bool {
	return c.URL != "" || c.Host != "" || c.Port != "" || c.Name != "" || c.User != ""
}

func (c *DatabaseConfig) validate() error {
	if c.URL != "" {
		if err := validatePostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid %s_DB_URL: %w", EnvPrefix, err)
		}
		return nil
	}
	if !c.IsConfigured() {
		return fmt.Errorf("database needs %s_DB_URL or all of %s_DB_HOST, _PORT, _NAME and _USER", EnvPrefix, EnvPrefix)
	}
	return nil
}

// productionErrors applies only to component based connections; a URL
// carries its own credentials and sslmode.
func (c *DatabaseConfig) productionErrors() []error {
	if c.URL != "" {
		return nil
	}
	var errs []error
	if err := checkProductionPassword("database", c.Password); err != nil {
		errs = append(errs, err)
	}
	switch c.SSLMode {
	case "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("database SSL mode %q is not allowed in production, use require, verify-ca or verify-full", c.SSLMode))
	}
	return errs
}

func validatePostgresURL(raw string) error {
	u, err := parseURL(raw, "postgres", "postgresql")
	if err != nil {
		return err
	}
	if u.User.Username() == "" {
		return errors.New("URL has no user")
	}
	if strings.Trim(u.Path, "/") == "" {
		return errors.New("URL has no database name")
	}
	return nil
}

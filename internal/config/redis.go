package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// RedisConfig contains Redis connection and pool settings. Either URL
// (redis:// or rediss://) or Host and Port must be given.
type RedisConfig struct {
	URL        string
	Host       string `validate:"omitempty,trimmed"`
	Port       string `validate:"omitempty,tcpport"`
	Password   string
	DB         int  `default:"0" validate:"min=0,max=15"`
	TLSEnabled bool `envconfig:"TLS_ENABLED" default:"false"`

	PoolSize        int           `envconfig:"POOL_SIZE" default:"50" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"10" validate:"min=0,ltefield=PoolSize"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	// Startup ping retries, with linear backoff.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`
}

// Address returns host:port. A URL, when set, is parsed by the client instead.
func (c *RedisConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsConfigured reports whether enough is set to open a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

// IsSet reports whether any connection setting was provided.
func (c *RedisConfig) IsSet() bool {
	return c.URL != "" || c.Host != "" || c.Port != ""
}

func (c *RedisConfig) validate() error {
	if c.URL != "" {
		if err := validateRedisURL(c.URL); err != nil {
			return fmt.Errorf("invalid %s_REDIS_URL: %w", EnvPrefix, err)
		}
		return nil
	}
	if !c.IsConfigured() {
		return fmt.Errorf("redis needs %s_REDIS_URL or both %s_REDIS_HOST and _PORT", EnvPrefix, EnvPrefix)
	}
	return nil
}

func (c *RedisConfig) productionErrors() []error {
	if c.URL != "" {
		return nil
	}
	var errs []error
	if err := checkProductionPassword("redis", c.Password); err != nil {
		errs = append(errs, err)
	}
	if !c.TLSEnabled {
		errs = append(errs, errors.New("redis TLS is required in production"))
	}
	return errs
}

func validateRedisURL(raw string) error {
	u, err := parseURL(raw, "redis", "rediss")
	if err != nil {
		return err
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return nil
	}
	n, err := strconv.Atoi(db)
	if err != nil {
		return fmt.Errorf("database %q is not a number", db)
	}
	if n < 0 || n > 15 {
		return fmt.Errorf("database %d is outside 0-15", n)
	}
	return nil
}

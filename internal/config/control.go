package config

import (
	"errors"
	"time"
)

// ControlPlaneConfig configures the REST API server.
type ControlPlaneConfig struct {
	Host string `default:"0.0.0.0" validate:"required,trimmed"`
	Port string `default:"8080" validate:"tcpport"`

	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"`

	// APIKeyHash is the hex SHA-256 of the key clients send. Without it the
	// API only runs unauthenticated outside production.
	APIKeyHash string `envconfig:"API_KEY_HASH" validate:"omitempty,len=64,hexadecimal"`

	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE" validate:"required_if=TLSEnabled true"`
	TLSKey     string `envconfig:"TLS_KEY_FILE" validate:"required_if=TLSEnabled true"`
}

func (c *ControlPlaneConfig) productionErrors() []error {
	var errs []error
	if c.APIKeyHash == "" {
		errs = append(errs, errors.New("control plane API key hash is required in production"))
	}
	if !c.TLSEnabled {
		errs = append(errs, errors.New("control plane TLS is required in production"))
	}
	return errs
}

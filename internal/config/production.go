package config

import (
	"errors"
	"fmt"
)

const minProductionPasswordLength = 12

// validateProduction collects every production requirement the
// configuration misses, so an operator sees them all in one failed start.
func (c *Config) validateProduction() error {
	var errs []error

	if c.Database.IsSet() {
		errs = append(errs, c.Database.productionErrors()...)
	}
	if c.Redis.IsSet() {
		errs = append(errs, c.Redis.productionErrors()...)
	}
	errs = append(errs, c.Server.Control.productionErrors()...)
	errs = append(errs, c.Server.Data.productionErrors()...)

	return errors.Join(errs...)
}

func checkProductionPassword(service, password string) error {
	if password == "" {
		return fmt.Errorf("%s password is required in production", service)
	}
	if len(password) < minProductionPasswordLength {
		return fmt.Errorf("%s password must be at least %d characters in production", service, minProductionPasswordLength)
	}
	return nil
}

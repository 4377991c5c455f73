package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaProbe resolves to true once the flags table has been migrated.
const schemaProbe = `SELECT to_regclass('flags') IS NOT NULL`

var errSchemaMissing = errors.New("flags table not found, migrations have not run")

// SchemaChecker marks the control plane ready only when PostgreSQL answers
// and the flag schema is in place. A reachable but empty database is not ready.
type SchemaChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker returns the readiness checker for pool.
func NewHealthChecker(pool *pgxpool.Pool) *SchemaChecker {
	return &SchemaChecker{pool: pool}
}

func (c *SchemaChecker) Name() string { return "postgres" }

func (c *SchemaChecker) Check(ctx context.Context) error {
	if c.pool == nil {
		return errors.New("no database pool")
	}
	var migrated bool
	if err := c.pool.QueryRow(ctx, schemaProbe).Scan(&migrated); err != nil {
		return fmt.Errorf("schema probe failed: %w", err)
	}
	if !migrated {
		return errSchemaMissing
	}
	return nil
}

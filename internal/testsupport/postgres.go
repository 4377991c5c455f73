// Package testsupport starts throwaway PostgreSQL and Redis containers for
// integration tests and reads Prometheus metrics back for assertions.
package testsupport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/database"
)

const (
	postgresImage = "postgres:15-alpine"
	postgresDB    = "skylab_test"
)

// PostgresContainer is a migrated database ready for repository tests.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
}

// Terminate closes the pool, then removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// quietLogger discards fixture logs so test output shows only the test.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartPostgresContainer boots PostgreSQL, connects through the production
// pool constructor and runs the embedded migrations.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(postgresDB),
		postgres.WithUsername("skylab"),
		postgres.WithPassword("skylab-test-password"),
		// The server restarts once after initdb, hence two occurrences.
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(45*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres container: %w", err)
	}

	fail := func(step string, err error) (*PostgresContainer, error) {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("postgres %s: %w", step, err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail("connection string", err)
	}

	dbCfg := &config.DatabaseConfig{
		URL:             dsn,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		PingMaxRetries:  5,
		PingBackoff:     500 * time.Millisecond,
	}
	pool, err := database.NewPostgresPool(ctx, dbCfg)
	if err != nil {
		return fail("pool", err)
	}
	if err := database.Migrate(ctx, pool, quietLogger()); err != nil {
		pool.Close()
		return fail("migrations", err)
	}

	return &PostgresContainer{Container: ctr, DB: pool, ConnectionString: dsn}, nil
}

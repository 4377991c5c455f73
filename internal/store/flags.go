// Package store is the PostgreSQL repository of flag configurations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

var _ FlagRepository = (*PostgresStore)(nil)

// pgUniqueViolation is the SQLSTATE of unique_violation.
const pgUniqueViolation = "23505"

// Flag is a row of the flags table. Config holds the evaluation definition,
// persisted as JSONB; its Key always mirrors the row key.
type Flag struct {
	ID          int64
	Key         string
	Description string
	Config      evaluation.Flag
	Version     int64
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpdateFlagParams describes a partial update. Nil fields are left untouched.
// Version must match the stored version (optimistic locking).
type UpdateFlagParams struct {
	Key         string
	Version     int64
	Description *string
	Config      *evaluation.Flag
}

// FlagRepository is the persistence contract used by the control plane and
// the syncer.
type FlagRepository interface {
	// CreateFlag inserts f and fills ID, Version and timestamps.
	CreateFlag(ctx context.Context, f *Flag) error

	// GetFlagByKey returns the live flag with the given key.
	GetFlagByKey(ctx context.Context, key string) (*Flag, error)

	// ListFlags returns a page of live flags, newest first, and the total count.
	ListFlags(ctx context.Context, limit, offset int) ([]*Flag, int64, error)

	// ListAllFlags returns every live flag ordered by ID ascending.
	ListAllFlags(ctx context.Context) ([]*Flag, error)

	// UpdateFlag applies params and returns the new row.
	UpdateFlag(ctx context.Context, params *UpdateFlagParams) (*Flag, error)

	// DeleteFlag soft deletes the flag and returns its final version.
	DeleteFlag(ctx context.Context, key string, version int64) (int64, error)
}

// Configs extracts the evaluation definitions of rows.
func Configs(rows []*Flag) []evaluation.Flag {
	out := make([]evaluation.Flag, 0, len(rows))
	for _, f := range rows {
		out = append(out, f.Config)
	}
	return out
}

// PostgresStore implements FlagRepository on a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

const flagColumns = `id, key, description, config, version, is_deleted, created_at, updated_at`

// CreateFlag inserts a new flag. A key reused after deletion continues the
// version sequence of its previous incarnation.
func (s *PostgresStore) CreateFlag(ctx context.Context, f *Flag) error {
	f.Config.Key = f.Key
	config, err := json.Marshal(f.Config)
	if err != nil {
		return fmt.Errorf("failed to encode flag config: %w", err)
	}

	query := `
		INSERT INTO flags (key, description, config, version)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(version) FROM flags WHERE key = $1), 0) + 1)
		RETURNING id, version, is_deleted, created_at, updated_at
	`

	err = s.db.QueryRow(ctx, query, f.Key, f.Description, config).
		Scan(&f.ID, &f.Version, &f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("flag with key %q: %w", f.Key, ErrFlagExists)
		}
		return fmt.Errorf("failed to insert flag: %w", err)
	}

	return nil
}

// GetFlagByKey returns the live flag with the given key.
func (s *PostgresStore) GetFlagByKey(ctx context.Context, key string) (*Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE key = $1 AND is_deleted = FALSE`

	f, err := scanFlag(s.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("flag %q: %w", key, ErrFlagNotFound)
		}
		return nil, fmt.Errorf("failed to get flag %q: %w", key, err)
	}
	return f, nil
}

// ListFlags runs a count query and a page query. A window function would
// save a round trip but makes the empty page case awkward.
func (s *PostgresStore) ListFlags(ctx context.Context, limit, offset int) ([]*Flag, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM flags WHERE is_deleted = FALSE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count flags: %w", err)
	}

	if total == 0 {
		return []*Flag{}, 0, nil
	}

	query := `
		SELECT ` + flagColumns + `
		FROM flags
		WHERE is_deleted = FALSE
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	flags, err := collectFlags(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return flags, total, nil
}

// ListAllFlags returns every live flag. The syncer builds snapshots from it.
func (s *PostgresStore) ListAllFlags(ctx context.Context) ([]*Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE is_deleted = FALSE ORDER BY id ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list all flags: %w", err)
	}
	defer rows.Close()

	return collectFlags(rows, 0)
}

// UpdateFlag applies a partial update guarded by the expected version.
func (s *PostgresStore) UpdateFlag(ctx context.Context, params *UpdateFlagParams) (*Flag, error) {
	var config []byte
	if params.Config != nil {
		cfg := *params.Config
		cfg.Key = params.Key
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode flag config: %w", err)
		}
		config = encoded
	}

	query := `
		UPDATE flags
		SET description = COALESCE($3, description),
		    config      = COALESCE($4::jsonb, config),
		    version     = version + 1,
		    updated_at  = NOW()
		WHERE key = $1 AND version = $2 AND is_deleted = FALSE
		RETURNING ` + flagColumns

	f, err := scanFlag(s.db.QueryRow(ctx, query, params.Key, params.Version, params.Description, config))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update flag %q: %w", params.Key, err)
	}
	return nil, s.missError(ctx, params.Key, params.Version)
}

// DeleteFlag marks the flag deleted and bumps its version so that watchers
// see the removal as a change.
func (s *PostgresStore) DeleteFlag(ctx context.Context, key string, version int64) (int64, error) {
	query := `
		UPDATE flags
		SET is_deleted = TRUE, version = version + 1, updated_at = NOW()
		WHERE key = $1 AND version = $2 AND is_deleted = FALSE
		RETURNING version
	`

	var newVersion int64
	err := s.db.QueryRow(ctx, query, key, version).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to delete flag %q: %w", key, err)
	}
	return 0, s.missError(ctx, key, version)
}

// missError tells a missing flag apart from a stale version after a guarded
// write matched no row.
func (s *PostgresStore) missError(ctx context.Context, key string, version int64) error {
	var current int64
	err := s.db.QueryRow(ctx, `SELECT version FROM flags WHERE key = $1 AND is_deleted = FALSE`, key).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("flag %q: %w", key, ErrFlagNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check flag %q: %w", key, err)
	}
	return fmt.Errorf("flag %q at version %d, got %d: %w", key, current, version, ErrVersionConflict)
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f      Flag
		config []byte
	)
	if err := row.Scan(&f.ID, &f.Key, &f.Description, &config, &f.Version, &f.IsDeleted, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &f.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of flag %q: %w", f.Key, err)
	}
	f.Config.Key = f.Key
	return &f, nil
}

func collectFlags(rows pgx.Rows, capacity int) ([]*Flag, error) {
	flags := make([]*Flag, 0, capacity)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag row: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return flags, nil
}

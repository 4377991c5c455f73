package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rafaeljc/skylab/internal/cache"
)

// SnapshotReader is the part of cache.Service the Redis source needs.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context) (int64, []byte, error)
	WatchSnapshots(ctx context.Context, fn func(version int64)) error
}

var _ SnapshotReader = (cache.Service)(nil)

// RedisSource serves the snapshots the syncer publishes to Redis. The
// version is the one assigned by Redis at publish time.
type RedisSource struct {
	reader SnapshotReader
	logger *slog.Logger

	mu      sync.Mutex
	current *Snapshot
}

var (
	_ Source  = (*RedisSource)(nil)
	_ Watcher = (*RedisSource)(nil)
)

// NewRedisSource panics if reader is nil.
func NewRedisSource(reader SnapshotReader, logger *slog.Logger) *RedisSource {
	if reader == nil {
		panic("source: snapshot reader cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{
		reader: reader,
		logger: logger.With("component", "redis_source"),
	}
}

// Fetch reads the latest snapshot. An unchanged version is not decoded again.
func (s *RedisSource) Fetch(ctx context.Context) (*Snapshot, error) {
	version, payload, err := s.reader.GetSnapshot(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("no snapshot published yet: %w", err)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Version == version {
		return s.current, nil
	}

	flags, err := ParseFlags(payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot v%d: %w", version, err)
	}

	s.current = NewSnapshot(version, flags, s.logger)
	return s.current, nil
}

// Watch notifies on every snapshot publication.
func (s *RedisSource) Watch(ctx context.Context, notify func()) error {
	return s.reader.WatchSnapshots(ctx, func(version int64) {
		s.logger.Debug("snapshot published", slog.Int64("version", version))
		notify()
	})
}

// Package syncer implements the background worker that propagates the flag
// set from the Control Plane (PostgreSQL) to the Data Plane (Redis).
//
// Each cycle reads every live flag, drops flags caught in dependency cycles,
// and publishes the ordered set as one versioned snapshot. A cycle whose
// serialized set equals the last published one publishes nothing, so the
// snapshot version only moves when the content does.
package syncer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/observability"
	"github.com/rafaeljc/skylab/internal/source"
	"github.com/rafaeljc/skylab/internal/store"
)

// Service orchestrates the synchronization process.
type Service struct {
	logger *slog.Logger
	config config.SyncerConfig
	repo   store.FlagRepository
	cache  cache.Service

	// Owned by the Run goroutine.
	primed     bool
	lastDigest [sha256.Size]byte
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg config.SyncerConfig, repo store.FlagRepository, cacheSvc cache.Service) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if repo == nil {
		panic("syncer: flag repository cannot be nil")
	}
	if cacheSvc == nil {
		panic("syncer: cache service cannot be nil")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}

	return &Service{
		logger: logger.With("component", "syncer"),
		config: cfg,
		repo:   repo,
		cache:  cacheSvc,
	}
}

// Run starts the syncer loop. It syncs once immediately, then on every tick
// and on every change notification from the control plane. It blocks until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service",
		slog.String("interval", s.config.Interval.String()),
		slog.Int("max_retries", s.config.MaxRetries),
	)

	// Notifications arriving during a cycle collapse into one follow-up cycle.
	trigger := make(chan struct{}, 1)
	go s.watchChanges(ctx, trigger)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sync(ctx); err != nil {
		s.logger.Error("initial sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case <-ticker.C:
		case <-trigger:
		}

		if err := s.Sync(ctx); err != nil {
			// Logged only; the next tick retries.
			s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
		}
	}
}

// Sync performs a single synchronization cycle.
func (s *Service) Sync(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.SyncerJobDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	payload, count, err := s.load(ctx)
	if err != nil {
		observability.SyncerJobsTotal.WithLabelValues("fail").Inc()
		return err
	}

	digest := sha256.Sum256(payload)
	if !s.primed {
		s.prime(ctx)
	}
	if s.primed && digest == s.lastDigest {
		observability.SyncerJobsTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	version, err := s.publish(ctx, payload)
	if err != nil {
		observability.SyncerJobsTotal.WithLabelValues("fail").Inc()
		return err
	}

	s.primed = true
	s.lastDigest = digest
	observability.SyncerJobsTotal.WithLabelValues("published").Inc()
	observability.SyncerPublishedVersion.Set(float64(version))

	s.logger.Info("snapshot published",
		slog.Int64("version", version),
		slog.Int("flags", count),
		slog.String("duration", time.Since(start).String()),
	)
	return nil
}

// load reads the live flags and serializes them in evaluation order.
func (s *Service) load(ctx context.Context) ([]byte, int, error) {
	rows, err := s.repo.ListAllFlags(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list flags: %w", err)
	}

	ordered, dropped := evaluation.SortDroppingCycles(store.Configs(rows), s.logger)
	if len(dropped) > 0 {
		observability.CyclicFlagsDropped.WithLabelValues("syncer").Add(float64(len(dropped)))
	}

	payload, err := source.EncodeFlags(ordered)
	if err != nil {
		return nil, 0, err
	}
	return payload, len(ordered), nil
}

// prime seeds the last digest from the snapshot already in Redis, so a
// restarted syncer does not republish an unchanged set.
func (s *Service) prime(ctx context.Context) {
	_, payload, err := s.cache.GetSnapshot(ctx)
	switch {
	case err == nil:
		s.lastDigest = sha256.Sum256(payload)
		s.primed = true
	case errors.Is(err, cache.ErrSnapshotNotFound):
		// Nothing published yet; the first cycle must publish.
	default:
		s.logger.Warn("failed to read published snapshot", slog.String("error", err.Error()))
	}
}

// publish retries with exponential backoff: BaseRetryDelay, 2x, 4x...
func (s *Service) publish(ctx context.Context, payload []byte) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.config.BaseRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("publish cancelled after %d attempts: %w", attempt, lastErr)
			case <-time.After(delay):
			}
		}

		version, err := s.cache.PublishSnapshot(ctx, payload)
		if err == nil {
			return version, nil
		}
		lastErr = err
		s.logger.Warn("snapshot publish failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return 0, fmt.Errorf("failed to publish snapshot after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}

// watchChanges forwards control plane change signals to trigger. A broken
// subscription is re-established after BaseRetryDelay.
func (s *Service) watchChanges(ctx context.Context, trigger chan<- struct{}) {
	for {
		err := s.cache.WatchChanges(ctx, func(flagKey string, version int64) {
			s.logger.Debug("change notification received",
				slog.String("flag_key", flagKey),
				slog.Int64("version", version),
			)
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("change subscription failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.BaseRetryDelay):
		}
	}
}

package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/rafaeljc/skylab/internal/observability"
)

// RefresherConfig holds the configuration for the Refresher.
type RefresherConfig struct {
	// Interval is the polling period.
	Interval time.Duration

	// Watch enables change notifications when the source supports them.
	Watch bool

	// OnUpdate, if set, is called after a new snapshot was installed.
	OnUpdate func(*Snapshot)
}

// Refresher keeps a Store up to date with a Source.
type Refresher struct {
	logger *slog.Logger
	config RefresherConfig
	source Source
	store  *Store
}

// NewRefresher creates a refresher. It panics on a nil source or store.
func NewRefresher(logger *slog.Logger, cfg RefresherConfig, src Source, store *Store) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if src == nil {
		panic("source: source cannot be nil")
	}
	if store == nil {
		panic("source: store cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	return &Refresher{
		logger: logger.With("component", "refresher"),
		config: cfg,
		source: src,
		store:  store,
	}
}

// Refresh fetches the source once and installs the result if its version
// differs from the active one. On error the active snapshot is kept.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := r.source.Fetch(ctx)
	if err != nil {
		observability.DataPlaneSourceRefreshes.WithLabelValues("fail").Inc()
		return err
	}

	if current := r.store.Current(); current != nil && current.Version == snap.Version {
		observability.DataPlaneSourceRefreshes.WithLabelValues("unchanged").Inc()
		return nil
	}

	previous := r.store.Replace(snap)
	observability.DataPlaneSourceRefreshes.WithLabelValues("updated").Inc()
	observability.DataPlaneSnapshotVersion.Set(float64(snap.Version))
	observability.DataPlaneSnapshotFlags.Set(float64(snap.Len()))

	attrs := []any{
		slog.Int64("version", snap.Version),
		slog.Int("flags", snap.Len()),
	}
	if previous != nil {
		attrs = append(attrs, slog.Int64("previous_version", previous.Version))
	}
	if len(snap.Dropped) > 0 {
		attrs = append(attrs, slog.Any("dropped", snap.Dropped))
	}
	r.logger.Info("flag snapshot installed", attrs...)

	if r.config.OnUpdate != nil {
		r.config.OnUpdate(snap)
	}
	return nil
}

// Run loads the source immediately, then refreshes on every tick and on
// every change notification. It blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("starting flag refresher",
		slog.String("interval", r.config.Interval.String()),
		slog.Bool("watch", r.config.Watch),
	)

	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("initial flag load failed", slog.String("error", err.Error()))
	}

	// Buffer of one: notifications arriving during a refresh collapse into
	// a single follow-up refresh.
	trigger := make(chan struct{}, 1)
	if w, ok := r.source.(Watcher); ok && r.config.Watch {
		go r.watch(ctx, w, trigger)
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("flag refresher stopping...")
			return nil
		case <-ticker.C:
		case <-trigger:
		}

		if err := r.Refresh(ctx); err != nil {
			// Keep serving the previous snapshot; retry on next tick.
			r.logger.Error("flag refresh failed", slog.String("error", err.Error()))
		}
	}
}

// watch runs the source watcher, restarting it after the poll interval
// whenever it fails.
func (r *Refresher) watch(ctx context.Context, w Watcher, trigger chan<- struct{}) {
	notify := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	for {
		err := w.Watch(ctx, notify)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Warn("source watch failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.config.Interval):
		}
	}
}

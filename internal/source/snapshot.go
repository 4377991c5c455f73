// Package source loads the flag set served by the data plane and keeps the
// active snapshot. Sources are pluggable (a local file or the syncer's Redis
// snapshot); the Refresher swaps complete snapshots into a Store so that an
// evaluation never sees a partially updated flag set.
package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/observability"
)

// Source produces the complete current flag set.
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Watcher is implemented by sources that can signal changes. Watch blocks
// until ctx is done, calling notify whenever the source may have changed.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// Snapshot is an immutable, dependency ordered flag set.
type Snapshot struct {
	// Version identifies the flag set. Equal versions mean equal content.
	Version int64

	// Flags is the set as loaded.
	Flags []evaluation.Flag

	// Ordered holds Flags in evaluation order, minus cyclic flags.
	Ordered []evaluation.Flag

	// Dropped lists the keys removed because of dependency cycles.
	Dropped []string

	LoadedAt time.Time
}

// NewSnapshot orders flags for evaluation. Flags caught in a dependency
// cycle are dropped and logged instead of failing the whole set.
func NewSnapshot(version int64, flags []evaluation.Flag, logger *slog.Logger) *Snapshot {
	ordered, dropped := evaluation.SortDroppingCycles(flags, logger)
	if len(dropped) > 0 {
		observability.CyclicFlagsDropped.WithLabelValues("source").Add(float64(len(dropped)))
	}
	return &Snapshot{
		Version:  version,
		Flags:    flags,
		Ordered:  ordered,
		Dropped:  dropped,
		LoadedAt: time.Now(),
	}
}

// Select returns the ordered flags needed to evaluate keys: the keys
// themselves and their transitive dependencies. No keys selects everything.
func (s *Snapshot) Select(keys ...string) []evaluation.Flag {
	if len(keys) == 0 {
		return s.Ordered
	}
	// Ordered is acyclic, so sorting it again cannot fail.
	subset, err := evaluation.TopologicalSort(s.Ordered, keys...)
	if err != nil {
		return nil
	}
	return subset
}

// Len is the number of flags available for evaluation.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Ordered)
}

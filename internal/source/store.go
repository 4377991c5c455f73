package source

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rafaeljc/skylab/internal/observability"
)

// ErrNoSnapshot is returned while no flag set has been loaded.
var ErrNoSnapshot = errors.New("no flag snapshot loaded")

// Store holds the active snapshot. Readers always get a complete snapshot;
// writers replace it as a whole.
type Store struct {
	current atomic.Pointer[Snapshot]
}

var _ observability.Checker = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the active snapshot, or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace installs snap and returns the snapshot it replaced.
func (s *Store) Replace(snap *Snapshot) *Snapshot {
	return s.current.Swap(snap)
}

// Name implements observability.Checker.
func (s *Store) Name() string {
	return "flag_snapshot"
}

// Check reports not ready until a snapshot has been loaded.
func (s *Store) Check(_ context.Context) error {
	if s.Current() == nil {
		return ErrNoSnapshot
	}
	return nil
}

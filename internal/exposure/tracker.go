package exposure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/observability"
)

// session holds the exposures already reported for one identity.
type session struct {
	mu       sync.Mutex
	identity Identity
	seen     map[string]struct{}
}

// Tracker reports each exposure once per identity. Sessions are keyed by
// device (or by user when no device is known); when the identity behind a
// session changes, e.g. a user logs in on a device, its history is cleared.
type Tracker struct {
	sink     Sink
	logger   *slog.Logger
	sessions otter.Cache[string, *session]
}

// NewTracker bounds the number of remembered identities to maxIdentities.
// Evicted identities may see their exposures reported again.
func NewTracker(sink Sink, maxIdentities int, logger *slog.Logger) (*Tracker, error) {
	if sink == nil {
		panic("exposure: sink cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessions, err := otter.MustBuilder[string, *session](maxIdentities).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build exposure session cache: %w", err)
	}

	return &Tracker{
		sink:     sink,
		logger:   logger.With("component", "exposure_tracker"),
		sessions: sessions,
	}, nil
}

// Track reports the exposures for the variants in results that were not
// reported for this identity yet. Contexts without any identity are never
// deduplicated.
func (t *Tracker) Track(ctx context.Context, evalCtx evaluation.Context, results evaluation.Results) error {
	if len(results) == 0 {
		return nil
	}

	id := IdentityOf(evalCtx)
	all := FromResults(results, id)

	sess := t.session(id)
	fresh := t.claim(sess, id, all)
	if deduped := len(all) - len(fresh); deduped > 0 {
		observability.DataPlaneExposures.WithLabelValues("deduped").Add(float64(deduped))
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := t.sink.Send(ctx, fresh); err != nil {
		// Release the claim so a later request reports them again.
		t.release(sess, fresh)
		observability.DataPlaneExposures.WithLabelValues("fail").Add(float64(len(fresh)))
		t.logger.Warn("failed to send exposures",
			slog.Int("count", len(fresh)),
			slog.String("error", err.Error()),
		)
		return err
	}

	observability.DataPlaneExposures.WithLabelValues("tracked").Add(float64(len(fresh)))
	return nil
}

// Close releases the session cache.
func (t *Tracker) Close() {
	t.sessions.Close()
}

func sessionKey(id Identity) string {
	if id.DeviceID != "" {
		return "d:" + id.DeviceID
	}
	return "u:" + id.UserID
}

func (t *Tracker) session(id Identity) *session {
	if id.IsZero() {
		return nil
	}
	key := sessionKey(id)
	if s, ok := t.sessions.Get(key); ok {
		return s
	}
	s := &session{identity: id, seen: make(map[string]struct{})}
	if t.sessions.SetIfAbsent(key, s) {
		return s
	}
	// Lost a race with another request for the same identity.
	if existing, ok := t.sessions.Get(key); ok {
		return existing
	}
	return s
}

// claim marks the exposures in all as seen and returns those that were new.
func (t *Tracker) claim(s *session, id Identity, all []Exposure) []Exposure {
	if s == nil {
		return all
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != id {
		s.identity = id
		clear(s.seen)
	}

	fresh := make([]Exposure, 0, len(all))
	for _, e := range all {
		k := e.key()
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}

func (t *Tracker) release(s *session, exposures []Exposure) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range exposures {
		delete(s.seen, e.key())
	}
}

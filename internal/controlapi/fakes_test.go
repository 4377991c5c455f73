package controlapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/store"
)

var _ store.FlagRepository = (*memRepo)(nil)

// memRepo is an in-memory store.FlagRepository with the same versioning
// rules as the Postgres implementation.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	flags  map[string]*store.Flag
	err    error
}

func newMemRepo() *memRepo {
	return &memRepo{flags: make(map[string]*store.Flag)}
}

func (m *memRepo) CreateFlag(_ context.Context, f *store.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.flags[f.Key]; ok {
		return fmt.Errorf("flag with key %q: %w", f.Key, store.ErrFlagExists)
	}
	m.nextID++
	now := time.Now().UTC()
	f.ID, f.Version, f.CreatedAt, f.UpdatedAt = m.nextID, 1, now, now
	f.Config.Key = f.Key
	stored := *f
	m.flags[f.Key] = &stored
	return nil
}

func (m *memRepo) GetFlagByKey(_ context.Context, key string) (*store.Flag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.flags[key]
	if !ok {
		return nil, store.ErrFlagNotFound
	}
	out := *f
	return &out, nil
}

func (m *memRepo) ListFlags(_ context.Context, limit, offset int) ([]*store.Flag, int64, error) {
	all, err := m.ListAllFlags(context.Background())
	if err != nil {
		return nil, 0, err
	}
	// Newest first, like the Postgres store.
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []*store.Flag{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *memRepo) ListAllFlags(_ context.Context) ([]*store.Flag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*store.Flag, 0, len(m.flags))
	for _, f := range m.flags {
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) UpdateFlag(_ context.Context, p *store.UpdateFlagParams) (*store.Flag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.flags[p.Key]
	if !ok {
		return nil, store.ErrFlagNotFound
	}
	if f.Version != p.Version {
		return nil, store.ErrVersionConflict
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Config != nil {
		f.Config = *p.Config
		f.Config.Key = p.Key
	}
	f.Version++
	f.UpdatedAt = time.Now().UTC()
	out := *f
	return &out, nil
}

func (m *memRepo) DeleteFlag(_ context.Context, key string, version int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	f, ok := m.flags[key]
	if !ok {
		return 0, store.ErrFlagNotFound
	}
	if f.Version != version {
		return 0, store.ErrVersionConflict
	}
	delete(m.flags, key)
	return version + 1, nil
}

func (m *memRepo) put(t *testing.T, cfg evaluation.Flag) *store.Flag {
	t.Helper()
	f := &store.Flag{Key: cfg.Key, Config: cfg}
	require.NoError(t, m.CreateFlag(context.Background(), f))
	return f
}

// recordingCache records change signals.
type recordingCache struct {
	cache.Service

	mu       sync.Mutex
	changes  []string
	attempts int
	failures int
}

func (c *recordingCache) PublishChange(_ context.Context, key string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failures > 0 {
		c.failures--
		return errors.New("redis unavailable")
	}
	c.changes = append(c.changes, fmt.Sprintf("%s@%d", key, version))
	return nil
}

func (c *recordingCache) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.changes...)
}

func (c *recordingCache) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// syncBuffer is a bytes.Buffer safe for the async notifier's log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	api   *API
	repo  *memRepo
	cache *recordingCache
	logs  *syncBuffer
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	logs := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(logs, nil))
	engine := evaluation.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(engine.Close)

	repo := newMemRepo()
	cacheSvc := &recordingCache{}
	api := NewAPI(log, repo, cacheSvc, engine, WithoutAuth(), WithNotifyBackoff(time.Millisecond))

	return &testEnv{api: api, repo: repo, cache: cacheSvc, logs: logs}
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.api.Router.ServeHTTP(rr, req)
	return rr
}

package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/observability"
)

// MemoryCache is the L1 cache of evaluation results, backed by otter's
// S3-FIFO cache. Entries are keyed by snapshot version, so a new snapshot
// makes old entries unreachable; Invalidate also drops them eagerly.
type MemoryCache struct {
	store otter.Cache[string, evaluation.Results]
}

// NewMemoryCache builds a cache bounded to capacity entries, each living at
// most ttl.
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	store, err := otter.MustBuilder[string, evaluation.Results](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &MemoryCache{store: store}, nil
}

// ResultKey builds the cache key of a request evaluated against a snapshot.
// request must be canonical (see evaluation.Context.Canonical).
func ResultKey(version int64, request string) string {
	return strconv.FormatInt(version, 10) + "|" + request
}

// Get returns cached results. Results are shared; callers must not mutate them.
func (c *MemoryCache) Get(key string) (evaluation.Results, bool) {
	results, ok := c.store.Get(key)
	if ok {
		observability.DataPlaneCacheHits.Inc()
	} else {
		observability.DataPlaneCacheMisses.Inc()
	}
	return results, ok
}

// Set stores results under key.
func (c *MemoryCache) Set(key string, results evaluation.Results) {
	if !c.store.Set(key, results) {
		observability.DataPlaneCacheDropped.Inc()
	}
}

// Invalidate drops every entry. Called when a new snapshot is installed.
func (c *MemoryCache) Invalidate() {
	c.store.Clear()
	observability.DataPlaneInvalidations.Inc()
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	return c.store.Size()
}

// Close stops otter's background goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}

// RunMetricsCollector publishes size and eviction metrics every interval
// until ctx is cancelled.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.DataPlaneCacheUsage.Set(float64(c.store.Size()))

			evicted := c.store.Stats().EvictedCount()
			if d := evicted - lastEvicted; d > 0 {
				observability.DataPlaneCacheEvictions.Add(float64(d))
			}
			lastEvicted = evicted
		}
	}
}

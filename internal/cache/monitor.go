package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/skylab/internal/observability"
)

// poolMonitor converts the cumulative go-redis pool counters into
// Prometheus counter deltas.
type poolMonitor struct {
	last redis.PoolStats
}

func (m *poolMonitor) observe(s *redis.PoolStats) {
	observability.RedisPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns))
	observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns))
	observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(s.StaleConns))

	if s.Hits > m.last.Hits {
		observability.RedisPoolHits.Add(float64(s.Hits - m.last.Hits))
	}
	if s.Misses > m.last.Misses {
		observability.RedisPoolMisses.Add(float64(s.Misses - m.last.Misses))
	}
	if s.Timeouts > m.last.Timeouts {
		observability.RedisPoolTimeouts.Add(float64(s.Timeouts - m.last.Timeouts))
	}

	m.last = *s
}

// RunPoolMonitor samples client.PoolStats every interval until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var m poolMonitor
	m.observe(client.PoolStats())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(client.PoolStats())
		}
	}
}

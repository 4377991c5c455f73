package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/skylab/internal/observability"
)

// poolSample is the subset of pgxpool.Stat exported as metrics.
type poolSample struct {
	total, idle, inUse, max int32
	acquireCount            int64
	acquireDuration         time.Duration
	emptyAcquireCount       int64
}

func sampleOf(stat *pgxpool.Stat) poolSample {
	return poolSample{
		total:             stat.TotalConns(),
		idle:              stat.IdleConns(),
		inUse:             stat.AcquiredConns(),
		max:               stat.MaxConns(),
		acquireCount:      stat.AcquireCount(),
		acquireDuration:   stat.AcquireDuration(),
		emptyAcquireCount: stat.EmptyAcquireCount(),
	}
}

// poolMonitor turns the cumulative pgx counters into Prometheus counter deltas.
type poolMonitor struct {
	last poolSample
}

func (m *poolMonitor) observe(s poolSample) {
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(s.total))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(s.idle))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(s.inUse))
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(s.max))

	if d := s.acquireCount - m.last.acquireCount; d > 0 {
		observability.DBPoolAcquireCount.Add(float64(d))
	}
	if d := s.acquireDuration - m.last.acquireDuration; d > 0 {
		observability.DBPoolAcquireDuration.Add(d.Seconds())
	}
	if d := s.emptyAcquireCount - m.last.emptyAcquireCount; d > 0 {
		observability.DBPoolWaitCount.Add(float64(d))
	}

	m.last = s
}

// RunPoolMonitor samples the pool every interval until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var m poolMonitor
	m.observe(sampleOf(pool.Stat()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(sampleOf(pool.Stat()))
		}
	}
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Every collector lives in the default registry, so each binary exports the
// full set and the series of other services stay at zero.

const namespace = "skylab"

const (
	subControl = "control_plane"
	subData    = "data_plane"
	subSyncer  = "syncer"
	subDB      = "database"
	subRedis   = "redis"
)

// evalBuckets spans 100µs to 500ms; a cached evaluation sits at the low end.
var evalBuckets = []float64{.0001, .0005, .001, .002, .005, .010, .020, .050, .100, .500}

func counter(sub, name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
}

func counterVec(sub, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help}, labels)
}

func gauge(sub, name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
}

func gaugeVec(sub, name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help}, labels)
}

func histogramVec(sub, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: sub, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// Control plane.
var (
	ControlPlaneReqDuration = histogramVec(subControl, "http_handling_seconds",
		"Latency of control plane HTTP requests", prometheus.DefBuckets, "method", "path")

	ControlPlaneReqTotal = counterVec(subControl, "http_requests_total",
		"Control plane HTTP requests", "method", "path", "code")

	// ControlPlaneChangeNotifications is labelled success or fail.
	ControlPlaneChangeNotifications = counterVec(subControl, "change_notifications_total",
		"Flag change notifications published for the syncer", "status")
)

// Data plane: gRPC evaluation, the L1 result cache, the flag source and exposures.
var (
	DataPlaneGrpcDuration = histogramVec(subData, "grpc_handling_seconds",
		"Latency of gRPC evaluate requests", evalBuckets, "method", "code")

	DataPlaneGrpcTotal = counterVec(subData, "grpc_requests_total",
		"gRPC evaluate requests", "method", "code")

	// DataPlaneFlagsEvaluated is labelled variant or none.
	DataPlaneFlagsEvaluated = counterVec(subData, "flags_evaluated_total",
		"Flags evaluated, by whether a variant was assigned", "result")

	DataPlaneCacheHits   = counter(subData, "l1_cache_hits_total", "L1 evaluation cache hits")
	DataPlaneCacheMisses = counter(subData, "l1_cache_misses_total", "L1 evaluation cache misses")

	DataPlaneCacheEvictions = counter(subData, "l1_cache_evictions_total", "L1 entries evicted for capacity")
	DataPlaneCacheDropped   = counter(subData, "l1_cache_dropped_total", "Writes the L1 cache refused")

	// DataPlaneCacheUsage counts entries, not bytes.
	DataPlaneCacheUsage = gauge(subData, "l1_cache_items_count", "Entries held by the L1 cache")

	DataPlaneInvalidations = counter(subData, "l1_invalidations_total",
		"L1 cache flushes caused by a new flag snapshot")

	DataPlaneSnapshotVersion = gauge(subData, "snapshot_version", "Version of the flag snapshot being served")
	DataPlaneSnapshotFlags   = gauge(subData, "snapshot_flags_count", "Flags in the served snapshot")

	// DataPlaneSourceRefreshes is labelled updated, unchanged or fail.
	DataPlaneSourceRefreshes = counterVec(subData, "source_refreshes_total",
		"Flag source refresh attempts", "status")

	// DataPlaneExposures is labelled tracked, deduped or fail.
	DataPlaneExposures = counterVec(subData, "exposures_total",
		"Exposure events, by outcome", "status")
)

// CyclicFlagsDropped is shared by the syncer and the data plane source,
// labelled by component.
var CyclicFlagsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cyclic_flags_dropped_total",
	Help:      "Flags dropped from a flag set because of cyclic dependencies",
}, []string{"component"})

// Connection pools, sampled by database.RunPoolMonitor and cache.RunPoolMonitor.
var (
	// DBPoolConnections states: total, idle, in_use, max.
	DBPoolConnections     = gaugeVec(subDB, "pool_connections", "PostgreSQL pool connections by state", "state")
	DBPoolAcquireCount    = counter(subDB, "pool_acquire_count_total", "Successful pool acquires")
	DBPoolAcquireDuration = counter(subDB, "pool_acquire_duration_seconds_total", "Cumulative seconds spent acquiring")
	DBPoolWaitCount       = counter(subDB, "pool_wait_count_total", "Acquires that waited for a free connection")

	// RedisPoolConnections states: total, idle, stale.
	RedisPoolConnections = gaugeVec(subRedis, "pool_connections", "Redis pool connections by state", "state")
	RedisPoolHits        = counter(subRedis, "pool_hits_total", "Free connections found in the pool")
	RedisPoolMisses      = counter(subRedis, "pool_misses_total", "Connections dialed because the pool was empty")
	RedisPoolTimeouts    = counter(subRedis, "pool_timeouts_total", "Waits for a pool connection that timed out")
)

// Syncer.
var (
	SyncerJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subSyncer,
		Name:      "job_processing_duration_seconds",
		Help:      "Duration of a snapshot load-and-publish cycle",
		Buckets:   prometheus.DefBuckets,
	})

	// SyncerJobsTotal is labelled published, unchanged or fail.
	SyncerJobsTotal = counterVec(subSyncer, "jobs_total", "Sync cycles processed", "status")

	SyncerPublishedVersion = gauge(subSyncer, "published_version", "Last snapshot version published to Redis")
)

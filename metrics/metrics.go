package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for registry metrics.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Keys for storage manager metrics.
const (
	RegistryStorageOpsTotalKey          = "registry_storage_ops_total"
	RegistryStorageOpDurationSecondsKey = "registry_storage_op_duration_seconds"
	RegistryStorageLockWaitSecondsKey   = "registry_storage_lock_wait_seconds"
)

// Collectors for storage manager metrics.
var (
	RegistryStorageOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RegistryStorageOpsTotalKey,
		Help: "Cumulative number of storage operations, by operation and status.",
	}, []string{"op", "status"})
	RegistryStorageOpDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    RegistryStorageOpDurationSecondsKey,
		Help:    "Duration of storage operations, by operation.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"op"})
	RegistryStorageLockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    RegistryStorageLockWaitSecondsKey,
		Help:    "Time spent polling for row locks, by lock mode and whether the lock was obtained.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"mode", "obtained"})
)

// RegistryStorageCollectors returns the metrics used by storage managers.
func RegistryStorageCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RegistryStorageOpsTotal,
		RegistryStorageOpDurationSeconds,
		RegistryStorageLockWaitSeconds,
	}
}

// Keys for storable cache metrics.
const (
	RegistryCacheHitsTotalKey      = "registry_cache_hits_total"
	RegistryCacheMissesTotalKey    = "registry_cache_misses_total"
	RegistryCacheEvictionsTotalKey = "registry_cache_evictions_total"
	RegistryCacheInconsistentKey   = "registry_cache_inconsistencies_total"
)

// Collectors for storable cache metrics.
var (
	RegistryCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryCacheHitsTotalKey,
		Help: "Cumulative number of cache lookups which found an entry.",
	})
	RegistryCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryCacheMissesTotalKey,
		Help: "Cumulative number of cache lookups which found no live entry.",
	})
	RegistryCacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryCacheEvictionsTotalKey,
		Help: "Cumulative number of entries evicted for size or idleness.",
	})
	RegistryCacheInconsistentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryCacheInconsistentKey,
		Help: "Cumulative number of removals where the cached value differed from the database.",
	})
)

// RegistryCacheCollectors returns the metrics used by the storable cache.
func RegistryCacheCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RegistryCacheHitsTotal,
		RegistryCacheMissesTotal,
		RegistryCacheEvictionsTotal,
		RegistryCacheInconsistentTotal,
	}
}

// Keys for outbox processor metrics.
const (
	RegistryOutboxEventsTotalKey      = "registry_outbox_events_total"
	RegistryOutboxBatchesTotalKey     = "registry_outbox_batches_total"
	RegistryOutboxCycleErrorsTotalKey = "registry_outbox_cycle_errors_total"
)

// Collectors for outbox processor metrics.
var (
	RegistryOutboxEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RegistryOutboxEventsTotalKey,
		Help: "Cumulative number of dispatched outbox events, by event type and status.",
	}, []string{"type", "status"})
	RegistryOutboxBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryOutboxBatchesTotalKey,
		Help: "Cumulative number of non-empty outbox batches processed.",
	})
	RegistryOutboxCycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: RegistryOutboxCycleErrorsTotalKey,
		Help: "Cumulative number of outbox cycles which failed outside of per-event handling.",
	})
)

// RegistryOutboxCollectors returns the metrics used by the outbox processor.
func RegistryOutboxCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RegistryOutboxEventsTotal,
		RegistryOutboxBatchesTotal,
		RegistryOutboxCycleErrorsTotal,
	}
}

// RegistryCollectors returns all metrics of the registry storage core.
func RegistryCollectors() []prometheus.Collector {
	var out = RegistryStorageCollectors()
	out = append(out, RegistryCacheCollectors()...)
	out = append(out, RegistryOutboxCollectors()...)
	return out
}

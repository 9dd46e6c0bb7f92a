// Package metrics confines the engine's process-wide mutable state to a set
// of Prometheus counters and gauges (spec.md §9: "metrics counters are
// concurrent atomics confined to a metrics module"). No other package
// touches the default registry. Exposition over HTTP is an external
// collaborator's concern; this package only maintains the numbers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every counter/gauge the core maintains. Use New to build
// one, or NewUnregistered in tests that spin up many engines in the same
// process and would otherwise collide on the default registry. Packages
// that accept a *Registry treat nil as "record nothing".
type Registry struct {
	WALWriteErrorsTotal       prometheus.Counter
	WALAppendedTotal          prometheus.Counter
	CheckpointErrorsTotal     prometheus.Counter
	CheckpointsTotal          prometheus.Counter
	ScheduleSkipsTotal        prometheus.Counter
	CooldownSkipsTotal        prometheus.Counter
	IVFFallbackExactTotal     prometheus.Counter
	IVFBuildsTotal            prometheus.Counter
	IVFBuildFailuresTotal     prometheus.Counter
	SearchRejectedOverloadTotal prometheus.Counter
	SearchTimeoutTotal        prometheus.Counter
	MutationsRejectedTotal    prometheus.Counter
	DegradedModeGauge         prometheus.Gauge
	MemoryUsageBytesGauge     prometheus.Gauge
	InFlightRequestsGauge     prometheus.Gauge
	SearchLatencySeconds      prometheus.Histogram
}

func newRegistry() *Registry {
	return &Registry{
		WALWriteErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_wal_write_errors_total",
			Help: "Total WAL append or fsync failures.",
		}),
		WALAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_wal_appended_records_total",
			Help: "Total WAL records appended.",
		}),
		CheckpointErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_checkpoint_errors_total",
			Help: "Total snapshot checkpoint failures.",
		}),
		CheckpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_checkpoints_total",
			Help: "Total successful snapshot checkpoints.",
		}),
		ScheduleSkipsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_checkpoint_schedule_skips_total",
			Help: "Checkpoint triggers skipped because one was already in flight.",
		}),
		CooldownSkipsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_index_build_cooldown_skips_total",
			Help: "IVF build requests deferred by the cooldown throttle.",
		}),
		IVFFallbackExactTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_ivf_fallback_exact_total",
			Help: "Searches that requested IVF but fell back to an exact scan.",
		}),
		IVFBuildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_ivf_builds_total",
			Help: "Total completed IVF index builds.",
		}),
		IVFBuildFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_ivf_build_failures_total",
			Help: "Total failed IVF index builds.",
		}),
		SearchRejectedOverloadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_search_rejected_overload_total",
			Help: "Searches rejected by the concurrency admission gate.",
		}),
		SearchTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_search_timeout_total",
			Help: "Searches that exceeded request_timeout_ms.",
		}),
		MutationsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdb_mutations_rejected_total",
			Help: "Mutations rejected by validation, capacity, or the memory budget.",
		}),
		DegradedModeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vdb_degraded_mode",
			Help: "1 if the persistence layer is in WAL-only degraded mode, 0 otherwise.",
		}),
		MemoryUsageBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vdb_memory_usage_bytes",
			Help: "Estimated bytes held by the engine's vector storage.",
		}),
		InFlightRequestsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vdb_in_flight_requests",
			Help: "Requests currently admitted and executing.",
		}),
		SearchLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vdb_search_latency_seconds",
			Help:    "Search request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Registry) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.WALWriteErrorsTotal, r.WALAppendedTotal, r.CheckpointErrorsTotal,
		r.CheckpointsTotal, r.ScheduleSkipsTotal, r.CooldownSkipsTotal,
		r.IVFFallbackExactTotal, r.IVFBuildsTotal, r.IVFBuildFailuresTotal,
		r.SearchRejectedOverloadTotal, r.SearchTimeoutTotal,
		r.MutationsRejectedTotal, r.DegradedModeGauge, r.MemoryUsageBytesGauge,
		r.InFlightRequestsGauge, r.SearchLatencySeconds,
	}
}

// New builds a Registry and registers it against the default Prometheus
// registry. Safe to call once per process.
func New() *Registry {
	r := newRegistry()
	prometheus.MustRegister(r.collectors()...)
	return r
}

// NewUnregistered builds a Registry backed by its own, fresh
// prometheus.Registry rather than the global default — for tests that
// construct multiple engines in one process.
func NewUnregistered() *Registry {
	r := newRegistry()
	reg := prometheus.NewRegistry()
	reg.MustRegister(r.collectors()...)
	return r
}

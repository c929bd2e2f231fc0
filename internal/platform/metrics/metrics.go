package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	EventsRecorded    *prometheus.CounterVec
	DispatchFailures  prometheus.Counter
	FailuresSwallowed prometheus.Counter
	SnapshotHits      prometheus.Counter
	SnapshotMisses    prometheus.Counter
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_events_recorded_total",
			Help: "Total number of audit events written to the sink, by event kind",
		}, []string{"kind"}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_dispatch_failures_total",
			Help: "Total number of audit dispatches that failed in delta computation, assembly, or the sink write",
		}),
		FailuresSwallowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_failures_swallowed_total",
			Help: "Total number of dispatch failures swallowed so the business operation could proceed",
		}),
		SnapshotHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_snapshot_hits_total",
			Help: "Total number of relationship snapshot consumes that found a prior capture",
		}),
		SnapshotMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_snapshot_misses_total",
			Help: "Total number of relationship snapshot consumes that found nothing (expired or never captured)",
		}),
	}
}

// IncRecorded increments the recorded counter for an event kind.
func (m *Metrics) IncRecorded(kind string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(kind).Inc()
}

// IncDispatchFailure increments the dispatch failure counter.
func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	m.DispatchFailures.Inc()
}

// IncFailureSwallowed increments the swallowed failure counter.
func (m *Metrics) IncFailureSwallowed() {
	if m == nil {
		return
	}
	m.FailuresSwallowed.Inc()
}

// IncSnapshotHit increments the snapshot hit counter.
func (m *Metrics) IncSnapshotHit() {
	if m == nil {
		return
	}
	m.SnapshotHits.Inc()
}

// IncSnapshotMiss increments the snapshot miss counter.
func (m *Metrics) IncSnapshotMiss() {
	if m == nil {
		return
	}
	m.SnapshotMisses.Inc()
}

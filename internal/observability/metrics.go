// Package observability holds the Prometheus instrumentation for the
// merge and ingestion engines.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for the catalog service.
type Metrics struct {
	CandidatesHarvested *prometheus.CounterVec // labels: source
	CandidatesDropped   *prometheus.CounterVec // labels: source
	CollectorFailures   *prometheus.CounterVec // labels: source
	EventsUpserted      prometheus.Counter
	MergeFailures       prometheus.Counter

	RainPointsInserted prometheus.Counter
	RainPointsSkipped  prometheus.Counter
	RainPointErrors    prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CandidatesHarvested,
		m.CandidatesDropped,
		m.CollectorFailures,
		m.EventsUpserted,
		m.MergeFailures,
		m.RainPointsInserted,
		m.RainPointsSkipped,
		m.RainPointErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default
// registry, so parallel tests never hit "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CandidatesHarvested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "candidates_harvested_total",
			Help:      "Valid candidates collected, by source.",
		}, []string{"source"}),
		CandidatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "candidates_dropped_total",
			Help:      "Candidates rejected by validation, by source.",
		}, []string{"source"}),
		CollectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "collector_failures_total",
			Help:      "Source collection failures, by source.",
		}, []string{"source"}),
		EventsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "events_upserted_total",
			Help:      "Merged event records created or updated.",
		}),
		MergeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "merge_failures_total",
			Help:      "Clusters whose persistence failed and was skipped.",
		}),
		RainPointsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rain_points_inserted_total",
			Help:      "Rain event rows written by the ingestion pipeline.",
		}),
		RainPointsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rain_points_skipped_total",
			Help:      "Rain event rows skipped as duplicates.",
		}),
		RainPointErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "rain_point_errors_total",
			Help:      "Rain event rows that failed row-level persistence.",
		}),
	}
}

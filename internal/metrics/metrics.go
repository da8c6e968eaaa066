// Package metrics exposes Prometheus counters for batch execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stanstork/bulkgen/internal/models"
)

const namespace = "bulkgen"

type Metrics struct {
	registry *prometheus.Registry

	// Batch metrics
	BatchesExecuted *prometheus.CounterVec
	BatchesErrored  *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec

	// Unit metrics
	UnitsSucceeded *prometheus.CounterVec
	UnitsFailed    *prometheus.CounterVec
	UnitsSkipped   *prometheus.CounterVec

	// Session metrics
	SessionsStarted    *prometheus.CounterVec
	ArtifactsPublished prometheus.Counter
}

// New registers every collector on a dedicated registry, so tests can build
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := []string{"operation"}

	return &Metrics{
		registry: reg,
		BatchesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_executed_total",
			Help:      "Total number of batches that produced a result",
		}, labels),
		BatchesErrored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_errored_total",
			Help:      "Total number of batches rejected by a precondition",
		}, labels),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to execute one batch",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, labels),
		UnitsSucceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_succeeded_total",
			Help:      "Total number of unit operations that succeeded",
		}, labels),
		UnitsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_failed_total",
			Help:      "Total number of unit operations that failed",
		}, labels),
		UnitsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_skipped_total",
			Help:      "Total number of unit operations that were skipped",
		}, labels),
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of export and import sessions started",
		}, []string{"family", "kind"}),
		ArtifactsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_published_total",
			Help:      "Total number of export artifacts published",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch records the outcome of a finished batch.
func (m *Metrics) ObserveBatch(op models.OperationKind, res models.BatchResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	l := string(op)
	m.BatchesExecuted.WithLabelValues(l).Inc()
	m.BatchDuration.WithLabelValues(l).Observe(elapsed.Seconds())
	m.UnitsSucceeded.WithLabelValues(l).Add(float64(res.Succeeded))
	m.UnitsFailed.WithLabelValues(l).Add(float64(res.Failed))
	m.UnitsSkipped.WithLabelValues(l).Add(float64(res.Skipped))
}

func (m *Metrics) IncBatchErrored(op models.OperationKind) {
	if m == nil {
		return
	}
	m.BatchesErrored.WithLabelValues(string(op)).Inc()
}

func (m *Metrics) IncSessionStarted(family models.Family, kind models.RecordKind) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(string(family), string(kind)).Inc()
}

func (m *Metrics) IncArtifactPublished() {
	if m == nil {
		return
	}
	m.ArtifactsPublished.Inc()
}

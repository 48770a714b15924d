// Package metrics provides Prometheus instrumentation for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "corpora"

// Registry holds every metric the engine records. A nil *Registry is valid
// and records nothing.
type Registry struct {
	gatherer prometheus.Gatherer

	// Claims
	ClaimsTotal   *prometheus.CounterVec
	ClaimedIDs    *prometheus.CounterVec
	ReleasedIDs   *prometheus.CounterVec
	ClaimDuration *prometheus.HistogramVec

	// Documents
	Documents        *prometheus.CounterVec
	DocumentDuration *prometheus.HistogramVec

	// Stages
	StageRuns     *prometheus.CounterVec
	StageFailures *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Subsets
	SubsetRows     *prometheus.GaugeVec
	Invalidations  *prometheus.CounterVec
	ReclaimedStale prometheus.Counter
}

// NewRegistry registers metrics on a private registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	return NewRegistryWith(reg, reg)
}

// NewRegistryWith registers metrics on reg and serves them from gatherer.
func NewRegistryWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		gatherer: gatherer,

		ClaimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "claim",
				Name:      "batches_total",
				Help:      "Total number of claim attempts by outcome",
			},
			[]string{"subset", "outcome"},
		),

		ClaimedIDs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "claim",
				Name:      "documents_total",
				Help:      "Total number of documents claimed",
			},
			[]string{"subset"},
		),

		ReleasedIDs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "claim",
				Name:      "released_total",
				Help:      "Total number of claimed documents released unstarted",
			},
			[]string{"subset"},
		),

		ClaimDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "claim",
				Name:      "duration_seconds",
				Help:      "Time spent claiming a batch",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subset"},
		),

		Documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "documents_total",
				Help:      "Total number of documents run by outcome",
			},
			[]string{"subset", "outcome"},
		),

		DocumentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "document_duration_seconds",
				Help:      "Time spent running one document plan",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subset", "path"},
		),

		StageRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "runs_total",
				Help:      "Total number of stage executions",
			},
			[]string{"stage"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "failures_total",
				Help:      "Total number of failed stage executions",
			},
			[]string{"stage"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Stage execution time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		SubsetRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subset",
				Name:      "rows",
				Help:      "Subset rows by status",
			},
			[]string{"subset", "status"},
		),

		Invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subset",
				Name:      "invalidations_total",
				Help:      "Total number of mirror subset resets after bulk updates",
			},
			[]string{"table", "subset"},
		),

		ReclaimedStale: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subset",
				Name:      "reclaimed_stale_total",
				Help:      "Total number of stale claims returned to unprocessed",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// ObserveClaim records one claim attempt.
func (r *Registry) ObserveClaim(subset string, claimed int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "claimed"
	switch {
	case err != nil:
		outcome = "error"
	case claimed == 0:
		outcome = "empty"
	}
	r.ClaimsTotal.WithLabelValues(subset, outcome).Inc()
	r.ClaimedIDs.WithLabelValues(subset).Add(float64(claimed))
	r.ClaimDuration.WithLabelValues(subset).Observe(elapsed.Seconds())
}

// ObserveRelease records ids returned to the pool unstarted.
func (r *Registry) ObserveRelease(subset string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.ReleasedIDs.WithLabelValues(subset).Add(float64(n))
}

// ObserveDocument records one document outcome. path is "full" or "reduced".
func (r *Registry) ObserveDocument(subset, outcome, path string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Documents.WithLabelValues(subset, outcome).Inc()
	r.DocumentDuration.WithLabelValues(subset, path).Observe(elapsed.Seconds())
}

// ObserveStage records one stage execution.
func (r *Registry) ObserveStage(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.StageRuns.WithLabelValues(stage).Inc()
	r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.StageFailures.WithLabelValues(stage).Inc()
	}
}

// SetSubsetRows publishes status counts for subset.
func (r *Registry) SetSubsetRows(subset string, unprocessed, inProcess, processed, failed int) {
	if r == nil {
		return
	}
	r.SubsetRows.WithLabelValues(subset, "unprocessed").Set(float64(unprocessed))
	r.SubsetRows.WithLabelValues(subset, "in_process").Set(float64(inProcess))
	r.SubsetRows.WithLabelValues(subset, "processed").Set(float64(processed))
	r.SubsetRows.WithLabelValues(subset, "failed").Set(float64(failed))
}

// ObserveInvalidation records a coarse mirror reset.
func (r *Registry) ObserveInvalidation(table, subset string) {
	if r == nil {
		return
	}
	r.Invalidations.WithLabelValues(table, subset).Inc()
}

// ObserveReclaimed records stale claims returned to the pool.
func (r *Registry) ObserveReclaimed(n int) {
	if r == nil || n == 0 {
		return
	}
	r.ReclaimedStale.Add(float64(n))
}

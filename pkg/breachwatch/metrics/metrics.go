// Package metrics exports ingestion run results as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cognicore/breachwatch/pkg/breachwatch/ingest"
)

// Record outcome labels.
const (
	OutcomeInserted             = "inserted"
	OutcomeUpdated              = "updated"
	OutcomeSkipped              = "skipped"
	OutcomeNormalizationFailure = "normalization_failed"
	OutcomePersistenceFailure   = "persistence_failed"
)

var _ ingest.Reporter = (*Reporter)(nil)

// Reporter implements ingest.Reporter on its own registry.
type Reporter struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastRun     *prometheus.GaugeVec
}

// NewReporter creates a Reporter with all collectors registered.
func NewReporter() *Reporter {
	r := &Reporter{registry: prometheus.NewRegistry()}

	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breachwatch",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Number of finished ingestion runs",
	}, []string{"source"})
	r.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breachwatch",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Records processed by outcome",
	}, []string{"source", "outcome"})
	r.conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breachwatch",
		Subsystem: "ingest",
		Name:      "conflicts_total",
		Help:      "Identity conflicts recorded for review",
	}, []string{"source", "kind"})
	r.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "breachwatch",
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Wall time of ingestion runs",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"source"})
	r.lastRun = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "breachwatch",
		Subsystem: "ingest",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last finished run",
	}, []string{"source"})

	r.registry.MustRegister(r.runs, r.records, r.conflicts, r.runDuration, r.lastRun)
	return r
}

// ReportRun records one finished run.
func (r *Reporter) ReportRun(rep *ingest.Report) {
	if rep == nil {
		return
	}
	source := strconv.Itoa(rep.SourceID)

	r.runs.WithLabelValues(source).Inc()
	r.records.WithLabelValues(source, OutcomeInserted).Add(float64(rep.Inserted))
	r.records.WithLabelValues(source, OutcomeUpdated).Add(float64(rep.Updated))
	r.records.WithLabelValues(source, OutcomeSkipped).Add(float64(rep.Skipped))
	r.records.WithLabelValues(source, OutcomeNormalizationFailure).Add(float64(rep.NormalizationFailures))
	r.records.WithLabelValues(source, OutcomePersistenceFailure).Add(float64(rep.PersistenceFailures))
	for _, c := range rep.Conflicts {
		r.conflicts.WithLabelValues(source, string(c.Kind)).Inc()
	}
	r.runDuration.WithLabelValues(source).Observe(rep.Duration().Seconds())
	if !rep.FinishedAt.IsZero() {
		r.lastRun.WithLabelValues(source).Set(float64(rep.FinishedAt.Unix()))
	}
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (r *Reporter) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Reporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

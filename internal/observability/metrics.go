// Package observability exposes Prometheus metrics for the pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors, registered on a
// dedicated registry so tests can instantiate it more than once.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        prometheus.Counter
	RunDuration      prometheus.Histogram
	FetchFailures    *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
	ResortsProcessed prometheus.Gauge
	QualityLevels    *prometheus.GaugeVec
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "snowrank",
			Name:      "pipeline_runs_total",
			Help:      "Number of pipeline runs started.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snowrank",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snowrank",
			Name:      "fetch_failures_total",
			Help:      "Resort fetches that produced no usable reading, by source.",
		}, []string{"source"}),
		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snowrank",
			Name:      "write_failures_total",
			Help:      "Database writes that failed, by kind.",
		}, []string{"kind"}),
		ResortsProcessed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "snowrank",
			Name:      "resorts_processed",
			Help:      "Resorts processed in the most recent run.",
		}),
		QualityLevels: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "snowrank",
			Name:      "quality_level_resorts",
			Help:      "Resorts per data-quality level in the most recent run.",
		}, []string{"level"}),
	}
}

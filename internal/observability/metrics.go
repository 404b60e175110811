package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plot_timeseries"

// Metrics holds the Prometheus counters, histograms, and gauges for the export job.
type Metrics struct {
	ScenesListed    *prometheus.CounterVec // labels: dataset
	Observations    *prometheus.CounterVec // labels: variable, outcome={value,sentinel}
	RowsExported    *prometheus.CounterVec // labels: variable, table={tall,wide}
	PipelineErrors  *prometheus.CounterVec // labels: variable
	PipelineRunning prometheus.Gauge

	VariableDuration *prometheus.HistogramVec // labels: variable

	// Sample cache and remote zonal service.
	SampleCache      *prometheus.CounterVec // labels: result={hit,miss,error}
	ZonalRequests    *prometheus.CounterVec // labels: outcome={success,retry,error}
	ZonalAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all job metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ScenesListed,
		m.Observations,
		m.RowsExported,
		m.PipelineErrors,
		m.PipelineRunning,
		m.VariableDuration,
		m.SampleCache,
		m.ZonalRequests,
		m.ZonalAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ScenesListed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_listed_total",
			Help:      "Scenes returned by the scene source after date and bounds filtering.",
		}, []string{"dataset"}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Zonal observations produced, by variable and outcome.",
		}, []string{"variable", "outcome"}),
		RowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_exported_total",
			Help:      "Rows handed to the export sinks, by variable and table.",
		}, []string{"variable", "table"}),
		PipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Variable pipelines that failed.",
		}, []string{"variable"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an export run is active, 0 otherwise.",
		}),
		VariableDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variable_duration_seconds",
			Help:      "Duration of one variable pipeline from sampling to export.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"variable"}),
		SampleCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_cache_total",
			Help:      "Zonal sample cache lookups by result.",
		}, []string{"result"}),
		ZonalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zonal_requests_total",
			Help:      "Remote zonal statistics requests by outcome.",
		}, []string{"outcome"}),
		ZonalAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "zonal_api_duration_seconds",
			Help:      "Remote zonal statistics request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

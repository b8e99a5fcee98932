package main

import (
	"time"

	"github.com/hupe1980/rtnn"
	"github.com/prometheus/client_golang/prometheus"
)

// promCollector exports run metrics in the Prometheus text format.
type promCollector struct {
	registry *prometheus.Registry

	phaseLatency *prometheus.HistogramVec
	phaseErrors  *prometheus.CounterVec
	sortLatency  *prometheus.HistogramVec
	sorted       *prometheus.CounterVec
	runLatency   prometheus.Histogram
	runErrors    prometheus.Counter
	queries      prometheus.Counter
}

var _ rtnn.MetricsCollector = (*promCollector)(nil)

func newPromCollector() *promCollector {
	c := &promCollector{
		registry: prometheus.NewRegistry(),
		phaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtnn_phase_duration_seconds",
			Help:    "Duration of pipeline phases.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"phase"}),
		phaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtnn_phase_errors_total",
			Help: "Failed pipeline phases.",
		}, []string{"phase"}),
		sortLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtnn_sort_duration_seconds",
			Help:    "Duration of particle sorts.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"target"}),
		sorted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtnn_sorted_particles_total",
			Help: "Particles sorted.",
		}, []string{"target"}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtnn_run_duration_seconds",
			Help:    "Duration of whole search runs.",
			Buckets: prometheus.DefBuckets,
		}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtnn_run_errors_total",
			Help: "Failed search runs.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtnn_queries_total",
			Help: "Queries searched.",
		}),
	}
	c.registry.MustRegister(c.phaseLatency, c.phaseErrors, c.sortLatency, c.sorted,
		c.runLatency, c.runErrors, c.queries)
	return c
}

func (c *promCollector) RecordPhase(phase rtnn.Phase, _ int, d time.Duration, err error) {
	c.phaseLatency.WithLabelValues(string(phase)).Observe(d.Seconds())
	if err != nil {
		c.phaseErrors.WithLabelValues(string(phase)).Inc()
	}
}

func (c *promCollector) RecordSort(target string, n int, d time.Duration) {
	c.sortLatency.WithLabelValues(target).Observe(d.Seconds())
	c.sorted.WithLabelValues(target).Add(float64(n))
}

func (c *promCollector) RecordRun(queries int, d time.Duration, err error) {
	c.runLatency.Observe(d.Seconds())
	c.queries.Add(float64(queries))
	if err != nil {
		c.runErrors.Inc()
	}
}

// WriteTextfile writes all metrics for the node exporter textfile collector.
func (c *promCollector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

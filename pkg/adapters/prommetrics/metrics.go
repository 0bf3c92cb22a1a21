// Package prommetrics records ladder observations with Prometheus collectors
// on a private registry and writes them in the text exposition format.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/vidshrink/pkg/ports"
)

const namespace = "vidshrink"

// Metrics implements ports.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	results         *prometheus.CounterVec
	ratio           *prometheus.HistogramVec
	lastRatio       prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Compression attempts, by ladder method and outcome.",
		}, []string{"method", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one compression attempt, by ladder method.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"method"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Finished pipeline runs, by accepted method and status.",
		}, []string{"method", "status"}),
		ratio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Original size divided by compressed size of accepted outputs.",
			Buckets:   []float64{1, 1.1, 1.25, 1.5, 2, 3, 5, 10, 20},
		}, []string{"method"}),
		lastRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_compression_ratio",
			Help:      "Compression ratio of the most recent successful run.",
		}),
	}
	m.registry.MustRegister(m.attempts, m.attemptDuration, m.results, m.ratio, m.lastRatio)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveAttempt(method, outcome string, elapsed time.Duration) {
	m.attempts.WithLabelValues(method, outcome).Inc()
	m.attemptDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveResult(method string, success bool, ratio float64) {
	if !success {
		if method == "" {
			method = "none"
		}
		m.results.WithLabelValues(method, "failed").Inc()
		return
	}
	m.results.WithLabelValues(method, "succeeded").Inc()
	m.ratio.WithLabelValues(method).Observe(ratio)
	m.lastRatio.Set(ratio)
}

// WriteToTextfile writes all collected metrics to path, suitable for the
// node_exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

var _ ports.Metrics = (*Metrics)(nil)

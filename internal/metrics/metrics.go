// Package metrics exposes prometheus collectors for analyses and simulations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conjoint"

// Analysis outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRefused   = "refused"
	OutcomeFailed    = "failed"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// analyses counts pipeline runs.
	// Labels: method (resolved estimator), outcome (completed, refused, failed)
	analyses *prometheus.CounterVec

	// fallbacks counts auto runs that degraded to the fallback estimator.
	fallbacks prometheus.Counter

	// estimationDuration measures estimator wall time.
	// Labels: method
	estimationDuration *prometheus.HistogramVec

	// simulations counts simulator requests.
	// Labels: kind (shares, sensitivity, optimize)
	simulations *prometheus.CounterVec
}

// New registers the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by estimation method and outcome",
		}, []string{"method", "outcome"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "fallbacks_total",
			Help:      "Automatic runs that fell back from the primary estimator",
		}),
		estimationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "duration_seconds",
			Help:      "Estimator wall time in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		simulations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "requests_total",
			Help:      "Simulator requests by kind",
		}, []string{"kind"}),
	}
}

// RecordAnalysis counts one pipeline run. method may be empty for runs refused
// before an estimator was chosen.
func (m *Metrics) RecordAnalysis(method, outcome string, degraded bool) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.analyses.WithLabelValues(method, outcome).Inc()
	if degraded {
		m.fallbacks.Inc()
	}
}

// ObserveEstimation records how long an estimator took.
func (m *Metrics) ObserveEstimation(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.estimationDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordSimulation counts one simulator request.
func (m *Metrics) RecordSimulation(kind string) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

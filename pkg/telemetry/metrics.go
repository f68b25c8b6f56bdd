package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

// Metrics collects reconciliation counters on a private registry. It
// implements engine.MetricsSink.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	changesTotal  *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewMetrics creates the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpwrd_config",
		Name:      "runs_total",
		Help:      "Reconciliation runs by terminal state.",
	}, []string{"state"})

	m.changesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpwrd_config",
		Name:      "changes_applied_total",
		Help:      "Applied field changes by domain.",
	}, []string{"domain"})

	m.failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpwrd_config",
		Name:      "apply_failures_total",
		Help:      "Field apply failures by field path.",
	}, []string{"field"})

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpwrd_config",
		Name:      "run_duration_seconds",
		Help:      "Reconciliation run duration.",
		Buckets:   prometheus.DefBuckets,
	})

	m.registry.MustRegister(m.runsTotal, m.changesTotal, m.failuresTotal, m.runDuration)
	return m
}

// ObserveRun implements engine.MetricsSink.
func (m *Metrics) ObserveRun(result *engine.Result) {
	m.runsTotal.WithLabelValues(string(result.State)).Inc()
	for _, c := range result.Applied {
		m.changesTotal.WithLabelValues(c.Domain).Inc()
	}
	for _, f := range result.Failures {
		m.failuresTotal.WithLabelValues(f.Field).Inc()
	}
	m.runDuration.Observe(result.Duration.Seconds())
}

// Handler exposes the registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Package metrics exposes Prometheus instrumentation for fraudwatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudwatch"

// Metrics holds every collector on a private registry, so tests and
// multiple servers in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	evaluationErrors   *prometheus.CounterVec
	skippedRules       prometheus.Counter
	aggregations       *prometheus.CounterVec
	recommendations    prometheus.Gauge
	blacklistChanges   *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers the Go runtime collectors beside them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "evaluations_total",
			Help:      "Transactions evaluated, by resulting risk level",
		}, []string{"level"}),
		evaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate and persist one transaction",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		evaluationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "evaluation_errors_total",
			Help:      "Failed evaluations, by error class",
		}, []string{"class"}),
		skippedRules: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "skipped_rules_total",
			Help:      "Malformed rules skipped during evaluation",
		}),
		aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recipient",
			Name:      "aggregations_total",
			Help:      "Recipient aggregations, by outcome",
		}, []string{"outcome"}),
		recommendations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blacklist",
			Name:      "recommended_recipients",
			Help:      "Recipients recommended for blacklisting at the last full scan",
		}),
		blacklistChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist",
			Name:      "changes_total",
			Help:      "Blacklist mutations, by action and outcome",
		}, []string{"action", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEvaluation records a completed evaluation. Methods are nil-safe so
// components can run without metrics.
func (m *Metrics) ObserveEvaluation(level string, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(level).Inc()
	m.evaluationDuration.Observe(d.Seconds())
	if skipped > 0 {
		m.skippedRules.Add(float64(skipped))
	}
}

// EvaluationFailed records a failed evaluation.
func (m *Metrics) EvaluationFailed(class string) {
	if m == nil {
		return
	}
	m.evaluationErrors.WithLabelValues(class).Inc()
}

// AggregationDone records an aggregation outcome: "ok", "timeout" or "error".
func (m *Metrics) AggregationDone(outcome string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(outcome).Inc()
}

// SetRecommended records how many recipients the last full scan recommended.
func (m *Metrics) SetRecommended(n int) {
	if m == nil {
		return
	}
	m.recommendations.Set(float64(n))
}

// BlacklistChanged records an add or remove attempt.
func (m *Metrics) BlacklistChanged(action, outcome string) {
	if m == nil {
		return
	}
	m.blacklistChanges.WithLabelValues(action, outcome).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

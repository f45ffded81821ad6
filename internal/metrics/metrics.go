// Package metrics exposes Prometheus instrumentation for retrieval and
// maintenance. Each Metrics value owns its registry, so several engines (or
// tests) can coexist in one process without duplicate registration.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jacq"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Retrievals        *prometheus.CounterVec
	RetrievalDuration prometheus.Histogram
	FactsPerRetrieval prometheus.Histogram
	AnchorFallbacks   *prometheus.CounterVec

	Transitions     *prometheus.CounterVec
	CASConflicts    prometheus.Counter
	Failures        *prometheus.CounterVec
	MaintenanceRuns prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "Total number of context retrievals by outcome",
			},
			[]string{"outcome"},
		),
		RetrievalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Context retrieval duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FactsPerRetrieval: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_facts",
				Help:      "Number of facts returned per retrieval",
				Buckets:   []float64{0, 1, 5, 10, 20, 30, 50, 100},
			},
		),
		AnchorFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anchor_fallbacks_total",
				Help:      "Anchor selections that used keyword matching, by reason",
			},
			[]string{"reason"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_transitions_total",
				Help:      "Fact status transitions applied, by action",
			},
			[]string{"action"},
		),
		CASConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cas_conflicts_total",
				Help:      "Status updates rejected because another writer moved the fact first",
			},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Collaborator failures by component",
			},
			[]string{"component"},
		),
		MaintenanceRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Total number of maintenance batches",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(
		m.Retrievals,
		m.RetrievalDuration,
		m.FactsPerRetrieval,
		m.AnchorFallbacks,
		m.Transitions,
		m.CASConflicts,
		m.Failures,
		m.MaintenanceRuns,
		m.HTTPRequests,
	)
	return m
}

// Registry returns the registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRetrieval records one finished retrieval.
func (m *Metrics) ObserveRetrieval(outcome string, d time.Duration, facts int) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(outcome).Inc()
	m.RetrievalDuration.Observe(d.Seconds())
	m.FactsPerRetrieval.Observe(float64(facts))
}

func (m *Metrics) AnchorFallback(reason string) {
	if m == nil {
		return
	}
	m.AnchorFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Transition(action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) CASConflict() {
	if m == nil {
		return
	}
	m.CASConflicts.Inc()
}

func (m *Metrics) Failure(component string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(component).Inc()
}

func (m *Metrics) MaintenanceRun() {
	if m == nil {
		return
	}
	m.MaintenanceRuns.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	ticketsCreated    *prometheus.CounterVec
	automation        *prometheus.CounterVec
	classifierCalls   *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	classifierLatency prometheus.Histogram
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Errors returned to clients by error code",
		}, []string{"path", "method", "code"}),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_created_total",
			Help:      "Tickets created by routing outcome",
		}, []string{"outcome"}),
		automation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_actions_total",
			Help:      "Simulated automation actions by category and result",
		}, []string{"category", "result"}),
		classifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Classification requests by result (ok, fallback, cache_hit)",
		}, []string{"result"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_assignments_total",
			Help:      "Agent claims by tier and whether an agent was found",
		}, []string{"tier", "found"}),
		classifierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_request_duration_seconds",
			Help:      "Latency of classification calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestLatency,
		m.errors,
		m.ticketsCreated,
		m.automation,
		m.classifierCalls,
		m.assignments,
		m.classifierLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTicketCreated counts a creation by its routing outcome.
func (m *Metrics) RecordTicketCreated(outcome string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(outcome).Inc()
}

// RecordAutomation counts one simulated action.
func (m *Metrics) RecordAutomation(category, result string) {
	if m == nil {
		return
	}
	m.automation.WithLabelValues(category, result).Inc()
}

// RecordClassification counts one classification and its latency.
func (m *Metrics) RecordClassification(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.classifierCalls.WithLabelValues(result).Inc()
	m.classifierLatency.Observe(duration.Seconds())
}

// RecordAssignment counts one agent claim.
func (m *Metrics) RecordAssignment(tier string, found bool) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(tier, strconv.FormatBool(found)).Inc()
}

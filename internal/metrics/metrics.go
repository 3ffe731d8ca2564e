// ABOUTME: Prometheus collectors for HTTP traffic, rate limiting, webhooks, and generation
// ABOUTME: Uses a private registry and nil-safe recording helpers

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_gateway"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Metrics holds the gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	functionCalls      *prometheus.CounterVec
	generationJobs     *prometheus.CounterVec
	generationLatency  *prometheus.HistogramVec
	queueDepth         prometheus.Gauge
	dispatches         *prometheus.CounterVec
	sessionCompletions *prometheus.CounterVec
}

// New creates Metrics with Go runtime and process collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Requests refused by the rate limiter",
		}, []string{"namespace"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound agent webhook events by type",
		}, []string{"type"}),
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "function_calls_total",
			Help:      "Function-call events by registered action and outcome",
		}, []string{"action", "outcome"}),
		generationJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "jobs_total",
			Help:      "Content generation jobs by kind and outcome",
		}, []string{"kind", "outcome"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Latency of backend content generation calls",
			Buckets:   histogramBuckets,
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "queue_depth",
			Help:      "Generation jobs waiting or running",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "dispatches_total",
			Help:      "Agent dispatch attempts by outcome",
		}, []string{"outcome"}),
		sessionCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "completions_total",
			Help:      "Study session completions by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestLatency,
		m.rateLimitHits,
		m.webhookEvents,
		m.functionCalls,
		m.generationJobs,
		m.generationLatency,
		m.queueDepth,
		m.dispatches,
		m.sessionCompletions,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) RateLimitHit(ns string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(ns).Inc()
}

func (m *Metrics) WebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType).Inc()
}

// Function-call outcomes.
const (
	FunctionQueued    = "queued"
	FunctionUnknown   = "unknown"
	FunctionQueueFull = "queue_full"
	FunctionInvalid   = "invalid"
)

// UnregisteredAction labels function calls that match no registered function.
const UnregisteredAction = "unregistered"

// FunctionCall counts a function-call event. action must come from the
// registration table, never from the request.
func (m *Metrics) FunctionCall(action, outcome string) {
	if m == nil {
		return
	}
	m.functionCalls.WithLabelValues(action, outcome).Inc()
}

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func (m *Metrics) GenerationJob(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.generationJobs.WithLabelValues(kind, outcome).Inc()
	m.generationLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) Dispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// Session completion outcomes.
const (
	SessionRecorded  = "recorded"
	SessionInvalid   = "invalid"
	SessionDuplicate = "duplicate"
	SessionError     = "error"
)

func (m *Metrics) SessionCompletion(outcome string) {
	if m == nil {
		return
	}
	m.sessionCompletions.WithLabelValues(outcome).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Selection outcomes.
const (
	OutcomePreferred = "preferred"
	OutcomeScored    = "scored"
	OutcomeNone      = "none"
	OutcomeFallback  = "fallback"
)

// Metrics records selection, cost and HTTP telemetry.
type Metrics interface {
	ObserveSelection(capability, provider, outcome string)
	ObserveGeneration(capability, provider string, units int64, cost float64)
	ObserveRecordFailure(capability string)
	ObserveUnknownPricing(provider, model string)
	ObserveBudgetExceeded(period string)
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (NoopMetrics) ObserveSelection(capability, provider, outcome string)                     {}
func (NoopMetrics) ObserveGeneration(capability, provider string, units int64, cost float64) {}
func (NoopMetrics) ObserveRecordFailure(capability string)                                    {}
func (NoopMetrics) ObserveUnknownPricing(provider, model string)                              {}
func (NoopMetrics) ObserveBudgetExceeded(period string)                                       {}
func (NoopMetrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
}

func (NoopMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

// PrometheusMetrics registers collectors on its own registry so several
// instances can coexist in tests.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	selections       *prometheus.CounterVec
	generations      *prometheus.CounterVec
	generationUnits  *prometheus.CounterVec
	generationCost   *prometheus.CounterVec
	recordFailures   *prometheus.CounterVec
	unknownPricing   *prometheus.CounterVec
	budgetExceeded   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors under the given namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_selections_total",
			Help:      "Provider selections by capability, chosen provider and outcome.",
		}, []string{"capability", "provider", "outcome"}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_recorded_total",
			Help:      "Generations durably recorded.",
		}, []string{"capability", "provider"}),
		generationUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_units_total",
			Help:      "Units (tokens, images, requests) consumed by recorded generations.",
		}, []string{"capability", "provider"}),
		generationCost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cost_usd_total",
			Help:      "Cost in USD of recorded generations.",
		}, []string{"capability", "provider"}),
		recordFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_record_failures_total",
			Help:      "Generations whose cost could not be persisted.",
		}, []string{"capability"}),
		unknownPricing: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_pricing_total",
			Help:      "Cost lookups for provider/model pairs missing from the catalog (priced at zero).",
		}, []string{"provider", "model"}),
		budgetExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_exceeded_total",
			Help:      "Budget checks that found a limit exceeded.",
		}, []string{"period"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestTimes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *PrometheusMetrics) ObserveSelection(capability, provider, outcome string) {
	m.selections.WithLabelValues(capability, provider, outcome).Inc()
}

func (m *PrometheusMetrics) ObserveGeneration(capability, provider string, units int64, cost float64) {
	m.generations.WithLabelValues(capability, provider).Inc()
	if units > 0 {
		m.generationUnits.WithLabelValues(capability, provider).Add(float64(units))
	}
	if cost > 0 {
		m.generationCost.WithLabelValues(capability, provider).Add(cost)
	}
}

func (m *PrometheusMetrics) ObserveRecordFailure(capability string) {
	m.recordFailures.WithLabelValues(capability).Inc()
}

func (m *PrometheusMetrics) ObserveUnknownPricing(provider, model string) {
	m.unknownPricing.WithLabelValues(provider, model).Inc()
}

func (m *PrometheusMetrics) ObserveBudgetExceeded(period string) {
	m.budgetExceeded.WithLabelValues(period).Inc()
}

func (m *PrometheusMetrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestTimes.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

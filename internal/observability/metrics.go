package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry     *prometheus.Registry
	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiInflight  prometheus.Gauge
	graphQueries *prometheus.CounterVec
	graphLatency *prometheus.HistogramVec
	linkResults  *prometheus.CounterVec
}

// NewMetrics builds a metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cogat_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cogat_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cogat_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		graphQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cogat_graph_queries_total",
			Help: "Graph backend operations by operation/status.",
		}, []string{"op", "status"}),
		graphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cogat_graph_query_duration_seconds",
			Help:    "Graph backend operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		linkResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cogat_links_total",
			Help: "Link attempts by relation type and outcome (created/existing/failed).",
		}, []string{"relation", "outcome"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.graphQueries, m.graphLatency, m.linkResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveGraphQuery(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.graphQueries.WithLabelValues(op, status).Inc()
	m.graphLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) IncLink(relation, outcome string) {
	if m == nil {
		return
	}
	m.linkResults.WithLabelValues(relation, outcome).Inc()
}

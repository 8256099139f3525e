package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	ChatRequests   *prometheus.CounterVec
	GatewayErrors  *prometheus.CounterVec
	ChartFetches   prometheus.Counter
	ReapedSessions prometheus.Counter
	ModelLatency   prometheus.Histogram
}

// NewMetrics registers the instruments on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of stored chat sessions.",
		}),
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		GatewayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "External gateway failures by gateway and kind.",
		}, []string{"gateway", "kind"}),
		ChartFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_fetches_total",
			Help:      "Birth charts fetched from the chart provider.",
		}),
		ReapedSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_sessions_total",
			Help:      "Sessions removed after exceeding the retention window.",
		}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Model gateway call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
	}
}

func (m *Metrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GatewayFailure(gateway, kind string) {
	if m == nil {
		return
	}
	m.GatewayErrors.WithLabelValues(gateway, kind).Inc()
}

func (m *Metrics) ChartFetched() {
	if m == nil {
		return
	}
	m.ChartFetches.Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Reaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReapedSessions.Add(float64(n))
}

func (m *Metrics) ObserveModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ModelLatency.Observe(float64(d.Milliseconds()))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

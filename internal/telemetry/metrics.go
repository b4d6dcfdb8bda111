package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentbus"

var defaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the Prometheus collectors for the service. Each Metrics owns
// its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	hookEvents   *prometheus.CounterVec
	messages     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// NewMetrics creates a Metrics with the Go and process collectors attached.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   defaultBuckets,
		}, []string{"tool"}),
		hookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_events_total",
			Help:      "Lifecycle hook events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages created by kind (direct, broadcast, host).",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code class.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolCalls,
		m.toolDuration,
		m.hookEvents,
		m.messages,
		m.httpRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordToolCall records a completed tool call.
func (m *Metrics) RecordToolCall(tool, status string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordHookEvent records a processed hook event.
func (m *Metrics) RecordHookEvent(kind, outcome string) {
	m.hookEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordMessages adds n created messages of the given kind.
func (m *Metrics) RecordMessages(kind string, n int) {
	if n <= 0 {
		return
	}
	m.messages.WithLabelValues(kind).Add(float64(n))
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, codeClass(code)).Inc()
}

func codeClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// StateFuncs report live store sizes for gauges.
type StateFuncs struct {
	Sessions       func() int
	Messages       func() int
	UnreadMessages func() int
	Agents         func() int
}

// RegisterState exposes the given functions as gauges. Nil functions are
// skipped.
func (m *Metrics) RegisterState(s StateFuncs) {
	gauges := []struct {
		name string
		help string
		fn   func() int
	}{
		{"sessions", "Active coordination sessions.", s.Sessions},
		{"messages_stored", "Messages held in the store.", s.Messages},
		{"messages_unread", "Unread messages held in the store.", s.UnreadMessages},
		{"agents", "Agents in the directory.", s.Agents},
	}
	for _, g := range gauges {
		if g.fn == nil {
			continue
		}
		fn := g.fn
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return float64(fn()) }))
	}
}

// Handler returns an HTTP handler that serves the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

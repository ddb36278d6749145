package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments recorded by the transports
// and the tool registry.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	toolRuns      *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	tasksByState  *prometheus.CounterVec
	activeStreams prometheus.Gauge
}

var globalMetrics = newMetrics(prometheus.DefaultRegisterer)

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aloha_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aloha_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		toolRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aloha_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aloha_tool_execution_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		tasksByState: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aloha_task_state_transitions_total",
			Help: "Task state transitions by resulting state.",
		}, []string{"state"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aloha_active_streams",
			Help: "Currently open streaming subscriptions.",
		}),
	}
}

// GetGlobalMetrics returns the process-wide metrics instance.
func GetGlobalMetrics() *Metrics {
	return globalMetrics
}

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordToolExecution records one tool run.
func (m *Metrics) RecordToolExecution(tool string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.toolRuns.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTaskState records a task entering a state.
func (m *Metrics) RecordTaskState(state string) {
	m.tasksByState.WithLabelValues(state).Inc()
}

// StreamOpened and StreamClosed track live SSE/gRPC streams.
func (m *Metrics) StreamOpened() { m.activeStreams.Inc() }
func (m *Metrics) StreamClosed() { m.activeStreams.Dec() }

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for toolguard.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Guarded tool calls and dispatcher invocations.
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	InvokeErrors     *prometheus.CounterVec

	// Process engine.
	ProcessSpawnsTotal    *prometheus.CounterVec
	ProcessSpawnDuration  prometheus.Histogram
	ProcessOutputTruncate *prometheus.CounterVec

	// Policy and sandbox decisions.
	SecurityChecksTotal *prometheus.CounterVec

	// Ops HTTP server.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total guarded tool calls by outcome.",
		}, []string{"tool", "status", "reason"}),

		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolguard",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Guarded tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		InvokeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Name:      "invoke_errors_total",
			Help:      "Dispatcher invocations that raised a typed error.",
		}, []string{"tool", "code"}),

		ProcessSpawnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Total child processes spawned by outcome.",
		}, []string{"status"}),

		ProcessSpawnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toolguard",
			Subsystem: "process",
			Name:      "spawn_duration_seconds",
			Help:      "Child process wall-clock duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		ProcessOutputTruncate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Subsystem: "process",
			Name:      "output_truncated_total",
			Help:      "Captured output streams cut at the character cap.",
		}, []string{"stream"}),

		SecurityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Subsystem: "security",
			Name:      "checks_total",
			Help:      "Total security checks performed.",
		}, []string{"check_type", "result"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolguard",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests.",
		}),
	}

	reg.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.InvokeErrors,
		m.ProcessSpawnsTotal,
		m.ProcessSpawnDuration,
		m.ProcessOutputTruncate,
		m.SecurityChecksTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

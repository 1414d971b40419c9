package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/toolguard/internal/config"
	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
)

// --- No-op Path ---

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.Metrics != nil || obs.Tracer != nil || obs.Anomaly != nil {
		t.Errorf("components should be nil when not enabled: %+v", obs)
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
	if obs.ToolObserver() != nil {
		t.Error("ToolObserver should be nil when nothing records")
	}
	inner := &stubSpawner{}
	if got := obs.WrapSpawner(inner); got != sandbox.Spawner(inner) {
		t.Error("WrapSpawner should return the inner spawner unchanged")
	}
}

func TestNew_MetricsAndAnomaly(t *testing.T) {
	obs, err := New(config.ObservabilityConfig{
		Metrics: config.MetricsConfig{Enabled: true},
		Anomaly: config.AnomalyConfig{Enabled: true, ErrorRateThreshold: 0.5},
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.Metrics == nil || obs.Anomaly == nil {
		t.Fatal("expected metrics and anomaly detector")
	}
	if obs.ToolObserver() == nil {
		t.Error("expected a tool observer")
	}
	if _, ok := obs.WrapSpawner(&stubSpawner{}).(*InstrumentedSpawner); !ok {
		t.Error("expected an instrumented spawner")
	}
}

func TestObservability_NilSafe(t *testing.T) {
	var obs *Observability
	obs.Shutdown(context.Background())
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
	if obs.Enabled() {
		t.Error("nil Observability must not be enabled")
	}
}

func TestTracerSetup_NilTracerIsNoop(t *testing.T) {
	var ts *TracerSetup
	_, span := ts.Tracer().Start(context.Background(), "x")
	span.End()
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil = %v", err)
	}
}

func TestNewTracerSetup_Disabled(t *testing.T) {
	ts, err := NewTracerSetup(config.TracingConfig{Enabled: false})
	if err != nil || ts != nil {
		t.Errorf("NewTracerSetup(disabled) = %v, %v; want nil, nil", ts, err)
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Names(t *testing.T) {
	m := NewMetricsCollector()

	// Vectors only appear in Gather after first use.
	m.ToolCallsTotal.WithLabelValues("tree", "success", "").Inc()
	m.InvokeErrors.WithLabelValues("tree", "TOOL_NOT_FOUND").Inc()
	m.ProcessSpawnsTotal.WithLabelValues(SpawnCompleted).Inc()
	m.ProcessOutputTruncate.WithLabelValues("stdout").Inc()
	m.SecurityChecksTotal.WithLabelValues("policy", "allowed").Inc()
	m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"toolguard_tool_calls_total",
		"toolguard_invoke_errors_total",
		"toolguard_process_spawns_total",
		"toolguard_process_spawn_duration_seconds",
		"toolguard_process_output_truncated_total",
		"toolguard_security_checks_total",
		"toolguard_http_requests_total",
		"toolguard_active_requests",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

// --- ToolObserver ---

func TestToolObserver_RecordsMetrics(t *testing.T) {
	m := NewMetricsCollector()
	o := NewToolObserver(m, nil, nil)

	_, done := o.Start(context.Background(), "read_file", tools.ActionCall)
	done(tools.CallRecord{Status: tools.StatusSuccess, Duration: 10 * time.Millisecond})

	_, done = o.Start(context.Background(), "read_file", tools.ActionCall)
	done(tools.CallRecord{Status: tools.StatusDenied, Reason: tools.ReasonPolicy, Err: errors.New("denied")})

	_, done = o.Start(context.Background(), "apply_patch", tools.ActionInvoke)
	done(tools.CallRecord{Status: tools.StatusDenied, Reason: tools.ReasonSandbox, Code: tools.CodeInternal})

	if v := counterValue(t, m.Registry, "toolguard_tool_calls_total", prometheus.Labels{"tool": "read_file", "status": "success", "reason": ""}); v != 1 {
		t.Errorf("success calls = %v, want 1", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_tool_calls_total", prometheus.Labels{"tool": "read_file", "status": "denied", "reason": "policy"}); v != 1 {
		t.Errorf("denied calls = %v, want 1", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_invoke_errors_total", prometheus.Labels{"tool": "apply_patch", "code": "INTERNAL"}); v != 1 {
		t.Errorf("invoke errors = %v, want 1", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_security_checks_total", prometheus.Labels{"check_type": "policy", "result": "denied"}); v != 1 {
		t.Errorf("policy denials = %v, want 1", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_security_checks_total", prometheus.Labels{"check_type": "policy", "result": "allowed"}); v != 2 {
		t.Errorf("policy allows = %v, want 2", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_security_checks_total", prometheus.Labels{"check_type": "sandbox", "result": "denied"}); v != 1 {
		t.Errorf("sandbox denials = %v, want 1", v)
	}
}

func TestToolObserver_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	ts := newTracerSetup("test", sdktrace.WithSpanProcessor(sr))
	defer ts.Shutdown(context.Background())

	o := NewToolObserver(nil, ts, nil)
	ctx, done := o.Start(context.Background(), "tree", tools.ActionInvoke)
	if !traceSpanValid(ctx) {
		t.Error("Start should return a context carrying the span")
	}
	done(tools.CallRecord{Status: tools.StatusFailure, Reason: tools.ReasonRuntime, Err: errors.New("boom")})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "tool.invoke" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
}

func TestToolObserver_Anomaly(t *testing.T) {
	a := NewAnomalyDetector(config.AnomalyConfig{ErrorRateThreshold: 0.5}, nil)
	o := NewToolObserver(nil, nil, a)
	for _, status := range []tools.Status{tools.StatusSuccess, tools.StatusDenied, tools.StatusFailure} {
		_, done := o.Start(context.Background(), "exec_command", tools.ActionCall)
		done(tools.CallRecord{Status: status})
	}
	rate, total := a.ErrorRate("tool:exec_command")
	if total != 3 {
		t.Fatalf("total = %v, want 3", total)
	}
	if rate < 0.66 || rate > 0.67 {
		t.Errorf("rate = %v, want 2/3", rate)
	}
}

func TestSecurityChecks_SkipsLookupFailures(t *testing.T) {
	if got := securityChecks(tools.CallRecord{Status: tools.StatusFailure, Code: tools.CodeToolNotFound}); got != nil {
		t.Errorf("securityChecks = %v, want nil", got)
	}
	got := securityChecks(tools.CallRecord{Status: tools.StatusSuccess, Bypassed: true})
	if len(got) != 2 || got[0] != [2]string{"policy", "bypassed"} || got[1] != [2]string{"sandbox", "allowed"} {
		t.Errorf("securityChecks = %v", got)
	}
}

// --- InstrumentedSpawner ---

type stubSpawner struct {
	result *sandbox.SpawnResult
	err    error
}

func (s *stubSpawner) Spawn(context.Context, []string, sandbox.SpawnOptions) (*sandbox.SpawnResult, error) {
	return s.result, s.err
}

func TestInstrumentedSpawner_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		result *sandbox.SpawnResult
		err    error
		want   string
	}{
		{"completed", &sandbox.SpawnResult{}, nil, SpawnCompleted},
		{"nonzero", &sandbox.SpawnResult{ExitCode: 2}, nil, SpawnNonZeroExit},
		{"timeout", &sandbox.SpawnResult{ExitCode: 124, TimedOut: true}, nil, SpawnTimedOut},
		{"error", nil, sandbox.ErrCommandNotFound, SpawnError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetricsCollector()
			s := NewInstrumentedSpawner(&stubSpawner{result: tt.result, err: tt.err}, m, nil, nil)

			res, err := s.Spawn(context.Background(), []string{"/bin/true"}, sandbox.SpawnOptions{})
			if res != tt.result || !errors.Is(err, tt.err) {
				t.Errorf("Spawn passthrough = %v, %v", res, err)
			}
			if v := counterValue(t, m.Registry, "toolguard_process_spawns_total", prometheus.Labels{"status": tt.want}); v != 1 {
				t.Errorf("spawns{status=%s} = %v, want 1", tt.want, v)
			}
		})
	}
}

func TestInstrumentedSpawner_Truncation(t *testing.T) {
	m := NewMetricsCollector()
	s := NewInstrumentedSpawner(&stubSpawner{result: &sandbox.SpawnResult{StdoutTruncated: true}}, m, nil, nil)
	if _, err := s.Spawn(context.Background(), []string{"cat"}, sandbox.SpawnOptions{}); err != nil {
		t.Fatal(err)
	}
	if v := counterValue(t, m.Registry, "toolguard_process_output_truncated_total", prometheus.Labels{"stream": "stdout"}); v != 1 {
		t.Errorf("stdout truncations = %v, want 1", v)
	}
	if v := counterValue(t, m.Registry, "toolguard_process_output_truncated_total", prometheus.Labels{"stream": "stderr"}); v != 0 {
		t.Errorf("stderr truncations = %v, want 0", v)
	}
}

func TestInstrumentedSpawner_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	ts := newTracerSetup("test", sdktrace.WithSpanProcessor(sr))
	defer ts.Shutdown(context.Background())

	s := NewInstrumentedSpawner(&stubSpawner{result: &sandbox.SpawnResult{}}, nil, ts, nil)
	if _, err := s.Spawn(context.Background(), []string{"/usr/bin/git", "status"}, sandbox.SpawnOptions{}); err != nil {
		t.Fatal(err)
	}
	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "process.spawn" {
		t.Fatalf("spans = %v", spans)
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "process.executable.name" && kv.Value.AsString() != "git" {
			t.Errorf("executable = %q, want git", kv.Value.AsString())
		}
	}
}

// --- AnomalyDetector ---

func TestAnomalyDetector_Threshold(t *testing.T) {
	a := NewAnomalyDetector(config.AnomalyConfig{ErrorRateThreshold: 0.5}, nil)
	a.RecordSuccess("op")
	a.RecordSuccess("op")
	if a.RecordError("op") || a.RecordError("op") {
		t.Error("anomaly flagged before enough samples")
	}
	if !a.RecordError("op") {
		t.Error("3 of 5 failures should exceed a 0.5 threshold")
	}
}

func TestAnomalyDetector_WindowExpiry(t *testing.T) {
	now := time.Now()
	a := NewAnomalyDetector(config.AnomalyConfig{WindowSeconds: 60, ErrorRateThreshold: 0.5}, nil)
	a.now = func() time.Time { return now }
	a.RecordError("op")
	a.RecordSuccess("op")

	a.now = func() time.Time { return now.Add(2 * time.Minute) }
	if rate, total := a.ErrorRate("op"); rate != 0 || total != 0 {
		t.Errorf("ErrorRate after expiry = %v, %v; want 0, 0", rate, total)
	}
}

func TestAnomalyDetector_NilSafe(t *testing.T) {
	var a *AnomalyDetector
	a.RecordSuccess("op")
	if a.RecordError("op") {
		t.Error("nil detector must not flag")
	}
}

// --- HealthChecker ---

func TestHealthChecker_Ready(t *testing.T) {
	h := NewHealthChecker(nil)
	if got := h.CheckReady(context.Background()); got.Status != StatusOK || got.Checks != nil {
		t.Errorf("no checks = %+v", got)
	}

	h.AddCheck("audit", func(context.Context) error { return nil })
	h.AddCheck("db", func(context.Context) error { return errors.New("connection refused") })

	got := h.CheckReady(context.Background())
	if got.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", got.Status)
	}
	if got.Checks["audit"].Status != StatusOK {
		t.Errorf("audit = %+v", got.Checks["audit"])
	}
	if c := got.Checks["db"]; c.Status != StatusFail || c.Message != "connection refused" {
		t.Errorf("db = %+v", c)
	}
	if h.CheckHealth().Status != StatusOK {
		t.Error("liveness must always be ok")
	}
}

// --- HTTP Middleware ---

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	val := counterValue(t, metrics.Registry, "toolguard_http_requests_total", prometheus.Labels{"method": "GET", "path": "/readyz", "status_code": "503"})
	if val != 1 {
		t.Errorf("http requests = %v, want 1", val)
	}
}

func TestHTTPMetricsMiddleware_ImplicitOK(t *testing.T) {
	metrics := NewMetricsCollector()
	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	val := counterValue(t, metrics.Registry, "toolguard_http_requests_total", prometheus.Labels{"method": "GET", "path": "/healthz", "status_code": "200"})
	if val != 1 {
		t.Errorf("http requests = %v, want 1", val)
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// --- Helpers ---

func traceSpanValid(ctx context.Context) bool {
	return trace.SpanFromContext(ctx).SpanContext().IsValid()
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

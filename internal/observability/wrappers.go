package observability

import (
	"context"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
)

// Process spawn outcomes.
const (
	SpawnCompleted   = "completed"
	SpawnNonZeroExit = "nonzero_exit"
	SpawnTimedOut    = "timed_out"
	SpawnError       = "error"
)

// Security check results.
const (
	checkAllowed  = "allowed"
	checkDenied   = "denied"
	checkBypassed = "bypassed"
)

func tracerFrom(ts *TracerSetup) trace.Tracer {
	if ts == nil {
		return nil
	}
	return ts.Tracer()
}

// --- ToolObserver ---

// ToolObserver implements tools.Observer with metrics, tracing, and anomaly
// detection. Guarded calls get a "tool.call" span, dispatcher invocations a
// "tool.invoke" span.
type ToolObserver struct {
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewToolObserver builds an observer. Any component may be nil.
func NewToolObserver(metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *ToolObserver {
	return &ToolObserver{
		metrics: metrics,
		tracer:  tracerFrom(ts),
		anomaly: anomaly,
	}
}

var _ tools.Observer = (*ToolObserver)(nil)

// Start implements tools.Observer.
func (o *ToolObserver) Start(ctx context.Context, tool, action string) (context.Context, func(tools.CallRecord)) {
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "tool."+action,
			trace.WithAttributes(
				attribute.String("tool.name", tool),
				attribute.String("tool.action", action),
			))
	}

	return ctx, func(rec tools.CallRecord) {
		if span != nil {
			span.SetAttributes(
				attribute.String("tool.status", string(rec.Status)),
				attribute.Bool("tool.bypassed", rec.Bypassed),
			)
			if rec.Reason != "" {
				span.SetAttributes(attribute.String("tool.reason", string(rec.Reason)))
			}
			if rec.Code != "" {
				span.SetAttributes(attribute.String("tool.error_code", rec.Code))
			}
			if rec.Err != nil {
				span.RecordError(rec.Err)
				span.SetStatus(codes.Error, rec.Err.Error())
			}
			span.End()
		}

		if o.metrics != nil {
			o.metrics.ToolCallsTotal.WithLabelValues(tool, string(rec.Status), string(rec.Reason)).Inc()
			o.metrics.ToolCallDuration.WithLabelValues(tool).Observe(rec.Duration.Seconds())
			if action == tools.ActionInvoke && rec.Code != "" {
				o.metrics.InvokeErrors.WithLabelValues(tool, rec.Code).Inc()
			}
			for _, c := range securityChecks(rec) {
				o.metrics.SecurityChecksTotal.WithLabelValues(c[0], c[1]).Inc()
			}
		}

		if o.anomaly != nil {
			op := "tool:" + tool
			if rec.Status == tools.StatusSuccess {
				o.anomaly.RecordSuccess(op)
			} else {
				o.anomaly.RecordError(op)
			}
		}
	}
}

// securityChecks derives the policy and sandbox decisions a record implies,
// as (check_type, result) pairs. Lookups that never reached the policy
// (unknown tool, malformed arguments) yield nothing.
func securityChecks(rec tools.CallRecord) [][2]string {
	switch rec.Code {
	case tools.CodeToolNotFound, tools.CodeInvalidArgumentsType:
		return nil
	}

	policy := checkAllowed
	if rec.Bypassed {
		policy = checkBypassed
	}

	switch {
	case rec.Reason == tools.ReasonPolicy:
		return [][2]string{{"policy", checkDenied}}
	case rec.Reason == tools.ReasonSandbox:
		return [][2]string{{"policy", policy}, {"sandbox", checkDenied}}
	case rec.Status == tools.StatusSuccess:
		return [][2]string{{"policy", policy}, {"sandbox", checkAllowed}}
	default:
		return [][2]string{{"policy", policy}}
	}
}

// --- InstrumentedSpawner ---

// InstrumentedSpawner wraps a sandbox.Spawner with metrics, tracing, and
// anomaly detection.
type InstrumentedSpawner struct {
	inner   sandbox.Spawner
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedSpawner wraps a spawner with observability.
func NewInstrumentedSpawner(inner sandbox.Spawner, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedSpawner {
	return &InstrumentedSpawner{
		inner:   inner,
		metrics: metrics,
		tracer:  tracerFrom(ts),
		anomaly: anomaly,
	}
}

var _ sandbox.Spawner = (*InstrumentedSpawner)(nil)

// Spawn implements sandbox.Spawner. Only the program name is attached to the
// span; arguments may carry secrets.
func (s *InstrumentedSpawner) Spawn(ctx context.Context, command []string, opts sandbox.SpawnOptions) (*sandbox.SpawnResult, error) {
	var span trace.Span
	if s.tracer != nil {
		program := ""
		if len(command) > 0 {
			program = filepath.Base(command[0])
		}
		ctx, span = s.tracer.Start(ctx, "process.spawn",
			trace.WithAttributes(
				attribute.String("process.executable.name", program),
				attribute.Int64("process.timeout_ms", opts.Timeout.Milliseconds()),
			))
		defer span.End()
	}

	start := time.Now()
	result, err := s.inner.Spawn(ctx, command, opts)
	duration := time.Since(start)

	status := spawnStatus(result, err)
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if result != nil {
			span.SetAttributes(
				attribute.Int("process.exit_code", result.ExitCode),
				attribute.Bool("process.timed_out", result.TimedOut),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.ProcessSpawnsTotal.WithLabelValues(status).Inc()
		s.metrics.ProcessSpawnDuration.Observe(duration.Seconds())
		if result != nil {
			if result.StdoutTruncated {
				s.metrics.ProcessOutputTruncate.WithLabelValues("stdout").Inc()
			}
			if result.StderrTruncated {
				s.metrics.ProcessOutputTruncate.WithLabelValues("stderr").Inc()
			}
		}
	}

	if s.anomaly != nil {
		if status == SpawnCompleted || status == SpawnNonZeroExit {
			s.anomaly.RecordSuccess("process_spawn")
		} else {
			s.anomaly.RecordError("process_spawn")
		}
	}

	return result, err
}

func spawnStatus(result *sandbox.SpawnResult, err error) string {
	switch {
	case err != nil || result == nil:
		return SpawnError
	case result.TimedOut:
		return SpawnTimedOut
	case result.ExitCode != 0:
		return SpawnNonZeroExit
	default:
		return SpawnCompleted
	}
}

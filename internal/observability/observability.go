// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// health checks, and anomaly detection for toolguard.
// All components are optional and nil-safe: when disabled, wrappers
// skip recording with a single nil check per operation.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jkaninda/toolguard/internal/config"
	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
)

// Observability is the top-level facade holding all observability components.
// Any field may be nil when that feature is disabled.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerSetup
	Anomaly *AnomalyDetector
	Health  *HealthChecker
}

// New creates an Observability instance from config.
func New(cfg config.ObservabilityConfig, logger *slog.Logger) (*Observability, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	obs := &Observability{}

	if cfg.Metrics.Enabled {
		obs.Metrics = NewMetricsCollector()
	}

	if cfg.Tracing.Enabled {
		ts, err := NewTracerSetup(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		obs.Tracer = ts
	}

	if cfg.Anomaly.Enabled {
		obs.Anomaly = NewAnomalyDetector(cfg.Anomaly, logger)
	}

	// Always created; checks are registered by the caller.
	obs.Health = NewHealthChecker(logger)

	return obs, nil
}

// Shutdown releases observability resources.
func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	if o.Tracer != nil {
		_ = o.Tracer.Shutdown(ctx)
	}
}

// TracerOrNil returns the OTel tracer or nil if tracing is disabled.
func (o *Observability) TracerOrNil() *TracerSetup {
	if o == nil {
		return nil
	}
	return o.Tracer
}

// Enabled reports whether any recording component is active.
func (o *Observability) Enabled() bool {
	return o != nil && (o.Metrics != nil || o.Tracer != nil || o.Anomaly != nil)
}

// ToolObserver returns a tools.Observer, or nil when nothing records.
// A nil return keeps the guard pipeline free of observer calls.
func (o *Observability) ToolObserver() tools.Observer {
	if !o.Enabled() {
		return nil
	}
	return NewToolObserver(o.Metrics, o.Tracer, o.Anomaly)
}

// WrapSpawner instruments a process spawner. It returns inner unchanged when
// metrics and tracing are both off.
func (o *Observability) WrapSpawner(inner sandbox.Spawner) sandbox.Spawner {
	if !o.Enabled() {
		return inner
	}
	return NewInstrumentedSpawner(inner, o.Metrics, o.Tracer, o.Anomaly)
}

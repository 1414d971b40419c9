package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
)

// Audit actions.
const (
	ActionCall   = "call"
	ActionInvoke = "invoke"
)

// CallRecord summarizes one guarded call or dispatcher invocation.
type CallRecord struct {
	Tool     string
	Action   string // ActionCall or ActionInvoke
	Status   Status
	Reason   Reason
	Code     string // dispatcher error code, if any
	Bypassed bool
	Duration time.Duration
	Err      error
}

// Observer is notified around every guarded call and invocation.
// Start may return a derived context (e.g. carrying a span); the returned
// func is called exactly once with the outcome.
type Observer interface {
	Start(ctx context.Context, tool, action string) (context.Context, func(CallRecord))
}

// Option configures NewSecureTool and NewDispatcher.
type Option func(*guardConfig)

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *guardConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAuditor records an AuditEvent for every call.
func WithAuditor(a security.Auditor) Option {
	return func(c *guardConfig) { c.auditor = a }
}

// WithObserver attaches metrics/tracing hooks.
func WithObserver(o Observer) Option {
	return func(c *guardConfig) { c.observer = o }
}

type guardConfig struct {
	logger   *slog.Logger
	auditor  security.Auditor
	observer Observer
}

func newGuardConfig(opts []Option) *guardConfig {
	c := &guardConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// begin assigns a correlation ID and starts the observer. The returned
// finish func audits, logs and reports the record.
func (c *guardConfig) begin(ctx context.Context, tool, action string) (context.Context, func(CallRecord, string)) {
	ctx, correlationID := ensureCorrelationID(ctx)
	start := time.Now()

	var observed func(CallRecord)
	if c.observer != nil {
		ctx, observed = c.observer.Start(ctx, tool, action)
	}

	return ctx, func(rec CallRecord, path string) {
		rec.Tool = tool
		rec.Action = action
		rec.Bypassed = security.IsBypassed(ctx)
		rec.Duration = time.Since(start)

		if observed != nil {
			observed(rec)
		}
		c.audit(ctx, rec, correlationID, path)

		attrs := []any{
			slog.String("tool", tool),
			slog.String("action", action),
			slog.String("status", string(rec.Status)),
			slog.String("correlation_id", correlationID),
			slog.Duration("duration", rec.Duration),
		}
		if rec.Status == StatusSuccess {
			c.logger.DebugContext(ctx, "tool call completed", attrs...)
			return
		}
		attrs = append(attrs, slog.String("reason", string(rec.Reason)))
		if rec.Code != "" {
			attrs = append(attrs, slog.String("code", rec.Code))
		}
		if rec.Err != nil {
			attrs = append(attrs, slog.String("error", rec.Err.Error()))
		}
		if rec.Status == StatusDenied {
			c.logger.WarnContext(ctx, "tool call denied", attrs...)
		} else {
			c.logger.InfoContext(ctx, "tool call failed", attrs...)
		}
	}
}

// audit failures are logged, never surfaced to the caller.
func (c *guardConfig) audit(ctx context.Context, rec CallRecord, correlationID, path string) {
	if c.auditor == nil {
		return
	}
	event := security.AuditEvent{
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Tool:          rec.Tool,
		Action:        rec.Action,
		Result:        string(rec.Status),
		Reason:        string(rec.Reason),
		Bypassed:      rec.Bypassed,
		Path:          path,
	}
	if rec.Err != nil {
		event.Error = rec.Err.Error()
	}
	if err := c.auditor.LogAction(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "audit logging failed",
			slog.String("tool", rec.Tool),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// checkCall runs the shared guard pipeline: authorize, then containCall.
// Classify a returned error with denialReason.
func checkCall(ctx context.Context, tc ToolContext, meta Metadata, args []any, normalizeSlashes bool) ([]any, error) {
	if err := security.Authorize(ctx, meta.Name, tc.Policy); err != nil {
		return nil, err
	}
	return containCall(tc, meta, args, normalizeSlashes)
}

// containCall validates the access mode and resolves a string first
// argument into the workspace. It returns a copy of args with the first
// one rewritten; the caller's slice is never modified.
func containCall(tc ToolContext, meta Metadata, args []any, normalizeSlashes bool) ([]any, error) {
	if err := sandbox.ValidateAccess(tc.WriteScope, meta.IsWriteOp); err != nil {
		return nil, err
	}

	out := make([]any, len(args))
	copy(out, args)
	if len(out) > 0 {
		if p, ok := out[0].(string); ok {
			if normalizeSlashes {
				p = strings.ReplaceAll(p, `\`, "/")
			}
			resolved, err := sandbox.ResolveInWorkspace(p, tc.WorkspaceRoot)
			if err != nil {
				return nil, err
			}
			out[0] = resolved
		}
	}
	return out, nil
}

// denialReason classifies a guard error by identity.
func denialReason(err error) Reason {
	if errors.Is(err, security.ErrPolicyDenied) {
		return ReasonPolicy
	}
	return ReasonSandbox
}

// firstPath returns the path argument recorded in audit events.
func firstPath(args []any) string {
	if len(args) == 0 {
		return ""
	}
	p, _ := args[0].(string)
	return p
}

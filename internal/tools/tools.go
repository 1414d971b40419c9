// Package tools defines the guardrail substrate every tool call passes
// through: the per-call ToolContext, the tri-state Result, the secure
// wrapper (NewSecureTool), the tool catalog and the name-based Dispatcher.
//
// Both the wrapper and the dispatcher run the same pipeline:
// authorize -> validate access mode -> resolve the path argument -> execute.
// The wrapper reports the outcome as a Result; the dispatcher raises typed
// errors instead.
package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
)

// Env describes the host the tools run on.
type Env struct {
	Platform  sandbox.Platform `json:"platform"`
	OSRelease string           `json:"os_release"`
}

// ToolContext is created once per session and threaded through every call.
// It is never mutated after construction.
type ToolContext struct {
	WorkspaceRoot string                // always absolute
	WriteScope    sandbox.AccessMode    // read-only, workspace-write or unrestricted
	Policy        security.PolicyConfig // per-tool allow/deny
	Env           Env
}

// ContextOptions configures NewContext. Zero values select defaults.
type ContextOptions struct {
	WorkspaceRoot string
	WriteScope    sandbox.AccessMode     // default read-only
	Policy        *security.PolicyConfig // default: deny every tool
}

// NewContext builds a ToolContext, resolving the workspace root to an
// absolute path and detecting the host platform.
func NewContext(opts ContextOptions) (ToolContext, error) {
	if opts.WorkspaceRoot == "" {
		return ToolContext{}, fmt.Errorf("workspace root must not be empty")
	}
	root, err := filepath.Abs(opts.WorkspaceRoot)
	if err != nil {
		return ToolContext{}, fmt.Errorf("resolving workspace root: %w", err)
	}

	scope := opts.WriteScope
	if scope == "" {
		scope = sandbox.AccessReadOnly
	}
	if _, err := sandbox.ParseAccessMode(string(scope)); err != nil {
		return ToolContext{}, err
	}

	policy := security.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
		if policy.Tools == nil {
			policy.Tools = map[string]security.AccessLevel{}
		}
	}

	return ToolContext{
		WorkspaceRoot: root,
		WriteScope:    scope,
		Policy:        policy,
		Env: Env{
			Platform:  sandbox.CurrentPlatform(),
			OSRelease: sandbox.OSRelease(),
		},
	}, nil
}

// Metadata is the static description of a tool, supplied at registration.
type Metadata struct {
	Name        string
	IsWriteOp   bool
	Description string
}

// Handler is the raw domain operation behind a tool. It returns an error
// on domain failure; it never sees an unauthorized or out-of-workspace call.
type Handler func(ctx context.Context, tc ToolContext, args ...any) (any, error)

// Status is the outcome class of a guarded call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// Reason explains a failure or denial.
type Reason string

const (
	ReasonPolicy  Reason = "policy"
	ReasonSandbox Reason = "sandbox"
	ReasonRuntime Reason = "runtime"
)

// Result is the tri-state outcome of a guarded call: success with Data, or
// failure/denied with a Reason and Message. Exactly one per call.
type Result struct {
	Status  Status `json:"status"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

func successResult(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

func deniedResult(reason Reason, err error) Result {
	return Result{Status: StatusDenied, Reason: reason, Message: err.Error()}
}

func failureResult(err error) Result {
	return Result{Status: StatusFailure, Reason: ReasonRuntime, Message: err.Error()}
}

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const correlationIDKey contextKey = iota

// ContextWithCorrelationID returns a context carrying the correlation ID
// recorded in audit events and spans.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID, or "" if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// ensureCorrelationID assigns a fresh ID unless the caller already set one.
func ensureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithCorrelationID(ctx, id), id
}

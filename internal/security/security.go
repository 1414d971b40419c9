// Package security implements the per-tool allow/deny policy engine, the
// call-scoped authorization bypass, and audit logging for guarded tool calls.
package security

import (
	"context"
	"errors"
	"time"
)

// ErrPolicyDenied is matched by every policy denial.
var ErrPolicyDenied = errors.New("policy denied")

// Audit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// AuditEvent is a single entry in the append-only audit log.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Tool          string    `json:"tool"`
	Action        string    `json:"action"` // "call" (guarded call) or "invoke" (dispatcher)
	Result        string    `json:"result"` // "success", "failure", "denied"
	Reason        string    `json:"reason,omitempty"`
	Bypassed      bool      `json:"bypassed,omitempty"`
	Path          string    `json:"path,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Auditor records audit events.
// Implementations must be safe for concurrent use.
type Auditor interface {
	LogAction(ctx context.Context, event AuditEvent) error
}

// MultiAuditor fans an event out to several auditors. Every auditor is
// attempted; the returned error joins their failures.
type MultiAuditor []Auditor

// LogAction implements Auditor.
func (m MultiAuditor) LogAction(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.LogAction(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

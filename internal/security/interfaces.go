package security

import (
	"context"
	"io"
	"log/slog"
)

// AuditStore is an append-only store for audit events.
// No update or delete methods: immutability is enforced at the interface level.
type AuditStore interface {
	// Append writes a single audit event. Never updates or deletes.
	Append(ctx context.Context, event AuditEvent) error
}

// StoreAuditor adapts an AuditStore to the Auditor interface.
type StoreAuditor struct {
	store  AuditStore
	logger *slog.Logger
}

// NewStoreAuditor creates a database-backed auditor.
func NewStoreAuditor(store AuditStore, logger *slog.Logger) *StoreAuditor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StoreAuditor{store: store, logger: logger}
}

// LogAction appends the event to the store.
func (a *StoreAuditor) LogAction(ctx context.Context, event AuditEvent) error {
	if err := a.store.Append(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to store audit event",
			slog.String("tool", event.Tool),
			slog.String("correlation_id", event.CorrelationID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/toolguard/internal/security"
)

// AuditEventModel maps to the "audit_events" table.
// No UpdatedAt or DeletedAt: the audit log is append-only.
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID string    `gorm:"index"`
	Tool          string    `gorm:"not null;index"`
	Action        string    `gorm:"not null"`
	Result        string    `gorm:"not null"`
	Reason        string
	Bypassed      bool `gorm:"not null;default:false"`
	Path          string
	Error         string
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

// Models lists every table in migration order. Shared with the SQLite backend.
func Models() []any {
	return []any{&AuditEventModel{}}
}

func toAuditModel(event security.AuditEvent) AuditEventModel {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return AuditEventModel{
		ID:            uuid.New(),
		CorrelationID: event.CorrelationID,
		Tool:          event.Tool,
		Action:        event.Action,
		Result:        event.Result,
		Reason:        event.Reason,
		Bypassed:      event.Bypassed,
		Path:          event.Path,
		Error:         event.Error,
		CreatedAt:     ts.UTC(),
	}
}

func toAuditDomain(m *AuditEventModel) security.AuditEvent {
	return security.AuditEvent{
		Timestamp:     m.CreatedAt.UTC(),
		CorrelationID: m.CorrelationID,
		Tool:          m.Tool,
		Action:        m.Action,
		Result:        m.Result,
		Reason:        m.Reason,
		Bypassed:      m.Bypassed,
		Path:          m.Path,
		Error:         m.Error,
	}
}

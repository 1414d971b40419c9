package postgres

import (
	"testing"
	"time"

	"github.com/jkaninda/toolguard/internal/security"
)

func TestAuditModelConversion(t *testing.T) {
	local := time.FixedZone("EST", -5*3600)
	ev := security.AuditEvent{
		Timestamp:     time.Date(2026, 4, 1, 9, 30, 0, 0, local),
		CorrelationID: "c-1",
		Tool:          "tree",
		Action:        "call",
		Result:        "failure",
		Reason:        "runtime",
		Path:          "src",
		Error:         "NOT_FOUND: path does not exist",
	}
	m := toAuditModel(ev)
	if m.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", m.CreatedAt.Location())
	}
	if m.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a generated ID")
	}
	back := toAuditDomain(&m)
	if !back.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp = %v, want %v", back.Timestamp, ev.Timestamp)
	}
	back.Timestamp = ev.Timestamp
	if back != ev {
		t.Errorf("round trip = %+v, want %+v", back, ev)
	}
}

func TestAuditModel_ZeroTimestamp(t *testing.T) {
	before := time.Now()
	m := toAuditModel(security.AuditEvent{Tool: "x"})
	if m.CreatedAt.Before(before.Add(-time.Second)) {
		t.Errorf("CreatedAt = %v, want roughly now", m.CreatedAt)
	}
}

func TestOpen_BadDSN(t *testing.T) {
	if _, err := Open(Config{DSN: "postgres://%zz"}, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	if c.maxOpen() != 10 || c.maxIdle() != 2 {
		t.Errorf("pool defaults = %d/%d", c.maxOpen(), c.maxIdle())
	}
	if c.maxLifetime() != 30*time.Minute || c.maxIdleTime() != 10*time.Minute {
		t.Errorf("lifetime defaults = %v/%v", c.maxLifetime(), c.maxIdleTime())
	}
}

//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := OpenStore(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuditRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	corr := uuid.NewString()

	ev := security.AuditEvent{
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		CorrelationID: corr,
		Tool:          "apply_patch",
		Action:        "invoke",
		Result:        "denied",
		Reason:        "policy",
		Bypassed:      true,
		Path:          "src/main.go",
		Error:         "[Policy Violation] Tool denied",
	}
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.List(ctx, storage.AuditQuery{CorrelationID: corr})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List returned %d events", len(got))
	}
	if got[0] != ev {
		t.Errorf("round trip = %+v, want %+v", got[0], ev)
	}
}

func TestAuditPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tool := "prune-" + uuid.NewString()[:8]

	old := security.AuditEvent{Timestamp: time.Now().Add(-100 * 24 * time.Hour), Tool: tool, Action: "call", Result: "success"}
	fresh := security.AuditEvent{Timestamp: time.Now(), Tool: tool, Action: "call", Result: "success"}
	for _, e := range []security.AuditEvent{old, fresh} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Prune(ctx, time.Now().Add(-90*24*time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	left, err := s.List(ctx, storage.AuditQuery{Tool: tool})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("remaining = %d, want 1", len(left))
	}
}

package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *recordingPruner) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, olderThan)
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

func TestNewRetention_Validation(t *testing.T) {
	if _, err := NewRetention(&recordingPruner{}, 0, "@daily", nil); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := NewRetention(&recordingPruner{}, time.Hour, "not a schedule", nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := NewRetention(&recordingPruner{}, time.Hour, "@daily", nil); err != nil {
		t.Errorf("descriptor schedule rejected: %v", err)
	}
}

func TestRetention_RunOnceCutoff(t *testing.T) {
	p := &recordingPruner{}
	r, err := NewRetention(p, 30*24*time.Hour, "0 3 * * *", nil)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoffs = %v, want [%v]", p.cutoffs, want)
	}
}

func TestRetention_RunOnceError(t *testing.T) {
	p := &recordingPruner{err: errors.New("disk full")}
	r, err := NewRetention(p, time.Hour, "@hourly", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Error("expected prune error to surface")
	}
}

func TestRetention_Next(t *testing.T) {
	r, err := NewRetention(&recordingPruner{}, time.Hour, "0 3 * * *", nil)
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC)
	want := time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC)
	if got := r.Next(from); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestRetention_StartStops(t *testing.T) {
	p := &recordingPruner{}
	r, err := NewRetention(p, time.Hour, "@yearly", nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel := r.Start(context.Background())
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cutoffs) != 0 {
		t.Errorf("job ran %d times before its schedule", len(p.cutoffs))
	}
}

func TestAuditQuery_EffectiveLimit(t *testing.T) {
	if got := (AuditQuery{}).EffectiveLimit(); got != DefaultQueryLimit {
		t.Errorf("zero limit = %d", got)
	}
	if got := (AuditQuery{Limit: 7}).EffectiveLimit(); got != 7 {
		t.Errorf("limit = %d", got)
	}
}

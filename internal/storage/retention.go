package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner is the subset of AuditStore the retention job needs.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Retention deletes audit events older than a fixed window on a cron schedule.
type Retention struct {
	store    Pruner
	window   time.Duration
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

// NewRetention parses a standard five-field cron expression (descriptors
// such as @daily are accepted) and returns the job.
func NewRetention(store Pruner, window time.Duration, expr string, logger *slog.Logger) (*Retention, error) {
	if window <= 0 {
		return nil, fmt.Errorf("retention window must be positive")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Retention{
		store:    store,
		window:   window,
		schedule: sched,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Next returns the next scheduled run after t.
func (r *Retention) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// RunOnce prunes everything older than now minus the window.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.window)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "audit retention failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	r.logger.InfoContext(ctx, "audit retention completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", n),
	)
	return n, nil
}

// Start runs the job on schedule until ctx is done or the returned cancel
// func is called.
func (r *Retention) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		r.logger.InfoContext(ctx, "audit retention scheduled",
			slog.Duration("window", r.window),
			slog.Time("next_run", r.Next(r.now())),
		)
		for {
			timer := time.NewTimer(time.Until(r.Next(r.now())))
			select {
			case <-ctx.Done():
				timer.Stop()
				r.logger.Info("audit retention stopped")
				return
			case <-timer.C:
				_, _ = r.RunOnce(ctx)
			}
		}
	}()

	return cancel
}

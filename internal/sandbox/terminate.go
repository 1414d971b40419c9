package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// Terminator stops a running process after a timeout.
// Terminate returns once exited is closed or the strategy has nothing left to try.
type Terminator interface {
	Terminate(proc *os.Process, exited <-chan struct{}) error
}

// NewTerminator selects the termination strategy for a platform:
// process-tree kill through taskkill on Windows, signal escalation elsewhere.
func NewTerminator(platform Platform, grace time.Duration, logger *slog.Logger) Terminator {
	if platform == PlatformWindows {
		return &treeKillTerminator{grace: grace, logger: logger, lookPath: exec.LookPath}
	}
	return &signalTerminator{grace: grace, logger: logger}
}

// signalTerminator sends SIGTERM to the process group, then SIGKILL if the
// group has not exited within the grace window.
type signalTerminator struct {
	grace  time.Duration
	logger *slog.Logger
}

func (t *signalTerminator) Terminate(proc *os.Process, exited <-chan struct{}) error {
	if err := signalGroup(proc, syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.logger.Debug("graceful termination failed", slog.Int("pid", proc.Pid), slog.String("error", err.Error()))
	}

	timer := time.NewTimer(t.grace)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	}

	t.logger.Warn("process ignored SIGTERM, killing", slog.Int("pid", proc.Pid))
	if err := signalGroup(proc, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// treeKillTerminator kills the whole process tree by PID with taskkill.
// When taskkill is unavailable it does nothing.
type treeKillTerminator struct {
	grace    time.Duration
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

func (t *treeKillTerminator) Terminate(proc *os.Process, exited <-chan struct{}) error {
	taskkill, err := t.lookPath("taskkill")
	if err != nil {
		t.logger.Warn("taskkill unavailable, process left running", slog.Int("pid", proc.Pid))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, taskkill, "/T", "/F", "/PID", strconv.Itoa(proc.Pid)).CombinedOutput()
	if err != nil {
		t.logger.Debug("taskkill failed",
			slog.Int("pid", proc.Pid),
			slog.String("output", string(out)),
			slog.String("error", err.Error()),
		)
	}

	timer := time.NewTimer(t.grace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
	}
	return nil
}

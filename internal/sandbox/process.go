package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxOutputChars caps each stream when the caller sets no limit.
	DefaultMaxOutputChars = 1 << 20 // 1 MB

	// DefaultGracePeriod is how long a terminated process gets before a forced kill.
	DefaultGracePeriod = 500 * time.Millisecond

	// Exit codes reported when the child leaves none (killed by a signal).
	exitCodeTimedOut = 124
	exitCodeUnknown  = 1
)

// ProcessConfig configures the process runner.
type ProcessConfig struct {
	// Platform selects the termination strategy. Empty = CurrentPlatform().
	Platform Platform

	// GracePeriod between graceful and forced termination. Zero = DefaultGracePeriod.
	GracePeriod time.Duration

	// Terminator overrides the platform strategy.
	Terminator Terminator
}

// ProcessRunner executes commands as OS processes.
//
// Guarantees:
//   - stdout and stderr are drained concurrently into independently capped buffers
//   - draining continues past the cap so the child never blocks on a full pipe
//   - on timeout the process (and on Unix its process group) is terminated
//   - the exit code is never left unset
type ProcessRunner struct {
	platform   Platform
	terminator Terminator
	logger     *slog.Logger
}

// NewProcessRunner creates a process runner.
func NewProcessRunner(cfg ProcessConfig, logger *slog.Logger) *ProcessRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	platform := cfg.Platform
	if platform == "" {
		platform = CurrentPlatform()
	}
	grace := cfg.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	term := cfg.Terminator
	if term == nil {
		term = NewTerminator(platform, grace, logger)
	}
	return &ProcessRunner{
		platform:   platform,
		terminator: term,
		logger:     logger,
	}
}

// Spawn runs command to completion and returns its captured output.
// The context only carries request-scoped values; the process is bounded by opts.Timeout.
func (r *ProcessRunner) Spawn(ctx context.Context, command []string, opts SpawnOptions) (*SpawnResult, error) {
	if len(command) == 0 {
		return nil, ErrEmptyCommand
	}

	limit := opts.MaxOutputChars
	if limit <= 0 {
		limit = DefaultMaxOutputChars
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = opts.Cwd
	if len(opts.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), opts.Env)
	}
	if opts.Stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}
	configureProcess(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	r.logger.DebugContext(ctx, "process spawning",
		slog.Any("command", command),
		slog.String("dir", opts.Cwd),
		slog.Duration("timeout", opts.Timeout),
		slog.Int("max_output_chars", limit),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if isNotFound(err, command[0]) {
			return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, command[0])
		}
		return nil, fmt.Errorf("starting %s: %w", command[0], err)
	}

	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)

	var drain errgroup.Group
	drain.Go(func() error {
		_, err := io.Copy(stdout, stdoutPipe)
		return err
	})
	drain.Go(func() error {
		_, err := io.Copy(stderr, stderrPipe)
		return err
	})

	// Pipes must be fully read before Wait closes them.
	var drainErr, waitErr error
	exited := make(chan struct{})
	go func() {
		drainErr = drain.Wait()
		waitErr = cmd.Wait()
		close(exited)
	}()

	timedOut := false
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		select {
		case <-exited:
			timer.Stop()
		case <-timer.C:
			timedOut = true
			r.logger.WarnContext(ctx, "process timed out, terminating",
				slog.Int("pid", cmd.Process.Pid),
				slog.Duration("timeout", opts.Timeout),
			)
			if err := r.terminator.Terminate(cmd.Process, exited); err != nil {
				r.logger.WarnContext(ctx, "process termination failed",
					slog.Int("pid", cmd.Process.Pid),
					slog.String("error", err.Error()),
				)
			}
			<-exited
		}
	} else {
		<-exited
	}
	duration := time.Since(start)

	if drainErr != nil {
		r.logger.WarnContext(ctx, "process output drain failed", slog.String("error", drainErr.Error()))
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.logger.WarnContext(ctx, "process wait failed", slog.String("error", waitErr.Error()))
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if exitCode < 0 {
		if timedOut {
			exitCode = exitCodeTimedOut
		} else {
			exitCode = exitCodeUnknown
		}
	}

	r.logger.DebugContext(ctx, "process completed",
		slog.Int("exit_code", exitCode),
		slog.Bool("timed_out", timedOut),
		slog.Duration("duration", duration),
		slog.Bool("stdout_truncated", stdout.truncated),
		slog.Bool("stderr_truncated", stderr.truncated),
	)

	return &SpawnResult{
		ExitCode:        exitCode,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		TimedOut:        timedOut,
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Duration:        duration,
	}, nil
}

// isNotFound reports whether a start failure means the executable does not exist.
func isNotFound(err error, name string) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) || !strings.ContainsAny(name, `/\`) {
		return false
	}
	_, statErr := os.Stat(name)
	return errors.Is(statErr, fs.ErrNotExist)
}

// mergeEnv overlays extra "KEY=value" entries on base; later keys win.
func mergeEnv(base, extra []string) []string {
	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range append(append([]string{}, base...), extra...) {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}
	return out
}

// cappedBuffer keeps the first limit bytes written and discards the rest,
// recording that it did so. It never returns a short write.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the captured text. A multi-byte sequence split by the cap is dropped.
func (b *cappedBuffer) String() string {
	out := b.buf.Bytes()
	if b.truncated {
		out = trimPartialRune(out)
	}
	return string(out)
}

func trimPartialRune(p []byte) []byte {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:]) {
				return p[:i]
			}
			return p
		}
	}
	return p
}

// Package sandbox confines tool activity to a workspace.
// It resolves caller-supplied paths into the workspace root, gates write
// operations on the workspace access mode, and runs OS processes under a
// bounded wall-clock timeout and bounded output capture.
package sandbox

import (
	"context"
	"runtime"
	"time"
)

// Platform identifies the operating system a command is resolved for.
// Values match runtime.GOOS.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
)

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform(runtime.GOOS)
}

// Spawner runs a single OS process to completion.
// A non-zero exit or a timeout is reported through SpawnResult, never as an error.
type Spawner interface {
	Spawn(ctx context.Context, command []string, opts SpawnOptions) (*SpawnResult, error)
}

// SpawnOptions controls one process execution.
type SpawnOptions struct {
	// Cwd is the working directory. Empty = inherit the caller's.
	Cwd string

	// Stdin is written to the child's standard input, then closed.
	Stdin []byte

	// Timeout bounds the wall-clock run time. Zero = no timeout.
	Timeout time.Duration

	// MaxOutputChars caps each captured stream independently. Zero = DefaultMaxOutputChars.
	MaxOutputChars int

	// Env is merged on top of the inherited environment ("KEY=value" entries).
	Env []string
}

// SpawnResult captures the outcome of a process execution.
type SpawnResult struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	TimedOut        bool
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
}

// DurationMs returns the run time in whole milliseconds.
func (r *SpawnResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

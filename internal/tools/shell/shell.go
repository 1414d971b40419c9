// Package shell implements the exec_command tool: run one command in a
// workspace directory under a timeout and per-stream output caps.
// Execution always goes through a sandbox.Spawner.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
)

// ToolName is the catalog name of the tool.
const ToolName = "exec_command"

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputChars = 200_000

	minTimeoutMs      = 1
	maxTimeoutMs      = 120_000
	minMaxOutputChars = 1_000
	maxMaxOutputChars = 1_000_000

	exitCodeTimedOut = 124
)

// Input is a validated exec_command request.
type Input struct {
	Cwd            string
	Command        []string
	ShellMode      sandbox.ShellMode
	Stdin          *string
	Timeout        time.Duration
	MaxOutputChars int

	// Env overlays the inherited environment. Not exposed as a tool option.
	Env []string
}

// Output is the result of one execution. A non-zero exit or a timeout is
// an ordinary result, not an error.
type Output struct {
	Cwd             string   `json:"cwd"`
	Command         []string `json:"command"`
	ExitCode        int      `json:"exit_code"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	StdoutTruncated bool     `json:"stdout_truncated"`
	StderrTruncated bool     `json:"stderr_truncated"`
	TimedOut        bool     `json:"timed_out"`
	DurationMs      int64    `json:"duration_ms"`
}

// Tool runs commands through a spawner.
type Tool struct {
	spawner sandbox.Spawner
	getenv  func(string) string
	logger  *slog.Logger
}

// NewTool creates the exec_command tool.
func NewTool(spawner sandbox.Spawner, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tool{spawner: spawner, getenv: os.Getenv, logger: logger}
}

// Entry returns the catalog entry for exec_command.
func (t *Tool) Entry() tools.Entry {
	return tools.Entry{
		Metadata: tools.Metadata{
			Name:        ToolName,
			IsWriteOp:   false,
			Description: "Runs a command once in the workspace and returns stdout, stderr, and exit code.",
		},
		Handler:    t.Handle,
		Resolve:    resolveArgs,
		Parameters: parameters(),
	}
}

func resolveArgs(args map[string]any) []any {
	return []any{
		args["cwd"],
		args["command"],
		tools.Pick(args, "shell_mode", "stdin", "timeout_ms", "max_output_chars"),
	}
}

func parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory path in workspace.",
			},
			"command": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Only the target command tokens to run (e.g. go test ./...).",
			},
			"shell_mode": map[string]any{
				"type":        "string",
				"enum":        []string{"default", "direct"},
				"default":     "default",
				"description": "Use default to apply OS shell wrapper automatically (default: default).",
			},
			"stdin": map[string]any{
				"type":        "string",
				"description": "UTF-8 stdin text.",
			},
			"timeout_ms": map[string]any{
				"type":        "number",
				"default":     DefaultTimeout.Milliseconds(),
				"description": "Execution timeout in milliseconds (default: 30000).",
			},
			"max_output_chars": map[string]any{
				"type":        "number",
				"default":     DefaultMaxOutputChars,
				"description": "Per-stream output char limit (default: 200000).",
			},
		},
		"required": []string{"cwd", "command"},
	}
}

// Handle implements tools.Handler: (cwd, command, options).
func (t *Tool) Handle(ctx context.Context, tc tools.ToolContext, args ...any) (any, error) {
	opts, err := tools.OptionsArg(args, 2)
	if err != nil {
		return nil, err
	}
	in, err := ParseInput(tools.Arg(args, 0), tools.Arg(args, 1), opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(in.Cwd)
	if err != nil || !info.IsDir() {
		return nil, tools.NewError(tools.CodeNotDirectory, "cwd is not a directory: %s", in.Cwd)
	}

	out, err := t.Run(ctx, tc.Env.Platform, in)
	return out, tools.AsCoded(err)
}

// ParseInput validates raw arguments and applies defaults.
func ParseInput(cwd, command any, opts map[string]any) (Input, error) {
	invalid := func(msg string) (Input, error) {
		return Input{}, tools.NewError(tools.CodeInvalidArgument, "%s", msg)
	}

	dir, ok := cwd.(string)
	if !ok || strings.TrimSpace(dir) == "" {
		return invalid("cwd must be a non-empty string")
	}

	tokens, isList, ok := tools.StringSlice(command)
	if !isList || (ok && len(tokens) == 0) {
		return invalid("command must be a non-empty string array")
	}
	if !ok {
		return invalid("command must contain only string elements")
	}
	for _, tok := range tokens {
		if tok == "" {
			return invalid("command elements must not be empty")
		}
	}

	mode := sandbox.ShellModeDefault
	if s, present, ok := tools.StringOption(opts, "shell_mode"); present {
		if !ok || (s != string(sandbox.ShellModeDefault) && s != string(sandbox.ShellModeDirect)) {
			return invalid(`shell_mode must be "default" or "direct"`)
		}
		mode = sandbox.ShellMode(s)
	}

	timeoutMs, ok := tools.IntOption(opts, "timeout_ms", int(DefaultTimeout.Milliseconds()))
	if !ok || timeoutMs < minTimeoutMs || timeoutMs > maxTimeoutMs {
		return invalid(fmt.Sprintf("timeout_ms must be between %d and %d", minTimeoutMs, maxTimeoutMs))
	}

	maxChars, ok := tools.IntOption(opts, "max_output_chars", DefaultMaxOutputChars)
	if !ok || maxChars < minMaxOutputChars || maxChars > maxMaxOutputChars {
		return invalid(fmt.Sprintf("max_output_chars must be between %d and %d", minMaxOutputChars, maxMaxOutputChars))
	}

	var stdin *string
	if s, present, ok := tools.StringOption(opts, "stdin"); present {
		if !ok {
			return invalid("stdin must be a string")
		}
		stdin = &s
	}

	return Input{
		Cwd:            dir,
		Command:        tokens,
		ShellMode:      mode,
		Stdin:          stdin,
		Timeout:        time.Duration(timeoutMs) * time.Millisecond,
		MaxOutputChars: maxChars,
	}, nil
}

// Run resolves and executes a validated input for platform.
func (t *Tool) Run(ctx context.Context, platform sandbox.Platform, in Input) (*Output, error) {
	argv, err := sandbox.ResolveCommand(sandbox.ResolveRequest{
		Cwd:       in.Cwd,
		Command:   in.Command,
		ShellMode: in.ShellMode,
		Platform:  platform,
		Getenv:    t.getenv,
	})
	if err != nil {
		return nil, commandError(err, in.Command[0])
	}

	opts := sandbox.SpawnOptions{
		Cwd:            in.Cwd,
		Timeout:        in.Timeout,
		MaxOutputChars: in.MaxOutputChars,
		Env:            in.Env,
	}
	if in.Stdin != nil {
		opts.Stdin = []byte(*in.Stdin)
	}

	t.logger.DebugContext(ctx, "exec_command running",
		slog.String("cwd", in.Cwd),
		slog.String("shell_mode", string(in.ShellMode)),
		slog.Any("command", in.Command),
	)

	res, err := t.spawner.Spawn(ctx, argv, opts)
	if err != nil {
		return nil, commandError(err, in.Command[0])
	}

	exitCode := res.ExitCode
	if res.TimedOut {
		exitCode = exitCodeTimedOut
	}
	return &Output{
		Cwd:             in.Cwd,
		Command:         in.Command,
		ExitCode:        exitCode,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		TimedOut:        res.TimedOut,
		DurationMs:      res.DurationMs(),
	}, nil
}

func commandError(err error, name string) error {
	if errors.Is(err, sandbox.ErrCommandNotFound) {
		return &tools.CodedError{Code: tools.CodeCommandNotFound, Message: "command not found: " + name, Err: err}
	}
	return err
}

package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/tools"
)

// --- Validation ---

func TestParseInput_Defaults(t *testing.T) {
	in, err := ParseInput("/ws", []any{"echo", "hi"}, map[string]any{"shell_mode": nil})
	if err != nil {
		t.Fatalf("ParseInput: %v", err)
	}
	if in.ShellMode != sandbox.ShellModeDefault || in.Timeout != DefaultTimeout || in.MaxOutputChars != DefaultMaxOutputChars {
		t.Errorf("defaults = %+v", in)
	}
	if in.Stdin != nil {
		t.Error("stdin should be absent")
	}
}

func TestParseInput_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cwd     any
		command any
		opts    map[string]any
		want    string
	}{
		{"empty cwd", "  ", []string{"ls"}, nil, "cwd must be a non-empty string"},
		{"non-string cwd", 3, []string{"ls"}, nil, "cwd must be a non-empty string"},
		{"missing command", "/ws", nil, nil, "command must be a non-empty string array"},
		{"empty command", "/ws", []any{}, nil, "command must be a non-empty string array"},
		{"non-string token", "/ws", []any{"ls", 1}, nil, "command must contain only string elements"},
		{"empty token", "/ws", []string{"ls", ""}, nil, "command elements must not be empty"},
		{"bad shell mode", "/ws", []string{"ls"}, map[string]any{"shell_mode": "bash"}, `shell_mode must be "default" or "direct"`},
		{"timeout too small", "/ws", []string{"ls"}, map[string]any{"timeout_ms": 0}, "timeout_ms must be between 1 and 120000"},
		{"timeout too large", "/ws", []string{"ls"}, map[string]any{"timeout_ms": 120001.0}, "timeout_ms must be between 1 and 120000"},
		{"timeout fractional", "/ws", []string{"ls"}, map[string]any{"timeout_ms": 1.5}, "timeout_ms must be between 1 and 120000"},
		{"output cap too small", "/ws", []string{"ls"}, map[string]any{"max_output_chars": 999}, "max_output_chars must be between 1000 and 1000000"},
		{"stdin not string", "/ws", []string{"ls"}, map[string]any{"stdin": 5}, "stdin must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInput(tt.cwd, tt.command, tt.opts)
			if tools.ErrorCode(err) != tools.CodeInvalidArgument {
				t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
			}
			if err.Error() != "INVALID_ARGUMENT: "+tt.want {
				t.Errorf("message = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

// --- Execution with a fake spawner ---

type fakeSpawner struct {
	argv []string
	opts sandbox.SpawnOptions
	res  *sandbox.SpawnResult
	err  error
}

func (f *fakeSpawner) Spawn(_ context.Context, argv []string, opts sandbox.SpawnOptions) (*sandbox.SpawnResult, error) {
	f.argv = argv
	f.opts = opts
	return f.res, f.err
}

func testContext(t *testing.T) tools.ToolContext {
	t.Helper()
	policy := security.PolicyConfig{Default: security.AccessAllow}
	tc, err := tools.NewContext(tools.ContextOptions{
		WorkspaceRoot: t.TempDir(),
		WriteScope:    sandbox.AccessWorkspaceWrite,
		Policy:        &policy,
	})
	if err != nil {
		t.Fatal(err)
	}
	tc.Env.Platform = sandbox.PlatformLinux
	return tc
}

func TestHandle_TimedOutReports124(t *testing.T) {
	sp := &fakeSpawner{res: &sandbox.SpawnResult{ExitCode: 0, TimedOut: true, Duration: 50 * time.Millisecond}}
	tc := testContext(t)

	out, err := NewTool(sp, nil).Handle(context.Background(), tc, tc.WorkspaceRoot, []string{"sleep", "5"},
		map[string]any{"timeout_ms": 50.0, "stdin": "in"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	o := out.(*Output)
	if !o.TimedOut || o.ExitCode != 124 || o.DurationMs != 50 {
		t.Errorf("output = %+v", o)
	}
	if sp.opts.Timeout != 50*time.Millisecond || string(sp.opts.Stdin) != "in" || sp.opts.Cwd != tc.WorkspaceRoot {
		t.Errorf("spawn options = %+v", sp.opts)
	}
	if strings.Join(sp.argv, " ") != "sleep 5" {
		t.Errorf("argv = %q (linux default mode runs tokens directly)", sp.argv)
	}
}

func TestHandle_CwdMustBeDirectory(t *testing.T) {
	tc := testContext(t)
	file := filepath.Join(tc.WorkspaceRoot, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewTool(&fakeSpawner{}, nil)

	for _, cwd := range []string{file, filepath.Join(tc.WorkspaceRoot, "missing")} {
		_, err := tool.Handle(context.Background(), tc, cwd, []string{"ls"}, nil)
		if tools.ErrorCode(err) != tools.CodeNotDirectory {
			t.Errorf("cwd %s: err = %v", cwd, err)
		}
		if !strings.Contains(err.Error(), "cwd is not a directory: "+cwd) {
			t.Errorf("message = %q", err.Error())
		}
	}
}

func TestHandle_CommandNotFound(t *testing.T) {
	tc := testContext(t)
	sp := &fakeSpawner{err: sandbox.ErrCommandNotFound}

	_, err := NewTool(sp, nil).Handle(context.Background(), tc, tc.WorkspaceRoot, []string{"nope"}, nil)
	if tools.ErrorCode(err) != tools.CodeCommandNotFound || err.Error() != "COMMAND_NOT_FOUND: command not found: nope" {
		t.Errorf("err = %v", err)
	}

	tool := NewTool(sp, nil)
	tool.getenv = func(string) string { return t.TempDir() }
	_, err = tool.Handle(context.Background(), tc, tc.WorkspaceRoot, []string{"nope"}, map[string]any{"shell_mode": "direct"})
	if tools.ErrorCode(err) != tools.CodeCommandNotFound {
		t.Errorf("direct mode: err = %v", err)
	}
}

func TestHandle_SpawnFailureIsInternal(t *testing.T) {
	tc := testContext(t)
	_, err := NewTool(&fakeSpawner{err: errors.New("pipe broke")}, nil).
		Handle(context.Background(), tc, tc.WorkspaceRoot, []string{"ls"}, nil)
	if tools.ErrorCode(err) != tools.CodeInternal {
		t.Errorf("err = %v, want INTERNAL", err)
	}
}

func TestHandle_OptionsMustBeObject(t *testing.T) {
	tc := testContext(t)
	_, err := NewTool(&fakeSpawner{}, nil).Handle(context.Background(), tc, tc.WorkspaceRoot, []string{"ls"}, "x")
	if tools.ErrorCode(err) != tools.CodeInvalidArgument {
		t.Errorf("err = %v", err)
	}
}

// --- Real processes ---

func TestHandle_RealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	tc := testContext(t)
	tool := NewTool(sandbox.NewProcessRunner(sandbox.ProcessConfig{}, nil), nil)

	out, err := tool.Handle(context.Background(), tc, tc.WorkspaceRoot,
		[]string{"sh", "-c", "cat; echo err >&2; exit 3"},
		map[string]any{"stdin": "hello", "shell_mode": "direct"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	o := out.(*Output)
	if o.ExitCode != 3 || o.Stdout != "hello" || strings.TrimSpace(o.Stderr) != "err" {
		t.Errorf("output = %+v", o)
	}
}

func TestEntry_ResolvesAndGuards(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	tc := testContext(t)
	tool := NewTool(sandbox.NewProcessRunner(sandbox.ProcessConfig{}, nil), nil)
	d := tools.NewDispatcher(tools.NewCatalog(tool.Entry()), tc)

	out, err := d.Invoke(context.Background(), ToolName, map[string]any{
		"cwd":     ".",
		"command": []any{"sh", "-c", "printf ok"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if o := out.Content.(*Output); o.Stdout != "ok" || o.Cwd != tc.WorkspaceRoot {
		t.Errorf("output = %+v", o)
	}

	_, err = d.Invoke(context.Background(), ToolName, map[string]any{"cwd": "../..", "command": []any{"ls"}})
	if !errors.Is(err, sandbox.ErrViolation) {
		t.Errorf("escape: err = %v", err)
	}
}

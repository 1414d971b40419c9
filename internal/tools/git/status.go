package git

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
	"github.com/jkaninda/toolguard/internal/tools/shell"
)

// StatusToolName is the catalog name of the status tool.
const StatusToolName = "git_status_summary"

var (
	repositoryRootCommand = []string{"git", "rev-parse", "--show-toplevel"}
	statusCommand         = []string{"git", "-c", "core.quotePath=false", "status", "--porcelain=v1", "--branch"}

	windowsDrivePath = regexp.MustCompile(`^[a-zA-Z]:[\\/]`)
)

// StatusOutput summarizes a working tree. Branch is nil for a detached HEAD
// or when the porcelain header is missing.
type StatusOutput struct {
	RepositoryRoot string  `json:"repository_root"`
	Branch         *string `json:"branch"`
	Raw            string  `json:"raw"`
}

// StatusTool runs git status through exec_command.
type StatusTool struct {
	exec   *shell.Tool
	logger *slog.Logger
}

// NewStatusTool creates the git_status_summary tool on top of exec.
func NewStatusTool(exec *shell.Tool, logger *slog.Logger) *StatusTool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StatusTool{exec: exec, logger: logger}
}

// Entry returns the catalog entry for git_status_summary.
func (t *StatusTool) Entry() tools.Entry {
	return tools.Entry{
		Metadata: tools.Metadata{
			Name:        StatusToolName,
			Description: "Returns the repository root, current branch and porcelain git status for a workspace directory.",
		},
		Handler: t.Handle,
		Resolve: func(args map[string]any) []any {
			return []any{args["cwd"]}
		},
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cwd": map[string]any{
					"type":        "string",
					"description": "Workspace-relative directory inside the repository (default: workspace root).",
				},
			},
		},
	}
}

// Handle implements tools.Handler: (cwd?).
func (t *StatusTool) Handle(ctx context.Context, tc tools.ToolContext, args ...any) (any, error) {
	cwd, err := t.targetDir(tc.WorkspaceRoot, tools.Arg(args, 0))
	if err != nil {
		return nil, tools.AsCoded(err)
	}
	out, err := t.Summarize(ctx, tc.Env.Platform, cwd)
	if err != nil {
		return nil, tools.AsCoded(err)
	}
	return out, nil
}

// targetDir validates the optional cwd and resolves it in the workspace.
func (t *StatusTool) targetDir(root string, raw any) (string, error) {
	if raw == nil {
		return t.requireDir(root)
	}
	cwd, ok := raw.(string)
	if !ok || strings.TrimSpace(cwd) == "" {
		return "", tools.NewError(tools.CodeInvalidArgument, "cwd must be a non-empty string")
	}
	// Paths already resolved inside the workspace are absolute on Windows.
	if windowsDrivePath.MatchString(cwd) && !(filepath.IsAbs(cwd) && sandbox.IsSafe(cwd, root)) {
		return "", tools.NewError(tools.CodeInvalidArgument, "cwd must not be an absolute Windows drive path")
	}

	resolved, err := sandbox.ResolveInWorkspace(strings.ReplaceAll(cwd, `\`, "/"), root)
	if err != nil {
		return "", err
	}
	return t.requireDir(resolved)
}

func (t *StatusTool) requireDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", tools.NewError(tools.CodeNotDirectory, "cwd is not a directory: %s", path)
	}
	return path, nil
}

// Summarize resolves the repository root and porcelain status of cwd.
func (t *StatusTool) Summarize(ctx context.Context, platform sandbox.Platform, cwd string) (*StatusOutput, error) {
	rootRes, err := t.run(ctx, platform, cwd, repositoryRootCommand)
	if err != nil {
		return nil, err
	}
	if isNotGitRepository(rootRes.ExitCode, rootRes.Stderr) {
		return nil, tools.NewError(tools.CodeNotGitRepository, "not a git repository: %s", cwd)
	}
	if rootRes.ExitCode != 0 {
		return nil, tools.NewError(tools.CodeInternal, "%s", failureMessage("failed to resolve repository root", rootRes.Stderr))
	}

	statusRes, err := t.run(ctx, platform, cwd, statusCommand)
	if err != nil {
		return nil, err
	}
	if isNotGitRepository(statusRes.ExitCode, statusRes.Stderr) {
		return nil, tools.NewError(tools.CodeNotGitRepository, "not a git repository: %s", cwd)
	}
	if statusRes.ExitCode != 0 {
		return nil, tools.NewError(tools.CodeInternal, "%s", failureMessage("failed to get git status", statusRes.Stderr))
	}

	out := &StatusOutput{
		RepositoryRoot: strings.TrimSpace(rootRes.Stdout),
		Raw:            statusRes.Stdout,
	}
	if branch, ok := ParseBranch(statusRes.Stdout); ok {
		out.Branch = &branch
	}
	t.logger.DebugContext(ctx, "git status summarized",
		slog.String("cwd", cwd),
		slog.String("repository_root", out.RepositoryRoot),
	)
	return out, nil
}

func (t *StatusTool) run(ctx context.Context, platform sandbox.Platform, cwd string, command []string) (*shell.Output, error) {
	return t.exec.Run(ctx, platform, shell.Input{
		Cwd:            cwd,
		Command:        command,
		ShellMode:      sandbox.ShellModeDirect,
		Timeout:        DefaultTimeout,
		MaxOutputChars: shell.DefaultMaxOutputChars,
		Env:            gitEnv,
	})
}

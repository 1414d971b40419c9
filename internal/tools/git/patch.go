package git

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
)

// PatchToolName is the catalog name of the patch tool.
const PatchToolName = "apply_patch"

// MaxPatchTargetSize is the largest file apply_patch will touch.
const MaxPatchTargetSize = 10 << 20 // 10 MiB

const patchOutputCap = 200_000

// PatchOutput reports the target and whether its content changed.
type PatchOutput struct {
	Path         string `json:"path"`
	Changed      bool   `json:"changed"`
	BeforeSHA256 string `json:"before_sha256"`
	AfterSHA256  string `json:"after_sha256"`
}

// PatchTool applies unified diffs with git apply.
type PatchTool struct {
	spawner sandbox.Spawner
	logger  *slog.Logger
}

// NewPatchTool creates the apply_patch tool.
func NewPatchTool(spawner sandbox.Spawner, logger *slog.Logger) *PatchTool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PatchTool{spawner: spawner, logger: logger}
}

// Entry returns the catalog entry for apply_patch.
func (t *PatchTool) Entry() tools.Entry {
	return tools.Entry{
		Metadata: tools.Metadata{
			Name:        PatchToolName,
			IsWriteOp:   true,
			Description: "Applies a unified diff patch to a single workspace file using git apply.",
		},
		Handler: t.Handle,
		Resolve: func(args map[string]any) []any {
			return []any{args["filePath"], args["content"]}
		},
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filePath": map[string]any{
					"type":        "string",
					"description": "Workspace-relative path of the file to patch.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Unified diff to apply to the file.",
				},
			},
			"required": []string{"filePath", "content"},
		},
	}
}

// Handle implements tools.Handler: (filePath, content).
func (t *PatchTool) Handle(ctx context.Context, tc tools.ToolContext, args ...any) (any, error) {
	filePath, ok := tools.Arg(args, 0).(string)
	if !ok || strings.TrimSpace(filePath) == "" {
		return nil, tools.NewError(tools.CodeInvalidArgument, "filePath must be a non-empty string")
	}
	content, ok := tools.Arg(args, 1).(string)
	if !ok {
		return nil, tools.NewError(tools.CodeInvalidArgument, "content must be a string")
	}

	out, err := t.Apply(ctx, tc.WorkspaceRoot, filePath, content)
	if err != nil {
		return nil, tools.AsCoded(err)
	}
	return out, nil
}

// Apply runs git apply for filePath inside root. A non-zero exit only
// counts as failure when the file content is unchanged, since git may
// report errors after writing the file on some platforms.
func (t *PatchTool) Apply(ctx context.Context, root, filePath, patch string) (*PatchOutput, error) {
	if err := checkPatchTarget(filePath); err != nil {
		return nil, err
	}

	before, err := fileDigest(filePath)
	if err != nil {
		return nil, err
	}

	rel := includePath(root, filePath)
	res, err := t.spawner.Spawn(ctx,
		[]string{"git", "apply", "--whitespace=fix", "--include", rel, "-"},
		sandbox.SpawnOptions{
			Cwd:            root,
			Stdin:          []byte(patch),
			Timeout:        DefaultTimeout,
			MaxOutputChars: patchOutputCap,
			Env:            gitEnv,
		},
	)
	if err != nil {
		if errors.Is(err, sandbox.ErrCommandNotFound) {
			return nil, &tools.CodedError{Code: tools.CodeCommandNotFound, Message: "command not found: git", Err: err}
		}
		return nil, err
	}

	after, err := fileDigest(filePath)
	if err != nil {
		return nil, err
	}

	exitCode := res.ExitCode
	if res.TimedOut {
		exitCode = 124
	}
	if exitCode != 0 && before == after {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr == "" {
			stderr = "unknown error"
		}
		return nil, tools.NewError(tools.CodeApplyFailed,
			"git apply failed with exit code %d: %s", exitCode, stderr)
	}

	t.logger.InfoContext(ctx, "patch applied",
		slog.String("path", rel),
		slog.Int("exit_code", exitCode),
		slog.Bool("changed", before != after),
	)
	return &PatchOutput{
		Path:         rel,
		Changed:      before != after,
		BeforeSHA256: before,
		AfterSHA256:  after,
	}, nil
}

func checkPatchTarget(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return tools.NewError(tools.CodeNotFound, "file not found: %s", path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return tools.NewError(tools.CodeNotFile, "path is not a file: %s", path)
	}
	if info.Size() > MaxPatchTargetSize {
		mb := strconv.FormatFloat(float64(info.Size())/(1<<20), 'f', 2, 64)
		return tools.NewError(tools.CodeFileTooLarge, "file size exceeds the 10 MB limit (actual: %s)", mb)
	}
	return nil
}

// includePath is the --include pattern for path: relative to root with
// forward slashes, matching the paths git reads from the diff headers.
func includePath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

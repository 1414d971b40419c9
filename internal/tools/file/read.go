package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jkaninda/toolguard/internal/tools"
)

// ReadToolName is the catalog name of the read tool.
const ReadToolName = "read_file"

const (
	// MaxReadFileSize is the largest file read_file accepts.
	MaxReadFileSize = 1 << 20 // 1 MiB

	binaryCheckBytes = 8192

	defaultStartLine = 1
	defaultMaxLines  = 200
	maxMaxLines      = 500
)

// ReadOutput is a line window of a text file.
type ReadOutput struct {
	Path          string   `json:"path"`
	Content       string   `json:"content"`
	Truncated     bool     `json:"truncated"`
	NextStartLine *int     `json:"next_start_line"`
	Meta          ReadMeta `json:"meta"`
}

// ReadMeta describes the whole file, not just the window.
type ReadMeta struct {
	ByteLength        int64 `json:"byte_length"`
	LineCount         int   `json:"line_count"`
	ReturnedLineCount int   `json:"returned_line_count"`
	MtimeMs           int64 `json:"mtime_ms"`
}

// ReadTool reads line windows of text files.
type ReadTool struct {
	logger *slog.Logger
}

// NewReadTool creates the read_file tool.
func NewReadTool(logger *slog.Logger) *ReadTool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReadTool{logger: logger}
}

// Entry returns the catalog entry for read_file.
func (t *ReadTool) Entry() tools.Entry {
	return tools.Entry{
		Metadata: tools.Metadata{
			Name:        ReadToolName,
			Description: "Reads a UTF-8 text file in the workspace and returns a line-limited content window.",
		},
		Handler: t.Handle,
		Resolve: func(args map[string]any) []any {
			return []any{args["path"], tools.Pick(args, "start_line", "max_lines")}
		},
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": `Workspace-root-relative file path to read (e.g., "cmd/main.go").`,
				},
				"start_line": map[string]any{
					"type":        "number",
					"default":     defaultStartLine,
					"description": "1-based start line of the returned window (default: 1).",
				},
				"max_lines": map[string]any{
					"type":        "number",
					"default":     defaultMaxLines,
					"description": "Maximum number of lines to return (default: 200).",
				},
			},
			"required": []string{"path"},
		},
	}
}

// Handle implements tools.Handler: (path, {start_line, max_lines}).
func (t *ReadTool) Handle(ctx context.Context, tc tools.ToolContext, args ...any) (any, error) {
	out, err := t.read(ctx, tc.WorkspaceRoot, args)
	if err != nil {
		return nil, tools.AsCoded(err)
	}
	return out, nil
}

func (t *ReadTool) read(ctx context.Context, root string, args []any) (*ReadOutput, error) {
	path, err := requirePath(tools.Arg(args, 0))
	if err != nil {
		return nil, err
	}
	opts, err := tools.OptionsArg(args, 1)
	if err != nil {
		return nil, err
	}
	startLine, err := intRange(opts, "start_line", defaultStartLine, 1, -1)
	if err != nil {
		return nil, err
	}
	maxLines, err := intRange(opts, "max_lines", defaultMaxLines, 1, maxMaxLines)
	if err != nil {
		return nil, err
	}

	info, err := guardTextFile(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitLines(string(data))

	t.logger.DebugContext(ctx, "read_file window",
		slog.String("path", path),
		slog.Int("start_line", startLine),
		slog.Int("max_lines", maxLines),
	)

	out := &ReadOutput{
		Path: workspaceRel(root, path),
		Meta: ReadMeta{
			ByteLength: info.Size(),
			LineCount:  len(lines),
			MtimeMs:    info.ModTime().UnixMilli(),
		},
	}

	start := startLine - 1
	if start >= len(lines) {
		return out, nil
	}
	end := min(len(lines), start+maxLines)
	window := lines[start:end]

	out.Content = strings.Join(window, "\n")
	out.Meta.ReturnedLineCount = len(window)
	if end < len(lines) {
		out.Truncated = true
		next := end + 1
		out.NextStartLine = &next
	}
	return out, nil
}

// guardTextFile rejects missing paths, non-regular files (directories and
// symlinks included), files over MaxReadFileSize and binary content.
func guardTextFile(path string) (fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tools.NewError(tools.CodeNotFound, "path not found: %s", path)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, tools.NewError(tools.CodeNotFile, "path is not a file: %s", path)
	}
	if info.Size() > MaxReadFileSize {
		return nil, tools.NewError(tools.CodeSizeLimitExceeded, "file size exceeds 1 MiB limit: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, binaryCheckBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil, tools.NewError(tools.CodeBinaryNotSupported, "binary file is not supported: %s", path)
	}
	return info, nil
}

// splitLines normalizes CRLF and splits on LF. Empty content has no lines.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

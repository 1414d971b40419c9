// Package file implements the read-only workspace file tools:
//   - read_file: a line window of a UTF-8 text file
//   - tree: a bounded directory tree with glob exclusion
//
// Paths reach these handlers already resolved inside the workspace by the
// guard pipeline. Inspection uses lstat, so symlinks are never followed.
package file

import (
	"path/filepath"
	"strings"

	"github.com/jkaninda/toolguard/internal/tools"
)

// workspaceRel returns path relative to root with forward slashes, or "."
// for the root itself.
func workspaceRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel = filepath.ToSlash(rel)
	if rel == "" {
		return "."
	}
	return rel
}

// requirePath validates the positional path argument.
func requirePath(v any) (string, error) {
	path, ok := v.(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", tools.NewError(tools.CodeInvalidArgument, "path must be a non-empty string")
	}
	return path, nil
}

// intRange reads an integer option and checks it against [lo, hi].
// hi < 0 means unbounded.
func intRange(opts map[string]any, key string, def, lo, hi int) (int, error) {
	n, ok := tools.IntOption(opts, key, def)
	if ok && n >= lo && (hi < 0 || n <= hi) {
		return n, nil
	}
	if hi < 0 {
		return 0, tools.NewError(tools.CodeInvalidArgument, "%s must be an integer >= %d", key, lo)
	}
	return 0, tools.NewError(tools.CodeInvalidArgument, "%s must be an integer between %d and %d", key, lo, hi)
}

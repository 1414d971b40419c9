package sandbox

import (
	"path/filepath"
	"strings"
)

// ResolveInWorkspace resolves target against root and returns the absolute path.
// It fails with a *ViolationError when the result lies outside root: either the
// relative path from root climbs through a ".." segment, or no relative path
// exists at all (a different volume on Windows).
// The root itself ("." or "") resolves to the absolute root.
func ResolveInWorkspace(target, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", &ViolationError{Path: target}
	}

	var absTarget string
	if filepath.IsAbs(target) {
		absTarget = filepath.Clean(target)
	} else {
		absTarget = filepath.Join(absRoot, target)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || escapesRoot(rel) {
		return "", &ViolationError{Path: target}
	}
	return absTarget, nil
}

// IsSafe reports whether target resolves inside root.
func IsSafe(target, root string) bool {
	_, err := ResolveInWorkspace(target, root)
	return err == nil
}

func escapesRoot(rel string) bool {
	if filepath.IsAbs(rel) {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

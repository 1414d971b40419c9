// Package workspace resolves the directory a toolkit is confined to and the
// state directory that holds toolguard's own files (audit log, database).
//
// The workspace root is never created: it must already exist. The state
// directory defaults to ~/.toolguard and is created on demand.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Default state location relative to the user home directory.
const defaultStateRelativePath = ".toolguard"

// ErrNotDirectory is returned when a workspace root is not a directory.
var ErrNotDirectory = errors.New("workspace root is not a directory")

// ResolveRoot expands ~, makes path absolute and checks that it is an
// existing directory. Symlinks in the path are resolved so containment
// checks compare real locations.
func ResolveRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	abs, err := resolvePath(path)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root %q: %w", path, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("workspace root %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, resolved)
	}
	return resolved, nil
}

// State manages toolguard's state directory and derived paths.
type State struct {
	Root string

	mu      sync.Mutex
	created map[string]bool // directories already ensured
}

// NewState creates a State rooted at root, creating it with 0750.
func NewState(root string) (*State, error) {
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving state dir %q: %w", root, err)
	}

	s := &State{
		Root:    resolved,
		created: make(map[string]bool),
	}
	if err := s.ensureDir(resolved, 0750); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return s, nil
}

// DefaultState creates a State at ~/.toolguard.
func DefaultState() (*State, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return NewState(filepath.Join(home, defaultStateRelativePath))
}

// AuditDir returns <root>/audit/ with 0700 permissions.
func (s *State) AuditDir() string {
	return s.restrictedDir("audit")
}

// AuditLogPath returns <root>/audit/audit.jsonl.
func (s *State) AuditLogPath() string {
	return filepath.Join(s.AuditDir(), "audit.jsonl")
}

// DatabasePath returns <root>/toolguard.db.
func (s *State) DatabasePath() string {
	return filepath.Join(s.Root, "toolguard.db")
}

// ConfigPath returns <root>/config.yaml.
func (s *State) ConfigPath() string {
	return filepath.Join(s.Root, "config.yaml")
}

// restrictedDir returns a 0700 directory under the state root.
func (s *State) restrictedDir(name string) string {
	p := filepath.Join(s.Root, name)
	_ = s.ensureDir(p, 0700)
	return p
}

// ensureDir creates a directory once; later calls hit the cache.
func (s *State) ensureDir(path string, perm os.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created[path] {
		return nil
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	s.created[path] = true
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox enforcement.
var (
	ErrViolation       = errors.New("sandbox violation")
	ErrCommandNotFound = errors.New("command not found")
	ErrEmptyCommand    = errors.New("command must be a non-empty string array")
)

// ViolationError describes a rejected path or a rejected write.
// It matches ErrViolation under errors.Is.
type ViolationError struct {
	Path string     // Offending path, for containment failures.
	Mode AccessMode // Current mode, for write-gate failures.
}

func (e *ViolationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[Sandbox Violation] Attempted to access path outside of workspace: %q", e.Path)
	}
	return fmt.Sprintf("[Sandbox Violation] Write operation denied. Current mode: %q", string(e.Mode))
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrViolation
}

package sandbox

import "fmt"

// AccessMode is the workspace-wide write setting.
type AccessMode string

const (
	AccessReadOnly       AccessMode = "read-only"
	AccessWorkspaceWrite AccessMode = "workspace-write"
	AccessUnrestricted   AccessMode = "unrestricted"
)

// ParseAccessMode converts a string to an AccessMode. Unknown values are an error.
func ParseAccessMode(s string) (AccessMode, error) {
	switch m := AccessMode(s); m {
	case AccessReadOnly, AccessWorkspaceWrite, AccessUnrestricted:
		return m, nil
	default:
		return "", fmt.Errorf("unknown access mode %q (want read-only, workspace-write or unrestricted)", s)
	}
}

// ValidateAccess fails iff the operation writes and the mode is read-only.
func ValidateAccess(mode AccessMode, isWriteOp bool) error {
	if isWriteOp && mode == AccessReadOnly {
		return &ViolationError{Mode: mode}
	}
	return nil
}

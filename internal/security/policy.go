package security

import (
	"context"
	"fmt"
)

// AccessLevel is the per-tool policy decision.
type AccessLevel string

const (
	AccessAllow AccessLevel = "allow"
	AccessDeny  AccessLevel = "deny"
)

// ParseAccessLevel converts a string to an AccessLevel.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch AccessLevel(s) {
	case AccessAllow, AccessDeny:
		return AccessLevel(s), nil
	default:
		return "", fmt.Errorf("unknown access level %q (want allow or deny)", s)
	}
}

// PolicyConfig maps tool names to access levels with a default fallback.
// It is read-only once built and safe to share between goroutines.
type PolicyConfig struct {
	Tools   map[string]AccessLevel `json:"tools" yaml:"tools" toml:"tools"`
	Default AccessLevel            `json:"default" yaml:"default" toml:"default"`
}

// DefaultPolicy denies every tool.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{Tools: map[string]AccessLevel{}, Default: AccessDeny}
}

// Resolve returns the level configured for toolName, falling back to
// Default. Unknown tool names are not an error.
func (p PolicyConfig) Resolve(toolName string) AccessLevel {
	if level, ok := p.Tools[toolName]; ok {
		return level
	}
	return p.Default
}

// Allows reports whether toolName resolves to allow. An empty or unknown
// level is treated as deny.
func (p PolicyConfig) Allows(toolName string) bool {
	return p.Resolve(toolName) == AccessAllow
}

// Validate checks that every level in the policy is known.
func (p PolicyConfig) Validate() error {
	if _, err := ParseAccessLevel(string(p.Default)); err != nil {
		return fmt.Errorf("policy default: %w", err)
	}
	for name, level := range p.Tools {
		if _, err := ParseAccessLevel(string(level)); err != nil {
			return fmt.Errorf("policy for tool %q: %w", name, err)
		}
	}
	return nil
}

// DeniedError reports that the policy denied a tool.
type DeniedError struct {
	Tool string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("[Security Policy] Access denied for tool: %q", e.Tool)
}

// Unwrap makes errors.Is(err, ErrPolicyDenied) hold.
func (e *DeniedError) Unwrap() error { return ErrPolicyDenied }

// Authorize returns a *DeniedError when policy denies toolName.
// It always succeeds while ctx carries an active bypass.
func Authorize(ctx context.Context, toolName string, policy PolicyConfig) error {
	if IsBypassed(ctx) {
		return nil
	}
	if !policy.Allows(toolName) {
		return &DeniedError{Tool: toolName}
	}
	return nil
}

package security

import (
	"context"
	"errors"
	"testing"
)

func TestAuthorize_Grid(t *testing.T) {
	levels := []AccessLevel{AccessAllow, AccessDeny}
	for _, def := range levels {
		for _, entry := range levels {
			policy := PolicyConfig{Tools: map[string]AccessLevel{"listed": entry}, Default: def}
			for _, name := range []string{"listed", "unlisted"} {
				for _, bypass := range []bool{false, true} {
					ctx := context.Background()
					if bypass {
						ctx = WithBypass(ctx)
					}
					resolved := def
					if name == "listed" {
						resolved = entry
					}
					wantErr := !bypass && resolved == AccessDeny

					err := Authorize(ctx, name, policy)
					if (err != nil) != wantErr {
						t.Errorf("default=%s entry=%s name=%s bypass=%v: err = %v, want error = %v",
							def, entry, name, bypass, err, wantErr)
					}
				}
			}
		}
	}
}

func TestAuthorize_DeniedError(t *testing.T) {
	err := Authorize(context.Background(), "exec_command", DefaultPolicy())
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("err = %v, want ErrPolicyDenied", err)
	}
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Tool != "exec_command" {
		t.Fatalf("err = %#v, want *DeniedError for exec_command", err)
	}
	if err.Error() != `[Security Policy] Access denied for tool: "exec_command"` {
		t.Errorf("message = %q", err.Error())
	}
}

func TestPolicyConfig_ResolveNilTools(t *testing.T) {
	p := PolicyConfig{Default: AccessAllow}
	if p.Resolve("anything") != AccessAllow {
		t.Error("nil tool map should fall through to default")
	}
}

func TestPolicyConfig_EmptyDefaultDenies(t *testing.T) {
	if (PolicyConfig{}).Allows("read_file") {
		t.Error("zero-value policy must not allow")
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	good := PolicyConfig{Tools: map[string]AccessLevel{"a": AccessAllow}, Default: AccessDeny}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	bad := PolicyConfig{Tools: map[string]AccessLevel{"a": "ask"}, Default: AccessDeny}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown tool level")
	}
	if err := (PolicyConfig{}).Validate(); err == nil {
		t.Error("expected error for empty default")
	}
}

func TestParseAccessLevel(t *testing.T) {
	if l, err := ParseAccessLevel("allow"); err != nil || l != AccessAllow {
		t.Errorf("ParseAccessLevel(allow) = %q, %v", l, err)
	}
	if _, err := ParseAccessLevel("Allow"); err == nil {
		t.Error("levels are case sensitive")
	}
}

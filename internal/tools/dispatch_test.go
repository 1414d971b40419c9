package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
)

func testCatalog(h *recordingHandler, writeOp bool) *Catalog {
	return NewCatalog(Entry{
		Metadata: Metadata{Name: "read_file", IsWriteOp: writeOp, Description: "reads"},
		Handler:  h.handle,
		Resolve: func(args map[string]any) []any {
			return []any{args["path"], map[string]any{"max_lines": args["max_lines"]}}
		},
		Parameters: map[string]any{"type": "object"},
	})
}

func TestDispatcher_ToolNotFound(t *testing.T) {
	d := NewDispatcher(testCatalog(&recordingHandler{}, false), testContext(t, sandbox.AccessUnrestricted, allowAll()))

	_, err := d.Invoke(context.Background(), "nonexistent_tool", map[string]any{})
	var inv *InvokeError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *InvokeError", err)
	}
	if inv.Code != CodeToolNotFound || inv.ToolName != "nonexistent_tool" {
		t.Errorf("error = %+v", inv)
	}
	if err.Error() != "TOOL_NOT_FOUND: tool is not registered: nonexistent_tool" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDispatcher_ToolNotAllowed(t *testing.T) {
	policy := security.PolicyConfig{
		Tools:   map[string]security.AccessLevel{"read_file": security.AccessDeny},
		Default: security.AccessAllow,
	}
	h := &recordingHandler{}
	d := NewDispatcher(testCatalog(h, false), testContext(t, sandbox.AccessUnrestricted, policy))

	_, err := d.Invoke(context.Background(), "read_file", map[string]any{"path": "a"})
	if ErrorCode(err) != CodeToolNotAllowed {
		t.Fatalf("err = %v, want TOOL_NOT_ALLOWED", err)
	}
	if !errors.Is(err, security.ErrPolicyDenied) {
		t.Error("cause should match ErrPolicyDenied")
	}
	if h.calls != 0 {
		t.Error("handler must not run")
	}

	if _, err := d.Invoke(security.WithBypass(context.Background()), "read_file", map[string]any{"path": "a"}); err != nil {
		t.Errorf("bypassed invoke: %v", err)
	}
}

func TestDispatcher_InvalidArgumentsType(t *testing.T) {
	d := NewDispatcher(testCatalog(&recordingHandler{}, false), testContext(t, sandbox.AccessUnrestricted, allowAll()))

	for _, args := range []any{123, "x", []any{"a"}, nil, map[string]any(nil)} {
		_, err := d.Invoke(context.Background(), "read_file", args)
		var inv *InvokeError
		if !errors.As(err, &inv) || inv.Code != CodeInvalidArgumentsType || inv.ToolName != "read_file" {
			t.Errorf("args %#v: err = %v", args, err)
		}
	}
}

func TestDispatcher_SandboxErrorsPropagate(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(testCatalog(h, true), testContext(t, sandbox.AccessReadOnly, allowAll()))
	_, err := d.Invoke(context.Background(), "read_file", map[string]any{"path": "a"})
	if !errors.Is(err, sandbox.ErrViolation) {
		t.Errorf("write on read-only: err = %v", err)
	}

	d = NewDispatcher(testCatalog(h, false), testContext(t, sandbox.AccessUnrestricted, allowAll()))
	_, err = d.Invoke(context.Background(), "read_file", map[string]any{"path": `..\..\etc\passwd`})
	if !errors.Is(err, sandbox.ErrViolation) {
		t.Errorf("backslash traversal: err = %v", err)
	}
	if h.calls != 0 {
		t.Errorf("handler ran %d times", h.calls)
	}
}

func TestDispatcher_Success(t *testing.T) {
	h := &recordingHandler{data: "content"}
	tc := testContext(t, sandbox.AccessUnrestricted, allowAll())
	d := NewDispatcher(testCatalog(h, false), tc)

	bag := map[string]any{"path": `src\lib.go`, "max_lines": 10.0}
	out, err := d.Invoke(context.Background(), "read_file", bag)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Role != "function" || out.Name != "read_file" || out.Content != "content" {
		t.Errorf("output = %+v", out)
	}
	if want := filepath.Join(tc.WorkspaceRoot, "src", "lib.go"); h.args[0] != want {
		t.Errorf("handler path = %v, want %s", h.args[0], want)
	}
	if bag["path"] != `src\lib.go` {
		t.Error("caller's argument bag was modified")
	}
}

func TestDispatcher_HandlerFailureIsInternal(t *testing.T) {
	cause := NewError(CodeNotFound, "path not found: a")
	h := &recordingHandler{err: cause}
	d := NewDispatcher(testCatalog(h, false), testContext(t, sandbox.AccessUnrestricted, allowAll()))

	_, err := d.Invoke(context.Background(), "read_file", map[string]any{"path": "a"})
	var inv *InvokeError
	if !errors.As(err, &inv) || inv.Code != CodeInternal {
		t.Fatalf("err = %v, want INTERNAL", err)
	}
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeNotFound {
		t.Errorf("domain cause lost: %v", err)
	}
}

func TestDispatcher_Audit(t *testing.T) {
	auditor := &memAuditor{}
	d := NewDispatcher(testCatalog(&recordingHandler{}, false), testContext(t, sandbox.AccessUnrestricted, allowAll()),
		WithAuditor(auditor))

	_, _ = d.Invoke(context.Background(), "read_file", map[string]any{"path": "a"})
	_, _ = d.Invoke(context.Background(), "missing", map[string]any{})

	if len(auditor.events) != 2 {
		t.Fatalf("events = %d", len(auditor.events))
	}
	if e := auditor.events[0]; e.Result != "success" || e.Action != ActionInvoke || e.Path == "" {
		t.Errorf("success event = %+v", e)
	}
	if e := auditor.events[1]; e.Result != "failure" || e.Error == "" {
		t.Errorf("failure event = %+v", e)
	}
}

func TestClassifyInvokeError(t *testing.T) {
	tests := []struct {
		err    error
		status Status
		reason Reason
	}{
		{&InvokeError{Code: CodeToolNotAllowed}, StatusDenied, ReasonPolicy},
		{&InvokeError{Code: CodeToolNotFound}, StatusFailure, ReasonRuntime},
		{&sandbox.ViolationError{Path: "x"}, StatusDenied, ReasonSandbox},
		{errors.New("other"), StatusFailure, ReasonRuntime},
	}
	for _, tt := range tests {
		status, reason, _ := classifyInvokeError(tt.err)
		if status != tt.status || reason != tt.reason {
			t.Errorf("%v: got %s/%s", tt.err, status, reason)
		}
	}
}

package tools

import (
	"context"
	"errors"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
)

// InvokeOutput is the function-message envelope returned by Invoke.
type InvokeOutput struct {
	Role    string `json:"role"` // always "function"
	Name    string `json:"name"`
	Content any    `json:"content"`
}

// Dispatcher invokes catalog tools by name for one ToolContext, raising
// typed errors instead of folding outcomes into a Result.
type Dispatcher struct {
	catalog *Catalog
	tc      ToolContext
	cfg     *guardConfig
}

// NewDispatcher binds catalog to tc.
func NewDispatcher(catalog *Catalog, tc ToolContext, opts ...Option) *Dispatcher {
	return &Dispatcher{catalog: catalog, tc: tc, cfg: newGuardConfig(opts)}
}

// Invoke runs the named tool with a named argument bag.
//
// Errors:
//   - *InvokeError TOOL_NOT_FOUND for unknown names
//   - *InvokeError TOOL_NOT_ALLOWED when policy denies the tool
//   - *InvokeError INVALID_TOOL_ARGUMENTS_TYPE when args is not a map[string]any
//   - sandbox errors (errors.Is(err, sandbox.ErrViolation)) unchanged
//   - *InvokeError INTERNAL wrapping any handler failure
//
// The caller's argument bag is never modified.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args any) (*InvokeOutput, error) {
	ctx, finish := d.cfg.begin(ctx, name, ActionInvoke)

	out, path, err := d.invoke(ctx, name, args)
	rec := CallRecord{Status: StatusSuccess, Err: err}
	if err != nil {
		rec.Status, rec.Reason, rec.Code = classifyInvokeError(err)
	}
	finish(rec, path)
	return out, err
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args any) (*InvokeOutput, string, error) {
	entry, ok := d.catalog.Get(name)
	if !ok {
		return nil, "", &InvokeError{
			Code:     CodeToolNotFound,
			ToolName: name,
			Message:  "tool is not registered: " + name,
		}
	}

	if err := security.Authorize(ctx, name, d.tc.Policy); err != nil {
		return nil, "", &InvokeError{Code: CodeToolNotAllowed, ToolName: name, Message: err.Error(), Err: err}
	}

	bag, ok := args.(map[string]any)
	if !ok || bag == nil {
		return nil, "", &InvokeError{
			Code:     CodeInvalidArgumentsType,
			ToolName: name,
			Message:  "args must be an object",
		}
	}

	positional, err := containCall(d.tc, entry.Metadata, entry.Resolve(bag), true)
	if err != nil {
		return nil, "", err
	}
	path := firstPath(positional)

	content, err := runHandler(ctx, entry.Handler, d.tc, positional)
	if err != nil {
		return nil, path, &InvokeError{Code: CodeInternal, ToolName: name, Message: err.Error(), Err: err}
	}
	return &InvokeOutput{Role: "function", Name: name, Content: content}, path, nil
}

// classifyInvokeError maps an Invoke error to its audit status, reason and code.
func classifyInvokeError(err error) (Status, Reason, string) {
	var inv *InvokeError
	if errors.As(err, &inv) {
		if inv.Code == CodeToolNotAllowed {
			return StatusDenied, ReasonPolicy, inv.Code
		}
		return StatusFailure, ReasonRuntime, inv.Code
	}
	if errors.Is(err, sandbox.ErrViolation) {
		return StatusDenied, ReasonSandbox, ""
	}
	return StatusFailure, ReasonRuntime, ""
}

package tools

import (
	"context"
	"errors"
	"fmt"
)

// errInvalidPathArgument is reported when the first argument is not a string.
var errInvalidPathArgument = errors.New("Invalid path argument")

// GuardedFunc is a tool wrapped by NewSecureTool. It never returns an
// error; every outcome is folded into the Result.
type GuardedFunc func(ctx context.Context, tc ToolContext, args ...any) Result

// NewSecureTool wraps fn so every call is shape-checked, authorized,
// sandbox-checked and path-rewritten before fn runs.
//
// A nil first argument counts as absent. A non-string first argument is a
// runtime failure. A string first argument reaches fn as an absolute path
// inside tc.WorkspaceRoot. Denials never reach fn.
func NewSecureTool(meta Metadata, fn Handler, opts ...Option) GuardedFunc {
	cfg := newGuardConfig(opts)

	return func(ctx context.Context, tc ToolContext, args ...any) Result {
		ctx, finish := cfg.begin(ctx, meta.Name, ActionCall)

		res, path, err := secureCall(ctx, tc, meta, fn, args)
		finish(CallRecord{Status: res.Status, Reason: res.Reason, Err: err}, path)
		return res
	}
}

func secureCall(ctx context.Context, tc ToolContext, meta Metadata, fn Handler, args []any) (Result, string, error) {
	if len(args) > 0 && args[0] != nil {
		if _, ok := args[0].(string); !ok {
			return failureResult(errInvalidPathArgument), "", errInvalidPathArgument
		}
	}

	resolved, err := checkCall(ctx, tc, meta, args, false)
	if err != nil {
		return deniedResult(denialReason(err), err), firstPath(args), err
	}
	path := firstPath(resolved)

	data, err := runHandler(ctx, fn, tc, resolved)
	if err != nil {
		return failureResult(err), path, err
	}
	return successResult(data), path, nil
}

// runHandler invokes fn, turning a panic into an error.
func runHandler(ctx context.Context, fn Handler, tc ToolContext, args []any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()
	return fn(ctx, tc, args...)
}

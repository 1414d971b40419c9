package security

import "context"

type contextKey int

const bypassKey contextKey = iota

// WithBypass returns a context in which Authorize is a no-op. Only calls
// that receive the returned context, or contexts derived from it, are
// affected; the parent context and its other children are not.
//
// Bypass never suppresses sandbox checks.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey, true)
}

// Enforce returns a context in which bypass is explicitly off, restoring
// policy checks inside a bypassed call tree.
func Enforce(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey, false)
}

// IsBypassed reports whether ctx carries an active bypass. Default false.
func IsBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(bypassKey).(bool)
	return v
}

// RunWithBypass runs fn with bypass active for its whole call tree. The
// caller's ctx is left untouched, so bypass ends when fn returns, whether
// it succeeds, fails or panics.
func RunWithBypass[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(WithBypass(ctx))
}

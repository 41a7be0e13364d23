package executor

import "context"

type contextKey struct{}

// WithContext returns a derived context carrying ex as the "current"
// executor, so resource constructors can self-register without reaching for
// the package-wide Default singleton. Tests swap the context instead of
// mutating global state.
func WithContext(ctx context.Context, ex *Executor) context.Context {
	return context.WithValue(ctx, contextKey{}, ex)
}

// FromContext returns the executor carried by ctx, if any.
func FromContext(ctx context.Context) (*Executor, bool) {
	ex, ok := ctx.Value(contextKey{}).(*Executor)
	return ex, ok
}

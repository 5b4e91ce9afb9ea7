package transport

import "context"

// Middleware wraps a CompletionCreator with cross-cutting behavior. The
// first middleware in a chain runs outermost.
type Middleware func(CompletionCreator) CompletionCreator

// Chain folds middlewares into one. Chain(a, b, c) wraps a handler as
// a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next CompletionCreator) CompletionCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext reads back the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

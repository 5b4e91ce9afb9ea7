package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// RequestID ensures every request carries an ID for log correlation. An ID
// already present in the context, typically set by the HTTP adapter from
// the X-Request-ID header, is kept; otherwise a random one is minted.
func RequestID() Middleware {
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.CreateCompletion(ctx, req)
		})
	}
}

// NewRequestID returns a random 32-character hex ID.
func NewRequestID() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

package transport

import (
	"context"
	"fmt"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// Recovery converts a panic in the wrapped creator into a server_error
// response so one bad request cannot take the process down.
func Recovery() Middleware {
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.CompletionRequest) (resp *api.Completion, retErr error) {
			defer func() {
				if p := recover(); p != nil {
					resp = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", p))
				}
			}()
			return next.CreateCompletion(ctx, req)
		})
	}
}

package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// completion request. The log entry includes the request ID (from context),
// requested model, async/sync mode, duration, and whether the request
// succeeded or failed.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CompletionCreator) CompletionCreator {
		return CompletionCreatorFunc(func(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			resp, err := next.CreateCompletion(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("model", req.Model),
				slog.Bool("async", req.Async()),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "completion failed", attrs...)
			} else {
				attrs = append(attrs, slog.String("completion_id", resp.ID), slog.String("status", string(resp.Status)))
				logger.LogAttrs(ctx, slog.LevelInfo, "completion handled", attrs...)
			}

			return resp, err
		})
	}
}

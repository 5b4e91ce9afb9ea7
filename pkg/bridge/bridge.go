package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/debug"
	"github.com/monk-after-90s/llmbridge/pkg/observability"
	"github.com/monk-after-90s/llmbridge/pkg/transport"
)

// Completer performs a single upstream completion exchange. Satisfied by
// *upstream.Client.
type Completer interface {
	Complete(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error)
}

// Bridge turns validated completion requests into upstream exchanges.
// It implements transport.CompletionCreator.
type Bridge struct {
	completer Completer
	store     transport.CompletionStore
	inflight  *transport.InFlightRegistry
	webhooks  *WebhookDeliverer
	cfg       Config
}

// Ensure Bridge implements transport.CompletionCreator at compile time.
var _ transport.CompletionCreator = (*Bridge)(nil)

// New creates a new Bridge. The completer must not be nil. The store can be
// nil for stateless operation; the webhook deliverer can be nil if no caller
// uses asynchronous dispatch.
func New(completer Completer, store transport.CompletionStore, webhooks *WebhookDeliverer, cfg Config) (*Bridge, error) {
	if completer == nil {
		return nil, errors.New("bridge: completer must not be nil")
	}
	return &Bridge{
		completer: completer,
		store:     store,
		inflight:  transport.NewInFlightRegistry(),
		webhooks:  webhooks,
		cfg:       cfg.withDefaults(),
	}, nil
}

// InFlight exposes the registry of pending asynchronous dispatches, used by
// the transport layer to cancel them.
func (b *Bridge) InFlight() *transport.InFlightRegistry {
	return b.inflight
}

// CreateCompletion validates the request, resolves the model, and runs
// either the synchronous or the asynchronous path. Validation failures are
// returned before any upstream call is made.
func (b *Bridge) CreateCompletion(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	if apiErr := api.ValidateCompletionRequest(req, b.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}

	// Apply default model if the request omits it.
	if req.Model == "" {
		if b.cfg.DefaultModel == "" {
			return nil, api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = b.cfg.DefaultModel
	}

	if req.Async() {
		return b.dispatch(ctx, req)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.UpstreamTimeout)
	defer cancel()

	completion, err := b.complete(ctx, req)
	if err != nil {
		return nil, asAPIError(ctx, err)
	}

	b.save(ctx, req, completion)
	return completion, nil
}

// dispatch acknowledges the request immediately and runs the upstream
// exchange in a detached goroutine. The returned completion carries
// in_progress status; the terminal state is delivered to the request's
// webhooks and, when a store is configured, persisted for polling.
func (b *Bridge) dispatch(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	ack := &api.Completion{
		ID:        api.NewCompletionID(),
		Object:    "completion",
		Status:    api.StatusInProgress,
		Model:     req.Model,
		CreatedAt: time.Now().Unix(),
	}

	if b.store != nil && isStored(req) {
		if err := b.store.SaveCompletion(ctx, ack); err != nil {
			slog.Error("saving dispatch acknowledgment", "completion_id", ack.ID, "error", err)
			return nil, api.NewServerError("failed to record dispatch")
		}
	}

	// The dispatch outlives the HTTP request. Detach from its cancelation
	// while keeping context values (tenant, identity) for storage scoping.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.UpstreamTimeout)
	b.inflight.Register(ack.ID, cancel)
	observability.InFlightDispatches.Inc()

	debug.Log("bridge", "dispatch accepted",
		"completion_id", ack.ID, "model", req.Model, "webhooks", len(req.Webhooks))

	go b.runDispatch(dispatchCtx, cancel, req, ack)

	return ack, nil
}

// runDispatch performs the detached upstream exchange for one dispatch and
// fans the terminal completion out to the webhooks.
func (b *Bridge) runDispatch(ctx context.Context, cancel context.CancelFunc, req *api.CompletionRequest, ack *api.Completion) {
	defer cancel()
	defer observability.InFlightDispatches.Dec()
	defer b.inflight.Remove(ack.ID)

	final := &api.Completion{
		ID:        ack.ID,
		Object:    "completion",
		Model:     req.Model,
		CreatedAt: ack.CreatedAt,
	}

	completion, err := b.complete(ctx, req)
	if err != nil {
		final.Status = api.StatusFailed
		final.FinishReason = api.FinishReasonError
		final.Error = asAPIError(ctx, err)
		slog.Warn("dispatch failed",
			"completion_id", ack.ID, "model", req.Model, "error", err)
	} else {
		final.Status = api.StatusCompleted
		final.Text = completion.Text
		final.FinishReason = completion.FinishReason
		final.Usage = completion.Usage
		if completion.Model != "" {
			final.Model = completion.Model
		}
	}

	// ctx may have just expired or been cancelled, and that very condition
	// can be what produced the failed terminal state. The store update and
	// the webhook fan-out must still run, so they get a fresh bounded
	// context that keeps the request's values for storage scoping.
	termCtx, done := context.WithTimeout(context.WithoutCancel(ctx), b.terminalBudget())
	defer done()

	if b.store != nil && isStored(req) {
		if err := b.store.UpdateCompletion(termCtx, final); err != nil {
			slog.Error("updating dispatch record", "completion_id", ack.ID, "error", err)
		}
	}

	if b.webhooks != nil {
		b.webhooks.Deliver(termCtx, req.Webhooks, final)
	}
}

// terminalBudget bounds the terminal phase of a dispatch: the store update
// plus the worst-case webhook delivery cycle.
func (b *Bridge) terminalBudget() time.Duration {
	budget := 30 * time.Second
	if b.webhooks != nil {
		budget += b.webhooks.retryBudget()
	}
	return budget
}

// complete performs one upstream exchange and assigns identity and
// lifecycle fields to the result.
func (b *Bridge) complete(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	start := time.Now()
	completion, err := b.completer.Complete(ctx, req)
	elapsed := time.Since(start)

	observability.UpstreamLatency.WithLabelValues(req.Model).Observe(elapsed.Seconds())
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		return nil, err
	}
	observability.UpstreamRequestsTotal.WithLabelValues(req.Model, "ok").Inc()

	if completion.Usage != nil {
		observability.UpstreamTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(completion.Usage.PromptTokens))
		observability.UpstreamTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(completion.Usage.CompletionTokens))
	}

	completion.ID = api.NewCompletionID()
	completion.Object = "completion"
	completion.Status = api.StatusCompleted
	if completion.Model == "" {
		completion.Model = req.Model
	}
	completion.CreatedAt = time.Now().Unix()

	debug.Log("bridge", "completion finished",
		"completion_id", completion.ID, "model", completion.Model,
		"finish_reason", completion.FinishReason, "duration", elapsed)

	return completion, nil
}

// save persists a synchronous completion when a store is configured and the
// request opted in. Persistence failures are logged, not surfaced: the
// caller already holds the result.
func (b *Bridge) save(ctx context.Context, req *api.CompletionRequest, c *api.Completion) {
	if b.store == nil || !isStored(req) {
		return
	}
	if err := b.store.SaveCompletion(ctx, c); err != nil {
		slog.Error("saving completion", "completion_id", c.ID, "error", err)
	}
}

// isStored reports whether the request should be persisted.
// Defaults to true unless explicitly set to false.
func isStored(req *api.CompletionRequest) bool {
	if req.Store == nil {
		return true
	}
	return *req.Store
}

// asAPIError converts any upstream failure into a typed API error for the
// terminal completion record. A cancelled dispatch is reported distinctly
// from an upstream timeout.
func asAPIError(ctx context.Context, err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return api.NewServerError("dispatch cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewUpstreamTimeoutError("upstream request timed out")
	}
	return api.NewServerError(err.Error())
}

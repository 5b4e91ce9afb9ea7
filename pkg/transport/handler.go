package transport

import (
	"context"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// CompletionCreator handles the core create-completion operation. The
// implementation receives a validated-or-not request and returns either a
// finished Completion (synchronous path) or an in_progress acknowledgment
// (asynchronous webhook path), or a typed error.
type CompletionCreator interface {
	CreateCompletion(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error)
}

// CompletionCreatorFunc is an adapter that allows using an ordinary function
// as a CompletionCreator.
type CompletionCreatorFunc func(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error)

// CreateCompletion calls f(ctx, req).
func (f CompletionCreatorFunc) CreateCompletion(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	return f(ctx, req)
}

// ModelLister exposes the upstream provider's model catalog.
type ModelLister interface {
	ListModels(ctx context.Context) ([]api.ModelInfo, error)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After string // Cursor: return completions after this ID.
	Limit int    // Maximum number of items to return (default 20, max 100).
	Model string // Filter completions by model name.
	Order string // Sort order: "asc" or "desc" (default "desc").
}

// CompletionList holds a paginated list of stored completions.
type CompletionList struct {
	Object  string            `json:"object"`
	Data    []*api.Completion `json:"data"`
	HasMore bool              `json:"has_more"`
	FirstID string            `json:"first_id"`
	LastID  string            `json:"last_id"`
}

// CompletionStore handles persistence, retrieval, and deletion of completion
// records. It is only wired in deployments with a store configured; the
// bridge itself keeps no cross-request state.
type CompletionStore interface {
	// SaveCompletion persists a completion record. Used once for the
	// in_progress acknowledgment of an asynchronous dispatch and once
	// (via UpdateCompletion) for its terminal state.
	SaveCompletion(ctx context.Context, c *api.Completion) error

	// UpdateCompletion replaces a previously saved record with its
	// terminal state. Returns storage.ErrNotFound for unknown IDs.
	UpdateCompletion(ctx context.Context, c *api.Completion) error

	// GetCompletion retrieves a completion by ID. Returns an error if the
	// completion does not exist or has been deleted (soft delete).
	GetCompletion(ctx context.Context, id string) (*api.Completion, error)

	// DeleteCompletion soft-deletes a completion by ID.
	DeleteCompletion(ctx context.Context, id string) error

	// ListCompletions returns a paginated list of stored completions,
	// scoped by tenant when present in the context.
	ListCompletions(ctx context.Context, opts ListOptions) (*CompletionList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases store connections and resources.
	Close() error
}

// Package memory provides an in-memory implementation of
// transport.CompletionStore for testing and lightweight deployments.
// Completions are stored in memory and lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/storage"
	"github.com/monk-after-90s/llmbridge/pkg/transport"
)

// entry holds a stored completion and its metadata.
type entry struct {
	comp      *api.Completion
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element // position in LRU list
}

// Store is an in-memory CompletionStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements transport.CompletionStore at compile time.
var _ transport.CompletionStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest entry is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveCompletion persists a completion in memory.
func (s *Store) SaveCompletion(ctx context.Context, c *api.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[c.ID]; exists {
		return storage.ErrConflict
	}

	tenantID := storage.GetTenant(ctx)

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(c.ID)
	s.entries[c.ID] = &entry{
		comp:     c,
		tenantID: tenantID,
		lruElem:  elem,
	}

	return nil
}

// UpdateCompletion replaces a previously saved completion with its terminal
// state. The tenant of the original record is kept.
func (s *Store) UpdateCompletion(ctx context.Context, c *api.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[c.ID]
	if !ok || e.deletedAt != nil {
		return storage.ErrNotFound
	}

	e.comp = c
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// GetCompletion retrieves a completion by ID. Returns ErrNotFound if the
// completion does not exist or has been soft-deleted. Scoped by tenant
// when a tenant is present in the context.
func (s *Store) GetCompletion(ctx context.Context, id string) (*api.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return e.comp, nil
}

// DeleteCompletion soft-deletes a completion by ID.
func (s *Store) DeleteCompletion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	now := time.Now()
	e.deletedAt = &now
	return nil
}

// ListCompletions returns a paginated list of stored completions, newest
// first by default. Soft-deleted entries are excluded.
func (s *Store) ListCompletions(ctx context.Context, opts transport.ListOptions) (*transport.CompletionList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var comps []*api.Completion
	for _, e := range s.entries {
		if e.deletedAt != nil {
			continue
		}
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Model != "" && e.comp.Model != opts.Model {
			continue
		}
		comps = append(comps, e.comp)
	}

	asc := opts.Order == "asc"
	sort.Slice(comps, func(i, j int) bool {
		if comps[i].CreatedAt != comps[j].CreatedAt {
			if asc {
				return comps[i].CreatedAt < comps[j].CreatedAt
			}
			return comps[i].CreatedAt > comps[j].CreatedAt
		}
		// Stable tiebreak on ID for deterministic pagination.
		if asc {
			return comps[i].ID < comps[j].ID
		}
		return comps[i].ID > comps[j].ID
	})

	// Apply cursor.
	if opts.After != "" {
		idx := -1
		for i, c := range comps {
			if c.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			comps = comps[idx+1:]
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(comps) > limit
	if hasMore {
		comps = comps[:limit]
	}

	result := &transport.CompletionList{
		Object:  "list",
		Data:    comps,
		HasMore: hasMore,
	}
	if len(comps) > 0 {
		result.FirstID = comps[0].ID
		result.LastID = comps[len(comps)-1].ID
	}
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// Close releases resources (no-op for the in-memory store).
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry. Caller must hold the lock.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks acknowledged dispatches whose upstream call has
// not finished, keyed by completion ID. A DELETE on a tracked ID aborts
// the dispatch through its cancel function. Safe for concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{pending: make(map[string]context.CancelFunc)}
}

// Register tracks a dispatch until Remove or Cancel is called for its ID.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.pending[id] = cancel
	r.mu.Unlock()
}

// Cancel aborts a tracked dispatch. It reports false when the ID is
// unknown, meaning the dispatch already finished or never existed.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	cancel()
	return true
}

// Remove drops a dispatch that completed on its own.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Len reports how many dispatches are currently tracked.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"talahum/internal/cache"
	"talahum/internal/core"
)

// Registry keeps the open flows of all dashboard sessions. Abandoned flows
// expire with the cache TTL.
type Registry struct {
	deps  Deps
	flows *cache.LRUCache[*Flow]
}

func NewRegistry(deps Deps, maxFlows int, ttl time.Duration) *Registry {
	if maxFlows <= 0 {
		maxFlows = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{deps: deps, flows: cache.NewLRUCache[*Flow](maxFlows, ttl)}
}

// Open starts a flow for row and registers it under a fresh id.
func (r *Registry) Open(ctx context.Context, row core.PeriodRow, period core.Period, onRefresh func()) (*Flow, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	f := NewFlow(uuid.NewString(), row, period, r.deps, onRefresh)
	if err := f.Open(ctx); err != nil {
		return nil, fmt.Errorf("open flow: %w", err)
	}
	r.flows.Set(f.ID(), f)
	return f, nil
}

func (r *Registry) Get(id string) (*Flow, error) {
	f, ok := r.flows.Get(id)
	if !ok {
		return nil, ErrFlowNotFound
	}
	return f, nil
}

// Remove forgets a flow. Receipts stay downloadable until removal.
func (r *Registry) Remove(id string) {
	r.flows.Delete(id)
}

// Cache exposes the underlying cache for periodic cleanup.
func (r *Registry) Cache() cache.Cleaner {
	return r.flows
}

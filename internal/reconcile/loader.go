// Package reconcile builds the per-period subscription rows the dashboard shows
// and keeps each session's view of them.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"talahum/internal/cache"
	"talahum/internal/core"
	"talahum/internal/ports"
)

// sharedLoadTimeout bounds a shared load once it is detached from the
// request that started it.
const sharedLoadTimeout = 30 * time.Second

// Loader fetches and normalizes the rows of a period. Concurrent loads of the
// same period share one request, and results are cached until the TTL expires
// or the period is invalidated.
type Loader struct {
	source ports.SubscriberSource
	logger *slog.Logger
	group  singleflight.Group
	cache  *cache.LRUCache[[]core.PeriodRow]

	mu     sync.Mutex
	epochs map[string]uint64
}

// NewLoader creates a loader. A non-positive ttl disables caching.
func NewLoader(source ports.SubscriberSource, ttl time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		source: source,
		logger: logger,
		epochs: make(map[string]uint64),
	}
	if ttl > 0 {
		l.cache = cache.NewLRUCache[[]core.PeriodRow](64, ttl)
	}
	return l
}

func (l *Loader) Load(ctx context.Context, p core.Period) ([]core.PeriodRow, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key := p.Key()
	if l.cache != nil {
		if rows, ok := l.cache.Get(key); ok {
			return cloneRows(rows), nil
		}
	}

	// The shared call outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := l.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		epoch := l.epoch(key)
		start := time.Now()
		items, err := l.source.ListSubscribers(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("load period %s: %w", key, err)
		}
		rows := core.Normalize(items, p)
		l.reportDuplicates(ctx, p, rows)
		l.logger.DebugContext(ctx, "Period loaded",
			"month", p.Month,
			"year", p.Year,
			"rows", len(rows),
			"duration_ms", time.Since(start).Milliseconds())

		// A load that raced an invalidation must not repopulate the cache.
		if l.cache != nil && l.epoch(key) == epoch {
			l.cache.Set(key, rows)
		}
		return rows, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRows(res.Val.([]core.PeriodRow)), nil
	}
}

// Invalidate drops the cached rows of p, typically after a payment was recorded.
func (l *Loader) Invalidate(p core.Period) {
	key := p.Key()
	l.mu.Lock()
	l.epochs[key]++
	l.mu.Unlock()
	if l.cache != nil {
		l.cache.Delete(key)
	}
	l.group.Forget(key)
}

// Cache exposes the period cache for periodic cleanup, nil when caching is off.
func (l *Loader) Cache() cache.Cleaner {
	if l.cache == nil {
		return nil
	}
	return l.cache
}

func (l *Loader) epoch(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epochs[key]
}

func (l *Loader) reportDuplicates(ctx context.Context, p core.Period, rows []core.PeriodRow) {
	for _, r := range rows {
		if r.Duplicates == 0 {
			continue
		}
		l.logger.WarnContext(ctx, "Multiple subscriptions for one period, using the first",
			"subscriber_id", r.Subscriber.ID,
			"month", p.Month,
			"year", p.Year,
			"duplicates", r.Duplicates)
	}
}

func cloneRows(rows []core.PeriodRow) []core.PeriodRow {
	out := make([]core.PeriodRow, len(rows))
	copy(out, rows)
	return out
}

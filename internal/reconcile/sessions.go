package reconcile

import (
	"sync"
	"time"

	"talahum/internal/cache"
	"talahum/internal/core"
)

// Sessions maps dashboard session ids to their views.
type Sessions struct {
	mu    sync.Mutex
	views *cache.LRUCache[*View]
	now   func() time.Time
}

func NewSessions(maxSessions int, ttl time.Duration) *Sessions {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{views: cache.NewLRUCache[*View](maxSessions, ttl), now: time.Now}
}

// View returns the view of session id, creating one on the current period.
func (s *Sessions) View(id string) *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views.Get(id); ok {
		// Refresh the TTL of an active session.
		s.views.Set(id, v)
		return v
	}
	v := NewView(core.PeriodOf(s.now()))
	s.views.Set(id, v)
	return v
}

func (s *Sessions) Cache() cache.Cleaner {
	return s.views
}

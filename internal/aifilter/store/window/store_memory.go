package window

import (
	"context"
	"sync"
	"time"

	"shahin/internal/aifilter/models"
)

// InMemory implements WindowStore with per-key fixed windows. Single-node
// reference implementation; distributed deployments use the Redis store.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	start time.Time
	count int
}

// NewInMemory constructs an empty in-memory window store.
func NewInMemory() *InMemory {
	return &InMemory{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// NewInMemoryWithClock constructs a store with an injected clock for tests.
func NewInMemoryWithClock(now func() time.Time) *InMemory {
	s := NewInMemory()
	s.now = now
	return s
}

// Allow counts a request against the key's window. The count only advances
// when the request is admitted.
func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &fixedWindow{start: now}
		s.windows[key] = w
	}

	if w.count >= limit {
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: window - now.Sub(w.start),
		}, nil
	}

	w.count++
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
	}, nil
}

package counter

import (
	"context"
	"sync"

	"shahin/internal/serialcode/models"
)

// InMemory allocates sequences from per-key counters in memory for tests/dev.
type InMemory struct {
	mu       sync.Mutex
	counters map[models.CounterKey]int
}

// NewInMemory constructs an empty in-memory counter store.
func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[models.CounterKey]int)}
}

// Next returns the next sequence for the key, starting at 1. Increments are
// atomic under the store lock; a returned sequence is never handed out twice.
func (s *InMemory) Next(_ context.Context, key models.CounterKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

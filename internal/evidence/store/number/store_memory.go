package number

import (
	"context"
	"sync"
)

type counterKey struct {
	tenantCode string
	dateKey    string
}

// InMemory allocates daily evidence number sequences in memory.
type InMemory struct {
	mu       sync.Mutex
	counters map[counterKey]int
}

// NewInMemory constructs an empty in-memory number store.
func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[counterKey]int)}
}

// Next returns the next sequence for the tenant's day, starting at 1.
func (s *InMemory) Next(_ context.Context, tenantCode, dateKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{tenantCode: tenantCode, dateKey: dateKey}
	s.counters[key]++
	return s.counters[key], nil
}

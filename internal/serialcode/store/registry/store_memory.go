package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"shahin/internal/serialcode/models"
	"shahin/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entry does not exist
// - Return ErrConflict when a code is already registered
// - Return nil for successful operations

// InMemory stores registry entries in memory for tests/dev.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]*models.RegistryEntry
	byPrev  map[string]*models.RegistryEntry
}

// NewInMemory constructs an empty in-memory registry store.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[string]*models.RegistryEntry),
		byPrev:  make(map[string]*models.RegistryEntry),
	}
}

func (s *InMemory) Create(_ context.Context, entry *models.RegistryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Code]; ok {
		return fmt.Errorf("code %s already registered: %w", entry.Code, sentinel.ErrConflict)
	}
	s.entries[entry.Code] = entry
	if entry.PreviousVersionCode != "" {
		s.byPrev[entry.PreviousVersionCode] = entry
	}
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, code string) (*models.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[code]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
}

func (s *InMemory) FindByPreviousCode(_ context.Context, previousCode string) (*models.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.byPrev[previousCode]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
}

func (s *InMemory) ListActiveByEntity(_ context.Context, entityID uuid.UUID) ([]*models.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RegistryEntry
	for _, entry := range s.entries {
		if entry.EntityID == entityID && entry.IsActive() {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Execute atomically validates then mutates an entry under the store lock.
// On validation failure the entry is returned alongside the error so callers
// can inspect the state that rejected the operation.
func (s *InMemory) Execute(_ context.Context, code string,
	validate func(*models.RegistryEntry) error,
	mutate func(*models.RegistryEntry)) (*models.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[code]
	if !ok {
		return nil, fmt.Errorf("registry entry not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(entry); err != nil {
		return entry, err
	}
	mutate(entry)
	return entry, nil
}

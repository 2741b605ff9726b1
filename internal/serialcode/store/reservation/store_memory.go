package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"shahin/internal/serialcode/models"
	"shahin/pkg/platform/sentinel"
)

// InMemory stores reservations in memory for tests/dev.
type InMemory struct {
	mu           sync.RWMutex
	reservations map[uuid.UUID]*models.Reservation
}

// NewInMemory constructs an empty in-memory reservation store.
func NewInMemory() *InMemory {
	return &InMemory{reservations: make(map[uuid.UUID]*models.Reservation)}
}

func (s *InMemory) Create(_ context.Context, reservation *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[reservation.ID]; ok {
		return fmt.Errorf("reservation %s already exists: %w", reservation.ID, sentinel.ErrConflict)
	}
	s.reservations[reservation.ID] = reservation
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reservation, ok := s.reservations[id]; ok {
		return reservation, nil
	}
	return nil, fmt.Errorf("reservation not found: %w", sentinel.ErrNotFound)
}

// ListExpired returns reservations still marked reserved whose deadline has
// passed as of the given time. The time is injected for testability.
func (s *InMemory) ListExpired(_ context.Context, asOf time.Time) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.IsExpired(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Execute atomically validates then mutates a reservation under the store
// lock. On validation failure the reservation is returned alongside the error.
func (s *InMemory) Execute(_ context.Context, id uuid.UUID,
	validate func(*models.Reservation) error,
	mutate func(*models.Reservation)) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(reservation); err != nil {
		return reservation, err
	}
	mutate(reservation)
	return reservation, nil
}

package evidence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"shahin/internal/evidence/models"
	"shahin/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested record does not exist
// - Return ErrConflict when an evidence number is already taken for the tenant
// - Return nil for successful operations

// InMemory stores evidence records in memory for tests/dev.
type InMemory struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]*models.Evidence
	byNumber map[string]*models.Evidence
}

// NewInMemory constructs an empty in-memory evidence store.
func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[uuid.UUID]*models.Evidence),
		byNumber: make(map[string]*models.Evidence),
	}
}

func numberKey(tenantCode, number string) string {
	return tenantCode + "/" + number
}

func (s *InMemory) Create(_ context.Context, evidence *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[evidence.ID]; ok {
		return fmt.Errorf("evidence %s already exists: %w", evidence.ID, sentinel.ErrConflict)
	}
	key := numberKey(evidence.TenantCode, evidence.EvidenceNumber)
	if _, ok := s.byNumber[key]; ok {
		return fmt.Errorf("evidence number %s already taken: %w", evidence.EvidenceNumber, sentinel.ErrConflict)
	}
	s.records[evidence.ID] = evidence
	s.byNumber[key] = evidence
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if evidence, ok := s.records[id]; ok {
		return evidence, nil
	}
	return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
}

func (s *InMemory) FindByNumber(_ context.Context, tenantCode, number string) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if evidence, ok := s.byNumber[numberKey(tenantCode, number)]; ok {
		return evidence, nil
	}
	return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
}

func (s *InMemory) ListByTenant(_ context.Context, tenantCode string, status models.VerificationStatus) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Evidence
	for _, evidence := range s.records {
		if evidence.TenantCode != tenantCode {
			continue
		}
		if status != "" && evidence.VerificationStatus != status {
			continue
		}
		out = append(out, evidence)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EvidenceNumber < out[j].EvidenceNumber
	})
	return out, nil
}

// Execute atomically validates then mutates a record under the store lock.
// On validation failure the record is returned alongside the error so callers
// can inspect the state that rejected the operation.
func (s *InMemory) Execute(_ context.Context, id uuid.UUID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence)) (*models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evidence, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("evidence not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(evidence); err != nil {
		return evidence, err
	}
	mutate(evidence)
	return evidence, nil
}

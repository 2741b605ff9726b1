//go:build integration

package evidence_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"shahin/internal/evidence/models"
	evidencestore "shahin/internal/evidence/store/evidence"
	"shahin/internal/evidence/store/number"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *evidencestore.Postgres
	numbers  *number.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = evidencestore.NewPostgres(s.postgres.DB)
	s.numbers = number.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "evidence", "evidence_number_counters")
	s.Require().NoError(err)
}

func newTestEvidence(number string) *models.Evidence {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Evidence{
		ID:                 uuid.New(),
		EvidenceNumber:     number,
		TenantCode:         "ACME",
		WorkspaceID:        uuid.New(),
		Title:              "Change approval record",
		EvidenceType:       "document",
		VerificationStatus: models.StatusDraft,
		CollectedBy:        "tester",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	evidence := newTestEvidence("EV-20260310-0001")
	s.Require().NoError(s.store.Create(ctx, evidence))

	found, err := s.store.FindByID(ctx, evidence.ID)
	s.Require().NoError(err)
	s.Equal(evidence.EvidenceNumber, found.EvidenceNumber)
	s.Equal(evidence.WorkspaceID, found.WorkspaceID)
	s.Equal(models.StatusDraft, found.VerificationStatus)
	s.Nil(found.VerifiedAt)

	byNumber, err := s.store.FindByNumber(ctx, "ACME", evidence.EvidenceNumber)
	s.Require().NoError(err)
	s.Equal(evidence.ID, byNumber.ID)

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateNumberConflict() {
	ctx := context.Background()
	evidence := newTestEvidence("EV-20260310-0001")
	s.Require().NoError(s.store.Create(ctx, evidence))

	dup := newTestEvidence("EV-20260310-0001")
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)

	other := newTestEvidence("EV-20260310-0001")
	other.TenantCode = "GLOBEX"
	s.Require().NoError(s.store.Create(ctx, other))
}

func (s *PostgresStoreSuite) TestListByTenant() {
	ctx := context.Background()
	draft := newTestEvidence("EV-20260310-0001")
	s.Require().NoError(s.store.Create(ctx, draft))

	verified := newTestEvidence("EV-20260310-0002")
	verified.VerificationStatus = models.StatusVerified
	s.Require().NoError(s.store.Create(ctx, verified))

	all, err := s.store.ListByTenant(ctx, "ACME", "")
	s.Require().NoError(err)
	s.Len(all, 2)

	verifiedOnly, err := s.store.ListByTenant(ctx, "ACME", models.StatusVerified)
	s.Require().NoError(err)
	s.Require().Len(verifiedOnly, 1)
	s.Equal(verified.ID, verifiedOnly[0].ID)
}

func (s *PostgresStoreSuite) TestExecuteLocksAndPersists() {
	ctx := context.Background()
	evidence := newTestEvidence("EV-20260310-0001")
	s.Require().NoError(s.store.Create(ctx, evidence))

	verifiedAt := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := s.store.Execute(ctx, evidence.ID,
		func(e *models.Evidence) error { return nil },
		func(e *models.Evidence) {
			e.VerificationStatus = models.StatusVerified
			e.VerifiedBy = "reviewer-1"
			e.VerifiedAt = &verifiedAt
			e.Comments = "looks complete"
			e.UpdatedAt = verifiedAt
		},
	)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, updated.VerificationStatus)

	found, err := s.store.FindByID(ctx, evidence.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, found.VerificationStatus)
	s.Equal("reviewer-1", found.VerifiedBy)
	s.Require().NotNil(found.VerifiedAt)
	s.Equal(verifiedAt, found.VerifiedAt.UTC())
	s.Equal("looks complete", found.Comments)
}

// TestConcurrentNumberAllocation verifies the daily counter upsert never
// hands out the same sequence twice under contention.
func (s *PostgresStoreSuite) TestConcurrentNumberAllocation() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32
	seen := sync.Map{}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.numbers.Next(ctx, "ACME", "20260310")
			if err != nil {
				failures.Add(1)
				return
			}
			if _, loaded := seen.LoadOrStore(seq, true); loaded {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load(), "every allocation should succeed with a unique sequence")

	final, err := s.numbers.Next(ctx, "ACME", "20260310")
	s.Require().NoError(err)
	s.Equal(goroutines+1, final)
}

// TestConcurrentExecuteSingleWinner verifies that racing approvals on one
// record let exactly one through.
func (s *PostgresStoreSuite) TestConcurrentExecuteSingleWinner() {
	ctx := context.Background()
	evidence := newTestEvidence("EV-20260310-0001")
	evidence.VerificationStatus = models.StatusUnderReview
	s.Require().NoError(s.store.Create(ctx, evidence))

	const goroutines = 20
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, evidence.ID,
				func(e *models.Evidence) error {
					if e.VerificationStatus != models.StatusUnderReview {
						return sentinel.ErrInvalidState
					}
					return nil
				},
				func(e *models.Evidence) {
					e.VerificationStatus = models.StatusVerified
					e.UpdatedAt = time.Now().UTC()
				},
			)
			if err == nil {
				winners.Add(1)
			} else if !errors.Is(err, sentinel.ErrInvalidState) {
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load(), "exactly one approval should win")
}

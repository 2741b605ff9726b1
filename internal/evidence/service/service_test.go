package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shahin/internal/audit"
	"shahin/internal/evidence/models"
	"shahin/internal/evidence/service/mocks"
	evidencestore "shahin/internal/evidence/store/evidence"
	"shahin/internal/evidence/store/number"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/requestcontext"
)

type WorkflowSuite struct {
	suite.Suite
	service    *Service
	store      *evidencestore.InMemory
	auditStore *audit.MemoryStore
	ctx        context.Context
	now        time.Time
}

func (s *WorkflowSuite) SetupTest() {
	s.store = evidencestore.NewInMemory()
	s.auditStore = audit.NewMemoryStore()
	s.service = New(s.store, number.NewInMemory(), nil, nil,
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
	)
	s.now = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithActor(s.ctx, "collector-1")
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) create() *models.Evidence {
	evidence, err := s.service.Create(s.ctx, CreateRequest{
		TenantCode:   "ACME",
		Title:        "Firewall rule review",
		EvidenceType: "document",
	})
	s.Require().NoError(err)
	return evidence
}

// reviewerCtx switches the acting user so approvals come from someone other
// than the collector.
func (s *WorkflowSuite) reviewerCtx() context.Context {
	return requestcontext.WithActor(s.ctx, "reviewer-1")
}

func (s *WorkflowSuite) TestCreate() {
	s.Run("assigns daily numbers in sequence", func() {
		first := s.create()
		second := s.create()

		s.Equal("EV-20260310-0001", first.EvidenceNumber)
		s.Equal("EV-20260310-0002", second.EvidenceNumber)
		s.Equal(models.StatusDraft, first.VerificationStatus)
		s.Equal("collector-1", first.CollectedBy)
	})

	s.Run("carries the workspace through", func() {
		workspace := uuid.New()
		evidence, err := s.service.Create(s.ctx, CreateRequest{
			TenantCode:  "ACME",
			WorkspaceID: workspace,
			Title:       "Workspace-scoped control test",
		})
		s.Require().NoError(err)
		s.Equal(workspace, evidence.WorkspaceID)

		found, err := s.service.Get(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.Equal(workspace, found.WorkspaceID)
	})

	s.Run("numbers restart per tenant", func() {
		evidence, err := s.service.Create(s.ctx, CreateRequest{
			TenantCode: "globex",
			Title:      "Backup restore test",
		})
		s.Require().NoError(err)
		s.Equal("EV-20260310-0001", evidence.EvidenceNumber)
		s.Equal("GLOBEX", evidence.TenantCode)
	})

	s.Run("requires a tenant code", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{Title: "Untitled"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires a title", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{TenantCode: "ACME", Title: "  "})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorkflowSuite) TestGet() {
	s.Run("returns the record", func() {
		created := s.create()
		found, err := s.service.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(created.EvidenceNumber, found.EvidenceNumber)
	})

	s.Run("returns a typed not found error", func() {
		id := uuid.New()
		_, err := s.service.Get(s.ctx, id)
		var notFound *NotFoundError
		s.Require().ErrorAs(err, &notFound)
		s.Equal(id, notFound.ID)
	})
}

func (s *WorkflowSuite) TestSubmitForReview() {
	s.Run("moves draft evidence under review", func() {
		created := s.create()
		submitted, err := s.service.SubmitForReview(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, submitted.VerificationStatus)
		s.Equal("collector-1", submitted.ModifiedBy)
	})

	s.Run("moves pending evidence under review", func() {
		evidence := s.create()
		s.advanceTo(evidence.ID, models.StatusPending)

		submitted, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, submitted.VerificationStatus)
	})

	s.Run("rejects verified evidence", func() {
		evidence := s.create()
		s.advanceTo(evidence.ID, models.StatusVerified)

		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)
		s.Equal(models.StatusVerified, invalid.From)
		s.Equal(models.StatusUnderReview, invalid.To)
	})
}

func (s *WorkflowSuite) TestApprove() {
	s.Run("verifies evidence under review", func() {
		evidence := s.create()
		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)

		verified, err := s.service.Approve(s.reviewerCtx(), evidence.ID, "Matches the control")
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, verified.VerificationStatus)
		s.Equal("reviewer-1", verified.VerifiedBy)
		s.Require().NotNil(verified.VerifiedAt)
		s.Equal(s.now, *verified.VerifiedAt)
		s.Equal("Matches the control", verified.Comments)
	})

	s.Run("keeps existing comments when none are given", func() {
		evidence := s.create()
		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		_, err = s.service.Reject(s.reviewerCtx(), evidence.ID, "missing signature")
		s.Require().NoError(err)
		_, err = s.service.Resubmit(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.setComments(evidence.ID, "signed copy attached")
		_, err = s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)

		verified, err := s.service.Approve(s.reviewerCtx(), evidence.ID, "")
		s.Require().NoError(err)
		s.Equal("signed copy attached", verified.Comments)
	})

	s.Run("rejects draft evidence", func() {
		evidence := s.create()
		_, err := s.service.Approve(s.reviewerCtx(), evidence.ID, "")
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)
		s.Equal(models.StatusDraft, invalid.From)
		s.Equal(models.StatusVerified, invalid.To)
	})
}

func (s *WorkflowSuite) TestReject() {
	s.Run("requires a reason", func() {
		evidence := s.create()
		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)

		_, err = s.service.Reject(s.reviewerCtx(), evidence.ID, "  ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("records the reason as comments", func() {
		evidence := s.create()
		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)

		rejected, err := s.service.Reject(s.reviewerCtx(), evidence.ID, "screenshot is cropped")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.VerificationStatus)
		s.Equal("screenshot is cropped", rejected.Comments)
		s.Equal("reviewer-1", rejected.VerifiedBy)
		s.Require().NotNil(rejected.VerifiedAt)
	})

	s.Run("rejects evidence not under review", func() {
		evidence := s.create()
		_, err := s.service.Reject(s.reviewerCtx(), evidence.ID, "too early")
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)
	})
}

func (s *WorkflowSuite) TestArchive() {
	s.Run("archives verified evidence", func() {
		evidence := s.create()
		s.advanceTo(evidence.ID, models.StatusVerified)

		archived, err := s.service.Archive(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusArchived, archived.VerificationStatus)
	})

	s.Run("refuses anything not verified", func() {
		evidence := s.create()
		_, err := s.service.Archive(s.ctx, evidence.ID)
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)
	})

	s.Run("archived evidence accepts no further transitions", func() {
		evidence := s.create()
		s.advanceTo(evidence.ID, models.StatusArchived)

		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)

		transitions, err := s.service.GetValidTransitions(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.Empty(transitions)
	})
}

func (s *WorkflowSuite) TestResubmit() {
	s.Run("returns rejected evidence to pending and clears comments", func() {
		evidence := s.create()
		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		_, err = s.service.Reject(s.reviewerCtx(), evidence.ID, "wrong quarter")
		s.Require().NoError(err)

		resubmitted, err := s.service.Resubmit(s.ctx, evidence.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, resubmitted.VerificationStatus)
		s.Empty(resubmitted.Comments)
	})

	s.Run("refuses evidence that was not rejected", func() {
		evidence := s.create()
		_, err := s.service.Resubmit(s.ctx, evidence.ID)
		var invalid *InvalidTransitionError
		s.Require().ErrorAs(err, &invalid)
	})
}

func (s *WorkflowSuite) TestFullWorkflow() {
	s.Run("verification path ends archived", func() {
		evidence := s.create()

		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		_, err = s.service.Approve(s.reviewerCtx(), evidence.ID, "complete")
		s.Require().NoError(err)
		final, err := s.service.Archive(s.ctx, evidence.ID)
		s.Require().NoError(err)

		s.Equal(models.StatusArchived, final.VerificationStatus)
	})

	s.Run("rejection cycle allows a second review", func() {
		evidence := s.create()

		_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		_, err = s.service.Reject(s.reviewerCtx(), evidence.ID, "needs the raw export")
		s.Require().NoError(err)
		_, err = s.service.Resubmit(s.ctx, evidence.ID)
		s.Require().NoError(err)
		_, err = s.service.SubmitForReview(s.ctx, evidence.ID)
		s.Require().NoError(err)
		final, err := s.service.Approve(s.reviewerCtx(), evidence.ID, "export attached")
		s.Require().NoError(err)

		s.Equal(models.StatusVerified, final.VerificationStatus)
		s.Equal("export attached", final.Comments)
	})
}

func (s *WorkflowSuite) TestAuditTrail() {
	evidence := s.create()
	_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
	s.Require().NoError(err)
	_, err = s.service.Approve(s.reviewerCtx(), evidence.ID, "ok")
	s.Require().NoError(err)

	events := s.auditStore.Events()
	s.Require().Len(events, 3)

	s.Equal(string(audit.EventEvidenceCreated), events[0].Action)

	submitted := events[1]
	s.Equal(string(audit.EventEvidenceSubmitted), submitted.Action)
	s.Equal(evidence.EvidenceNumber, submitted.Subject)
	s.Equal(string(models.StatusDraft), submitted.OldStatus)
	s.Equal(string(models.StatusUnderReview), submitted.NewStatus)
	s.Equal("collector-1", submitted.Actor)

	approved := events[2]
	s.Equal(string(audit.EventEvidenceApproved), approved.Action)
	s.Equal(audit.CategoryCompliance, approved.Category)
	s.Equal("reviewer-1", approved.Actor)
}

// advanceTo walks the record through legal transitions to the target state.
func (s *WorkflowSuite) advanceTo(id uuid.UUID, target models.VerificationStatus) {
	steps := map[models.VerificationStatus][]func(context.Context, uuid.UUID) (*models.Evidence, error){
		models.StatusPending: {
			s.service.SubmitForReview,
			func(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
				return s.service.Reject(ctx, id, "cycle")
			},
			s.service.Resubmit,
		},
		models.StatusUnderReview: {s.service.SubmitForReview},
		models.StatusVerified: {
			s.service.SubmitForReview,
			func(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
				return s.service.Approve(ctx, id, "")
			},
		},
		models.StatusArchived: {
			s.service.SubmitForReview,
			func(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
				return s.service.Approve(ctx, id, "")
			},
			s.service.Archive,
		},
	}
	for _, step := range steps[target] {
		_, err := step(s.reviewerCtx(), id)
		s.Require().NoError(err)
	}
}

// setComments writes comments directly, standing in for an edit endpoint.
func (s *WorkflowSuite) setComments(id uuid.UUID, comments string) {
	_, err := s.store.Execute(s.ctx, id,
		func(e *models.Evidence) error { return nil },
		func(e *models.Evidence) { e.Comments = comments },
	)
	s.Require().NoError(err)
}

type NotificationSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	directory *mocks.MockUserDirectory
	notifier  *mocks.MockNotifier
	service   *Service
	ctx       context.Context
}

func (s *NotificationSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.directory = mocks.NewMockUserDirectory(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.service = New(evidencestore.NewInMemory(), number.NewInMemory(), s.directory, s.notifier)
	s.ctx = requestcontext.WithActor(context.Background(), "collector-1")
}

func TestNotificationSuite(t *testing.T) {
	suite.Run(t, new(NotificationSuite))
}

func (s *NotificationSuite) create() *models.Evidence {
	evidence, err := s.service.Create(s.ctx, CreateRequest{
		TenantCode: "ACME",
		Title:      "Vendor SOC 2 report",
	})
	s.Require().NoError(err)
	return evidence
}

func (s *NotificationSuite) TestSubmitNotifiesEveryReviewer() {
	evidence := s.create()

	s.directory.EXPECT().GetUsersInRole(gomock.Any(), ReviewerRole).
		Return([]models.User{{ID: "mgr-1"}, {ID: "mgr-2"}}, nil)

	var recipients []string
	s.notifier.EXPECT().SendNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n models.Notification) error {
			s.Equal(NotificationCategory, n.Category)
			s.Equal(evidence.ID, n.RelatedEntityID)
			recipients = append(recipients, n.RecipientID)
			return nil
		}).Times(2)

	_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
	s.Require().NoError(err)
	s.Equal([]string{"mgr-1", "mgr-2"}, recipients)
}

func (s *NotificationSuite) TestNotificationFailureDoesNotFailTransition() {
	evidence := s.create()

	s.directory.EXPECT().GetUsersInRole(gomock.Any(), ReviewerRole).
		Return([]models.User{{ID: "mgr-1"}}, nil)
	s.notifier.EXPECT().SendNotification(gomock.Any(), gomock.Any()).
		Return(errors.New("smtp unavailable"))

	submitted, err := s.service.SubmitForReview(s.ctx, evidence.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, submitted.VerificationStatus)
}

func (s *NotificationSuite) TestDirectoryFailureDegradesToNoReviewers() {
	evidence := s.create()

	s.directory.EXPECT().GetUsersInRole(gomock.Any(), ReviewerRole).
		Return(nil, errors.New("directory offline"))

	submitted, err := s.service.SubmitForReview(s.ctx, evidence.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, submitted.VerificationStatus)
}

func (s *NotificationSuite) TestDecisionNotifiesSubmitter() {
	evidence := s.create()

	s.directory.EXPECT().GetUsersInRole(gomock.Any(), ReviewerRole).
		Return(nil, nil)
	_, err := s.service.SubmitForReview(s.ctx, evidence.ID)
	s.Require().NoError(err)

	s.notifier.EXPECT().SendNotification(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n models.Notification) error {
			s.Equal("collector-1", n.RecipientID)
			s.Contains(n.Message, evidence.EvidenceNumber)
			return nil
		})

	reviewer := requestcontext.WithActor(s.ctx, "reviewer-1")
	_, err = s.service.Approve(reviewer, evidence.ID, "verified against ticket")
	s.Require().NoError(err)
}

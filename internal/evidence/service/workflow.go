package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shahin/internal/audit"
	"shahin/internal/evidence/models"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/requestcontext"
)

// CreateRequest carries the caller-supplied fields for a new evidence record.
type CreateRequest struct {
	TenantCode   string
	WorkspaceID  uuid.UUID
	Title        string
	Description  string
	EvidenceType string
	FilePath     string
}

// Create registers a new evidence record in Draft and assigns it the next
// evidence number for the tenant's day.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Evidence, error) {
	req.TenantCode = strings.ToUpper(strings.TrimSpace(req.TenantCode))
	req.Title = strings.TrimSpace(req.Title)
	if req.TenantCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant code is required")
	}
	if req.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}

	now := requestcontext.Now(ctx).UTC()
	evidence := &models.Evidence{
		ID:                 uuid.New(),
		TenantCode:         req.TenantCode,
		WorkspaceID:        req.WorkspaceID,
		Title:              req.Title,
		Description:        req.Description,
		EvidenceType:       req.EvidenceType,
		FilePath:           req.FilePath,
		VerificationStatus: models.StatusDraft,
		CollectedBy:        requestcontext.Actor(ctx),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.runInTx(ctx, func(ctx context.Context) error {
		sequence, err := s.numbers.Next(ctx, req.TenantCode, models.DateKey(now))
		if err != nil {
			return fmt.Errorf("allocating evidence number: %w", err)
		}
		evidence.EvidenceNumber = models.FormatEvidenceNumber(now, sequence)
		if err := s.store.Create(ctx, evidence); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "evidence number already exists")
			}
			return fmt.Errorf("creating evidence: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.EventEvidenceCreated, audit.Event{
		TenantCode: evidence.TenantCode,
		Subject:    evidence.EvidenceNumber,
		EntityType: "evidence",
		EntityID:   evidence.ID,
		NewStatus:  string(evidence.VerificationStatus),
	})
	if s.metrics != nil {
		s.metrics.EvidenceCreated.Inc()
	}
	return evidence, nil
}

// Get fetches an evidence record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	evidence, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("finding evidence: %w", err)
	}
	return evidence, nil
}

// GetByNumber fetches an evidence record by its tenant-scoped number.
func (s *Service) GetByNumber(ctx context.Context, tenantCode, number string) (*models.Evidence, error) {
	tenantCode = strings.ToUpper(strings.TrimSpace(tenantCode))
	evidence, err := s.store.FindByNumber(ctx, tenantCode, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "evidence %s not found", number)
		}
		return nil, fmt.Errorf("finding evidence: %w", err)
	}
	return evidence, nil
}

// List returns a tenant's evidence, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, tenantCode string, status models.VerificationStatus) ([]*models.Evidence, error) {
	tenantCode = strings.ToUpper(strings.TrimSpace(tenantCode))
	if tenantCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant code is required")
	}
	if status != "" && !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", status)
	}
	records, err := s.store.ListByTenant(ctx, tenantCode, status)
	if err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	return records, nil
}

// GetValidTransitions returns the states the record may move to from its
// current status.
func (s *Service) GetValidTransitions(ctx context.Context, id uuid.UUID) ([]models.VerificationStatus, error) {
	evidence, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.ValidTransitions(evidence.VerificationStatus), nil
}

// SubmitForReview moves Draft or Pending evidence to Under Review and asks
// the reviewer pool to pick it up.
func (s *Service) SubmitForReview(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	evidence, oldStatus, err := s.transition(ctx, id, models.StatusUnderReview, nil)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, s.reviewers(ctx), models.Notification{
		Title:           "Evidence awaiting review",
		Category:        NotificationCategory,
		Message:         fmt.Sprintf("Evidence %s requires verification", evidence.EvidenceNumber),
		Detail:          evidence.Title,
		Link:            fmt.Sprintf("/evidence/%s", evidence.ID),
		RelatedEntityID: evidence.ID,
	})

	s.auditTransition(ctx, audit.EventEvidenceSubmitted, evidence, oldStatus, "")
	return evidence, nil
}

// Approve marks Under Review evidence as Verified. When comments are given
// they replace the record's comments; empty comments leave them untouched.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, comments string) (*models.Evidence, error) {
	now := requestcontext.Now(ctx).UTC()
	actor := requestcontext.Actor(ctx)
	evidence, oldStatus, err := s.transition(ctx, id, models.StatusVerified, func(e *models.Evidence) {
		e.VerifiedBy = actor
		e.VerifiedAt = &now
		if comments != "" {
			e.Comments = comments
		}
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmitter(ctx, evidence, "Evidence verified",
		fmt.Sprintf("Evidence %s was verified", evidence.EvidenceNumber))
	s.auditTransition(ctx, audit.EventEvidenceApproved, evidence, oldStatus, "")
	return evidence, nil
}

// Reject sends Under Review evidence back with a mandatory reason. The
// reason replaces the record's comments so the submitter sees it.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Evidence, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	now := requestcontext.Now(ctx).UTC()
	actor := requestcontext.Actor(ctx)
	evidence, oldStatus, err := s.transition(ctx, id, models.StatusRejected, func(e *models.Evidence) {
		e.VerifiedBy = actor
		e.VerifiedAt = &now
		e.Comments = reason
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmitter(ctx, evidence, "Evidence rejected",
		fmt.Sprintf("Evidence %s was rejected: %s", evidence.EvidenceNumber, reason))
	s.auditTransition(ctx, audit.EventEvidenceRejected, evidence, oldStatus, reason)
	return evidence, nil
}

// Archive retires Verified evidence. Archived is terminal.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	evidence, oldStatus, err := s.transition(ctx, id, models.StatusArchived, nil)
	if err != nil {
		return nil, err
	}
	s.auditTransition(ctx, audit.EventEvidenceArchived, evidence, oldStatus, "")
	return evidence, nil
}

// Resubmit returns Rejected evidence to Pending for another review cycle.
// The rejection comments are cleared so the new cycle starts clean.
func (s *Service) Resubmit(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	evidence, oldStatus, err := s.transition(ctx, id, models.StatusPending, func(e *models.Evidence) {
		e.Comments = ""
	})
	if err != nil {
		return nil, err
	}
	s.auditTransition(ctx, audit.EventEvidenceResubmitted, evidence, oldStatus, "")
	return evidence, nil
}

// transition applies the state machine and the per-operation mutation under
// the store's row guard. The returned oldStatus is the state before the move.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to models.VerificationStatus,
	extra func(*models.Evidence)) (*models.Evidence, models.VerificationStatus, error) {

	start := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	var oldStatus models.VerificationStatus

	evidence, err := s.store.Execute(ctx, id,
		func(e *models.Evidence) error {
			oldStatus = e.VerificationStatus
			if e.VerificationStatus == to || !models.CanTransition(e.VerificationStatus, to) {
				return &InvalidTransitionError{From: e.VerificationStatus, To: to}
			}
			return nil
		},
		func(e *models.Evidence) {
			e.VerificationStatus = to
			e.ModifiedBy = actor
			e.UpdatedAt = requestcontext.Now(ctx).UTC()
			if extra != nil {
				extra(e)
			}
		})
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			if s.metrics != nil {
				s.metrics.TransitionsRejected.Inc()
			}
			return nil, "", invalid
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", &NotFoundError{ID: id}
		}
		return nil, "", fmt.Errorf("transitioning evidence: %w", err)
	}

	s.observeTransition(start, to)
	return evidence, oldStatus, nil
}

func (s *Service) notifySubmitter(ctx context.Context, evidence *models.Evidence, title, message string) {
	if evidence.CollectedBy == "" {
		return
	}
	s.notify(ctx, []models.User{{ID: evidence.CollectedBy}}, models.Notification{
		Title:           title,
		Category:        NotificationCategory,
		Message:         message,
		Detail:          evidence.Title,
		Link:            fmt.Sprintf("/evidence/%s", evidence.ID),
		RelatedEntityID: evidence.ID,
	})
}

func (s *Service) auditTransition(ctx context.Context, action audit.AuditEvent,
	evidence *models.Evidence, oldStatus models.VerificationStatus, reason string) {

	s.emitAudit(ctx, action, audit.Event{
		TenantCode: evidence.TenantCode,
		Subject:    evidence.EvidenceNumber,
		EntityType: "evidence",
		EntityID:   evidence.ID,
		OldStatus:  string(oldStatus),
		NewStatus:  string(evidence.VerificationStatus),
		Reason:     reason,
	})
}

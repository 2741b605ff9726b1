package service

import (
	"fmt"

	"github.com/google/uuid"

	"shahin/internal/evidence/models"
)

// NotFoundError reports that no evidence record exists for the given id.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("evidence %s not found", e.ID)
}

// InvalidTransitionError reports a workflow move the state machine forbids.
type InvalidTransitionError struct {
	From models.VerificationStatus
	To   models.VerificationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

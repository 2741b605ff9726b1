package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the lifecycle state of an evidence record.
type VerificationStatus string

const (
	StatusDraft       VerificationStatus = "Draft"
	StatusPending     VerificationStatus = "Pending"
	StatusUnderReview VerificationStatus = "Under Review"
	StatusVerified    VerificationStatus = "Verified"
	StatusRejected    VerificationStatus = "Rejected"
	StatusArchived    VerificationStatus = "Archived"
)

// AllStatuses lists every lifecycle state, useful for closure checks.
var AllStatuses = []VerificationStatus{
	StatusDraft, StatusPending, StatusUnderReview,
	StatusVerified, StatusRejected, StatusArchived,
}

// Valid reports whether s is a known lifecycle state.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusUnderReview,
		StatusVerified, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// Evidence is a governed compliance artifact moving through the review
// lifecycle. Status changes only happen through workflow operations; direct
// writes bypassing the state machine are a bug.
type Evidence struct {
	ID                 uuid.UUID
	EvidenceNumber     string
	TenantCode         string
	WorkspaceID        uuid.UUID
	Title              string
	Description        string
	EvidenceType       string
	FilePath           string
	VerificationStatus VerificationStatus
	Comments           string
	CollectedBy        string
	VerifiedBy         string
	VerifiedAt         *time.Time
	ModifiedBy         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FormatEvidenceNumber renders the document number for an evidence record
// from its allocation date and daily sequence, e.g. EV-20260310-0001.
func FormatEvidenceNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("EV-%s-%04d", date.Format("20060102"), sequence)
}

// DateKey is the daily partition key for evidence number allocation.
func DateKey(date time.Time) string {
	return date.Format("20060102")
}

// Notification is the message sent to a reviewer or submitter on a workflow
// transition.
type Notification struct {
	RecipientID     string
	Title           string
	Category        string
	Message         string
	Detail          string
	Link            string
	RelatedEntityID uuid.UUID
}

// User is a directory entry used to resolve the reviewer pool.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

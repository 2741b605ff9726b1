package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose. This enables
// different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance;
	// these require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring
	// (blocked AI inputs, rate-limit trips).
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility; these can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture lifecycle-relevant actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	Action     string
	Actor      string
	TenantCode string
	Subject    string // serial code or evidence number
	EntityType string
	EntityID   uuid.UUID
	OldStatus  string
	NewStatus  string
	Reason     string
	RequestID  string // correlation id from request context
}

type AuditEvent string

const (
	// Serial code registry events
	EventCodeGenerated        AuditEvent = "code_generated"
	EventCodeVersionCreated   AuditEvent = "code_version_created"
	EventCodeVoided           AuditEvent = "code_voided"
	EventReservationCreated   AuditEvent = "reservation_created"
	EventReservationConfirmed AuditEvent = "reservation_confirmed"
	EventReservationCancelled AuditEvent = "reservation_cancelled"
	EventReservationExpired   AuditEvent = "reservation_expired"

	// Evidence workflow events
	EventEvidenceCreated     AuditEvent = "evidence_created"
	EventEvidenceSubmitted   AuditEvent = "evidence_submitted"
	EventEvidenceApproved    AuditEvent = "evidence_approved"
	EventEvidenceRejected    AuditEvent = "evidence_rejected"
	EventEvidenceArchived    AuditEvent = "evidence_archived"
	EventEvidenceResubmitted AuditEvent = "evidence_resubmitted"

	// AI input filter events
	EventAiInputBlocked       AuditEvent = "ai_input_blocked"
	EventAiRateLimitExceeded  AuditEvent = "ai_rate_limit_exceeded"
	EventAiSensitiveDataFound AuditEvent = "ai_sensitive_data_found"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events carry the traceability trail for issued identifiers
	// and verification decisions.
	EventCodeGenerated:        CategoryCompliance,
	EventCodeVersionCreated:   CategoryCompliance,
	EventCodeVoided:           CategoryCompliance,
	EventReservationConfirmed: CategoryCompliance,
	EventEvidenceApproved:     CategoryCompliance,
	EventEvidenceRejected:     CategoryCompliance,
	EventEvidenceArchived:     CategoryCompliance,

	// Security events feed monitoring and alerting.
	EventAiInputBlocked:       CategorySecurity,
	EventAiRateLimitExceeded:  CategorySecurity,
	EventAiSensitiveDataFound: CategorySecurity,

	// Operations events are routine activity.
	EventReservationCreated:   CategoryOperations,
	EventReservationCancelled: CategoryOperations,
	EventReservationExpired:   CategoryOperations,
	EventEvidenceCreated:      CategoryOperations,
	EventEvidenceSubmitted:    CategoryOperations,
	EventEvidenceResubmitted:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

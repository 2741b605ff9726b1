package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistryStatus is the lifecycle status of an issued serial code.
type RegistryStatus string

const (
	RegistryStatusActive     RegistryStatus = "active"
	RegistryStatusSuperseded RegistryStatus = "superseded"
	RegistryStatusVoid       RegistryStatus = "void"
)

// ReservationStatus is the lifecycle status of a code reservation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// RegistryEntry is the authoritative record of an issued serial code.
//
// Invariants:
//   - exactly one active entry per (Prefix, TenantCode, Stage, Year, Sequence)
//   - Version increases by exactly 1 per new-version operation, capped at 99
//   - once void, never reactivated
type RegistryEntry struct {
	Code                string
	Prefix              string
	TenantCode          string
	Stage               int
	Year                int
	Sequence            int
	Version             int
	EntityType          string
	EntityID            uuid.UUID
	Status              RegistryStatus
	StatusReason        string
	PreviousVersionCode string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive reports whether the entry currently identifies its entity.
func (e *RegistryEntry) IsActive() bool {
	return e.Status == RegistryStatusActive
}

// CounterKey identifies a sequence partition. Sequences are monotonically
// increasing per key; uniqueness of issued codes rests on atomic increments
// of the counter row for this key.
type CounterKey struct {
	Prefix     string
	TenantCode string
	Stage      int
	Year       int
}

// Reservation is a provisional, time-boxed hold on a not-yet-issued code.
// Only a reserved reservation may transition to confirmed or cancelled; a
// reserved row past ExpiresAt is treated as expired on access.
type Reservation struct {
	ID           uuid.UUID
	ReservedCode string
	Prefix       string
	TenantCode   string
	Stage        int
	Year         int
	Sequence     int
	EntityType   string
	Status       ReservationStatus
	ExpiresAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CreatedBy    string
	CreatedAt    time.Time
}

// IsExpired reports whether a still-reserved reservation is past its deadline.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusReserved && now.After(r.ExpiresAt)
}

// GenerateRequest carries the inputs for issuing a new serial code.
type GenerateRequest struct {
	EntityType string
	TenantCode string
	Stage      int
	Year       int
	EntityID   uuid.UUID
	CreatedBy  string
}

// TraceabilityReport links a code to its full version history and to active
// codes of other entity types issued for the same business object.
type TraceabilityReport struct {
	CurrentCode    string          `json:"current_code"`
	EntityType     string          `json:"entity_type"`
	EntityID       uuid.UUID       `json:"entity_id"`
	VersionHistory []VersionRecord `json:"version_history"`
	RelatedCodes   []RelatedCode   `json:"related_codes,omitempty"`
}

// VersionRecord is one link of a code's version chain, ascending by version.
type VersionRecord struct {
	Code         string         `json:"code"`
	Version      int            `json:"version"`
	Status       RegistryStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RelatedCode points at an active code of a different prefix sharing the
// same EntityID (e.g. a control's code and its evidence's code).
type RelatedCode struct {
	Code       string `json:"code"`
	Prefix     string `json:"prefix"`
	EntityType string `json:"entity_type"`
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shahin/internal/audit"
	"shahin/internal/serialcode/models"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/requestcontext"
)

// Reserve allocates a sequence and holds the resulting code without issuing
// it. The hold expires after the configured TTL unless confirmed.
func (s *Service) Reserve(ctx context.Context, req models.GenerateRequest) (*models.Reservation, error) {
	prefix, year, err := s.validateRequest(ctx, &req)
	if err != nil {
		return nil, err
	}

	var reservation *models.Reservation
	err = s.runInTx(ctx, func(ctx context.Context) error {
		sequence, err := s.counters.Next(ctx, models.CounterKey{
			Prefix:     prefix,
			TenantCode: req.TenantCode,
			Stage:      req.Stage,
			Year:       year,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate sequence")
		}
		if sequence > maxSequence {
			return dErrors.Newf(dErrors.CodeInvalidOperation,
				"sequence exhausted for %s-%s-%02d-%04d", prefix, req.TenantCode, req.Stage, year)
		}

		now := requestcontext.Now(ctx)
		reservation = &models.Reservation{
			ID:           uuid.New(),
			ReservedCode: models.FormatCode(prefix, req.TenantCode, req.Stage, year, sequence, 1),
			Prefix:       prefix,
			TenantCode:   req.TenantCode,
			Stage:        req.Stage,
			Year:         year,
			Sequence:     sequence,
			EntityType:   req.EntityType,
			Status:       models.ReservationStatusReserved,
			ExpiresAt:    now.Add(s.reservationTTL),
			CreatedBy:    req.CreatedBy,
			CreatedAt:    now,
		}
		if err := s.reservations.Create(ctx, reservation); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.EventReservationCreated, audit.Event{
		TenantCode: reservation.TenantCode,
		Subject:    reservation.ReservedCode,
		EntityType: reservation.EntityType,
		NewStatus:  string(models.ReservationStatusReserved),
	})
	if s.metrics != nil {
		s.metrics.ReservationsCreated.Inc()
	}
	return reservation, nil
}

// ConfirmReservation turns a held code into a registered active code bound to
// the given entity. A reservation past its deadline is flipped to expired and
// the confirmation is rejected; the held sequence is never reissued.
func (s *Service) ConfirmReservation(ctx context.Context, reservationID, entityID uuid.UUID) (*models.RegistryEntry, error) {
	ctx, span := tracer.Start(ctx, "serialcode.ConfirmReservation",
		trace.WithAttributes(attribute.String("reservation_id", reservationID.String())))
	defer span.End()

	if entityID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "reservation %s not found", reservationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reservation")
	}

	now := requestcontext.Now(ctx)
	if reservation.IsExpired(now) {
		s.expireReservation(ctx, reservation.ID)
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "reservation has expired")
	}

	var entry *models.RegistryEntry
	err = s.runInTx(ctx, func(ctx context.Context) error {
		confirmed, err := s.reservations.Execute(ctx, reservation.ID,
			func(r *models.Reservation) error {
				switch {
				case r.IsExpired(now):
					return dErrors.New(dErrors.CodeInvalidOperation, "reservation has expired")
				case r.Status != models.ReservationStatusReserved:
					return dErrors.Newf(dErrors.CodeInvalidOperation,
						"reservation is %s, only reserved reservations can be confirmed", r.Status)
				}
				return nil
			},
			func(r *models.Reservation) {
				r.Status = models.ReservationStatusConfirmed
				r.ConfirmedAt = &now
			},
		)
		if err != nil {
			return err
		}

		entry = &models.RegistryEntry{
			Code:       confirmed.ReservedCode,
			Prefix:     confirmed.Prefix,
			TenantCode: confirmed.TenantCode,
			Stage:      confirmed.Stage,
			Year:       confirmed.Year,
			Sequence:   confirmed.Sequence,
			Version:    1,
			EntityType: confirmed.EntityType,
			EntityID:   entityID,
			Status:     models.RegistryStatusActive,
			CreatedBy:  requestcontext.Actor(ctx),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.registry.Create(ctx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "code %s already registered", entry.Code)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register reserved code")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.EventReservationConfirmed, audit.Event{
		TenantCode: entry.TenantCode,
		Subject:    entry.Code,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldStatus:  string(models.ReservationStatusReserved),
		NewStatus:  string(models.ReservationStatusConfirmed),
	})
	if s.metrics != nil {
		s.metrics.ReservationsConfirmed.Inc()
	}
	return entry, nil
}

// CancelReservation releases a hold. The sequence stays burned; cancelled
// reservations never return their number to the pool.
func (s *Service) CancelReservation(ctx context.Context, reservationID uuid.UUID) error {
	now := requestcontext.Now(ctx)
	reservation, err := s.reservations.Execute(ctx, reservationID,
		func(r *models.Reservation) error {
			switch {
			case r.IsExpired(now):
				return dErrors.New(dErrors.CodeInvalidOperation, "reservation has expired")
			case r.Status != models.ReservationStatusReserved:
				return dErrors.Newf(dErrors.CodeInvalidOperation,
					"reservation is %s, only reserved reservations can be cancelled", r.Status)
			}
			return nil
		},
		func(r *models.Reservation) {
			r.Status = models.ReservationStatusCancelled
			r.CancelledAt = &now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "reservation %s not found", reservationID)
		}
		if reservation != nil && reservation.IsExpired(now) {
			s.expireReservation(ctx, reservation.ID)
		}
		return err
	}

	s.emitAudit(ctx, audit.EventReservationCancelled, audit.Event{
		TenantCode: reservation.TenantCode,
		Subject:    reservation.ReservedCode,
		EntityType: reservation.EntityType,
		OldStatus:  string(models.ReservationStatusReserved),
		NewStatus:  string(models.ReservationStatusCancelled),
	})
	if s.metrics != nil {
		s.metrics.ReservationsCancelled.Inc()
	}
	return nil
}

// SweepExpiredReservations flips reservations past their deadline to expired.
// Run it periodically; confirmation attempts also flip lazily, so the sweep
// only bounds how stale an untouched reservation can look.
func (s *Service) SweepExpiredReservations(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	expired, err := s.reservations.ListExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired reservations")
	}

	swept := 0
	for _, r := range expired {
		if !s.expireReservation(ctx, r.ID) {
			continue
		}
		swept++
	}
	return swept, nil
}

// expireReservation marks a reservation expired if it is still reserved and
// past its deadline. Reports whether the flip happened.
func (s *Service) expireReservation(ctx context.Context, reservationID uuid.UUID) bool {
	now := requestcontext.Now(ctx)
	reservation, err := s.reservations.Execute(ctx, reservationID,
		func(r *models.Reservation) error {
			if !r.IsExpired(now) {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(r *models.Reservation) {
			r.Status = models.ReservationStatusExpired
		},
	)
	if err != nil {
		return false
	}

	s.emitAudit(ctx, audit.EventReservationExpired, audit.Event{
		TenantCode: reservation.TenantCode,
		Subject:    reservation.ReservedCode,
		EntityType: reservation.EntityType,
		OldStatus:  string(models.ReservationStatusReserved),
		NewStatus:  string(models.ReservationStatusExpired),
	})
	if s.metrics != nil {
		s.metrics.ReservationsExpired.Inc()
	}
	return true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shahin/internal/audit"
	"shahin/internal/serialcode/models"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/platform/sentinel"
	"shahin/pkg/requestcontext"
)

var tracer = otel.Tracer("shahin/internal/serialcode")

// Generate issues a fresh serial code at version 1 for the given entity.
// Sequence allocation and registry insert happen in one unit of work so a
// failed insert never leaves a gap observable as a duplicate.
func (s *Service) Generate(ctx context.Context, req models.GenerateRequest) (entry *models.RegistryEntry, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "serialcode.Generate",
		trace.WithAttributes(
			attribute.String("tenant_code", req.TenantCode),
			attribute.String("entity_type", req.EntityType),
		))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	prefix, year, err := s.validateRequest(ctx, &req)
	if err != nil {
		return nil, err
	}
	if req.EntityID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

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
		entry = &models.RegistryEntry{
			Code:       models.FormatCode(prefix, req.TenantCode, req.Stage, year, sequence, 1),
			Prefix:     prefix,
			TenantCode: req.TenantCode,
			Stage:      req.Stage,
			Year:       year,
			Sequence:   sequence,
			Version:    1,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
			Status:     models.RegistryStatusActive,
			CreatedBy:  req.CreatedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.registry.Create(ctx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "code %s already registered", entry.Code)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register code")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.EventCodeGenerated, audit.Event{
		TenantCode: entry.TenantCode,
		Subject:    entry.Code,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		NewStatus:  string(entry.Status),
	})
	if s.metrics != nil {
		s.metrics.CodesGenerated.WithLabelValues(entry.Prefix).Inc()
		s.metrics.ObserveGenerate(start)
	}
	return entry, nil
}

// GetCode returns the registry entry for a code.
func (s *Service) GetCode(ctx context.Context, code string) (*models.RegistryEntry, error) {
	if _, err := models.ParseCode(code); err != nil {
		return nil, err
	}
	entry, err := s.registry.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "code %s not found in registry", code)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load code")
	}
	return entry, nil
}

// CreateNewVersion supersedes an active code with the next version of the
// same identifier. The sequence never changes; only the version segment
// advances. Fails once the chain reaches version 99. An empty reason falls
// back to a generated supersession note on the old row.
func (s *Service) CreateNewVersion(ctx context.Context, existingCode, reason string) (*models.RegistryEntry, error) {
	existing, err := s.GetCode(ctx, existingCode)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var next *models.RegistryEntry
	err = s.runInTx(ctx, func(ctx context.Context) error {
		superseded, err := s.registry.Execute(ctx, existing.Code,
			func(e *models.RegistryEntry) error {
				if !e.IsActive() {
					return dErrors.Newf(dErrors.CodeInvalidOperation,
						"cannot version a %s code", e.Status)
				}
				if e.Version >= models.MaxVersion {
					return dErrors.New(dErrors.CodeInvalidOperation, "maximum version exceeded")
				}
				return nil
			},
			func(e *models.RegistryEntry) {
				e.Status = models.RegistryStatusSuperseded
				e.StatusReason = reason
				if e.StatusReason == "" {
					e.StatusReason = fmt.Sprintf("superseded by version %02d", e.Version+1)
				}
				e.UpdatedAt = now
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "code %s not found in registry", existing.Code)
			}
			return err
		}

		next = &models.RegistryEntry{
			Code: models.FormatCode(superseded.Prefix, superseded.TenantCode,
				superseded.Stage, superseded.Year, superseded.Sequence, superseded.Version+1),
			Prefix:              superseded.Prefix,
			TenantCode:          superseded.TenantCode,
			Stage:               superseded.Stage,
			Year:                superseded.Year,
			Sequence:            superseded.Sequence,
			Version:             superseded.Version + 1,
			EntityType:          superseded.EntityType,
			EntityID:            superseded.EntityID,
			Status:              models.RegistryStatusActive,
			PreviousVersionCode: superseded.Code,
			CreatedBy:           requestcontext.Actor(ctx),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.registry.Create(ctx, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "code %s already registered", next.Code)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register new version")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.EventCodeVersionCreated, audit.Event{
		TenantCode: next.TenantCode,
		Subject:    next.Code,
		EntityType: next.EntityType,
		EntityID:   next.EntityID,
		OldStatus:  string(models.RegistryStatusActive),
		NewStatus:  string(models.RegistryStatusActive),
		Reason:     "new version of " + existing.Code,
	})
	if s.metrics != nil {
		s.metrics.VersionsCreated.Inc()
	}
	return next, nil
}

// Void retires a code permanently. Void is terminal; a voided code is never
// reactivated and its sequence is never reissued.
func (s *Service) Void(ctx context.Context, code, reason string) (*models.RegistryEntry, error) {
	if _, err := models.ParseCode(code); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "void reason is required")
	}

	now := requestcontext.Now(ctx)
	var oldStatus models.RegistryStatus
	entry, err := s.registry.Execute(ctx, code,
		func(e *models.RegistryEntry) error {
			// Superseded codes stay voidable; only void itself is terminal.
			if e.Status == models.RegistryStatusVoid {
				return dErrors.New(dErrors.CodeInvalidOperation, "code is already void")
			}
			return nil
		},
		func(e *models.RegistryEntry) {
			oldStatus = e.Status
			e.Status = models.RegistryStatusVoid
			e.StatusReason = reason
			e.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "code %s not found in registry", code)
		}
		return nil, err
	}

	s.emitAudit(ctx, audit.EventCodeVoided, audit.Event{
		TenantCode: entry.TenantCode,
		Subject:    entry.Code,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldStatus:  string(oldStatus),
		NewStatus:  string(models.RegistryStatusVoid),
		Reason:     reason,
	})
	if s.metrics != nil {
		s.metrics.CodesVoided.Inc()
	}
	return entry, nil
}

// GetTraceabilityReport assembles the full version chain of a code plus the
// active codes of other prefixes issued for the same entity. The chain is
// reconstructed from previous-version back-links and returned ascending.
func (s *Service) GetTraceabilityReport(ctx context.Context, code string) (*models.TraceabilityReport, error) {
	entry, err := s.GetCode(ctx, code)
	if err != nil {
		return nil, err
	}

	history := []models.VersionRecord{versionRecord(entry)}

	// Walk backwards to version 1.
	for prev := entry.PreviousVersionCode; prev != ""; {
		e, err := s.registry.FindByCode(ctx, prev)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				break
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to walk version chain")
		}
		history = append(history, versionRecord(e))
		prev = e.PreviousVersionCode
	}

	// Walk forwards to the newest version.
	current := entry
	for {
		e, err := s.registry.FindByPreviousCode(ctx, current.Code)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				break
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to walk version chain")
		}
		history = append(history, versionRecord(e))
		current = e
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].Version < history[j].Version
	})

	report := &models.TraceabilityReport{
		CurrentCode:    current.Code,
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		VersionHistory: history,
	}

	active, err := s.registry.ListActiveByEntity(ctx, entry.EntityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list related codes")
	}
	for _, e := range active {
		if e.Prefix == entry.Prefix {
			continue
		}
		report.RelatedCodes = append(report.RelatedCodes, models.RelatedCode{
			Code:       e.Code,
			Prefix:     e.Prefix,
			EntityType: e.EntityType,
		})
	}
	return report, nil
}

func versionRecord(e *models.RegistryEntry) models.VersionRecord {
	return models.VersionRecord{
		Code:         e.Code,
		Version:      e.Version,
		Status:       e.Status,
		StatusReason: e.StatusReason,
		CreatedAt:    e.CreatedAt,
	}
}

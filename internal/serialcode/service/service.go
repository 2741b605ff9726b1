package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shahin/internal/audit"
	"shahin/internal/serialcode/metrics"
	"shahin/internal/serialcode/models"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/requestcontext"
)

// DefaultReservationTTL bounds how long a reservation holds its sequence
// before it is treated as expired.
const DefaultReservationTTL = 30 * time.Minute

// maxSequence is the largest sequence the six-digit segment can carry.
const maxSequence = 999999

type RegistryStore interface {
	Create(ctx context.Context, entry *models.RegistryEntry) error
	FindByCode(ctx context.Context, code string) (*models.RegistryEntry, error)
	FindByPreviousCode(ctx context.Context, previousCode string) (*models.RegistryEntry, error)
	ListActiveByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.RegistryEntry, error)
	Execute(ctx context.Context, code string,
		validate func(*models.RegistryEntry) error,
		mutate func(*models.RegistryEntry)) (*models.RegistryEntry, error)
}

type CounterStore interface {
	Next(ctx context.Context, key models.CounterKey) (int, error)
}

type ReservationStore interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListExpired(ctx context.Context, asOf time.Time) ([]*models.Reservation, error)
	Execute(ctx context.Context, id uuid.UUID,
		validate func(*models.Reservation) error,
		mutate func(*models.Reservation)) (*models.Reservation, error)
}

// TxRunner groups store writes into one unit of work. Optional; without it
// each write commits independently, which the memory stores are fine with.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues, versions and retires serial codes for governed entities.
type Service struct {
	registry     RegistryStore
	counters     CounterStore
	reservations ReservationStore

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	txRunner       TxRunner

	reservedTenantCodes []string
	reservationTTL      time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(s *Service) {
		s.txRunner = runner
	}
}

// WithReservedTenantCodes blocks additional tenant codes on top of the
// built-in reserved set.
func WithReservedTenantCodes(codes ...string) Option {
	return func(s *Service) {
		s.reservedTenantCodes = append(s.reservedTenantCodes, codes...)
	}
}

func WithReservationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

// New constructs a Service.
func New(registry RegistryStore, counters CounterStore, reservations ReservationStore, opts ...Option) *Service {
	s := &Service{
		registry:            registry,
		counters:            counters,
		reservations:        reservations,
		reservedTenantCodes: append([]string(nil), models.DefaultReservedTenantCodes...),
		reservationTTL:      DefaultReservationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateRequest normalizes and checks the shared generation inputs,
// returning the resolved prefix and year.
func (s *Service) validateRequest(ctx context.Context, req *models.GenerateRequest) (string, int, error) {
	req.EntityType = strings.ToLower(strings.TrimSpace(req.EntityType))
	prefix, err := models.PrefixFor(req.EntityType)
	if err != nil {
		return "", 0, err
	}
	req.TenantCode = models.NormalizeTenantCode(req.TenantCode)
	if err := models.ValidateTenantCode(req.TenantCode, s.reservedTenantCodes); err != nil {
		return "", 0, err
	}
	if req.Stage < 0 || req.Stage > 99 {
		return "", 0, dErrors.New(dErrors.CodeValidation, "stage must be between 0 and 99")
	}
	year := req.Year
	if year == 0 {
		year = requestcontext.Now(ctx).Year()
	}
	if year < 1000 || year > 9999 {
		return "", 0, dErrors.New(dErrors.CodeValidation, "year must have four digits")
	}
	return prefix, year, nil
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txRunner == nil {
		return fn(ctx)
	}
	return s.txRunner.RunInTx(ctx, fn)
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	event.Action = string(action)
	event.Actor = requestcontext.Actor(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if s.logger != nil {
		s.logger.InfoContext(ctx, event.Action,
			"subject", event.Subject,
			"tenant_code", event.TenantCode,
			"log_type", "audit")
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

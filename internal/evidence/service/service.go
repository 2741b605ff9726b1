package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"shahin/internal/audit"
	"shahin/internal/evidence/metrics"
	"shahin/internal/evidence/models"
	"shahin/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks shahin/internal/evidence/service Notifier,UserDirectory

// ReviewerRole is the directory role whose members receive review requests.
const ReviewerRole = "ComplianceManager"

// NotificationCategory tags workflow notifications for client-side routing.
const NotificationCategory = "EvidenceReview"

type Store interface {
	Create(ctx context.Context, evidence *models.Evidence) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	FindByNumber(ctx context.Context, tenantCode, number string) (*models.Evidence, error)
	ListByTenant(ctx context.Context, tenantCode string, status models.VerificationStatus) ([]*models.Evidence, error)
	Execute(ctx context.Context, id uuid.UUID,
		validate func(*models.Evidence) error,
		mutate func(*models.Evidence)) (*models.Evidence, error)
}

// NumberStore allocates the daily sequence behind evidence numbers.
type NumberStore interface {
	Next(ctx context.Context, tenantCode, dateKey string) (int, error)
}

// Notifier delivers workflow notifications. Delivery failures must not fail
// the transition that triggered them.
type Notifier interface {
	SendNotification(ctx context.Context, notification models.Notification) error
}

// UserDirectory resolves the users holding a directory role.
type UserDirectory interface {
	GetUsersInRole(ctx context.Context, role string) ([]models.User, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the evidence verification workflow. Every status change goes
// through the state machine; callers never set VerificationStatus directly.
type Service struct {
	store   Store
	numbers NumberStore

	directory UserDirectory
	notifier  Notifier

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	txRunner       TxRunner
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

// New constructs a Service. directory and notifier may be nil, in which case
// transitions proceed without sending notifications.
func New(store Store, numbers NumberStore, directory UserDirectory, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:     store,
		numbers:   numbers,
		directory: directory,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

// notify fans a notification out to each recipient. Failures are logged and
// counted but never surfaced to the caller.
func (s *Service) notify(ctx context.Context, recipients []models.User, notification models.Notification) {
	if s.notifier == nil {
		return
	}
	for _, user := range recipients {
		notification.RecipientID = user.ID
		if err := s.notifier.SendNotification(ctx, notification); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "notification delivery failed",
					"recipient", user.ID, "error", err)
			}
			if s.metrics != nil {
				s.metrics.NotifyFailures.Inc()
			}
		}
	}
}

// reviewers resolves the reviewer pool. A directory failure degrades to an
// empty pool, so the transition itself still succeeds.
func (s *Service) reviewers(ctx context.Context) []models.User {
	if s.directory == nil {
		return nil
	}
	users, err := s.directory.GetUsersInRole(ctx, ReviewerRole)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "reviewer lookup failed", "role", ReviewerRole, "error", err)
		}
		return nil
	}
	return users
}

func (s *Service) observeTransition(start time.Time, to models.VerificationStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	s.metrics.ObserveTransition(start)
}

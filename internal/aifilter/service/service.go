package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"shahin/internal/aifilter/metrics"
	"shahin/internal/aifilter/models"
	"shahin/internal/audit"
	dErrors "shahin/pkg/domain-errors"
	"shahin/pkg/requestcontext"
)

// DefaultRateLimitPerMinute caps AI input checks per tenant per window.
const DefaultRateLimitPerMinute = 60

// rateLimitWindow is the fixed window length.
const rateLimitWindow = time.Minute

// WindowStore tracks fixed-window request counts per key.
type WindowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service guards text bound for an external AI provider: rate limit, block
// injection attempts, warn on sensitive data, defuse prompt delimiters.
type Service struct {
	windows WindowStore

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics

	limit          int
	maxInputLength int
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

func WithRateLimit(perMinute int) Option {
	return func(s *Service) {
		if perMinute > 0 {
			s.limit = perMinute
		}
	}
}

func WithMaxInputLength(length int) Option {
	return func(s *Service) {
		if length > 0 {
			s.maxInputLength = length
		}
	}
}

// New constructs a Service.
func New(windows WindowStore, opts ...Option) *Service {
	s := &Service{
		windows:        windows,
		limit:          DefaultRateLimitPerMinute,
		maxInputLength: DefaultMaxInputLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check runs the input through the filter pipeline for the given tenant. An
// empty tenant code falls back to the shared global window.
func (s *Service) Check(ctx context.Context, tenantCode, input string) (*models.CheckResult, error) {
	key := strings.ToUpper(strings.TrimSpace(tenantCode))
	if key == "" {
		key = models.GlobalKey
	}

	if err := s.checkRateLimit(ctx, key); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.InputsChecked.Inc()
	}

	if strings.TrimSpace(input) == "" {
		return &models.CheckResult{}, nil
	}

	truncated := false
	if len(input) > s.maxInputLength {
		input = Truncate(input, s.maxInputLength)
		truncated = true
	}

	if DetectInjection(input) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "prompt injection blocked", "tenant_code", key)
		}
		if s.metrics != nil {
			s.metrics.InputsBlocked.Inc()
		}
		s.emitAudit(ctx, audit.EventAiInputBlocked, audit.Event{
			TenantCode: key,
			Reason:     "prompt injection pattern matched",
		})
		return nil, dErrors.New(dErrors.CodeValidation,
			"input contains disallowed instructions, remove special directives and retry")
	}

	sensitiveTypes := DetectSensitiveData(input)
	if len(sensitiveTypes) > 0 {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "sensitive data detected",
				"tenant_code", key, "types", strings.Join(sensitiveTypes, ","))
		}
		if s.metrics != nil {
			for _, name := range sensitiveTypes {
				s.metrics.SensitiveDataFound.WithLabelValues(name).Inc()
			}
		}
		s.emitAudit(ctx, audit.EventAiSensitiveDataFound, audit.Event{
			TenantCode: key,
			Reason:     strings.Join(sensitiveTypes, ","),
		})
	}

	sanitized := DefuseDelimiters(input)
	return &models.CheckResult{
		SanitizedInput:  sanitized,
		EstimatedTokens: EstimateTokens(sanitized),
		SensitiveTypes:  sensitiveTypes,
		Truncated:       truncated,
	}, nil
}

// checkRateLimit consults the window store. Store failures degrade to
// allowing the request, a stalled limiter must not take the filter down.
func (s *Service) checkRateLimit(ctx context.Context, key string) error {
	result, err := s.windows.Allow(ctx, key, s.limit, rateLimitWindow)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "rate limit store unavailable", "error", err)
		}
		return nil
	}
	if result.Allowed {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RateLimited.Inc()
	}
	s.emitAudit(ctx, audit.EventAiRateLimitExceeded, audit.Event{
		TenantCode: key,
		Reason:     "request cap reached",
	})
	return dErrors.Newf(dErrors.CodeRateLimited,
		"rate limit exceeded, please wait %d seconds", int(result.RetryAfter.Seconds()))
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	event.Action = string(action)
	event.Actor = requestcontext.Actor(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

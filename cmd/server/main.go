package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	aifilterhandler "shahin/internal/aifilter/handler"
	aifiltermetrics "shahin/internal/aifilter/metrics"
	aifilterservice "shahin/internal/aifilter/service"
	"shahin/internal/aifilter/store/window"
	"shahin/internal/audit"
	evidencehandler "shahin/internal/evidence/handler"
	evidencemetrics "shahin/internal/evidence/metrics"
	"shahin/internal/evidence/models"
	evidenceservice "shahin/internal/evidence/service"
	evidencestore "shahin/internal/evidence/store/evidence"
	"shahin/internal/evidence/store/number"
	"shahin/internal/jwttoken"
	"shahin/internal/platform/config"
	"shahin/internal/platform/httpserver"
	"shahin/internal/platform/logger"
	"shahin/internal/platform/middleware"
	"shahin/internal/platform/otel"
	platformredis "shahin/internal/platform/redis"
	serialcodehandler "shahin/internal/serialcode/handler"
	serialcodemetrics "shahin/internal/serialcode/metrics"
	serialcodeservice "shahin/internal/serialcode/service"
	"shahin/internal/serialcode/store/counter"
	"shahin/internal/serialcode/store/registry"
	"shahin/internal/serialcode/store/reservation"
	"shahin/pkg/platform/tx"
)

const (
	auditBuffer     = 1024
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Setup(ctx, "shahin")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		log.Info("connected to postgres")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("connected to redis")
	}

	// Audit sink: Kafka when brokers are configured, else Postgres, else
	// memory. The channel store keeps Emit off the request path either way.
	var auditSink audit.Store
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, audit.DefaultTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		auditSink = kafkaSink
		log.Info("audit events publishing to kafka", "brokers", cfg.KafkaBrokers)
	case db != nil:
		auditSink = audit.NewPostgresStore(db)
	default:
		auditSink = audit.NewMemoryStore()
	}
	auditChannel := audit.NewChannelStore(auditBuffer, log)
	auditWorker := audit.NewWorker(auditSink, auditChannel.Inbox(), log)
	publisher := audit.NewPublisher(auditChannel)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwtValidator{service: jwtService}

	registryMetrics := serialcodemetrics.New()
	evidenceMetrics := evidencemetrics.New()

	registrySvc := buildRegistry(cfg, db, log, publisher, registryMetrics)
	evidenceSvc := buildEvidence(db, log, publisher, evidenceMetrics)
	filterSvc := buildFilter(cfg, redisClient, log, publisher)

	router := chi.NewRouter()
	serialcodehandler.New(registrySvc, log, registryMetrics, validator).Register(router)
	evidencehandler.New(evidenceSvc, log, evidenceMetrics, validator).Register(router)
	aifilterhandler.New(filterSvc, log, validator).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthHandler(db, redisClient))

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting shahin server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				swept, err := registrySvc.SweepExpiredReservations(ctx)
				if err != nil {
					log.Error("reservation sweep failed", "error", err)
					continue
				}
				if swept > 0 {
					log.Info("expired stale reservations", "count", swept)
				}
			}
		}
	})

	return g.Wait()
}

func buildRegistry(cfg config.Server, db *sql.DB, log *slog.Logger, publisher *audit.Publisher, m *serialcodemetrics.Metrics) *serialcodeservice.Service {
	opts := []serialcodeservice.Option{
		serialcodeservice.WithLogger(log),
		serialcodeservice.WithAuditPublisher(publisher),
		serialcodeservice.WithMetrics(m),
		serialcodeservice.WithReservationTTL(cfg.ReservationTTL),
	}
	if db == nil {
		return serialcodeservice.New(
			registry.NewInMemory(), counter.NewInMemory(), reservation.NewInMemory(), opts...)
	}
	opts = append(opts, serialcodeservice.WithTxRunner(tx.NewRunner(db)))
	return serialcodeservice.New(
		registry.NewPostgres(db), counter.NewPostgres(db), reservation.NewPostgres(db), opts...)
}

func buildEvidence(db *sql.DB, log *slog.Logger, publisher *audit.Publisher, m *evidencemetrics.Metrics) *evidenceservice.Service {
	opts := []evidenceservice.Option{
		evidenceservice.WithLogger(log),
		evidenceservice.WithAuditPublisher(publisher),
		evidenceservice.WithMetrics(m),
	}
	// The user directory is backed by the identity provider once one is
	// configured; until then review transitions run without a reviewer pool.
	notifier := logNotifier{logger: log}
	if db == nil {
		return evidenceservice.New(
			evidencestore.NewInMemory(), number.NewInMemory(), nil, notifier, opts...)
	}
	opts = append(opts, evidenceservice.WithTxRunner(tx.NewRunner(db)))
	return evidenceservice.New(
		evidencestore.NewPostgres(db), number.NewPostgres(db), nil, notifier, opts...)
}

func buildFilter(cfg config.Server, redisClient *platformredis.Client, log *slog.Logger, publisher *audit.Publisher) *aifilterservice.Service {
	var windows aifilterservice.WindowStore
	if redisClient != nil {
		windows = window.NewRedis(redisClient.Client)
	} else {
		windows = window.NewInMemory()
	}
	return aifilterservice.New(windows,
		aifilterservice.WithLogger(log),
		aifilterservice.WithAuditPublisher(publisher),
		aifilterservice.WithMetrics(aifiltermetrics.New()),
		aifilterservice.WithRateLimit(cfg.AIRateLimitPerMinute),
		aifilterservice.WithMaxInputLength(cfg.AIMaxInputLength),
	)
}

// jwtValidator adapts the token service to the claims shape the auth
// middleware consumes.
type jwtValidator struct {
	service *jwttoken.JWTService
}

func (v jwtValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	claims, err := v.service.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		UserID:     claims.UserID,
		TenantCode: claims.TenantCode,
		Roles:      claims.Roles,
	}, nil
}

// logNotifier records review notifications in the server log until a real
// delivery channel (email, in-app inbox) is attached.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) SendNotification(_ context.Context, notification models.Notification) error {
	n.logger.Info("evidence notification",
		"recipient", notification.RecipientID,
		"category", notification.Category,
		"title", notification.Title,
		"entity_id", notification.RelatedEntityID)
	return nil
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				status["status"] = "degraded"
				status["postgres"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

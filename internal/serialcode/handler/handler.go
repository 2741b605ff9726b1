package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shahin/internal/platform/middleware"
	"shahin/internal/serialcode/metrics"
	"shahin/internal/serialcode/models"
	"shahin/internal/transport/http/shared"
	dErrors "shahin/pkg/domain-errors"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.RegistryEntry, error)
	GetCode(ctx context.Context, code string) (*models.RegistryEntry, error)
	CreateNewVersion(ctx context.Context, existingCode, reason string) (*models.RegistryEntry, error)
	Void(ctx context.Context, code, reason string) (*models.RegistryEntry, error)
	GetTraceabilityReport(ctx context.Context, code string) (*models.TraceabilityReport, error)
	Reserve(ctx context.Context, req models.GenerateRequest) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, reservationID, entityID uuid.UUID) (*models.RegistryEntry, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) error
}

// Handler handles serial code registry endpoints.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new registry Handler.
func New(
	registry Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	if h.jwtValidator != nil {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	}

	router.Post("/serial-codes", h.handleGenerate)
	router.Get("/serial-codes/{code}", h.handleGet)
	router.Get("/serial-codes/{code}/traceability", h.handleTraceability)
	router.Post("/serial-codes/{code}/versions", h.handleNewVersion)
	router.Post("/serial-codes/{code}/void", h.handleVoid)
	router.Post("/serial-codes/reservations", h.handleReserve)
	router.Post("/serial-codes/reservations/{id}/confirm", h.handleConfirm)
	router.Post("/serial-codes/reservations/{id}/cancel", h.handleCancel)

	r.Mount("/", router)
}

type generateRequest struct {
	EntityType string `json:"entity_type"`
	TenantCode string `json:"tenant_code"`
	Stage      int    `json:"stage"`
	Year       int    `json:"year"`
	EntityID   string `json:"entity_id"`
	CreatedBy  string `json:"created_by"`
}

type entryResponse struct {
	Code                string    `json:"code"`
	Prefix              string    `json:"prefix"`
	TenantCode          string    `json:"tenant_code"`
	Stage               int       `json:"stage"`
	Year                int       `json:"year"`
	Sequence            int       `json:"sequence"`
	Version             int       `json:"version"`
	EntityType          string    `json:"entity_type"`
	EntityID            uuid.UUID `json:"entity_id"`
	Status              string    `json:"status"`
	StatusReason        string    `json:"status_reason,omitempty"`
	PreviousVersionCode string    `json:"previous_version_code,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func toEntryResponse(e *models.RegistryEntry) entryResponse {
	return entryResponse{
		Code:                e.Code,
		Prefix:              e.Prefix,
		TenantCode:          e.TenantCode,
		Stage:               e.Stage,
		Year:                e.Year,
		Sequence:            e.Sequence,
		Version:             e.Version,
		EntityType:          e.EntityType,
		EntityID:            e.EntityID,
		Status:              string(e.Status),
		StatusReason:        e.StatusReason,
		PreviousVersionCode: e.PreviousVersionCode,
		CreatedAt:           e.CreatedAt,
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "entity_id must be a valid UUID"))
		return
	}

	entry, err := h.registry.Generate(ctx, models.GenerateRequest{
		EntityType: req.EntityType,
		TenantCode: req.TenantCode,
		Stage:      req.Stage,
		Year:       req.Year,
		EntityID:   entityID,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "generate serial code", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.registry.GetCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "get serial code", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleTraceability(w http.ResponseWriter, r *http.Request) {
	report, err := h.registry.GetTraceabilityReport(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "traceability report", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleNewVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional; a bare POST versions with a generated reason.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	entry, err := h.registry.CreateNewVersion(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.writeServiceError(r.Context(), w, "create new version", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	entry, err := h.registry.Void(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.writeServiceError(r.Context(), w, "void serial code", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

type reservationResponse struct {
	ID           uuid.UUID `json:"id"`
	ReservedCode string    `json:"reserved_code"`
	TenantCode   string    `json:"tenant_code"`
	EntityType   string    `json:"entity_type"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	reservation, err := h.registry.Reserve(r.Context(), models.GenerateRequest{
		EntityType: req.EntityType,
		TenantCode: req.TenantCode,
		Stage:      req.Stage,
		Year:       req.Year,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		h.writeServiceError(r.Context(), w, "reserve serial code", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, reservationResponse{
		ID:           reservation.ID,
		ReservedCode: reservation.ReservedCode,
		TenantCode:   reservation.TenantCode,
		EntityType:   reservation.EntityType,
		Status:       string(reservation.Status),
		ExpiresAt:    reservation.ExpiresAt,
	})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	reservationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "reservation id must be a valid UUID"))
		return
	}
	var req struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "entity_id must be a valid UUID"))
		return
	}

	entry, err := h.registry.ConfirmReservation(r.Context(), reservationID, entityID)
	if err != nil {
		h.writeServiceError(r.Context(), w, "confirm reservation", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	reservationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "reservation id must be a valid UUID"))
		return
	}

	if err := h.registry.CancelReservation(r.Context(), reservationID); err != nil {
		h.writeServiceError(r.Context(), w, "cancel reservation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "operation failed",
				"operation", op,
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
	} else if h.logger != nil {
		h.logger.WarnContext(ctx, "operation rejected",
			"operation", op,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	shared.WriteError(w, err)
}

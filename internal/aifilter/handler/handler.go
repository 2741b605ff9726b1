package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shahin/internal/aifilter/models"
	"shahin/internal/platform/middleware"
	"shahin/internal/transport/http/shared"
	dErrors "shahin/pkg/domain-errors"
)

// Service defines the filter operations exposed over HTTP.
type Service interface {
	Check(ctx context.Context, tenantCode, input string) (*models.CheckResult, error)
}

// Handler handles AI input filter endpoints.
type Handler struct {
	logger       *slog.Logger
	filter       Service
	jwtValidator middleware.JWTValidator
}

// New creates a new filter Handler.
func New(filter Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		filter:       filter,
		jwtValidator: jwtValidator,
	}
}

// Register registers the filter routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(10 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	if h.jwtValidator != nil {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	}

	router.Post("/ai/inputs/check", h.handleCheck)

	r.Mount("/", router)
}

type checkRequest struct {
	TenantCode string `json:"tenant_code"`
	Input      string `json:"input"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.filter.Check(ctx, req.TenantCode, req.Input)
	if err != nil {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "input check rejected",
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

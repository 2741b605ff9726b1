package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shahin/internal/evidence/metrics"
	"shahin/internal/evidence/models"
	"shahin/internal/evidence/service"
	"shahin/internal/platform/middleware"
	"shahin/internal/transport/http/shared"
	dErrors "shahin/pkg/domain-errors"
)

// Service defines the workflow operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Evidence, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	GetByNumber(ctx context.Context, tenantCode, number string) (*models.Evidence, error)
	List(ctx context.Context, tenantCode string, status models.VerificationStatus) ([]*models.Evidence, error)
	GetValidTransitions(ctx context.Context, id uuid.UUID) ([]models.VerificationStatus, error)
	SubmitForReview(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	Approve(ctx context.Context, id uuid.UUID, comments string) (*models.Evidence, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Evidence, error)
	Archive(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	Resubmit(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
}

// Handler handles evidence workflow endpoints.
type Handler struct {
	logger       *slog.Logger
	workflow     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new evidence Handler.
func New(
	workflow Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		workflow:     workflow,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the evidence routes with the chi router.
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

	router.Post("/evidence", h.handleCreate)
	router.Get("/evidence", h.handleList)
	router.Get("/evidence/by-number/{number}", h.handleGetByNumber)
	router.Get("/evidence/{id}", h.handleGet)
	router.Get("/evidence/{id}/transitions", h.handleTransitions)
	router.Post("/evidence/{id}/submit", h.handleSubmit)
	router.Post("/evidence/{id}/approve", h.handleApprove)
	router.Post("/evidence/{id}/reject", h.handleReject)
	router.Post("/evidence/{id}/archive", h.handleArchive)
	router.Post("/evidence/{id}/resubmit", h.handleResubmit)

	r.Mount("/", router)
}

type createRequest struct {
	TenantCode   string `json:"tenant_code"`
	WorkspaceID  string `json:"workspace_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	EvidenceType string `json:"evidence_type"`
	FilePath     string `json:"file_path"`
}

type evidenceResponse struct {
	ID                 uuid.UUID  `json:"id"`
	EvidenceNumber     string     `json:"evidence_number"`
	TenantCode         string     `json:"tenant_code"`
	WorkspaceID        string     `json:"workspace_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	EvidenceType       string     `json:"evidence_type,omitempty"`
	FilePath           string     `json:"file_path,omitempty"`
	VerificationStatus string     `json:"verification_status"`
	Comments           string     `json:"comments,omitempty"`
	CollectedBy        string     `json:"collected_by,omitempty"`
	VerifiedBy         string     `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toEvidenceResponse(e *models.Evidence) evidenceResponse {
	var workspaceID string
	if e.WorkspaceID != uuid.Nil {
		workspaceID = e.WorkspaceID.String()
	}
	return evidenceResponse{
		ID:                 e.ID,
		EvidenceNumber:     e.EvidenceNumber,
		TenantCode:         e.TenantCode,
		WorkspaceID:        workspaceID,
		Title:              e.Title,
		Description:        e.Description,
		EvidenceType:       e.EvidenceType,
		FilePath:           e.FilePath,
		VerificationStatus: string(e.VerificationStatus),
		Comments:           e.Comments,
		CollectedBy:        e.CollectedBy,
		VerifiedBy:         e.VerifiedBy,
		VerifiedAt:         e.VerifiedAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	var workspaceID uuid.UUID
	if req.WorkspaceID != "" {
		parsed, err := uuid.Parse(req.WorkspaceID)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "workspace_id must be a valid UUID"))
			return
		}
		workspaceID = parsed
	}

	evidence, err := h.workflow.Create(r.Context(), service.CreateRequest{
		TenantCode:   req.TenantCode,
		WorkspaceID:  workspaceID,
		Title:        req.Title,
		Description:  req.Description,
		EvidenceType: req.EvidenceType,
		FilePath:     req.FilePath,
	})
	if err != nil {
		h.writeServiceError(r.Context(), w, "create evidence", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toEvidenceResponse(evidence))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantCode := r.URL.Query().Get("tenant_code")
	status := models.VerificationStatus(r.URL.Query().Get("status"))

	records, err := h.workflow.List(r.Context(), tenantCode, status)
	if err != nil {
		h.writeServiceError(r.Context(), w, "list evidence", err)
		return
	}

	out := make([]evidenceResponse, 0, len(records))
	for _, evidence := range records {
		out = append(out, toEvidenceResponse(evidence))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	evidence, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get evidence", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEvidenceResponse(evidence))
}

func (h *Handler) handleGetByNumber(w http.ResponseWriter, r *http.Request) {
	tenantCode := r.URL.Query().Get("tenant_code")
	evidence, err := h.workflow.GetByNumber(r.Context(), tenantCode, chi.URLParam(r, "number"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "get evidence by number", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEvidenceResponse(evidence))
}

func (h *Handler) handleTransitions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	transitions, err := h.workflow.GetValidTransitions(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "valid transitions", err)
		return
	}
	if transitions == nil {
		transitions = []models.VerificationStatus{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"valid_transitions": transitions})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit evidence", h.workflow.SubmitForReview)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Comments string `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	evidence, err := h.workflow.Approve(r.Context(), id, req.Comments)
	if err != nil {
		h.writeServiceError(r.Context(), w, "approve evidence", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEvidenceResponse(evidence))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	evidence, err := h.workflow.Reject(r.Context(), id, req.Reason)
	if err != nil {
		h.writeServiceError(r.Context(), w, "reject evidence", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEvidenceResponse(evidence))
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "archive evidence", h.workflow.Archive)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resubmit evidence", h.workflow.Resubmit)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, id uuid.UUID) (*models.Evidence, error)) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	evidence, err := fn(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, op, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEvidenceResponse(evidence))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "evidence id must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var notFound *service.NotFoundError
	var invalid *service.InvalidTransitionError
	switch {
	case errors.As(err, &notFound):
		err = dErrors.New(dErrors.CodeNotFound, notFound.Error())
	case errors.As(err, &invalid):
		err = dErrors.New(dErrors.CodeInvalidOperation, invalid.Error())
	}

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

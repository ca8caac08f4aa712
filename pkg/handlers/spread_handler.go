package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/services"
)

// SpreadHandler handles spread read and recompute HTTP requests.
type SpreadHandler struct {
	spreadService services.SpreadService
	logger        *zap.Logger
}

// NewSpreadHandler creates a new spread handler.
func NewSpreadHandler(spreadService services.SpreadService, logger *zap.Logger) *SpreadHandler {
	return &SpreadHandler{
		spreadService: spreadService,
		logger:        logger,
	}
}

// RegisterRoutes registers the spread handler's routes on the given mux.
func (h *SpreadHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/deals/{did}/spreads", tenantMiddleware(h.List))
	mux.HandleFunc("GET /api/deals/{did}/spreads/{spread_type}", tenantMiddleware(h.Get))
	mux.HandleFunc("POST /api/deals/{did}/spreads/recompute", tenantMiddleware(h.Recompute))
	mux.HandleFunc("GET /api/deals/{did}/spread-jobs/active", tenantMiddleware(h.ActiveJob))
}

// List handles GET /api/deals/{did}/spreads
// Returns the latest version of every spread type rendered for the deal.
func (h *SpreadHandler) List(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	spreads, err := h.spreadService.GetSpreads(r.Context(), dealID)
	if err != nil {
		h.logger.Error("Failed to list spreads", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_spreads_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if spreads == nil {
		spreads = make([]*models.RenderedSpread, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    spreads,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/deals/{did}/spreads/{spread_type}
func (h *SpreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	spreadType := models.SpreadType(r.PathValue("spread_type"))
	if !spreadType.IsValid() {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_spread_type", "Unknown spread type"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	spread, err := h.spreadService.GetSpread(r.Context(), dealID, spreadType)
	if err != nil {
		h.logger.Error("Failed to get spread", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_spread_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if spread == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "spread_not_found", "No spread rendered for this deal and type"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    spread,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type recomputeRequest struct {
	// SpreadTypes to regenerate. Empty means every type.
	SpreadTypes []models.SpreadType `json:"spread_types"`
}

// Recompute handles POST /api/deals/{did}/spreads/recompute
// Enqueues a spread generation job; concurrent requests for the same deal
// merge into the active job and requests inside the debounce window are
// absorbed without new work.
func (h *SpreadHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	tenantID, ok := GetTenantID(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusUnauthorized, "missing_tenant", "Tenant ID not found in context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req recomputeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}
	if len(req.SpreadTypes) == 0 {
		req.SpreadTypes = models.AllSpreadTypes
	}

	job, err := h.spreadService.Enqueue(r.Context(), tenantID, dealID, req.SpreadTypes)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSpreadType) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_spread_type", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to enqueue spread job", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "enqueue_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{
		Success: true,
		Data:    job,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ActiveJob handles GET /api/deals/{did}/spread-jobs/active
// Returns the queued or running job for the deal; data is null when idle.
func (h *SpreadHandler) ActiveJob(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.spreadService.GetJobStatus(r.Context(), dealID)
	if err != nil {
		h.logger.Error("Failed to get job status", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_job_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    job,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

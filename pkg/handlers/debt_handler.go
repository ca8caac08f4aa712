package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/services"
)

// DebtHandler handles debt-service aggregation HTTP requests.
type DebtHandler struct {
	debtService services.DebtService
	logger      *zap.Logger
}

// NewDebtHandler creates a new debt handler.
func NewDebtHandler(debtService services.DebtService, logger *zap.Logger) *DebtHandler {
	return &DebtHandler{
		debtService: debtService,
		logger:      logger,
	}
}

// RegisterRoutes registers the debt handler's routes on the given mux.
func (h *DebtHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/deals/{did}/debt-service/aggregate", tenantMiddleware(h.Aggregate))
}

// Aggregate handles POST /api/deals/{did}/debt-service/aggregate
// Recomputes the deal's debt-service totals and coverage ratios from the fact
// store and persists them as derived facts with calculation trails.
func (h *DebtHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
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

	agg, err := h.debtService.Aggregate(r.Context(), tenantID, dealID)
	if err != nil {
		h.logger.Error("Failed to aggregate debt service", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "aggregate_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    agg,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

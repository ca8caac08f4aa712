package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// EventHandler exposes the per-deal audit trail.
type EventHandler struct {
	eventRepo repositories.EventRepository
	logger    *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventRepo repositories.EventRepository, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// RegisterRoutes registers the event handler's routes on the given mux.
func (h *EventHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/deals/{did}/events", tenantMiddleware(h.List))
}

// List handles GET /api/deals/{did}/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	events, err := h.eventRepo.GetByDeal(r.Context(), dealID, limit)
	if err != nil {
		h.logger.Error("Failed to list events", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_events_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if events == nil {
		events = make([]*models.SystemEvent, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    events,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

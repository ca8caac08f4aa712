package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
	"github.com/buddy-hq/buddy-engine/pkg/services"
)

// maxUploadBytes bounds a single upload-commit request body.
const maxUploadBytes = 64 << 20

// DocumentHandler handles document upload and status HTTP requests.
type DocumentHandler struct {
	intakeService services.IntakeService
	docRepo       repositories.DocumentRepository
	logger        *zap.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(intakeService services.IntakeService, docRepo repositories.DocumentRepository, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		intakeService: intakeService,
		docRepo:       docRepo,
		logger:        logger,
	}
}

// RegisterRoutes registers the document handler's routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/deals/{did}/documents", tenantMiddleware(h.Upload))
	mux.HandleFunc("GET /api/deals/{did}/documents", tenantMiddleware(h.List))
	mux.HandleFunc("GET /api/deals/{did}/documents/{doc_id}", tenantMiddleware(h.Get))
}

// Upload handles POST /api/deals/{did}/documents
// The upload-commit call: the document runs the full intake pipeline before
// the response is written, so the caller gets the final pipeline status.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Multipart field 'file' is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "upload_read_failed", "Could not read uploaded file"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if len(content) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "empty_upload", "Uploaded file is empty"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	doc, err := h.intakeService.ProcessUpload(r.Context(), tenantID, dealID, header.Filename, content)
	if err != nil {
		h.logger.Error("Failed to process upload", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "upload_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    doc,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/deals/{did}/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	dealID, ok := ParseDealID(w, r, h.logger)
	if !ok {
		return
	}

	docs, err := h.docRepo.GetByDeal(r.Context(), dealID)
	if err != nil {
		h.logger.Error("Failed to list documents", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_documents_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if docs == nil {
		docs = make([]*models.Document, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    docs,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/deals/{did}/documents/{doc_id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := ParseDealID(w, r, h.logger); !ok {
		return
	}
	docID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.docRepo.GetByID(r.Context(), docID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "document_not_found", "Document not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get document", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_document_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    doc,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

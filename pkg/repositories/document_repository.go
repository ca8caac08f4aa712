package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// OCRDonor is an earlier document whose OCR output can be reused for a new
// upload with the same content digest.
type OCRDonor struct {
	DocumentID uuid.UUID
	Text       string
}

// DocumentRepository provides data access for uploaded documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, docID uuid.UUID) (*models.Document, error)
	GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.Document, error)

	// StampDigest records the content digest computed at upload-commit.
	// The digest is write-once; stamping an already-stamped document fails.
	StampDigest(ctx context.Context, docID uuid.UUID, digest string) error

	// StampScanResult records the virus-scan verdict and advances the document
	// out of pending.
	StampScanResult(ctx context.Context, docID uuid.UUID, status models.ScanStatus, signature *string, engine string) error

	// StampClassification records the routed classification outcome.
	StampClassification(ctx context.Context, docID uuid.UUID, rawType string, canonical models.CanonicalDocType, class models.RoutingClass, confidence float64, band models.ConfidenceBand) error

	// StampOCR records OCR completion (or failure) and the recovered text.
	StampOCR(ctx context.Context, docID uuid.UUID, status models.OCRStatus, text *string) error

	// UpdateStatus advances the pipeline status. Invalid transitions are
	// rejected before touching the database.
	UpdateStatus(ctx context.Context, docID uuid.UUID, status models.DocumentStatus) error

	// FindOCRDonor locates another document in the same tenant with the same
	// content digest and successful OCR. Returns nil when no donor exists.
	FindOCRDonor(ctx context.Context, digest string, excludeDocID uuid.UUID) (*OCRDonor, error)
}

type documentRepository struct{}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

var _ DocumentRepository = (*documentRepository)(nil)

const documentColumns = `
	id, tenant_id, deal_id, file_name, content_digest,
	raw_type, canonical_type, routing_class, confidence, confidence_band,
	scan_status, scan_engine, scan_signature,
	ocr_status, ocr_text,
	status, created_at, updated_at`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if doc.Status == "" {
		doc.Status = models.DocumentStatusPending
	}
	if doc.ScanStatus == "" {
		doc.ScanStatus = models.ScanStatusUnknown
	}
	if doc.OCRStatus == "" {
		doc.OCRStatus = models.OCRStatusPending
	}

	now := time.Now()

	query := `
		INSERT INTO buddy_documents (
			tenant_id, deal_id, file_name, scan_status, ocr_status, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		doc.TenantID,
		doc.DealID,
		doc.FileName,
		doc.ScanStatus,
		doc.OCRStatus,
		doc.Status,
		now,
		now,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, docID uuid.UUID) (*models.Document, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + documentColumns + ` FROM buddy_documents WHERE id = $1`

	doc, err := scanDocument(scope.Conn.QueryRow(ctx, query, docID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *documentRepository) GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.Document, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + documentColumns + `
		FROM buddy_documents
		WHERE deal_id = $1
		ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

func (r *documentRepository) StampDigest(ctx context.Context, docID uuid.UUID, digest string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_documents
		SET content_digest = $2, updated_at = NOW()
		WHERE id = $1 AND content_digest IS NULL`

	result, err := scope.Conn.Exec(ctx, query, docID, digest)
	if err != nil {
		return fmt.Errorf("failed to stamp content digest: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the document is missing or the digest was already stamped.
		existing, err := r.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if existing.ContentDigest != nil && *existing.ContentDigest == digest {
			return nil // Idempotent restamp of the same digest
		}
		return apperrors.ErrConflict
	}

	return nil
}

func (r *documentRepository) StampScanResult(ctx context.Context, docID uuid.UUID, status models.ScanStatus, signature *string, engine string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_documents
		SET scan_status = $2, scan_signature = $3, scan_engine = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query, docID, status, signature, engine)
	if err != nil {
		return fmt.Errorf("failed to stamp scan result: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *documentRepository) StampClassification(ctx context.Context, docID uuid.UUID, rawType string, canonical models.CanonicalDocType, class models.RoutingClass, confidence float64, band models.ConfidenceBand) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_documents
		SET raw_type = $2, canonical_type = $3, routing_class = $4,
		    confidence = $5, confidence_band = $6, updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query, docID, rawType, canonical, class, confidence, band)
	if err != nil {
		return fmt.Errorf("failed to stamp classification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *documentRepository) StampOCR(ctx context.Context, docID uuid.UUID, status models.OCRStatus, text *string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_documents
		SET ocr_status = $2, ocr_text = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query, docID, status, text)
	if err != nil {
		return fmt.Errorf("failed to stamp OCR result: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, docID uuid.UUID, status models.DocumentStatus) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	current, err := r.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	if !current.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: document %s → %s", apperrors.ErrInvalidTransition, current.Status, status)
	}

	// Guard on the observed status so a concurrent transition loses cleanly.
	query := `
		UPDATE buddy_documents
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := scope.Conn.Exec(ctx, query, docID, status, current.Status)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *documentRepository) FindOCRDonor(ctx context.Context, digest string, excludeDocID uuid.UUID) (*OCRDonor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, ocr_text
		FROM buddy_documents
		WHERE content_digest = $1
		  AND id != $2
		  AND ocr_status = $3
		  AND ocr_text IS NOT NULL
		ORDER BY created_at ASC
		LIMIT 1`

	var donor OCRDonor
	err := scope.Conn.QueryRow(ctx, query, digest, excludeDocID, models.OCRStatusSucceeded).
		Scan(&donor.DocumentID, &donor.Text)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No donor available
		}
		return nil, fmt.Errorf("failed to query OCR donor: %w", err)
	}

	return &donor, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.DealID,
		&d.FileName,
		&d.ContentDigest,
		&d.RawType,
		&d.CanonicalType,
		&d.RoutingClass,
		&d.Confidence,
		&d.ConfidenceBand,
		&d.ScanStatus,
		&d.ScanEngine,
		&d.ScanSignature,
		&d.OCRStatus,
		&d.OCRText,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &d, nil
}

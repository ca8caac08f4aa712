// Package models contains domain types for buddy-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the pipeline status of an uploaded document.
// State machine:
//
//	pending → scanned → classified → extracted
//
//	Any state can transition to: failed
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusScanned    DocumentStatus = "scanned"
	DocumentStatusClassified DocumentStatus = "classified"
	DocumentStatusExtracted  DocumentStatus = "extracted"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// ValidDocumentStatuses contains all valid status values.
var ValidDocumentStatuses = []DocumentStatus{
	DocumentStatusPending,
	DocumentStatusScanned,
	DocumentStatusClassified,
	DocumentStatusExtracted,
	DocumentStatusFailed,
}

// IsValidDocumentStatus checks if the given status is valid.
func IsValidDocumentStatus(s DocumentStatus) bool {
	for _, v := range ValidDocumentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusExtracted || s == DocumentStatusFailed
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	// Any state can transition to failed
	if target == DocumentStatusFailed {
		return true
	}

	switch s {
	case DocumentStatusPending:
		return target == DocumentStatusScanned
	case DocumentStatusScanned:
		return target == DocumentStatusClassified
	case DocumentStatusClassified:
		return target == DocumentStatusExtracted
	case DocumentStatusExtracted, DocumentStatusFailed:
		return false // Terminal states
	default:
		return false
	}
}

// OCRStatus represents the OCR state of a document.
type OCRStatus string

const (
	OCRStatusPending   OCRStatus = "pending"
	OCRStatusSucceeded OCRStatus = "succeeded"
	OCRStatusFailed    OCRStatus = "failed"
)

// Document is an uploaded borrower artifact. The content digest is stamped
// once at upload-commit and never changes; classification and routing fields
// are stamped after the classifier oracle returns. Apart from status
// transitions the row is immutable once finalized.
type Document struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	DealID   uuid.UUID `json:"deal_id"`
	FileName string    `json:"file_name"`

	// ContentDigest is the SHA-256 hex fingerprint of the raw bytes.
	ContentDigest *string `json:"content_digest,omitempty"`

	// RawType is whatever label the upstream classifier produced.
	RawType       *string           `json:"raw_type,omitempty"`
	CanonicalType *CanonicalDocType `json:"canonical_type,omitempty"`
	RoutingClass  *RoutingClass     `json:"routing_class,omitempty"`

	// Classification confidence after calibration, with its band.
	Confidence     *float64        `json:"confidence,omitempty"`
	ConfidenceBand *ConfidenceBand `json:"confidence_band,omitempty"`

	ScanStatus    ScanStatus `json:"scan_status"`
	ScanEngine    *string    `json:"scan_engine,omitempty"`
	ScanSignature *string    `json:"scan_signature,omitempty"`

	OCRStatus OCRStatus `json:"ocr_status"`
	OCRText   *string   `json:"ocr_text,omitempty"`

	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

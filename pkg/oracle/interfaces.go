// Package oracle wraps the external classification, extraction and virus-scan
// services. All oracle output is untrusted: callers clamp, normalize and
// calibrate before anything reaches the fact store.
package oracle

import (
	"context"
	"time"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// ClassificationResult is the raw output of the classifier oracle.
type ClassificationResult struct {
	// DocType is the classifier's free-form type label, resolved to a
	// canonical type by the router.
	DocType string `json:"doc_type"`

	// FormNumbers lists IRS form numbers detected in the document.
	FormNumbers []string `json:"form_numbers,omitempty"`

	// TaxYear is the asserted tax year, if any.
	TaxYear *int `json:"tax_year,omitempty"`

	// DetectedYears lists all years found in the text.
	DetectedYears []int `json:"detected_years,omitempty"`

	// Confidence is the classifier's raw confidence in [0,1] (pre-calibration).
	Confidence float64 `json:"confidence"`

	// Confusables lists alternative classifications the oracle considered.
	Confusables []string `json:"confusables,omitempty"`

	// Issuer is the detected document issuer, if any.
	Issuer string `json:"issuer,omitempty"`

	// Tier names the classifier tier that produced this result.
	Tier string `json:"tier,omitempty"`
}

// Classifier classifies a document's extracted text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*ClassificationResult, error)
}

// ExtractedField is one structured field pulled from a document by the
// extraction oracle.
type ExtractedField struct {
	FactType     string     `json:"fact_type"`
	FactKey      string     `json:"fact_key"`
	NumericValue *float64   `json:"numeric_value,omitempty"`
	TextValue    *string    `json:"text_value,omitempty"`
	PeriodStart  *time.Time `json:"period_start,omitempty"`
	PeriodEnd    *time.Time `json:"period_end,omitempty"`
	Confidence   float64    `json:"confidence"`
}

// Extractor turns document text into structured fields for one routing class.
type Extractor interface {
	Extract(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error)
}

// ScanResult is a virus-scan verdict from the scanning service.
type ScanResult struct {
	Status    models.ScanStatus
	Signature *string
	Engine    string
}

// VirusScanner scans raw document bytes.
type VirusScanner interface {
	Scan(ctx context.Context, data []byte) (*ScanResult, error)
}

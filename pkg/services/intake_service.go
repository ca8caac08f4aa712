package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/classify"
	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/logging"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/oracle"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// IntakeService runs the upload-commit pipeline: digest gate, virus scan,
// OCR, classification, routing, calibration, extraction, fact writes.
//
// A document that fails scanning or OCR ends in status failed; the upload
// itself still succeeds, so ProcessUpload returns the document with a nil
// error for pipeline-level failures and reserves non-nil errors for storage
// problems.
type IntakeService interface {
	ProcessUpload(ctx context.Context, tenantID, dealID uuid.UUID, fileName string, content []byte) (*models.Document, error)
}

type intakeService struct {
	docRepo    repositories.DocumentRepository
	factRepo   repositories.FactRepository
	gate       HashGate
	scanner    oracle.VirusScanner
	recognizer oracle.TextRecognizer
	classifier oracle.Classifier
	extractor  oracle.Extractor
	recorder   *events.Recorder
	logger     *zap.Logger
}

// NewIntakeService creates an IntakeService. The scanner and recognizer may
// be nil in local environments; production configuration validation refuses
// to start without a scanner.
func NewIntakeService(
	docRepo repositories.DocumentRepository,
	factRepo repositories.FactRepository,
	gate HashGate,
	scanner oracle.VirusScanner,
	recognizer oracle.TextRecognizer,
	classifier oracle.Classifier,
	extractor oracle.Extractor,
	recorder *events.Recorder,
	logger *zap.Logger,
) IntakeService {
	return &intakeService{
		docRepo:    docRepo,
		factRepo:   factRepo,
		gate:       gate,
		scanner:    scanner,
		recognizer: recognizer,
		classifier: classifier,
		extractor:  extractor,
		recorder:   recorder,
		logger:     logger.Named("intake-service"),
	}
}

var _ IntakeService = (*intakeService)(nil)

func (s *intakeService) ProcessUpload(ctx context.Context, tenantID, dealID uuid.UUID, fileName string, content []byte) (*models.Document, error) {
	doc := &models.Document{
		TenantID: tenantID,
		DealID:   dealID,
		FileName: fileName,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	gateResult, err := s.gate.Check(ctx, doc.ID, content)
	if err != nil {
		return nil, err
	}

	if !s.runScanStage(ctx, doc, content, gateResult) {
		return s.docRepo.GetByID(ctx, doc.ID)
	}

	text, ok := s.runOCRStage(ctx, doc, content, gateResult)
	if !ok {
		return s.docRepo.GetByID(ctx, doc.ID)
	}

	if !s.runClassifyStage(ctx, doc, text) {
		return s.docRepo.GetByID(ctx, doc.ID)
	}

	s.runExtractStage(ctx, doc, text)

	return s.docRepo.GetByID(ctx, doc.ID)
}

// runScanStage resolves the virus verdict from cache or a fresh scan.
// Returns false when the pipeline must stop (infected or unscannable).
func (s *intakeService) runScanStage(ctx context.Context, doc *models.Document, content []byte, gate *GateResult) bool {
	var verdict models.ScanStatus
	var signature *string
	var engine string

	switch {
	case gate.VirusCacheHit:
		verdict = gate.VirusStatus
		signature = gate.VirusSignature
		engine = gate.VirusEngine
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: doc.TenantID,
			DealID:   &doc.DealID,
			Kind:     models.EventScanCacheHit,
			Severity: "info",
			Message:  "virus scan verdict served from content-hash cache",
			Details:  map[string]any{"document_id": doc.ID.String(), "digest": gate.Digest, "status": string(verdict)},
		})

	case s.scanner != nil:
		result, err := s.scanner.Scan(ctx, content)
		if err != nil {
			s.logger.Error("Virus scan failed",
				zap.String("document_id", doc.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
			verdict = models.ScanStatusFailed
		} else {
			verdict = result.Status
			signature = result.Signature
			engine = result.Engine
			s.recordScanVerdict(ctx, doc, gate.Digest, result)
		}

	default:
		// No scanner configured. Config validation only permits this outside
		// production; the verdict stays unknown and the document proceeds.
		s.logger.Warn("No virus scanner configured, skipping scan",
			zap.String("document_id", doc.ID.String()))
		verdict = models.ScanStatusUnknown
	}

	if err := s.docRepo.StampScanResult(ctx, doc.ID, verdict, signature, engine); err != nil {
		s.logger.Error("Failed to stamp scan result", zap.Error(err))
		return false
	}

	if verdict == models.ScanStatusInfected || verdict == models.ScanStatusFailed {
		s.failDocument(ctx, doc.ID)
		return false
	}

	if err := s.docRepo.UpdateStatus(ctx, doc.ID, models.DocumentStatusScanned); err != nil {
		s.logger.Error("Failed to advance document to scanned", zap.Error(err))
		return false
	}

	return true
}

func (s *intakeService) recordScanVerdict(ctx context.Context, doc *models.Document, digest string, result *oracle.ScanResult) {
	err := s.gate.RecordScan(ctx, doc.TenantID, digest, &models.ScanCacheEntry{
		Status:    result.Status,
		Signature: result.Signature,
		Engine:    result.Engine,
	})
	if err != nil {
		// Cache write failure only costs a future rescan.
		s.logger.Warn("Failed to cache scan verdict",
			zap.String("digest", digest),
			zap.Error(err))
	}
}

// runOCRStage resolves document text from a donor or a fresh OCR pass.
func (s *intakeService) runOCRStage(ctx context.Context, doc *models.Document, content []byte, gate *GateResult) (string, bool) {
	if gate.OCRCacheHit {
		if err := s.docRepo.StampOCR(ctx, doc.ID, models.OCRStatusSucceeded, &gate.OCRText); err != nil {
			s.logger.Error("Failed to stamp reused OCR text", zap.Error(err))
			return "", false
		}
		details := map[string]any{"document_id": doc.ID.String(), "digest": gate.Digest}
		if gate.OCRDonorDocID != nil {
			details["donor_document_id"] = gate.OCRDonorDocID.String()
		}
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: doc.TenantID,
			DealID:   &doc.DealID,
			Kind:     models.EventOCRReused,
			Severity: "info",
			Message:  "OCR text reused from earlier upload with identical content",
			Details:  details,
		})
		return gate.OCRText, true
	}

	if s.recognizer == nil {
		s.logger.Warn("No OCR recognizer configured and no donor text available",
			zap.String("document_id", doc.ID.String()))
		_ = s.docRepo.StampOCR(ctx, doc.ID, models.OCRStatusFailed, nil)
		s.failDocument(ctx, doc.ID)
		return "", false
	}

	text, err := s.recognizer.Recognize(ctx, content)
	if err != nil {
		s.logger.Error("OCR failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		_ = s.docRepo.StampOCR(ctx, doc.ID, models.OCRStatusFailed, nil)
		s.failDocument(ctx, doc.ID)
		return "", false
	}

	if err := s.docRepo.StampOCR(ctx, doc.ID, models.OCRStatusSucceeded, &text); err != nil {
		s.logger.Error("Failed to stamp OCR text", zap.Error(err))
		return "", false
	}

	return text, true
}

// runClassifyStage classifies, routes and calibrates. Low-confidence results
// are flagged via an event but never rejected; a banker reviews them later.
func (s *intakeService) runClassifyStage(ctx context.Context, doc *models.Document, text string) bool {
	raw, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Error("Classification failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		s.failDocument(ctx, doc.ID)
		return false
	}

	routing := classify.ResolveRouting(raw.DocType)
	calibration := classify.Calibrate(classify.CalibrationInput{
		BaseConfidence:  raw.Confidence,
		Tier:            raw.Tier,
		Confusables:     raw.Confusables,
		FormNumbers:     raw.FormNumbers,
		DetectedYears:   raw.DetectedYears,
		AssertedTaxYear: raw.TaxYear,
		TextLength:      len(text),
	})

	err = s.docRepo.StampClassification(ctx, doc.ID, raw.DocType,
		routing.CanonicalType, routing.RoutingClass,
		calibration.Confidence, calibration.Band)
	if err != nil {
		s.logger.Error("Failed to stamp classification", zap.Error(err))
		return false
	}

	if err := s.docRepo.UpdateStatus(ctx, doc.ID, models.DocumentStatusClassified); err != nil {
		s.logger.Error("Failed to advance document to classified", zap.Error(err))
		return false
	}

	doc.CanonicalType = &routing.CanonicalType
	doc.RoutingClass = &routing.RoutingClass

	if calibration.Band == models.BandLow {
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: doc.TenantID,
			DealID:   &doc.DealID,
			Kind:     models.EventLowConfidence,
			Severity: "warning",
			Message:  fmt.Sprintf("document classified as %s with low confidence", routing.CanonicalType),
			Details: map[string]any{
				"document_id": doc.ID.String(),
				"raw_type":    raw.DocType,
				"confidence":  calibration.Confidence,
				"penalties":   calibration.Penalties,
			},
		})
	}

	return true
}

// runExtractStage extracts structured fields and writes them as facts.
// Extraction failure fails the document; a document with zero extractable
// fields still completes.
func (s *intakeService) runExtractStage(ctx context.Context, doc *models.Document, text string) {
	class := models.RoutingStandard
	if doc.RoutingClass != nil {
		class = *doc.RoutingClass
	}

	fields, err := s.extractor.Extract(ctx, text, class)
	if err != nil {
		s.logger.Error("Extraction failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		s.failDocument(ctx, doc.ID)
		return
	}

	facts := make([]*models.FinancialFact, 0, len(fields))
	for _, field := range fields {
		ownerType := models.OwnerScopeDeal
		if field.FactType == models.FactTypePersonal {
			ownerType = models.OwnerScopePersonal
		}
		facts = append(facts, &models.FinancialFact{
			TenantID:         doc.TenantID,
			DealID:           doc.DealID,
			SourceDocumentID: &doc.ID,
			FactType:         field.FactType,
			FactKey:          field.FactKey,
			NumericValue:     field.NumericValue,
			TextValue:        field.TextValue,
			PeriodStart:      field.PeriodStart,
			PeriodEnd:        field.PeriodEnd,
			Confidence:       field.Confidence,
			OwnerType:        ownerType,
			Provenance: models.FactProvenance{
				SourceType: models.FactSourceDocAI,
				SourceRef:  doc.ID.String(),
				AsOf:       field.PeriodEnd,
			},
		})
	}

	if len(facts) > 0 {
		if err := s.factRepo.CreateBatch(ctx, facts); err != nil {
			s.logger.Error("Failed to write extracted facts",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err))
			s.failDocument(ctx, doc.ID)
			return
		}
	}

	if err := s.docRepo.UpdateStatus(ctx, doc.ID, models.DocumentStatusExtracted); err != nil {
		s.logger.Error("Failed to advance document to extracted", zap.Error(err))
	}
}

func (s *intakeService) failDocument(ctx context.Context, docID uuid.UUID) {
	if err := s.docRepo.UpdateStatus(ctx, docID, models.DocumentStatusFailed); err != nil {
		s.logger.Error("Failed to mark document failed",
			zap.String("document_id", docID.String()),
			zap.Error(err))
	}
}

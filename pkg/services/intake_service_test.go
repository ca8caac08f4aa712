package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/oracle"
)

type intakeFixture struct {
	docRepo    *memDocumentRepo
	factRepo   *memFactRepo
	cacheRepo  *memScanCacheRepo
	eventRepo  *memEventRepo
	scanner    *oracle.MockScanner
	recognizer *oracle.MockRecognizer
	classifier *oracle.MockClassifier
	extractor  *oracle.MockExtractor
	service    IntakeService
}

func newIntakeFixture() *intakeFixture {
	f := &intakeFixture{
		docRepo:    newMemDocumentRepo(),
		factRepo:   newMemFactRepo(),
		cacheRepo:  newMemScanCacheRepo(),
		eventRepo:  newMemEventRepo(),
		scanner:    &oracle.MockScanner{},
		recognizer: &oracle.MockRecognizer{},
		classifier: &oracle.MockClassifier{},
		extractor:  &oracle.MockExtractor{},
	}
	logger := zap.NewNop()
	gate := NewHashGate(f.docRepo, f.cacheRepo, logger)
	recorder := events.NewRecorder(f.eventRepo, logger)
	f.service = NewIntakeService(f.docRepo, f.factRepo, gate,
		f.scanner, f.recognizer, f.classifier, f.extractor, recorder, logger)
	return f
}

func TestIntakeService_HappyPath(t *testing.T) {
	f := newIntakeFixture()

	f.classifier.ClassifyFunc = func(_ context.Context, _ string) (*oracle.ClassificationResult, error) {
		return &oracle.ClassificationResult{
			DocType:    "IRS 1120",
			Confidence: 0.95,
			Tier:       "primary",
		}, nil
	}
	rent := 12000.0
	f.extractor.ExtractFunc = func(_ context.Context, _ string, _ models.RoutingClass) ([]oracle.ExtractedField, error) {
		return []oracle.ExtractedField{
			{FactType: models.FactTypeOperating, FactKey: "INCOME/BASE_RENT", NumericValue: &rent, Confidence: 0.9},
		}, nil
	}

	doc, err := f.service.ProcessUpload(context.Background(), uuid.New(), uuid.New(), "1120.pdf", []byte("tax return text"))
	require.NoError(t, err)

	assert.Equal(t, models.DocumentStatusExtracted, doc.Status)
	assert.Equal(t, models.ScanStatusClean, doc.ScanStatus)
	require.NotNil(t, doc.CanonicalType)
	assert.Equal(t, models.DocTypeBusinessTaxReturn, *doc.CanonicalType)
	require.NotNil(t, doc.RoutingClass)
	assert.Equal(t, models.RoutingHighFidelity, *doc.RoutingClass)

	// The extractor saw the high-fidelity routing class.
	assert.Equal(t, models.RoutingHighFidelity, f.extractor.LastClass)

	facts, err := f.factRepo.GetByDeal(context.Background(), doc.DealID)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "INCOME/BASE_RENT", facts[0].FactKey)
	assert.Equal(t, models.FactSourceDocAI, facts[0].Provenance.SourceType)
	require.NotNil(t, facts[0].SourceDocumentID)
	assert.Equal(t, doc.ID, *facts[0].SourceDocumentID)
}

func TestIntakeService_InfectedUploadFails(t *testing.T) {
	f := newIntakeFixture()
	sig := "Eicar-Test-Signature"
	f.scanner.ScanFunc = func(_ context.Context, _ []byte) (*oracle.ScanResult, error) {
		return &oracle.ScanResult{Status: models.ScanStatusInfected, Signature: &sig, Engine: "clamav"}, nil
	}

	doc, err := f.service.ProcessUpload(context.Background(), uuid.New(), uuid.New(), "malware.pdf", []byte("evil"))
	require.NoError(t, err)

	assert.Equal(t, models.DocumentStatusFailed, doc.Status)
	assert.Equal(t, models.ScanStatusInfected, doc.ScanStatus)
	// Classification never ran.
	assert.Equal(t, 0, f.classifier.Calls)
	assert.Equal(t, 0, f.extractor.Calls)
}

func TestIntakeService_ScanCacheHitSkipsScanner(t *testing.T) {
	f := newIntakeFixture()

	content := []byte("already scanned once")
	gate := NewHashGate(f.docRepo, f.cacheRepo, zap.NewNop())
	digest := gate.Fingerprint(content)
	require.NoError(t, f.cacheRepo.Put(context.Background(), &models.ScanCacheEntry{
		TenantID: uuid.New(), Digest: digest, Status: models.ScanStatusClean, Engine: "clamav",
	}))

	doc, err := f.service.ProcessUpload(context.Background(), uuid.New(), uuid.New(), "dup.pdf", content)
	require.NoError(t, err)

	assert.Equal(t, 0, f.scanner.Calls)
	assert.Equal(t, models.ScanStatusClean, doc.ScanStatus)
	assert.Contains(t, f.eventRepo.kinds(), models.EventScanCacheHit)
}

func TestIntakeService_OCRDonorReuseSkipsRecognizer(t *testing.T) {
	f := newIntakeFixture()

	content := []byte("same bytes as before")
	gate := NewHashGate(f.docRepo, f.cacheRepo, zap.NewNop())
	digest := gate.Fingerprint(content)
	text := "recovered text"

	donor := &models.Document{TenantID: uuid.New(), DealID: uuid.New(), FileName: "first.pdf"}
	require.NoError(t, f.docRepo.Create(context.Background(), donor))
	require.NoError(t, f.docRepo.StampDigest(context.Background(), donor.ID, digest))
	require.NoError(t, f.docRepo.StampOCR(context.Background(), donor.ID, models.OCRStatusSucceeded, &text))

	doc, err := f.service.ProcessUpload(context.Background(), donor.TenantID, donor.DealID, "second.pdf", content)
	require.NoError(t, err)

	assert.Equal(t, 0, f.recognizer.Calls)
	assert.Equal(t, models.OCRStatusSucceeded, doc.OCRStatus)
	require.NotNil(t, doc.OCRText)
	assert.Equal(t, text, *doc.OCRText)
	assert.Contains(t, f.eventRepo.kinds(), models.EventOCRReused)
}

func TestIntakeService_LowConfidenceFlaggedNotRejected(t *testing.T) {
	f := newIntakeFixture()

	f.classifier.ClassifyFunc = func(_ context.Context, _ string) (*oracle.ClassificationResult, error) {
		return &oracle.ClassificationResult{
			DocType:     "RENT_ROLL",
			Confidence:  0.50,
			Confusables: []string{"T12"},
			Tier:        "primary",
		}, nil
	}

	doc, err := f.service.ProcessUpload(context.Background(), uuid.New(), uuid.New(), "blurry.pdf", []byte("short"))
	require.NoError(t, err)

	// Still completes the full pipeline.
	assert.Equal(t, models.DocumentStatusExtracted, doc.Status)
	require.NotNil(t, doc.ConfidenceBand)
	assert.Equal(t, models.BandLow, *doc.ConfidenceBand)
	assert.Contains(t, f.eventRepo.kinds(), models.EventLowConfidence)
}

func TestIntakeService_UnknownLabelRoutesToOther(t *testing.T) {
	f := newIntakeFixture()

	f.classifier.ClassifyFunc = func(_ context.Context, _ string) (*oracle.ClassificationResult, error) {
		return &oracle.ClassificationResult{DocType: "NAPKIN_SKETCH", Confidence: 0.9, Tier: "primary"}, nil
	}

	doc, err := f.service.ProcessUpload(context.Background(), uuid.New(), uuid.New(), "sketch.pdf", []byte("drawing"))
	require.NoError(t, err)

	require.NotNil(t, doc.CanonicalType)
	assert.Equal(t, models.DocTypeOther, *doc.CanonicalType)
	require.NotNil(t, doc.RoutingClass)
	assert.Equal(t, models.RoutingStandard, *doc.RoutingClass)
}

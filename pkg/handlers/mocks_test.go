package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
	"github.com/buddy-hq/buddy-engine/pkg/services"
)

// mockIntakeService implements services.IntakeService for handler testing.
type mockIntakeService struct {
	doc      *models.Document
	err      error
	lastName string
	lastSize int
}

var _ services.IntakeService = (*mockIntakeService)(nil)

func (m *mockIntakeService) ProcessUpload(_ context.Context, tenantID, dealID uuid.UUID, fileName string, content []byte) (*models.Document, error) {
	m.lastName = fileName
	m.lastSize = len(content)
	if m.err != nil {
		return nil, m.err
	}
	if m.doc != nil {
		return m.doc, nil
	}
	return &models.Document{
		ID: uuid.New(), TenantID: tenantID, DealID: dealID,
		FileName: fileName, Status: models.DocumentStatusExtracted,
	}, nil
}

// mockSpreadService implements services.SpreadService for handler testing.
type mockSpreadService struct {
	job        *models.SpreadJob
	spread     *models.RenderedSpread
	spreads    []*models.RenderedSpread
	enqueueErr error
	getErr     error
	lastTypes  []models.SpreadType
}

var _ services.SpreadService = (*mockSpreadService)(nil)

func (m *mockSpreadService) Enqueue(_ context.Context, tenantID, dealID uuid.UUID, types []models.SpreadType) (*models.SpreadJob, error) {
	m.lastTypes = types
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	if m.job != nil {
		return m.job, nil
	}
	return &models.SpreadJob{
		ID: uuid.New(), TenantID: tenantID, DealID: dealID,
		RequestedTypes: types, Status: models.JobStatusQueued,
	}, nil
}

func (m *mockSpreadService) ExecuteJob(_ context.Context, _ *models.SpreadJob, _ uuid.UUID) error {
	return nil
}

func (m *mockSpreadService) GetSpread(_ context.Context, _ uuid.UUID, _ models.SpreadType) (*models.RenderedSpread, error) {
	return m.spread, m.getErr
}

func (m *mockSpreadService) GetSpreads(_ context.Context, _ uuid.UUID) ([]*models.RenderedSpread, error) {
	return m.spreads, m.getErr
}

func (m *mockSpreadService) GetJobStatus(_ context.Context, _ uuid.UUID) (*models.SpreadJob, error) {
	return m.job, m.getErr
}

// mockDebtService implements services.DebtService for handler testing.
type mockDebtService struct {
	agg *services.DebtAggregate
	err error
}

var _ services.DebtService = (*mockDebtService)(nil)

func (m *mockDebtService) Aggregate(_ context.Context, _, _ uuid.UUID) (*services.DebtAggregate, error) {
	return m.agg, m.err
}

// mockDocumentRepo implements repositories.DocumentRepository for handler
// testing; only the read paths matter here.
type mockDocumentRepo struct {
	docs   []*models.Document
	getErr error
}

var _ repositories.DocumentRepository = (*mockDocumentRepo)(nil)

func (m *mockDocumentRepo) Create(_ context.Context, _ *models.Document) error { return nil }

func (m *mockDocumentRepo) GetByID(_ context.Context, docID uuid.UUID) (*models.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, d := range m.docs {
		if d.ID == docID {
			return d, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDocumentRepo) GetByDeal(_ context.Context, dealID uuid.UUID) ([]*models.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*models.Document
	for _, d := range m.docs {
		if d.DealID == dealID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) StampDigest(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (m *mockDocumentRepo) StampScanResult(_ context.Context, _ uuid.UUID, _ models.ScanStatus, _ *string, _ string) error {
	return nil
}

func (m *mockDocumentRepo) StampClassification(_ context.Context, _ uuid.UUID, _ string, _ models.CanonicalDocType, _ models.RoutingClass, _ float64, _ models.ConfidenceBand) error {
	return nil
}

func (m *mockDocumentRepo) StampOCR(_ context.Context, _ uuid.UUID, _ models.OCRStatus, _ *string) error {
	return nil
}

func (m *mockDocumentRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ models.DocumentStatus) error {
	return nil
}

func (m *mockDocumentRepo) FindOCRDonor(_ context.Context, _ string, _ uuid.UUID) (*repositories.OCRDonor, error) {
	return nil, nil
}

// mockEventRepo implements repositories.EventRepository for handler testing.
type mockEventRepo struct {
	events []*models.SystemEvent
	err    error
}

var _ repositories.EventRepository = (*mockEventRepo)(nil)

func (m *mockEventRepo) Append(_ context.Context, event *models.SystemEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventRepo) GetByDeal(_ context.Context, dealID uuid.UUID, _ int) ([]*models.SystemEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.SystemEvent
	for _, e := range m.events {
		if e.DealID != nil && *e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out, nil
}

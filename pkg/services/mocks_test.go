package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// In-memory repository doubles shared by the service tests. They skip tenant
// scoping entirely; tenant isolation is covered by the repository
// integration tests.

type memDocumentRepo struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*models.Document
	donorErr error
}

var _ repositories.DocumentRepository = (*memDocumentRepo)(nil)

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{docs: make(map[uuid.UUID]*models.Document)}
}

func (m *memDocumentRepo) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Status == "" {
		doc.Status = models.DocumentStatusPending
	}
	if doc.ScanStatus == "" {
		doc.ScanStatus = models.ScanStatusUnknown
	}
	if doc.OCRStatus == "" {
		doc.OCRStatus = models.OCRStatusPending
	}
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memDocumentRepo) GetByID(_ context.Context, docID uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *memDocumentRepo) GetByDeal(_ context.Context, dealID uuid.UUID) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, doc := range m.docs {
		if doc.DealID == dealID {
			clone := *doc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memDocumentRepo) StampDigest(_ context.Context, docID uuid.UUID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if doc.ContentDigest != nil && *doc.ContentDigest != digest {
		return apperrors.ErrConflict
	}
	doc.ContentDigest = &digest
	return nil
}

func (m *memDocumentRepo) StampScanResult(_ context.Context, docID uuid.UUID, status models.ScanStatus, signature *string, engine string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return apperrors.ErrNotFound
	}
	doc.ScanStatus = status
	doc.ScanSignature = signature
	doc.ScanEngine = &engine
	return nil
}

func (m *memDocumentRepo) StampClassification(_ context.Context, docID uuid.UUID, rawType string, canonical models.CanonicalDocType, class models.RoutingClass, confidence float64, band models.ConfidenceBand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return apperrors.ErrNotFound
	}
	doc.RawType = &rawType
	doc.CanonicalType = &canonical
	doc.RoutingClass = &class
	doc.Confidence = &confidence
	doc.ConfidenceBand = &band
	return nil
}

func (m *memDocumentRepo) StampOCR(_ context.Context, docID uuid.UUID, status models.OCRStatus, text *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return apperrors.ErrNotFound
	}
	doc.OCRStatus = status
	doc.OCRText = text
	return nil
}

func (m *memDocumentRepo) UpdateStatus(_ context.Context, docID uuid.UUID, status models.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if doc.Status == status {
		return nil
	}
	if !doc.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: document %s → %s", apperrors.ErrInvalidTransition, doc.Status, status)
	}
	doc.Status = status
	return nil
}

func (m *memDocumentRepo) FindOCRDonor(_ context.Context, digest string, excludeDocID uuid.UUID) (*repositories.OCRDonor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.donorErr != nil {
		return nil, m.donorErr
	}
	for _, doc := range m.docs {
		if doc.ID == excludeDocID || doc.ContentDigest == nil || *doc.ContentDigest != digest {
			continue
		}
		if doc.OCRStatus == models.OCRStatusSucceeded && doc.OCRText != nil {
			return &repositories.OCRDonor{DocumentID: doc.ID, Text: *doc.OCRText}, nil
		}
	}
	return nil, nil
}

type memScanCacheRepo struct {
	mu      sync.Mutex
	entries map[string]*models.ScanCacheEntry
	getErr  error
	puts    int
}

var _ repositories.ScanCacheRepository = (*memScanCacheRepo)(nil)

func newMemScanCacheRepo() *memScanCacheRepo {
	return &memScanCacheRepo{entries: make(map[string]*models.ScanCacheEntry)}
}

func (m *memScanCacheRepo) Put(_ context.Context, entry *models.ScanCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if _, exists := m.entries[entry.Digest]; exists {
		return nil // First writer wins
	}
	clone := *entry
	m.entries[entry.Digest] = &clone
	return nil
}

func (m *memScanCacheRepo) Get(_ context.Context, digest string) (*models.ScanCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	entry, ok := m.entries[digest]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

type memFactRepo struct {
	mu    sync.Mutex
	facts []*models.FinancialFact
}

var _ repositories.FactRepository = (*memFactRepo)(nil)

func newMemFactRepo() *memFactRepo {
	return &memFactRepo{}
}

func (m *memFactRepo) CreateBatch(_ context.Context, facts []*models.FinancialFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range facts {
		f.Normalize()
		f.ID = uuid.New()
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		clone := *f
		m.facts = append(m.facts, &clone)
	}
	return nil
}

func (m *memFactRepo) UpsertDerived(_ context.Context, fact *models.FinancialFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fact.FactType = models.FactTypeDerived
	fact.Normalize()
	for i, existing := range m.facts {
		if existing.FactType == models.FactTypeDerived &&
			existing.DealID == fact.DealID &&
			existing.FactKey == fact.FactKey &&
			existing.OwnerType == fact.OwnerType {
			fact.ID = existing.ID
			fact.CreatedAt = time.Now()
			clone := *fact
			m.facts[i] = &clone
			return nil
		}
	}
	fact.ID = uuid.New()
	fact.CreatedAt = time.Now()
	clone := *fact
	m.facts = append(m.facts, &clone)
	return nil
}

func (m *memFactRepo) GetByDeal(_ context.Context, dealID uuid.UUID) ([]*models.FinancialFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FinancialFact
	for _, f := range m.facts {
		if f.DealID == dealID {
			clone := *f
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memFactRepo) GetByDealAndTypes(_ context.Context, dealID uuid.UUID, factTypes []string) ([]*models.FinancialFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(factTypes))
	for _, t := range factTypes {
		wanted[t] = true
	}
	var out []*models.FinancialFact
	for _, f := range m.facts {
		if f.DealID == dealID && wanted[f.FactType] {
			clone := *f
			out = append(out, &clone)
		}
	}
	return out, nil
}

type memSpreadRepo struct {
	mu   sync.Mutex
	rows []*models.RenderedSpread
}

var _ repositories.SpreadRepository = (*memSpreadRepo)(nil)

func newMemSpreadRepo() *memSpreadRepo {
	return &memSpreadRepo{}
}

func (m *memSpreadRepo) find(dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID) *models.RenderedSpread {
	for _, row := range m.rows {
		if row.DealID == dealID && row.SpreadType == spreadType &&
			row.SpreadVersion == version && row.OwnerType == ownerType &&
			uuidPtrEqual(row.OwnerEntityID, ownerEntityID) {
			return row
		}
	}
	return nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *memSpreadRepo) EnsurePlaceholder(_ context.Context, spread *models.RenderedSpread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if spread.Status == "" {
		spread.Status = models.SpreadStatusQueued
	}
	if spread.OwnerType == "" {
		spread.OwnerType = models.OwnerScopeDeal
	}
	if existing := m.find(spread.DealID, spread.SpreadType, spread.SpreadVersion, spread.OwnerType, spread.OwnerEntityID); existing != nil {
		spread.ID = existing.ID
		spread.Status = existing.Status
		return nil
	}
	spread.ID = uuid.New()
	spread.CreatedAt = time.Now()
	spread.UpdatedAt = spread.CreatedAt
	clone := *spread
	m.rows = append(m.rows, &clone)
	return nil
}

func (m *memSpreadRepo) Claim(_ context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.find(dealID, spreadType, version, ownerType, ownerEntityID)
	if row == nil {
		return false, nil
	}
	switch {
	case row.Status == models.SpreadStatusQueued:
	case row.Status == models.SpreadStatusGenerating && row.LastRunID != nil && *row.LastRunID == runID:
	default:
		return false, nil
	}
	row.Status = models.SpreadStatusGenerating
	run := runID
	row.LastRunID = &run
	row.UpdatedAt = time.Now()
	return true, nil
}

func (m *memSpreadRepo) CompleteReady(_ context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, content *models.SpreadContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.find(dealID, spreadType, version, ownerType, ownerEntityID)
	if row == nil || row.Status != models.SpreadStatusGenerating || row.LastRunID == nil || *row.LastRunID != runID {
		return apperrors.ErrConflict
	}
	row.Status = models.SpreadStatusReady
	row.Content = content
	row.ErrorMessage = nil
	now := time.Now()
	row.GeneratedAt = &now
	row.UpdatedAt = now
	return nil
}

func (m *memSpreadRepo) CompleteError(_ context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.find(dealID, spreadType, version, ownerType, ownerEntityID)
	if row == nil || row.Status != models.SpreadStatusGenerating || row.LastRunID == nil || *row.LastRunID != runID {
		return apperrors.ErrConflict
	}
	row.Status = models.SpreadStatusError
	row.ErrorMessage = &message
	row.UpdatedAt = time.Now()
	return nil
}

func (m *memSpreadRepo) NextVersion(_ context.Context, dealID uuid.UUID, spreadType models.SpreadType, ownerType models.OwnerScope, ownerEntityID *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, row := range m.rows {
		if row.DealID == dealID && row.SpreadType == spreadType &&
			row.OwnerType == ownerType && uuidPtrEqual(row.OwnerEntityID, ownerEntityID) &&
			row.SpreadVersion > max {
			max = row.SpreadVersion
		}
	}
	return max + 1, nil
}

func (m *memSpreadRepo) GetLatest(_ context.Context, dealID uuid.UUID, spreadType models.SpreadType) (*models.RenderedSpread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.RenderedSpread
	for _, row := range m.rows {
		if row.DealID == dealID && row.SpreadType == spreadType {
			if latest == nil || row.SpreadVersion > latest.SpreadVersion {
				latest = row
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (m *memSpreadRepo) GetByDeal(_ context.Context, dealID uuid.UUID) ([]*models.RenderedSpread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[models.SpreadType]*models.RenderedSpread)
	for _, row := range m.rows {
		if row.DealID != dealID {
			continue
		}
		if cur, ok := latest[row.SpreadType]; !ok || row.SpreadVersion > cur.SpreadVersion {
			latest[row.SpreadType] = row
		}
	}
	var out []*models.RenderedSpread
	for _, row := range latest {
		clone := *row
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memSpreadRepo) HealStuckGenerating(_ context.Context, threshold time.Duration) ([]repositories.HealedSpread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var healed []repositories.HealedSpread
	for _, row := range m.rows {
		if row.Status == models.SpreadStatusGenerating && row.UpdatedAt.Before(cutoff) {
			row.Status = models.SpreadStatusError
			msg := "generation exceeded the auto-heal threshold"
			row.ErrorMessage = &msg
			healed = append(healed, repositories.HealedSpread{
				ID:         row.ID,
				TenantID:   row.TenantID,
				DealID:     row.DealID,
				SpreadType: row.SpreadType,
				StuckSince: row.UpdatedAt,
			})
			row.UpdatedAt = time.Now()
		}
	}
	return healed, nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs []*models.SpreadJob
}

var _ repositories.JobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{}
}

func (m *memJobRepo) Create(_ context.Context, job *models.SpreadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.DealID == job.DealID && j.Status.IsActive() {
			return apperrors.ErrConflict
		}
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	clone := *job
	m.jobs = append(m.jobs, &clone)
	return nil
}

func (m *memJobRepo) GetActiveByDeal(_ context.Context, dealID uuid.UUID) (*models.SpreadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.DealID == dealID && j.Status.IsActive() {
			clone := *j
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memJobRepo) MergeRequestedTypes(_ context.Context, jobID uuid.UUID, types []models.SpreadType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == jobID {
			if !j.Status.IsActive() {
				return apperrors.ErrConflict
			}
			j.MergeTypes(types)
			j.UpdatedAt = time.Now()
			return nil
		}
	}
	return apperrors.ErrConflict
}

func (m *memJobRepo) RecordDebounced(_ context.Context, job *models.SpreadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = models.JobStatusDebounced
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	clone := *job
	m.jobs = append(m.jobs, &clone)
	return nil
}

func (m *memJobRepo) HasRecentRun(_ context.Context, dealID uuid.UUID, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-window)
	for _, j := range m.jobs {
		if j.DealID == dealID && j.Status != models.JobStatusDebounced && j.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memJobRepo) ClaimNext(_ context.Context, runID uuid.UUID, lease time.Duration) (*models.SpreadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *models.SpreadJob
	for _, j := range m.jobs {
		if j.Status == models.JobStatusQueued && (oldest == nil || j.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.JobStatusRunning
	run := runID
	oldest.ClaimedBy = &run
	expiry := time.Now().Add(lease)
	oldest.LeaseExpiresAt = &expiry
	now := time.Now()
	oldest.StartedAt = &now
	oldest.UpdatedAt = now
	clone := *oldest
	return &clone, nil
}

func (m *memJobRepo) Complete(_ context.Context, jobID uuid.UUID, runID uuid.UUID, status models.JobStatus, attempted, rendered int, failureCode *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == jobID {
			if j.Status != models.JobStatusRunning || j.ClaimedBy == nil || *j.ClaimedBy != runID {
				return apperrors.ErrConflict
			}
			j.Status = status
			j.AttemptedCount = attempted
			j.RenderedCount = rendered
			j.FailureCode = failureCode
			j.LeaseExpiresAt = nil
			j.UpdatedAt = time.Now()
			return nil
		}
	}
	return apperrors.ErrConflict
}

func (m *memJobRepo) ResetOrphans(_ context.Context, threshold time.Duration) ([]repositories.OrphanedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var orphans []repositories.OrphanedJob
	for _, j := range m.jobs {
		if j.Status == models.JobStatusRunning && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(cutoff) {
			j.Status = models.JobStatusQueued
			j.ClaimedBy = nil
			j.LeaseExpiresAt = nil
			j.UpdatedAt = time.Now()
			orphans = append(orphans, repositories.OrphanedJob{ID: j.ID, TenantID: j.TenantID, DealID: j.DealID})
		}
	}
	return orphans, nil
}

func (m *memJobRepo) byID(jobID uuid.UUID) *models.SpreadJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == jobID {
			clone := *j
			return &clone
		}
	}
	return nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*models.SystemEvent
}

var _ repositories.EventRepository = (*memEventRepo)(nil)

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{}
}

func (m *memEventRepo) Append(_ context.Context, event *models.SystemEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	clone := *event
	m.events = append(m.events, &clone)
	return nil
}

func (m *memEventRepo) GetByDeal(_ context.Context, dealID uuid.UUID, limit int) ([]*models.SystemEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SystemEvent
	for _, e := range m.events {
		if e.DealID != nil && *e.DealID == dealID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memEventRepo) kinds() []models.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EventKind
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

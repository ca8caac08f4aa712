package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
	"github.com/buddy-hq/buddy-engine/pkg/spread"
)

// SpreadService orchestrates spread generation: enqueueing render jobs with
// debounce and merge semantics, and executing claimed jobs against the
// template engine with CAS-protected spread rows.
type SpreadService interface {
	// Enqueue requests renders for the given types. Invalid types are skipped
	// with an audit event, never an error, as long as one valid type remains.
	// A request inside the debounce window records a debounced job and does
	// no work; a request while a job is active merges into it.
	Enqueue(ctx context.Context, tenantID, dealID uuid.UUID, types []models.SpreadType) (*models.SpreadJob, error)

	// ExecuteJob runs a claimed job to completion under the given run ID and
	// finalizes the job row. Zero successful renders out of at least one
	// attempt is a job failure.
	ExecuteJob(ctx context.Context, job *models.SpreadJob, runID uuid.UUID) error

	// GetSpread returns the latest spread for a deal and type, or nil.
	GetSpread(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType) (*models.RenderedSpread, error)

	// GetSpreads returns the latest spread per type for a deal.
	GetSpreads(ctx context.Context, dealID uuid.UUID) ([]*models.RenderedSpread, error)

	// GetJobStatus returns the active job for a deal, or nil.
	GetJobStatus(ctx context.Context, dealID uuid.UUID) (*models.SpreadJob, error)
}

type spreadService struct {
	spreadRepo repositories.SpreadRepository
	jobRepo    repositories.JobRepository
	factRepo   repositories.FactRepository
	engine     *spread.Engine
	recorder   *events.Recorder
	debounce   time.Duration
	logger     *zap.Logger
}

// NewSpreadService creates a SpreadService.
func NewSpreadService(
	spreadRepo repositories.SpreadRepository,
	jobRepo repositories.JobRepository,
	factRepo repositories.FactRepository,
	engine *spread.Engine,
	recorder *events.Recorder,
	debounce time.Duration,
	logger *zap.Logger,
) SpreadService {
	return &spreadService{
		spreadRepo: spreadRepo,
		jobRepo:    jobRepo,
		factRepo:   factRepo,
		engine:     engine,
		recorder:   recorder,
		debounce:   debounce,
		logger:     logger.Named("spread-service"),
	}
}

var _ SpreadService = (*spreadService)(nil)

func (s *spreadService) Enqueue(ctx context.Context, tenantID, dealID uuid.UUID, types []models.SpreadType) (*models.SpreadJob, error) {
	valid, invalid := partitionSpreadTypes(types)

	if len(invalid) > 0 {
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: tenantID,
			DealID:   &dealID,
			Kind:     models.EventInvalidSpreadTypes,
			Severity: "warning",
			Message:  fmt.Sprintf("skipped %d invalid spread types in enqueue request", len(invalid)),
			Details:  map[string]any{"invalid_types": invalid},
		})
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid spread types in request", apperrors.ErrInvalidSpreadType)
	}

	// Debounce: a run for this deal inside the window absorbs the request.
	recent, err := s.jobRepo.HasRecentRun(ctx, dealID, s.debounce)
	if err != nil {
		return nil, err
	}
	if recent {
		if active, err := s.jobRepo.GetActiveByDeal(ctx, dealID); err == nil && active != nil {
			// Still merge the requested types so the active run covers them.
			if mergeErr := s.jobRepo.MergeRequestedTypes(ctx, active.ID, valid); mergeErr == nil {
				active.MergeTypes(valid)
				return active, nil
			}
		}
		debounced := &models.SpreadJob{
			TenantID:       tenantID,
			DealID:         dealID,
			RequestedTypes: valid,
		}
		if err := s.jobRepo.RecordDebounced(ctx, debounced); err != nil {
			return nil, err
		}
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: tenantID,
			DealID:   &dealID,
			Kind:     models.EventDebounced,
			Severity: "info",
			Message:  "spread enqueue absorbed by debounce window",
			Details:  map[string]any{"requested_types": spreadTypeLabels(valid)},
		})
		return debounced, nil
	}

	return s.enqueueOrMerge(ctx, tenantID, dealID, valid)
}

// enqueueOrMerge creates a job or merges into the active one. The partial
// unique index on active jobs decides races; a losing insert re-reads the
// winner and merges.
func (s *spreadService) enqueueOrMerge(ctx context.Context, tenantID, dealID uuid.UUID, types []models.SpreadType) (*models.SpreadJob, error) {
	if active, err := s.jobRepo.GetActiveByDeal(ctx, dealID); err != nil {
		return nil, err
	} else if active != nil {
		if err := s.jobRepo.MergeRequestedTypes(ctx, active.ID, types); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				// The job went terminal between read and merge; start fresh.
				return s.enqueueOrMerge(ctx, tenantID, dealID, types)
			}
			return nil, err
		}
		active.MergeTypes(types)
		return active, nil
	}

	job := &models.SpreadJob{
		TenantID:       tenantID,
		DealID:         dealID,
		RequestedTypes: types,
	}
	err := s.jobRepo.Create(ctx, job)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}

	// Lost the insert race: another enqueue created the active job first.
	active, readErr := s.jobRepo.GetActiveByDeal(ctx, dealID)
	if readErr != nil {
		return nil, readErr
	}
	if active == nil {
		// The winner finished already; retry from the top.
		return s.enqueueOrMerge(ctx, tenantID, dealID, types)
	}
	if err := s.jobRepo.MergeRequestedTypes(ctx, active.ID, types); err != nil && !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}
	active.MergeTypes(types)
	return active, nil
}

func (s *spreadService) ExecuteJob(ctx context.Context, job *models.SpreadJob, runID uuid.UUID) error {
	facts, err := s.factRepo.GetByDeal(ctx, job.DealID)
	if err != nil {
		return err
	}
	factValues := make([]models.FinancialFact, 0, len(facts))
	for _, f := range facts {
		factValues = append(factValues, *f)
	}

	attempted := 0
	rendered := 0

	for _, spreadType := range job.RequestedTypes {
		if !s.engine.HasTemplate(spreadType) {
			attempted++
			s.recorder.Record(ctx, &models.SystemEvent{
				TenantID: job.TenantID,
				DealID:   &job.DealID,
				Kind:     models.EventTemplateMissing,
				Severity: "warning",
				Message:  fmt.Sprintf("no template registered for spread type %s", spreadType),
			})
			continue
		}

		ok, err := s.renderOne(ctx, job, spreadType, runID, factValues)
		if err != nil {
			s.logger.Error("Spread render pass failed",
				zap.String("deal_id", job.DealID.String()),
				zap.String("spread_type", spreadType.String()),
				zap.Error(err))
			attempted++
			continue
		}
		attempted++
		if ok {
			rendered++
		}
	}

	status := models.JobStatusSucceeded
	var failureCode *string
	if attempted > 0 && rendered == 0 {
		// A run that attempted work and produced nothing is a failure, even
		// though every per-spread error was recorded individually.
		status = models.JobStatusFailed
		code := models.JobFailureZeroRender
		failureCode = &code
		s.recorder.Record(ctx, &models.SystemEvent{
			TenantID: job.TenantID,
			DealID:   &job.DealID,
			Kind:     models.EventZeroRender,
			Severity: "critical",
			Message:  fmt.Sprintf("spread run attempted %d types and rendered none", attempted),
			Details:  map[string]any{"job_id": job.ID.String(), "run_id": runID.String()},
		})
	}

	return s.jobRepo.Complete(ctx, job.ID, runID, status, attempted, rendered, failureCode)
}

// renderOne takes one spread type through version allocation, placeholder,
// CAS claim, render and completion. Returns true when the spread reached
// ready status under this run.
func (s *spreadService) renderOne(ctx context.Context, job *models.SpreadJob, spreadType models.SpreadType, runID uuid.UUID, facts []models.FinancialFact) (bool, error) {
	ownerType := models.OwnerScopeDeal

	version, err := s.spreadRepo.NextVersion(ctx, job.DealID, spreadType, ownerType, nil)
	if err != nil {
		return false, err
	}

	placeholder := &models.RenderedSpread{
		TenantID:      job.TenantID,
		DealID:        job.DealID,
		SpreadType:    spreadType,
		SpreadVersion: version,
		OwnerType:     ownerType,
	}
	if err := s.spreadRepo.EnsurePlaceholder(ctx, placeholder); err != nil {
		return false, err
	}

	claimed, err := s.spreadRepo.Claim(ctx, job.DealID, spreadType, version, ownerType, nil, runID)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Another run owns this version; its render counts, not ours.
		s.logger.Debug("Spread claim lost to another run",
			zap.String("deal_id", job.DealID.String()),
			zap.String("spread_type", spreadType.String()),
			zap.Int("version", version))
		return false, nil
	}

	result := s.engine.Render(spreadType, facts)

	if result.Status == models.SpreadStatusReady {
		err = s.spreadRepo.CompleteReady(ctx, job.DealID, spreadType, version, ownerType, nil, runID, result.Content)
		if err != nil {
			return false, err
		}
		return true, nil
	}

	message := "render failed"
	if result.ErrorMessage != nil {
		message = *result.ErrorMessage
	}
	if err := s.spreadRepo.CompleteError(ctx, job.DealID, spreadType, version, ownerType, nil, runID, message); err != nil {
		return false, err
	}
	return false, nil
}

func (s *spreadService) GetSpread(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType) (*models.RenderedSpread, error) {
	if !spreadType.IsValid() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSpreadType, spreadType)
	}
	return s.spreadRepo.GetLatest(ctx, dealID, spreadType)
}

func (s *spreadService) GetSpreads(ctx context.Context, dealID uuid.UUID) ([]*models.RenderedSpread, error) {
	return s.spreadRepo.GetByDeal(ctx, dealID)
}

func (s *spreadService) GetJobStatus(ctx context.Context, dealID uuid.UUID) (*models.SpreadJob, error) {
	return s.jobRepo.GetActiveByDeal(ctx, dealID)
}

func partitionSpreadTypes(types []models.SpreadType) (valid []models.SpreadType, invalid []string) {
	seen := make(map[models.SpreadType]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		if t.IsValid() {
			valid = append(valid, t)
		} else {
			invalid = append(invalid, string(t))
		}
	}
	return valid, invalid
}

func spreadTypeLabels(types []models.SpreadType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// SpreadWorker polls the job queue and executes claimed jobs. Claiming runs
// cross-tenant; execution runs inside the claimed job's tenant scope.
type SpreadWorker struct {
	db       *database.DB
	provider *database.TenantScopeProvider
	jobRepo  repositories.JobRepository
	service  SpreadService
	poll     time.Duration
	lease    time.Duration
	logger   *zap.Logger
}

// NewSpreadWorker creates a SpreadWorker.
func NewSpreadWorker(
	db *database.DB,
	provider *database.TenantScopeProvider,
	jobRepo repositories.JobRepository,
	service SpreadService,
	poll, lease time.Duration,
	logger *zap.Logger,
) *SpreadWorker {
	return &SpreadWorker{
		db:       db,
		provider: provider,
		jobRepo:  jobRepo,
		service:  service,
		poll:     poll,
		lease:    lease,
		logger:   logger.Named("spread-worker"),
	}
}

// Run polls until the context is cancelled. Each claimed job gets a fresh
// run ID; the same ID holds the job lease and pins every CAS the run performs.
func (w *SpreadWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.logger.Info("Spread worker started", zap.Duration("poll", w.poll))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Spread worker stopping")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SpreadWorker) tick(ctx context.Context) {
	// Drain the queue on each tick rather than claiming one job per poll.
	for {
		if ctx.Err() != nil {
			return
		}

		runID := uuid.New()
		job, err := w.claimOne(ctx, runID)
		if err != nil {
			w.logger.Error("Failed to claim spread job", zap.Error(err))
			return
		}
		if job == nil {
			return
		}

		w.logger.Info("Claimed spread job",
			zap.String("job_id", job.ID.String()),
			zap.String("deal_id", job.DealID.String()),
			zap.String("run_id", runID.String()))

		tenantCtx, cleanup, err := w.provider.WithTenantScope(ctx, job.TenantID)
		if err != nil {
			w.logger.Error("Failed to open tenant scope for job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
			return
		}

		if err := w.service.ExecuteJob(tenantCtx, job, runID); err != nil {
			w.logger.Error("Spread job execution failed",
				zap.String("job_id", job.ID.String()),
				zap.String("run_id", runID.String()),
				zap.Error(err))
		}
		cleanup()
	}
}

func (w *SpreadWorker) claimOne(ctx context.Context, runID uuid.UUID) (*models.SpreadJob, error) {
	scope, err := w.db.WithoutTenant(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	claimCtx := database.SetTenantScope(ctx, scope)
	return w.jobRepo.ClaimNext(claimCtx, runID, w.lease)
}

package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// Observer is the periodic healing pass. It force-fails spreads stuck in
// generating past the auto-heal threshold and requeues jobs whose lease
// expired past the orphan threshold. Both passes run cross-tenant on a
// maintenance connection.
type Observer struct {
	db         *database.DB
	spreadRepo repositories.SpreadRepository
	jobRepo    repositories.JobRepository
	recorder   *events.Recorder
	interval   time.Duration
	autoHeal   time.Duration
	orphan     time.Duration
	logger     *zap.Logger
}

// NewObserver creates an Observer.
func NewObserver(
	db *database.DB,
	spreadRepo repositories.SpreadRepository,
	jobRepo repositories.JobRepository,
	recorder *events.Recorder,
	interval, autoHeal, orphan time.Duration,
	logger *zap.Logger,
) *Observer {
	return &Observer{
		db:         db,
		spreadRepo: spreadRepo,
		jobRepo:    jobRepo,
		recorder:   recorder,
		interval:   interval,
		autoHeal:   autoHeal,
		orphan:     orphan,
		logger:     logger.Named("observer"),
	}
}

// Run executes healing passes until the context is cancelled.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Info("Observer started",
		zap.Duration("interval", o.interval),
		zap.Duration("auto_heal", o.autoHeal),
		zap.Duration("orphan", o.orphan))

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Observer stopping")
			return
		case <-ticker.C:
			o.Pass(ctx)
		}
	}
}

// Pass runs one healing sweep. Exported so tests and operational tooling can
// trigger a sweep without the timer.
func (o *Observer) Pass(ctx context.Context) {
	scope, err := o.db.WithoutTenant(ctx)
	if err != nil {
		o.logger.Error("Failed to open maintenance scope", zap.Error(err))
		return
	}
	defer scope.Close()

	passCtx := database.SetTenantScope(ctx, scope)

	o.healSpreads(passCtx)
	o.resetOrphans(passCtx)
}

func (o *Observer) healSpreads(ctx context.Context) {
	healed, err := o.spreadRepo.HealStuckGenerating(ctx, o.autoHeal)
	if err != nil {
		o.logger.Error("Auto-heal sweep failed", zap.Error(err))
		return
	}

	for _, h := range healed {
		o.logger.Warn("Auto-healed stuck spread",
			zap.String("spread_id", h.ID.String()),
			zap.String("deal_id", h.DealID.String()),
			zap.String("spread_type", h.SpreadType.String()))
		o.recorder.Record(ctx, &models.SystemEvent{
			TenantID: h.TenantID,
			DealID:   &h.DealID,
			Kind:     models.EventAutoHealed,
			Severity: "warning",
			Message:  fmt.Sprintf("spread %s stuck in generating was auto-healed to error", h.SpreadType),
			Details:  map[string]any{"spread_id": h.ID.String()},
		})
	}
}

func (o *Observer) resetOrphans(ctx context.Context) {
	orphans, err := o.jobRepo.ResetOrphans(ctx, o.orphan)
	if err != nil {
		o.logger.Error("Orphan reset sweep failed", zap.Error(err))
		return
	}

	for _, orphan := range orphans {
		o.logger.Warn("Reset orphaned spread job",
			zap.String("job_id", orphan.ID.String()),
			zap.String("deal_id", orphan.DealID.String()))
		o.recorder.Record(ctx, &models.SystemEvent{
			TenantID: orphan.TenantID,
			DealID:   &orphan.DealID,
			Kind:     models.EventJobOrphanReset,
			Severity: "warning",
			Message:  "spread job with expired lease was reset to queued",
			Details:  map[string]any{"job_id": orphan.ID.String()},
		})
	}
}

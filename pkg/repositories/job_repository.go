package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// OrphanedJob identifies a job the observer reset after its lease expired.
type OrphanedJob struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	DealID   uuid.UUID
}

// JobRepository provides data access for spread generation jobs.
// A partial unique index guarantees at most one active (queued or running)
// job per (tenant, deal); concurrent enqueues merge rather than duplicate.
type JobRepository interface {
	// Create inserts a new job. Returns ErrConflict when an active job
	// already exists for the deal; the caller should re-read and merge.
	Create(ctx context.Context, job *models.SpreadJob) error

	// GetActiveByDeal returns the queued or running job for a deal, or nil.
	GetActiveByDeal(ctx context.Context, dealID uuid.UUID) (*models.SpreadJob, error)

	// MergeRequestedTypes unions types into a still-active job's requested
	// set. Returns ErrConflict when the job went terminal in the meantime.
	MergeRequestedTypes(ctx context.Context, jobID uuid.UUID, types []models.SpreadType) error

	// RecordDebounced writes a terminal debounced job for audit. It never
	// collides with the active-job index.
	RecordDebounced(ctx context.Context, job *models.SpreadJob) error

	// HasRecentRun reports whether any non-debounced job for the deal was
	// created within the window.
	HasRecentRun(ctx context.Context, dealID uuid.UUID, window time.Duration) (bool, error)

	// ClaimNext atomically claims the oldest queued job for a run, taking a
	// lease. Runs cross-tenant; returns nil when the queue is empty.
	ClaimNext(ctx context.Context, runID uuid.UUID, lease time.Duration) (*models.SpreadJob, error)

	// Complete finalizes a running job with its outcome counters. The update
	// is pinned to the claiming run.
	Complete(ctx context.Context, jobID uuid.UUID, runID uuid.UUID, status models.JobStatus, attempted, rendered int, failureCode *string) error

	// ResetOrphans requeues running jobs whose lease expired longer than the
	// threshold ago. Runs cross-tenant.
	ResetOrphans(ctx context.Context, threshold time.Duration) ([]OrphanedJob, error)
}

type jobRepository struct{}

// NewJobRepository creates a new JobRepository.
func NewJobRepository() JobRepository {
	return &jobRepository{}
}

var _ JobRepository = (*jobRepository)(nil)

const jobColumns = `
	id, tenant_id, deal_id, status, requested_types, claimed_by,
	lease_expires_at, attempted_count, rendered_count, failure_code,
	created_at, updated_at, started_at`

func (r *jobRepository) Create(ctx context.Context, job *models.SpreadJob) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	query := `
		INSERT INTO buddy_spread_jobs (
			tenant_id, deal_id, status, requested_types, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		job.TenantID,
		job.DealID,
		job.Status,
		spreadTypeStrings(job.RequestedTypes),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race against a concurrent enqueue for the same deal.
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create spread job: %w", err)
	}

	return nil
}

func (r *jobRepository) GetActiveByDeal(ctx context.Context, dealID uuid.UUID) (*models.SpreadJob, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + jobColumns + `
		FROM buddy_spread_jobs
		WHERE deal_id = $1 AND status IN ($2, $3)
		LIMIT 1`

	job, err := scanJob(scope.Conn.QueryRow(ctx, query, dealID, models.JobStatusQueued, models.JobStatusRunning))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No active job
		}
		return nil, err
	}
	return job, nil
}

func (r *jobRepository) MergeRequestedTypes(ctx context.Context, jobID uuid.UUID, types []models.SpreadType) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	// Union in SQL so two mergers racing each other both land their types.
	query := `
		UPDATE buddy_spread_jobs
		SET requested_types = (
			SELECT ARRAY(
				SELECT DISTINCT t FROM unnest(requested_types || $2::text[]) AS t
				ORDER BY t
			)
		), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`

	result, err := scope.Conn.Exec(ctx, query,
		jobID, spreadTypeStrings(types), models.JobStatusQueued, models.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to merge requested types: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *jobRepository) RecordDebounced(ctx context.Context, job *models.SpreadJob) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	job.Status = models.JobStatusDebounced

	query := `
		INSERT INTO buddy_spread_jobs (
			tenant_id, deal_id, status, requested_types, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		job.TenantID,
		job.DealID,
		job.Status,
		spreadTypeStrings(job.RequestedTypes),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record debounced job: %w", err)
	}

	return nil
}

func (r *jobRepository) HasRecentRun(ctx context.Context, dealID uuid.UUID, window time.Duration) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM buddy_spread_jobs
			WHERE deal_id = $1
			  AND status != $2
			  AND created_at > NOW() - make_interval(secs => $3)
		)`

	var exists bool
	err := scope.Conn.QueryRow(ctx, query, dealID, models.JobStatusDebounced, window.Seconds()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent runs: %w", err)
	}

	return exists, nil
}

func (r *jobRepository) ClaimNext(ctx context.Context, runID uuid.UUID, lease time.Duration) (*models.SpreadJob, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	// SKIP LOCKED keeps concurrent workers from serializing on the head of
	// the queue; each claims a different job or nothing.
	query := `
		UPDATE buddy_spread_jobs
		SET status = $2, claimed_by = $1,
		    lease_expires_at = NOW() + make_interval(secs => $3),
		    started_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM buddy_spread_jobs
			WHERE status = $4
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(scope.Conn.QueryRow(ctx, query,
		runID, models.JobStatusRunning, lease.Seconds(), models.JobStatusQueued,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Queue empty
		}
		return nil, err
	}

	return job, nil
}

func (r *jobRepository) Complete(ctx context.Context, jobID uuid.UUID, runID uuid.UUID, status models.JobStatus, attempted, rendered int, failureCode *string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if !status.IsTerminal() {
		return fmt.Errorf("%w: job completion requires a terminal status, got %s", apperrors.ErrInvalidTransition, status)
	}

	query := `
		UPDATE buddy_spread_jobs
		SET status = $3, attempted_count = $4, rendered_count = $5,
		    failure_code = $6, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND claimed_by = $2 AND status = $7`

	result, err := scope.Conn.Exec(ctx, query,
		jobID, runID, status, attempted, rendered, failureCode, models.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete spread job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *jobRepository) ResetOrphans(ctx context.Context, threshold time.Duration) ([]OrphanedJob, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_spread_jobs
		SET status = $1, claimed_by = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE status = $2
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at < NOW() - make_interval(secs => $3)
		RETURNING id, tenant_id, deal_id`

	rows, err := scope.Conn.Query(ctx, query,
		models.JobStatusQueued, models.JobStatusRunning, threshold.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset orphaned jobs: %w", err)
	}
	defer rows.Close()

	var orphans []OrphanedJob
	for rows.Next() {
		var o OrphanedJob
		if err := rows.Scan(&o.ID, &o.TenantID, &o.DealID); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned job: %w", err)
		}
		orphans = append(orphans, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphaned jobs: %w", err)
	}

	return orphans, nil
}

func scanJob(row pgx.Row) (*models.SpreadJob, error) {
	var j models.SpreadJob
	var requested []string

	err := row.Scan(
		&j.ID,
		&j.TenantID,
		&j.DealID,
		&j.Status,
		&requested,
		&j.ClaimedBy,
		&j.LeaseExpiresAt,
		&j.AttemptedCount,
		&j.RenderedCount,
		&j.FailureCode,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.StartedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan spread job: %w", err)
	}

	j.RequestedTypes = make([]models.SpreadType, 0, len(requested))
	for _, t := range requested {
		j.RequestedTypes = append(j.RequestedTypes, models.SpreadType(t))
	}

	return &j, nil
}

func spreadTypeStrings(types []models.SpreadType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

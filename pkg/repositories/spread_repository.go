package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/buddy-hq/buddy-engine/pkg/apperrors"
	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// HealedSpread identifies a spread the observer force-transitioned to error.
type HealedSpread struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	DealID     uuid.UUID
	SpreadType models.SpreadType
	StuckSince time.Time
}

// SpreadRepository provides data access for rendered spreads.
type SpreadRepository interface {
	// EnsurePlaceholder inserts a queued spread row for the given coordinates
	// if none exists yet. Concurrent callers converge to one row. The model's
	// ID is populated either way.
	EnsurePlaceholder(ctx context.Context, spread *models.RenderedSpread) error

	// Claim transitions a queued spread to generating on behalf of a run.
	// A generating spread already owned by the same run is reclaimed, so a
	// retrying worker can resume its own work. Returns false when another run
	// holds the spread.
	Claim(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID) (bool, error)

	// CompleteReady finalizes a generating spread with rendered content.
	// The update is pinned to the claiming run; a spread stolen by another
	// run returns ErrConflict.
	CompleteReady(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, content *models.SpreadContent) error

	// CompleteError finalizes a generating spread with an error message,
	// pinned to the claiming run.
	CompleteError(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, message string) error

	// NextVersion returns the next unused spread version for the coordinates.
	NextVersion(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, ownerType models.OwnerScope, ownerEntityID *uuid.UUID) (int, error)

	// GetLatest returns the highest-version spread for a deal and type, or
	// nil when none exists.
	GetLatest(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType) (*models.RenderedSpread, error)

	// GetByDeal returns the highest-version spread per type for a deal.
	GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.RenderedSpread, error)

	// HealStuckGenerating force-transitions spreads stuck in generating for
	// longer than the threshold to error. Runs cross-tenant; the caller must
	// hold a maintenance scope.
	HealStuckGenerating(ctx context.Context, threshold time.Duration) ([]HealedSpread, error)
}

type spreadRepository struct{}

// NewSpreadRepository creates a new SpreadRepository.
func NewSpreadRepository() SpreadRepository {
	return &spreadRepository{}
}

var _ SpreadRepository = (*spreadRepository)(nil)

const spreadColumns = `
	id, tenant_id, deal_id, spread_type, spread_version, owner_type,
	owner_entity_id, status, content, error_message, last_run_id,
	generated_at, created_at, updated_at`

// spreadCoordsClause matches one logical spread. $1..$5 are deal_id,
// spread_type, spread_version, owner_type, owner_entity_id.
const spreadCoordsClause = `
	deal_id = $1 AND spread_type = $2 AND spread_version = $3
	AND owner_type = $4
	AND COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid)
	  = COALESCE($5, '00000000-0000-0000-0000-000000000000'::uuid)`

func (r *spreadRepository) EnsurePlaceholder(ctx context.Context, spread *models.RenderedSpread) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if spread.Status == "" {
		spread.Status = models.SpreadStatusQueued
	}
	if spread.OwnerType == "" {
		spread.OwnerType = models.OwnerScopeDeal
	}

	query := `
		INSERT INTO buddy_rendered_spreads (
			tenant_id, deal_id, spread_type, spread_version, owner_type,
			owner_entity_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (tenant_id, deal_id, spread_type, spread_version, owner_type,
		             COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO NOTHING`

	_, err := scope.Conn.Exec(ctx, query,
		spread.TenantID,
		spread.DealID,
		spread.SpreadType,
		spread.SpreadVersion,
		spread.OwnerType,
		spread.OwnerEntityID,
		spread.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure spread placeholder: %w", err)
	}

	// Read back the winning row so the caller holds the canonical ID.
	query = `SELECT id, status, created_at, updated_at
		FROM buddy_rendered_spreads WHERE` + spreadCoordsClause

	err = scope.Conn.QueryRow(ctx, query,
		spread.DealID, spread.SpreadType, spread.SpreadVersion,
		spread.OwnerType, spread.OwnerEntityID,
	).Scan(&spread.ID, &spread.Status, &spread.CreatedAt, &spread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back spread placeholder: %w", err)
	}

	return nil
}

func (r *spreadRepository) Claim(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	// Single-statement CAS: only a queued spread, or a generating spread this
	// run already owns, transitions. RowsAffected decides who won.
	query := `
		UPDATE buddy_rendered_spreads
		SET status = $7, last_run_id = $6, updated_at = NOW()
		WHERE` + spreadCoordsClause + `
		  AND (status = $8 OR (status = $7 AND last_run_id = $6))`

	result, err := scope.Conn.Exec(ctx, query,
		dealID, spreadType, version, ownerType, ownerEntityID,
		runID, models.SpreadStatusGenerating, models.SpreadStatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim spread: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *spreadRepository) CompleteReady(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, content *models.SpreadContent) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal spread content: %w", err)
	}

	query := `
		UPDATE buddy_rendered_spreads
		SET status = $8, content = $7, error_message = NULL,
		    generated_at = NOW(), updated_at = NOW()
		WHERE` + spreadCoordsClause + `
		  AND status = $9 AND last_run_id = $6`

	result, err := scope.Conn.Exec(ctx, query,
		dealID, spreadType, version, ownerType, ownerEntityID,
		runID, payload, models.SpreadStatusReady, models.SpreadStatusGenerating,
	)
	if err != nil {
		return fmt.Errorf("failed to complete spread: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *spreadRepository) CompleteError(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, version int, ownerType models.OwnerScope, ownerEntityID *uuid.UUID, runID uuid.UUID, message string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_rendered_spreads
		SET status = $8, error_message = $7, updated_at = NOW()
		WHERE` + spreadCoordsClause + `
		  AND status = $9 AND last_run_id = $6`

	result, err := scope.Conn.Exec(ctx, query,
		dealID, spreadType, version, ownerType, ownerEntityID,
		runID, message, models.SpreadStatusError, models.SpreadStatusGenerating,
	)
	if err != nil {
		return fmt.Errorf("failed to mark spread errored: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *spreadRepository) NextVersion(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType, ownerType models.OwnerScope, ownerEntityID *uuid.UUID) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT COALESCE(MAX(spread_version), 0) + 1
		FROM buddy_rendered_spreads
		WHERE deal_id = $1 AND spread_type = $2 AND owner_type = $3
		  AND COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid)
		    = COALESCE($4, '00000000-0000-0000-0000-000000000000'::uuid)`

	var version int
	err := scope.Conn.QueryRow(ctx, query, dealID, spreadType, ownerType, ownerEntityID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next spread version: %w", err)
	}

	return version, nil
}

func (r *spreadRepository) GetLatest(ctx context.Context, dealID uuid.UUID, spreadType models.SpreadType) (*models.RenderedSpread, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + spreadColumns + `
		FROM buddy_rendered_spreads
		WHERE deal_id = $1 AND spread_type = $2
		ORDER BY spread_version DESC
		LIMIT 1`

	spread, err := scanSpread(scope.Conn.QueryRow(ctx, query, dealID, spreadType))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Never rendered
		}
		return nil, err
	}
	return spread, nil
}

func (r *spreadRepository) GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.RenderedSpread, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT DISTINCT ON (spread_type, owner_type, COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid))
		` + spreadColumns + `
		FROM buddy_rendered_spreads
		WHERE deal_id = $1
		ORDER BY spread_type, owner_type,
		         COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid),
		         spread_version DESC`

	rows, err := scope.Conn.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spreads: %w", err)
	}
	defer rows.Close()

	var spreads []*models.RenderedSpread
	for rows.Next() {
		spread, err := scanSpread(rows)
		if err != nil {
			return nil, err
		}
		spreads = append(spreads, spread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spreads: %w", err)
	}

	return spreads, nil
}

func (r *spreadRepository) HealStuckGenerating(ctx context.Context, threshold time.Duration) ([]HealedSpread, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE buddy_rendered_spreads
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE status = $3 AND updated_at < NOW() - make_interval(secs => $4)
		RETURNING id, tenant_id, deal_id, spread_type, updated_at`

	rows, err := scope.Conn.Query(ctx, query,
		models.SpreadStatusError,
		"generation exceeded the auto-heal threshold",
		models.SpreadStatusGenerating,
		threshold.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to heal stuck spreads: %w", err)
	}
	defer rows.Close()

	var healed []HealedSpread
	for rows.Next() {
		var h HealedSpread
		if err := rows.Scan(&h.ID, &h.TenantID, &h.DealID, &h.SpreadType, &h.StuckSince); err != nil {
			return nil, fmt.Errorf("failed to scan healed spread: %w", err)
		}
		healed = append(healed, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating healed spreads: %w", err)
	}

	return healed, nil
}

func scanSpread(row pgx.Row) (*models.RenderedSpread, error) {
	var s models.RenderedSpread
	var content []byte

	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.DealID,
		&s.SpreadType,
		&s.SpreadVersion,
		&s.OwnerType,
		&s.OwnerEntityID,
		&s.Status,
		&content,
		&s.ErrorMessage,
		&s.LastRunID,
		&s.GeneratedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan spread: %w", err)
	}

	if len(content) > 0 && string(content) != "null" {
		s.Content = &models.SpreadContent{}
		if err := json.Unmarshal(content, s.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal spread content: %w", err)
		}
	}

	return &s, nil
}

package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// ScanCacheRepository provides data access for the per-tenant virus-scan
// verdict cache, keyed by content digest.
type ScanCacheRepository interface {
	// Put records a scan verdict. The first verdict for a digest wins; later
	// writes for the same (tenant, digest) are dropped silently, so concurrent
	// scanners of identical content converge without errors.
	Put(ctx context.Context, entry *models.ScanCacheEntry) error

	// Get returns the cached verdict for a digest, or nil on a miss.
	Get(ctx context.Context, digest string) (*models.ScanCacheEntry, error)
}

type scanCacheRepository struct{}

// NewScanCacheRepository creates a new ScanCacheRepository.
func NewScanCacheRepository() ScanCacheRepository {
	return &scanCacheRepository{}
}

var _ ScanCacheRepository = (*scanCacheRepository)(nil)

func (r *scanCacheRepository) Put(ctx context.Context, entry *models.ScanCacheEntry) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if entry.ScannedAt.IsZero() {
		entry.ScannedAt = time.Now()
	}

	query := `
		INSERT INTO buddy_scan_cache (tenant_id, digest, status, signature, engine, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, digest) DO NOTHING`

	_, err := scope.Conn.Exec(ctx, query,
		entry.TenantID,
		entry.Digest,
		entry.Status,
		entry.Signature,
		entry.Engine,
		entry.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write scan cache entry: %w", err)
	}

	return nil
}

func (r *scanCacheRepository) Get(ctx context.Context, digest string) (*models.ScanCacheEntry, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT tenant_id, digest, status, signature, engine, scanned_at
		FROM buddy_scan_cache
		WHERE digest = $1`

	var entry models.ScanCacheEntry
	err := scope.Conn.QueryRow(ctx, query, digest).Scan(
		&entry.TenantID,
		&entry.Digest,
		&entry.Status,
		&entry.Signature,
		&entry.Engine,
		&entry.ScannedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to query scan cache: %w", err)
	}

	return &entry, nil
}

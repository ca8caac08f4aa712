package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// FactRepository provides data access for financial facts.
type FactRepository interface {
	// CreateBatch normalizes and inserts a batch of extracted facts.
	CreateBatch(ctx context.Context, facts []*models.FinancialFact) error

	// UpsertDerived writes an engine-computed fact idempotently. Re-running
	// the same derivation replaces the previous value for the same
	// (deal, fact_key, owner) rather than accumulating rows.
	UpsertDerived(ctx context.Context, fact *models.FinancialFact) error

	// GetByDeal returns every fact for a deal.
	GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.FinancialFact, error)

	// GetByDealAndTypes returns facts for a deal restricted to the given
	// fact types.
	GetByDealAndTypes(ctx context.Context, dealID uuid.UUID, factTypes []string) ([]*models.FinancialFact, error)
}

type factRepository struct{}

// NewFactRepository creates a new FactRepository.
func NewFactRepository() FactRepository {
	return &factRepository{}
}

var _ FactRepository = (*factRepository)(nil)

const factColumns = `
	id, tenant_id, deal_id, source_document_id, fact_type, fact_key,
	numeric_value, text_value, period_start, period_end, currency,
	confidence, provenance, owner_type, owner_entity_id, created_at`

func (r *factRepository) CreateBatch(ctx context.Context, facts []*models.FinancialFact) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO buddy_financial_facts (
			tenant_id, deal_id, source_document_id, fact_type, fact_key,
			numeric_value, text_value, period_start, period_end, currency,
			confidence, provenance, owner_type, owner_entity_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	now := time.Now()
	for _, fact := range facts {
		fact.Normalize()

		provenance, err := json.Marshal(fact.Provenance)
		if err != nil {
			return fmt.Errorf("failed to marshal fact provenance: %w", err)
		}

		err = scope.Conn.QueryRow(ctx, query,
			fact.TenantID,
			fact.DealID,
			fact.SourceDocumentID,
			fact.FactType,
			fact.FactKey,
			fact.NumericValue,
			fact.TextValue,
			fact.PeriodStart,
			fact.PeriodEnd,
			fact.Currency,
			fact.Confidence,
			provenance,
			fact.OwnerType,
			fact.OwnerEntityID,
			now,
		).Scan(&fact.ID, &fact.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create fact %s/%s: %w", fact.FactType, fact.FactKey, err)
		}
	}

	return nil
}

func (r *factRepository) UpsertDerived(ctx context.Context, fact *models.FinancialFact) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	fact.FactType = models.FactTypeDerived
	fact.Normalize()

	provenance, err := json.Marshal(fact.Provenance)
	if err != nil {
		return fmt.Errorf("failed to marshal fact provenance: %w", err)
	}

	// Conflict target matches ux_facts_derived in the schema.
	query := `
		INSERT INTO buddy_financial_facts (
			tenant_id, deal_id, source_document_id, fact_type, fact_key,
			numeric_value, text_value, period_start, period_end, currency,
			confidence, provenance, owner_type, owner_entity_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (tenant_id, deal_id, fact_key, owner_type,
		             COALESCE(owner_entity_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE fact_type = 'DERIVED'
		DO UPDATE SET
			numeric_value = EXCLUDED.numeric_value,
			text_value = EXCLUDED.text_value,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			confidence = EXCLUDED.confidence,
			provenance = EXCLUDED.provenance,
			created_at = NOW()
		RETURNING id, created_at`

	err = scope.Conn.QueryRow(ctx, query,
		fact.TenantID,
		fact.DealID,
		fact.SourceDocumentID,
		fact.FactType,
		fact.FactKey,
		fact.NumericValue,
		fact.TextValue,
		fact.PeriodStart,
		fact.PeriodEnd,
		fact.Currency,
		fact.Confidence,
		provenance,
		fact.OwnerType,
		fact.OwnerEntityID,
	).Scan(&fact.ID, &fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert derived fact %s: %w", fact.FactKey, err)
	}

	return nil
}

func (r *factRepository) GetByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.FinancialFact, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + factColumns + `
		FROM buddy_financial_facts
		WHERE deal_id = $1
		ORDER BY created_at ASC`

	rows, err := scope.Conn.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

func (r *factRepository) GetByDealAndTypes(ctx context.Context, dealID uuid.UUID, factTypes []string) ([]*models.FinancialFact, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + factColumns + `
		FROM buddy_financial_facts
		WHERE deal_id = $1 AND fact_type = ANY($2)
		ORDER BY created_at ASC`

	rows, err := scope.Conn.Query(ctx, query, dealID, factTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

func collectFacts(rows pgx.Rows) ([]*models.FinancialFact, error) {
	var facts []*models.FinancialFact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}

	return facts, nil
}

func scanFact(row pgx.Row) (*models.FinancialFact, error) {
	var f models.FinancialFact
	var provenance []byte

	err := row.Scan(
		&f.ID,
		&f.TenantID,
		&f.DealID,
		&f.SourceDocumentID,
		&f.FactType,
		&f.FactKey,
		&f.NumericValue,
		&f.TextValue,
		&f.PeriodStart,
		&f.PeriodEnd,
		&f.Currency,
		&f.Confidence,
		&provenance,
		&f.OwnerType,
		&f.OwnerEntityID,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}

	if len(provenance) > 0 && string(provenance) != "null" {
		if err := json.Unmarshal(provenance, &f.Provenance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fact provenance: %w", err)
		}
	}

	return &f, nil
}

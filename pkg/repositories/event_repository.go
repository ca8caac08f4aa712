package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// EventRepository provides access to the append-only diagnostic event log.
type EventRepository interface {
	Append(ctx context.Context, event *models.SystemEvent) error
	GetByDeal(ctx context.Context, dealID uuid.UUID, limit int) ([]*models.SystemEvent, error)
}

type eventRepository struct{}

// NewEventRepository creates a new EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepository{}
}

var _ EventRepository = (*eventRepository)(nil)

func (r *eventRepository) Append(ctx context.Context, event *models.SystemEvent) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if event.Severity == "" {
		event.Severity = "info"
	}

	var details []byte
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	query := `
		INSERT INTO buddy_system_events (tenant_id, deal_id, kind, severity, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		event.TenantID,
		event.DealID,
		event.Kind,
		event.Severity,
		event.Message,
		details,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append system event: %w", err)
	}

	return nil
}

func (r *eventRepository) GetByDeal(ctx context.Context, dealID uuid.UUID, limit int) ([]*models.SystemEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, deal_id, kind, severity, message, details, created_at
		FROM buddy_system_events
		WHERE deal_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query system events: %w", err)
	}
	defer rows.Close()

	var events []*models.SystemEvent
	for rows.Next() {
		var e models.SystemEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.DealID, &e.Kind, &e.Severity, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system event: %w", err)
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
			}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating system events: %w", err)
	}

	return events, nil
}

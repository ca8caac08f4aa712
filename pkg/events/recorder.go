// Package events emits diagnostic events to the append-only audit log.
package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// Suppressor rate-limits repeated events by signature.
type Suppressor interface {
	Allow(signature string) bool
}

// Recorder writes pipeline diagnostic events. Recording is fire-and-forget:
// a failed write degrades to a log line and never propagates to the caller,
// so event emission can never break the operation being observed.
type Recorder struct {
	repo       repositories.EventRepository
	suppressor Suppressor
	logger     *zap.Logger
}

// NewRecorder creates an event Recorder.
func NewRecorder(repo repositories.EventRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger.Named("events"),
	}
}

// WithSuppressor installs a rate limiter for repeated identical events.
func (r *Recorder) WithSuppressor(s Suppressor) *Recorder {
	r.suppressor = s
	return r
}

// Record appends an event, logging and swallowing any failure. Events
// suppressed by the rate limiter are dropped silently.
func (r *Recorder) Record(ctx context.Context, event *models.SystemEvent) {
	if r.suppressor != nil && !r.suppressor.Allow(eventSignature(event)) {
		return
	}
	if err := r.repo.Append(ctx, event); err != nil {
		r.logger.Warn("Failed to record system event",
			zap.String("kind", string(event.Kind)),
			zap.String("tenant_id", event.TenantID.String()),
			zap.Error(err))
	}
}

// eventSignature keys suppression. Two events with the same kind, tenant and
// deal inside one window are considered duplicates.
func eventSignature(event *models.SystemEvent) string {
	sig := string(event.Kind) + "|" + event.TenantID.String()
	if event.DealID != nil {
		sig += "|" + event.DealID.String()
	}
	return sig
}

// RecordKind is a convenience for events with no extra details.
func (r *Recorder) RecordKind(ctx context.Context, tenantID uuid.UUID, dealID *uuid.UUID, kind models.EventKind, severity, message string) {
	r.Record(ctx, &models.SystemEvent{
		TenantID: tenantID,
		DealID:   dealID,
		Kind:     kind,
		Severity: severity,
		Message:  message,
	})
}

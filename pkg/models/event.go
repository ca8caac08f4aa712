package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes diagnostic/audit events emitted by the pipeline.
type EventKind string

const (
	EventInvalidSpreadTypes EventKind = "invalid_spread_types_skipped"
	EventTemplateMissing    EventKind = "template_missing"
	EventZeroRender         EventKind = "zero_spreads_rendered"
	EventAutoHealed         EventKind = "spread_auto_healed"
	EventJobOrphanReset     EventKind = "job_orphan_reset"
	EventDebounced          EventKind = "enqueue_debounced"
	EventScanCacheHit       EventKind = "virus_scan_cache_hit"
	EventOCRReused          EventKind = "ocr_text_reused"
	EventLowConfidence      EventKind = "low_confidence_classification"
)

// SystemEvent is one entry in the write-only audit log. The pipeline emits
// these fire-and-forget; a failed write degrades to a log line and never
// affects the emitting operation.
type SystemEvent struct {
	ID       uuid.UUID  `json:"id"`
	TenantID uuid.UUID  `json:"tenant_id"`
	DealID   *uuid.UUID `json:"deal_id,omitempty"`

	Kind     EventKind      `json:"kind"`
	Severity string         `json:"severity"` // info, warning, critical
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

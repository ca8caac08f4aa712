package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle of a spread generation job.
// At most one active (queued or running) job exists per (deal, tenant);
// concurrent enqueues merge their requested-type sets into the existing job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusDebounced records an orchestration request that arrived while
	// another run for the same deal was still inside the debounce window.
	// It never performs work.
	JobStatusDebounced JobStatus = "debounced"
)

// ValidJobStatuses contains all valid status values.
var ValidJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusRunning,
	JobStatusSucceeded,
	JobStatusFailed,
	JobStatusDebounced,
}

// IsValidJobStatus checks if the given status is valid.
func IsValidJobStatus(s JobStatus) bool {
	for _, v := range ValidJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsActive returns true for statuses that block a new job for the same deal.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// IsTerminal returns true if the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusDebounced
}

// Job failure diagnostic codes.
const (
	// JobFailureZeroRender marks a job that attempted at least one spread type
	// and rendered none successfully. A quiet zero-output run is a failure,
	// never a success.
	JobFailureZeroRender = "ZERO_RENDER"
	// JobFailureOrphaned marks a job whose lease expired and which exceeded
	// retry limits.
	JobFailureOrphaned = "ORPHANED"
)

// SpreadJob is a unit of enqueued render work for a deal, possibly covering
// multiple spread types.
type SpreadJob struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	DealID   uuid.UUID `json:"deal_id"`

	Status         JobStatus    `json:"status"`
	RequestedTypes []SpreadType `json:"requested_types"`

	// ClaimedBy is the run ID of the worker that holds the lease.
	ClaimedBy      *uuid.UUID `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	AttemptedCount int     `json:"attempted_count"`
	RenderedCount  int     `json:"rendered_count"`
	FailureCode    *string `json:"failure_code,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// HasType returns true if the job already covers the given spread type.
func (j *SpreadJob) HasType(t SpreadType) bool {
	for _, v := range j.RequestedTypes {
		if v == t {
			return true
		}
	}
	return false
}

// MergeTypes unions the given types into the job's requested set, preserving
// existing order and deduplicating. Returns true if anything was added.
func (j *SpreadJob) MergeTypes(types []SpreadType) bool {
	added := false
	for _, t := range types {
		if !j.HasType(t) {
			j.RequestedTypes = append(j.RequestedTypes, t)
			added = true
		}
	}
	return added
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// SpreadType identifies a financial report rendered from the fact store.
type SpreadType string

const (
	SpreadTypeT12            SpreadType = "T12"
	SpreadTypeRentRoll       SpreadType = "RENT_ROLL"
	SpreadTypeBalanceSheet   SpreadType = "BALANCE_SHEET"
	SpreadTypeGlobalCashFlow SpreadType = "GLOBAL_CASH_FLOW"
	SpreadTypePersonalIncome SpreadType = "PERSONAL_INCOME"
	SpreadTypePFS            SpreadType = "PFS"
)

// AllSpreadTypes lists every renderable spread type.
var AllSpreadTypes = []SpreadType{
	SpreadTypeT12,
	SpreadTypeRentRoll,
	SpreadTypeBalanceSheet,
	SpreadTypeGlobalCashFlow,
	SpreadTypePersonalIncome,
	SpreadTypePFS,
}

// String returns the string representation of a SpreadType.
func (t SpreadType) String() string {
	return string(t)
}

// IsValid returns true if the type is a known spread type.
func (t SpreadType) IsValid() bool {
	for _, v := range AllSpreadTypes {
		if v == t {
			return true
		}
	}
	return false
}

// SpreadStatus represents the render status of a spread row.
// State machine:
//
//	queued → generating → {ready | error}
//
// A generating row may be reclaimed by a retrying worker that owns the same
// logical run; the observer may force generating → error after the auto-heal
// threshold.
type SpreadStatus string

const (
	SpreadStatusQueued     SpreadStatus = "queued"
	SpreadStatusGenerating SpreadStatus = "generating"
	SpreadStatusReady      SpreadStatus = "ready"
	SpreadStatusError      SpreadStatus = "error"
)

// ValidSpreadStatuses contains all valid status values.
var ValidSpreadStatuses = []SpreadStatus{
	SpreadStatusQueued,
	SpreadStatusGenerating,
	SpreadStatusReady,
	SpreadStatusError,
}

// IsValidSpreadStatus checks if the given status is valid.
func IsValidSpreadStatus(s SpreadStatus) bool {
	for _, v := range ValidSpreadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s SpreadStatus) IsTerminal() bool {
	return s == SpreadStatusReady || s == SpreadStatusError
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s SpreadStatus) CanTransitionTo(target SpreadStatus) bool {
	switch s {
	case SpreadStatusQueued:
		return target == SpreadStatusGenerating || target == SpreadStatusError
	case SpreadStatusGenerating:
		return target == SpreadStatusReady || target == SpreadStatusError
	case SpreadStatusReady, SpreadStatusError:
		return false // Terminal states; superseded by a new version, never mutated
	default:
		return false
	}
}

// FactRef is a cell-level pointer back to the facts that produced a value.
type FactRef struct {
	FactType   string     `json:"fact_type"`
	FactKey    string     `json:"fact_key"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
}

// SpreadCell is a single rendered cell. Number and Text are both nil for an
// unknown value; a known-to-be-zero value carries Number pointing at zero.
// The distinction is load-bearing for occupancy and WALT math.
type SpreadCell struct {
	Number  *float64   `json:"number,omitempty"`
	Text    *string    `json:"text,omitempty"`
	AsOf    *time.Time `json:"as_of,omitempty"`
	Sources []FactRef  `json:"sources,omitempty"`
}

// IsEmpty returns true when the cell carries no value.
func (c SpreadCell) IsEmpty() bool {
	return c.Number == nil && c.Text == nil
}

// SpreadColumn defines one column of a rendered spread. Column keys and order
// are part of each template's contract.
type SpreadColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// SpreadRow is one rendered row, keyed by column key.
type SpreadRow struct {
	Cells map[string]SpreadCell `json:"cells"`
}

// SpreadContent is the rendered structured table for one spread.
type SpreadContent struct {
	Columns []SpreadColumn        `json:"columns"`
	Rows    []SpreadRow           `json:"rows"`
	Totals  map[string]SpreadCell `json:"totals,omitempty"`
}

// RenderedSpread is one row per (deal, tenant, type, version, owner scope,
// owner entity). The composite uniqueness is enforced by the database so that
// concurrent renders converge to one logical row via upsert.
type RenderedSpread struct {
	ID            uuid.UUID    `json:"id"`
	TenantID      uuid.UUID    `json:"tenant_id"`
	DealID        uuid.UUID    `json:"deal_id"`
	SpreadType    SpreadType   `json:"spread_type"`
	SpreadVersion int          `json:"spread_version"`
	OwnerType     OwnerScope   `json:"owner_type"`
	OwnerEntityID *uuid.UUID   `json:"owner_entity_id,omitempty"`
	Status        SpreadStatus `json:"status"`

	Content      *SpreadContent `json:"content,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`

	// LastRunID identifies the orchestration run that last claimed this row.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

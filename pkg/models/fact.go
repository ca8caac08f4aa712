package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// FactSourceType represents how a financial fact came into existence.
type FactSourceType string

const (
	// FactSourceStructural means the fact came from structured deal data
	// (pricing terms, loan structure) rather than a document.
	FactSourceStructural FactSourceType = "STRUCTURAL"
	// FactSourceDocAI means the fact was extracted from a document by an oracle.
	FactSourceDocAI FactSourceType = "DOC_AI"
	// FactSourceManual means a banker entered or corrected the fact.
	FactSourceManual FactSourceType = "MANUAL"
)

// IsValid returns true if the source type is known.
func (s FactSourceType) IsValid() bool {
	switch s {
	case FactSourceStructural, FactSourceDocAI, FactSourceManual:
		return true
	default:
		return false
	}
}

// OwnerScope identifies whose financials a fact (or spread) describes.
type OwnerScope string

const (
	OwnerScopeDeal     OwnerScope = "DEAL"
	OwnerScopePersonal OwnerScope = "PERSONAL"
	OwnerScopeGlobal   OwnerScope = "GLOBAL"
)

// IsValid returns true if the scope is known.
func (s OwnerScope) IsValid() bool {
	switch s {
	case OwnerScopeDeal, OwnerScopePersonal, OwnerScopeGlobal:
		return true
	default:
		return false
	}
}

// FactProvenance records where a fact came from, for audit drill-down.
// For derived facts, Calculation carries the human-readable formula
// (e.g. "NOI 180000 / ADS 120000").
type FactProvenance struct {
	SourceType  FactSourceType `json:"source_type"`
	SourceRef   string         `json:"source_ref,omitempty"`
	AsOf        *time.Time     `json:"as_of,omitempty"`
	Calculation string         `json:"calculation,omitempty"`
}

// FinancialFact is the atomic unit of extracted or derived knowledge.
// Facts are append-mostly: later facts with the same (deal, fact_key) and a
// more recent period or creation time supersede earlier ones for "latest"
// lookups, but rows are never updated in place except by idempotent upsert
// writers keyed on an explicit composite key.
type FinancialFact struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	DealID   uuid.UUID `json:"deal_id"`

	// SourceDocumentID is nil for system-derived facts.
	SourceDocumentID *uuid.UUID `json:"source_document_id,omitempty"`

	FactType string `json:"fact_type"`
	FactKey  string `json:"fact_key"`

	NumericValue *float64 `json:"numeric_value,omitempty"`
	TextValue    *string  `json:"text_value,omitempty"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Currency    string     `json:"currency"`

	Confidence float64        `json:"confidence"`
	Provenance FactProvenance `json:"provenance"`

	OwnerType     OwnerScope `json:"owner_type"`
	OwnerEntityID *uuid.UUID `json:"owner_entity_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Normalize enforces the fact invariants: confidence clamped to [0,1] and
// numeric values either finite or nil, never NaN/Inf.
func (f *FinancialFact) Normalize() {
	if f.Confidence < 0 {
		f.Confidence = 0
	}
	if f.Confidence > 1 {
		f.Confidence = 1
	}
	if f.NumericValue != nil {
		if math.IsNaN(*f.NumericValue) || math.IsInf(*f.NumericValue, 0) {
			f.NumericValue = nil
		}
	}
	if f.OwnerType == "" {
		f.OwnerType = OwnerScopeDeal
	}
	if f.Currency == "" {
		f.Currency = "USD"
	}
}

// Fact type categories used by the spread templates and the debt aggregator.
const (
	FactTypeOperating    = "OPERATING"     // T12 / income statement line items
	FactTypeRentRoll     = "RENT_ROLL"     // per-unit rent roll attributes
	FactTypeBalanceSheet = "BALANCE_SHEET" // assets/liabilities/equity line items
	FactTypePersonal     = "PERSONAL"      // personal income / PFS line items
	FactTypeDebt         = "DEBT"          // existing and proposed debt schedule
	FactTypeDerived      = "DERIVED"       // engine-computed ratios and totals
)

// Well-known fact keys consumed by the debt-service aggregator.
const (
	FactKeyProposedAnnualDebtService = "PROPOSED_ANNUAL_DEBT_SERVICE"
	FactKeyNetOperatingIncome        = "NET_OPERATING_INCOME"
	FactKeyGlobalCashFlow            = "GLOBAL_CASH_FLOW"
	FactKeyTotalAnnualDebtService    = "TOTAL_ANNUAL_DEBT_SERVICE"
	FactKeyDSCR                      = "DSCR"
	FactKeyGlobalDSCR                = "GCF_DSCR"
)

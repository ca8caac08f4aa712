// Package classify contains the pure document-type routing and confidence
// calibration logic. Nothing here performs I/O; every function is
// deterministic over its inputs.
package classify

import (
	"regexp"
	"strings"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Routing is the resolved canonical type and extraction tier for a raw
// classifier label.
type Routing struct {
	CanonicalType models.CanonicalDocType
	RoutingClass  models.RoutingClass
}

var separatorPattern = regexp.MustCompile(`[\s\-/.]+`)

// NormalizeLabel uppercases a raw classifier label and collapses whitespace,
// hyphens, slashes and dots into single underscores.
func NormalizeLabel(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = separatorPattern.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// aliasGroups maps normalized classifier labels to canonical types. Labels
// not covered here resolve to OTHER. Keys must already be in normalized form.
var aliasGroups = map[string]models.CanonicalDocType{
	// Business tax returns
	"BUSINESS_TAX_RETURN":  models.DocTypeBusinessTaxReturn,
	"CORPORATE_TAX_RETURN": models.DocTypeBusinessTaxReturn,
	"IRS_BUSINESS":         models.DocTypeBusinessTaxReturn,
	"IRS_1120":             models.DocTypeBusinessTaxReturn,
	"IRS_1120S":            models.DocTypeBusinessTaxReturn,
	"IRS_1120_S":           models.DocTypeBusinessTaxReturn,
	"IRS_1065":             models.DocTypeBusinessTaxReturn,
	"1120":                 models.DocTypeBusinessTaxReturn,
	"1120S":                models.DocTypeBusinessTaxReturn,
	"1065":                 models.DocTypeBusinessTaxReturn,

	// Personal tax returns
	"PERSONAL_TAX_RETURN": models.DocTypePersonalTaxReturn,
	"IRS_PERSONAL":        models.DocTypePersonalTaxReturn,
	"IRS_1040":            models.DocTypePersonalTaxReturn,
	"1040":                models.DocTypePersonalTaxReturn,

	// Personal financial statements
	"PFS":                          models.DocTypePFS,
	"PERSONAL_FINANCIAL_STATEMENT": models.DocTypePFS,
	"SBA_413":                      models.DocTypePFS,
	"SBA_FORM_413":                 models.DocTypePFS,

	// Operating statements
	"T12":               models.DocTypeT12,
	"T_12":              models.DocTypeT12,
	"TRAILING_12":       models.DocTypeT12,
	"TRAILING_TWELVE":   models.DocTypeT12,
	"RENT_ROLL":         models.DocTypeRentRoll,
	"RENTROLL":          models.DocTypeRentRoll,
	"BALANCE_SHEET":     models.DocTypeBalanceSheet,
	"INCOME_STATEMENT":  models.DocTypeIncomeStatement,
	"PROFIT_AND_LOSS":   models.DocTypeIncomeStatement,
	"P_AND_L":           models.DocTypeIncomeStatement,
	"PNL":               models.DocTypeIncomeStatement,
	"BANK_STATEMENT":    models.DocTypeBankStatement,
	"BANK_STATEMENTS":   models.DocTypeBankStatement,
	"DEBT_SCHEDULE":     models.DocTypeDebtSchedule,
	"EXISTING_DEBT":     models.DocTypeDebtSchedule,
	"BUSINESS_DEBT_SCHEDULE": models.DocTypeDebtSchedule,

	// Income verification
	"W2":     models.DocTypeW2,
	"W_2":    models.DocTypeW2,
	"IRS_W2": models.DocTypeW2,

	// Collateral and closing documents
	"LEASE":                       models.DocTypeLeaseAgreement,
	"LEASE_AGREEMENT":             models.DocTypeLeaseAgreement,
	"PURCHASE_AGREEMENT":          models.DocTypePurchaseAgreement,
	"PURCHASE_AND_SALE_AGREEMENT": models.DocTypePurchaseAgreement,
	"PSA":                         models.DocTypePurchaseAgreement,
	"APPRAISAL":                   models.DocTypeAppraisal,
	"APPRAISAL_REPORT":            models.DocTypeAppraisal,
	"INSURANCE":                   models.DocTypeInsurance,
	"INSURANCE_CERTIFICATE":       models.DocTypeInsurance,

	// Entity formation
	"ENTITY_DOCS":              models.DocTypeEntityDocs,
	"ARTICLES_OF_ORGANIZATION": models.DocTypeEntityDocs,
	"ARTICLES_OF_INCORPORATION": models.DocTypeEntityDocs,
	"OPERATING_AGREEMENT":      models.DocTypeEntityDocs,
	"BYLAWS":                   models.DocTypeEntityDocs,

	// Identity
	"DRIVERS_LICENSE": models.DocTypeDriversLicense,
	"DRIVER_LICENSE":  models.DocTypeDriversLicense,
	"DL":              models.DocTypeDriversLicense,
	"ID_CARD":         models.DocTypeDriversLicense,
}

// routingTable is the LOCKED mapping from every canonical type to exactly one
// routing class. This is a closed table: extending it requires credit-policy
// sign-off, not a heuristic change. Totality over AllCanonicalDocTypes is
// asserted by tests.
var routingTable = map[models.CanonicalDocType]models.RoutingClass{
	// Underwriting-critical: high-fidelity structured extraction.
	models.DocTypeBusinessTaxReturn: models.RoutingHighFidelity,
	models.DocTypePersonalTaxReturn: models.RoutingHighFidelity,
	models.DocTypePFS:               models.RoutingHighFidelity,
	models.DocTypeDebtSchedule:      models.RoutingHighFidelity,
	models.DocTypeW2:                models.RoutingHighFidelity,

	// Multi-page financial statements: tabular-aware extraction.
	models.DocTypeT12:             models.RoutingTabular,
	models.DocTypeRentRoll:        models.RoutingTabular,
	models.DocTypeBalanceSheet:    models.RoutingTabular,
	models.DocTypeIncomeStatement: models.RoutingTabular,
	models.DocTypeBankStatement:   models.RoutingTabular,

	// Everything else: standard single-pass extraction.
	models.DocTypeLeaseAgreement:    models.RoutingStandard,
	models.DocTypePurchaseAgreement: models.RoutingStandard,
	models.DocTypeAppraisal:         models.RoutingStandard,
	models.DocTypeInsurance:         models.RoutingStandard,
	models.DocTypeEntityDocs:        models.RoutingStandard,
	models.DocTypeDriversLicense:    models.RoutingStandard,
	models.DocTypeOther:             models.RoutingStandard,
}

// ResolveCanonicalType normalizes a raw classifier label to a canonical type.
// Unmatched input resolves to OTHER, never an error.
func ResolveCanonicalType(raw string) models.CanonicalDocType {
	if t, ok := aliasGroups[NormalizeLabel(raw)]; ok {
		return t
	}
	return models.DocTypeOther
}

// RoutingClassFor returns the routing class for a canonical type. The table
// is total; an unknown type falls back to the standard class.
func RoutingClassFor(t models.CanonicalDocType) models.RoutingClass {
	if c, ok := routingTable[t]; ok {
		return c
	}
	return models.RoutingStandard
}

// ResolveRouting maps a raw classifier label to its canonical type and
// extraction routing class.
func ResolveRouting(raw string) Routing {
	canonical := ResolveCanonicalType(raw)
	return Routing{
		CanonicalType: canonical,
		RoutingClass:  RoutingClassFor(canonical),
	}
}

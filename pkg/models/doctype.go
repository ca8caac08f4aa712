package models

// CanonicalDocType is the normalized, finite classification of a document,
// independent of whatever string label an upstream classifier produced.
type CanonicalDocType string

const (
	DocTypeBusinessTaxReturn CanonicalDocType = "BUSINESS_TAX_RETURN"
	DocTypePersonalTaxReturn CanonicalDocType = "PERSONAL_TAX_RETURN"
	DocTypePFS               CanonicalDocType = "PFS"
	DocTypeT12               CanonicalDocType = "T12"
	DocTypeRentRoll          CanonicalDocType = "RENT_ROLL"
	DocTypeBalanceSheet      CanonicalDocType = "BALANCE_SHEET"
	DocTypeIncomeStatement   CanonicalDocType = "INCOME_STATEMENT"
	DocTypeBankStatement     CanonicalDocType = "BANK_STATEMENT"
	DocTypeDebtSchedule      CanonicalDocType = "DEBT_SCHEDULE"
	DocTypeW2                CanonicalDocType = "W2"
	DocTypeLeaseAgreement    CanonicalDocType = "LEASE_AGREEMENT"
	DocTypePurchaseAgreement CanonicalDocType = "PURCHASE_AGREEMENT"
	DocTypeAppraisal         CanonicalDocType = "APPRAISAL"
	DocTypeInsurance         CanonicalDocType = "INSURANCE"
	DocTypeEntityDocs        CanonicalDocType = "ENTITY_DOCS"
	DocTypeDriversLicense    CanonicalDocType = "DRIVERS_LICENSE"
	DocTypeOther             CanonicalDocType = "OTHER"
)

// AllCanonicalDocTypes lists every canonical type. Routing totality is asserted
// against this slice.
var AllCanonicalDocTypes = []CanonicalDocType{
	DocTypeBusinessTaxReturn,
	DocTypePersonalTaxReturn,
	DocTypePFS,
	DocTypeT12,
	DocTypeRentRoll,
	DocTypeBalanceSheet,
	DocTypeIncomeStatement,
	DocTypeBankStatement,
	DocTypeDebtSchedule,
	DocTypeW2,
	DocTypeLeaseAgreement,
	DocTypePurchaseAgreement,
	DocTypeAppraisal,
	DocTypeInsurance,
	DocTypeEntityDocs,
	DocTypeDriversLicense,
	DocTypeOther,
}

// String returns the string representation of a CanonicalDocType.
func (t CanonicalDocType) String() string {
	return string(t)
}

// IsValid returns true if the type is a known canonical type.
func (t CanonicalDocType) IsValid() bool {
	for _, v := range AllCanonicalDocTypes {
		if v == t {
			return true
		}
	}
	return false
}

// RoutingClass is the extraction engine tier a canonical type is sent to.
type RoutingClass string

const (
	// RoutingHighFidelity is structured extraction for underwriting-critical types.
	RoutingHighFidelity RoutingClass = "HIGH_FIDELITY"
	// RoutingTabular is tabular-aware extraction for multi-page financial statements.
	RoutingTabular RoutingClass = "TABULAR"
	// RoutingStandard is single-pass extraction for everything else.
	RoutingStandard RoutingClass = "STANDARD"
)

// String returns the string representation of a RoutingClass.
func (c RoutingClass) String() string {
	return string(c)
}

// IsValid returns true if the class is a known routing class.
func (c RoutingClass) IsValid() bool {
	switch c {
	case RoutingHighFidelity, RoutingTabular, RoutingStandard:
		return true
	default:
		return false
	}
}

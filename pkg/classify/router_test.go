package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"irs 1120", "IRS_1120"},
		{"  Rent-Roll  ", "RENT_ROLL"},
		{"personal financial statement", "PERSONAL_FINANCIAL_STATEMENT"},
		{"T-12", "T_12"},
		{"balance--sheet", "BALANCE_SHEET"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLabel(tt.input))
		})
	}
}

func TestResolveRouting_AliasEquivalence(t *testing.T) {
	// Every business tax return alias must land on the same canonical type
	// and the high-fidelity tier.
	aliases := []string{"IRS_1120", "IRS_BUSINESS", "IRS_1120S", "IRS_1065", "irs 1120-s"}
	for _, alias := range aliases {
		r := ResolveRouting(alias)
		assert.Equal(t, models.DocTypeBusinessTaxReturn, r.CanonicalType, "alias %q", alias)
		assert.Equal(t, models.RoutingHighFidelity, r.RoutingClass, "alias %q", alias)
	}

	for _, alias := range []string{"PFS", "PERSONAL_FINANCIAL_STATEMENT", "SBA_413"} {
		r := ResolveRouting(alias)
		assert.Equal(t, models.DocTypePFS, r.CanonicalType, "alias %q", alias)
	}
}

func TestResolveRouting_UnknownFallsBackToOther(t *testing.T) {
	for _, raw := range []string{"", "NAPKIN_SKETCH", "???", "random text"} {
		r := ResolveRouting(raw)
		assert.Equal(t, models.DocTypeOther, r.CanonicalType, "raw %q", raw)
		assert.Equal(t, models.RoutingStandard, r.RoutingClass, "raw %q", raw)
	}
}

func TestRoutingTotality(t *testing.T) {
	// Every canonical type maps to exactly one of the three routing classes.
	for _, ct := range models.AllCanonicalDocTypes {
		class := RoutingClassFor(ct)
		assert.True(t, class.IsValid(), "canonical type %s has invalid routing class %q", ct, class)
	}
}

func TestRoutingTableLocked(t *testing.T) {
	// The routing assignments are a closed, signed-off table. If this test
	// fails, the change needs explicit review, not a silent edit.
	expected := map[models.CanonicalDocType]models.RoutingClass{
		models.DocTypeBusinessTaxReturn: models.RoutingHighFidelity,
		models.DocTypePersonalTaxReturn: models.RoutingHighFidelity,
		models.DocTypePFS:               models.RoutingHighFidelity,
		models.DocTypeDebtSchedule:      models.RoutingHighFidelity,
		models.DocTypeW2:                models.RoutingHighFidelity,
		models.DocTypeT12:               models.RoutingTabular,
		models.DocTypeRentRoll:          models.RoutingTabular,
		models.DocTypeBalanceSheet:      models.RoutingTabular,
		models.DocTypeIncomeStatement:   models.RoutingTabular,
		models.DocTypeBankStatement:     models.RoutingTabular,
		models.DocTypeLeaseAgreement:    models.RoutingStandard,
		models.DocTypePurchaseAgreement: models.RoutingStandard,
		models.DocTypeAppraisal:         models.RoutingStandard,
		models.DocTypeInsurance:         models.RoutingStandard,
		models.DocTypeEntityDocs:        models.RoutingStandard,
		models.DocTypeDriversLicense:    models.RoutingStandard,
		models.DocTypeOther:             models.RoutingStandard,
	}

	assert.Len(t, expected, len(models.AllCanonicalDocTypes))
	for ct, class := range expected {
		assert.Equal(t, class, RoutingClassFor(ct), "canonical type %s", ct)
	}
}

func TestAliasGroupsAreNormalized(t *testing.T) {
	// Alias keys must be stored in normalized form or lookups will miss them.
	for alias := range aliasGroups {
		assert.Equal(t, NormalizeLabel(alias), alias)
	}
}

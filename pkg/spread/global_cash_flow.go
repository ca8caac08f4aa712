package spread

import (
	"strings"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

var globalCashFlowColumns = []models.SpreadColumn{
	{Key: "SOURCE", Label: "Cash Flow Source"},
	{Key: "AMOUNT", Label: "Annual Amount"},
}

// GlobalCashFlowTemplate combines business operating cash flow with guarantor
// personal income and the debt-service facts derived by the aggregator.
type GlobalCashFlowTemplate struct{}

// Type implements Template.
func (t *GlobalCashFlowTemplate) Type() models.SpreadType {
	return models.SpreadTypeGlobalCashFlow
}

// Render implements Template.
func (t *GlobalCashFlowTemplate) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	derived := latestForType(facts, models.FactTypeDerived)
	personal := latestForType(facts, models.FactTypePersonal)

	var rows []models.SpreadRow
	var gcfSum float64
	var gcfSeen bool
	var gcfRefs []models.FactRef

	appendSource := func(label string, f models.FinancialFact) {
		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		row.Cells["SOURCE"] = models.SpreadCell{Text: strPtr(label)}
		row.Cells["AMOUNT"] = factCell(f)
		rows = append(rows, row)
		if f.NumericValue != nil {
			gcfSum += *f.NumericValue
			gcfSeen = true
			gcfRefs = append(gcfRefs, refOf(f))
		}
	}

	if noi, ok := derived[models.FactKeyNetOperatingIncome]; ok {
		appendSource("Business Net Operating Income", noi)
	}
	for _, key := range sortedKeys(personal) {
		section, label, ok := strings.Cut(key, "/")
		if !ok || section != "INCOME" {
			continue
		}
		appendSource("Personal: "+label, personal[key])
	}

	totals := make(map[string]models.SpreadCell)
	if gcfSeen {
		totals["GLOBAL_CASH_FLOW"] = numberCell(gcfSum, nil, gcfRefs...)
	}

	// Surface the aggregator's results directly; the templates never
	// recompute ratios the aggregator already owns.
	for totalKey, factKey := range map[string]string{
		"TOTAL_ANNUAL_DEBT_SERVICE": models.FactKeyTotalAnnualDebtService,
		"DSCR":                      models.FactKeyDSCR,
		"GCF_DSCR":                  models.FactKeyGlobalDSCR,
	} {
		if f, ok := derived[factKey]; ok && f.NumericValue != nil {
			totals[totalKey] = factCell(f)
		}
	}

	return &models.SpreadContent{
		Columns: globalCashFlowColumns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

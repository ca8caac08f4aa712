package spread

import (
	"sort"
	"strings"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Balance sheet fact keys are "<section>/<line item>" where section is ASSET,
// LIABILITY or EQUITY.
const (
	balanceSectionAsset     = "ASSET"
	balanceSectionLiability = "LIABILITY"
	balanceSectionEquity    = "EQUITY"
)

var balanceSheetColumns = []models.SpreadColumn{
	{Key: "SECTION", Label: "Section"},
	{Key: "LINE_ITEM", Label: "Line Item"},
	{Key: "AMOUNT", Label: "Amount"},
}

// BalanceSheetTemplate renders the most recent balance sheet position with
// section totals and the accounting-identity gap.
type BalanceSheetTemplate struct{}

// Type implements Template.
func (t *BalanceSheetTemplate) Type() models.SpreadType {
	return models.SpreadTypeBalanceSheet
}

// Render implements Template.
func (t *BalanceSheetTemplate) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	latest := latestForType(facts, models.FactTypeBalanceSheet)

	lineKeys := sortedKeys(latest)
	sort.SliceStable(lineKeys, func(i, j int) bool {
		si, sj := balanceSectionRank(lineKeys[i]), balanceSectionRank(lineKeys[j])
		if si != sj {
			return si < sj
		}
		return lineKeys[i] < lineKeys[j]
	})

	var rows []models.SpreadRow
	sums := make(map[string]*float64)
	refs := make(map[string][]models.FactRef)

	for _, lineKey := range lineKeys {
		f := latest[lineKey]
		section, label, ok := strings.Cut(lineKey, "/")
		if !ok {
			continue
		}

		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		row.Cells["SECTION"] = models.SpreadCell{Text: strPtr(section)}
		row.Cells["LINE_ITEM"] = models.SpreadCell{Text: strPtr(label)}
		row.Cells["AMOUNT"] = factCell(f)
		rows = append(rows, row)

		if f.NumericValue != nil {
			sums[section] = addTo(sums[section], *f.NumericValue)
			refs[section] = append(refs[section], refOf(f))
		}
	}

	totals := make(map[string]models.SpreadCell)
	if v := sums[balanceSectionAsset]; v != nil {
		totals["TOTAL_ASSETS"] = numberCell(*v, nil, refs[balanceSectionAsset]...)
	}
	if v := sums[balanceSectionLiability]; v != nil {
		totals["TOTAL_LIABILITIES"] = numberCell(*v, nil, refs[balanceSectionLiability]...)
	}
	if v := sums[balanceSectionEquity]; v != nil {
		totals["TOTAL_EQUITY"] = numberCell(*v, nil, refs[balanceSectionEquity]...)
	}

	// Accounting identity check: assets - liabilities - equity. Only
	// computable when every section is present.
	if a, l, e := sums[balanceSectionAsset], sums[balanceSectionLiability], sums[balanceSectionEquity]; a != nil && l != nil && e != nil {
		var allRefs []models.FactRef
		for _, section := range []string{balanceSectionAsset, balanceSectionLiability, balanceSectionEquity} {
			allRefs = append(allRefs, refs[section]...)
		}
		totals["BALANCE_GAP"] = numberCell(*a-*l-*e, nil, allRefs...)
	}

	return &models.SpreadContent{
		Columns: balanceSheetColumns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

func balanceSectionRank(lineKey string) int {
	switch {
	case strings.HasPrefix(lineKey, balanceSectionAsset+"/"):
		return 0
	case strings.HasPrefix(lineKey, balanceSectionLiability+"/"):
		return 1
	case strings.HasPrefix(lineKey, balanceSectionEquity+"/"):
		return 2
	default:
		return 3
	}
}

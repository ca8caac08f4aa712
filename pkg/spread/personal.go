package spread

import (
	"fmt"
	"sort"
	"strings"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Personal fact keys are "<section>/<line item>" where section is INCOME,
// ASSET or LIABILITY. Income facts carry the tax year as the period end.
const (
	personalSectionIncome    = "INCOME"
	personalSectionAsset     = "ASSET"
	personalSectionLiability = "LIABILITY"

	// personalIncomeMaxYears caps the year columns to the most recent three
	// filings.
	personalIncomeMaxYears = 3
)

// PersonalIncomeTemplate renders guarantor income by year.
type PersonalIncomeTemplate struct{}

// Type implements Template.
func (t *PersonalIncomeTemplate) Type() models.SpreadType {
	return models.SpreadTypePersonalIncome
}

// Render implements Template.
func (t *PersonalIncomeTemplate) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	personal := filterType(facts, models.FactTypePersonal)

	// Latest fact per (line item, year).
	type lineYear struct {
		key  string
		year int
	}
	latest := make(map[lineYear]models.FinancialFact)
	years := make(map[int]bool)
	for _, f := range personal {
		if !strings.HasPrefix(f.FactKey, personalSectionIncome+"/") {
			continue
		}
		if f.PeriodEnd == nil || f.NumericValue == nil {
			continue
		}
		ly := lineYear{key: f.FactKey, year: f.PeriodEnd.UTC().Year()}
		cur, ok := latest[ly]
		if !ok || f.CreatedAt.After(cur.CreatedAt) {
			latest[ly] = f
			years[ly.year] = true
		}
	}

	orderedYears := make([]int, 0, len(years))
	for y := range years {
		orderedYears = append(orderedYears, y)
	}
	sort.Ints(orderedYears)
	if len(orderedYears) > personalIncomeMaxYears {
		orderedYears = orderedYears[len(orderedYears)-personalIncomeMaxYears:]
	}
	inWindow := make(map[int]bool, len(orderedYears))
	for _, y := range orderedYears {
		inWindow[y] = true
	}

	columns := []models.SpreadColumn{{Key: "LINE_ITEM", Label: "Income Source"}}
	for _, y := range orderedYears {
		columns = append(columns, models.SpreadColumn{Key: fmt.Sprintf("%d", y), Label: fmt.Sprintf("%d", y)})
	}

	byLine := make(map[string]map[int]models.FinancialFact)
	for ly, f := range latest {
		if !inWindow[ly.year] {
			continue
		}
		if byLine[ly.key] == nil {
			byLine[ly.key] = make(map[int]models.FinancialFact)
		}
		byLine[ly.key][ly.year] = f
	}

	var rows []models.SpreadRow
	yearTotals := make(map[int]float64)
	yearRefs := make(map[int][]models.FactRef)

	for _, lineKey := range sortedKeys(byLine) {
		_, label, _ := strings.Cut(lineKey, "/")
		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		row.Cells["LINE_ITEM"] = models.SpreadCell{Text: strPtr(label)}
		for _, y := range orderedYears {
			if f, ok := byLine[lineKey][y]; ok {
				row.Cells[fmt.Sprintf("%d", y)] = factCell(f)
				yearTotals[y] += *f.NumericValue
				yearRefs[y] = append(yearRefs[y], refOf(f))
			}
		}
		rows = append(rows, row)
	}

	totals := make(map[string]models.SpreadCell)
	for _, y := range orderedYears {
		if refs, ok := yearRefs[y]; ok {
			totals[fmt.Sprintf("TOTAL_%d", y)] = numberCell(yearTotals[y], nil, refs...)
		}
	}

	return &models.SpreadContent{
		Columns: columns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

var pfsColumns = []models.SpreadColumn{
	{Key: "SECTION", Label: "Section"},
	{Key: "LINE_ITEM", Label: "Line Item"},
	{Key: "AMOUNT", Label: "Amount"},
}

// PFSTemplate renders the personal financial statement position with net
// worth.
type PFSTemplate struct{}

// Type implements Template.
func (t *PFSTemplate) Type() models.SpreadType {
	return models.SpreadTypePFS
}

// Render implements Template.
func (t *PFSTemplate) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	latest := latestForType(facts, models.FactTypePersonal)

	lineKeys := make([]string, 0, len(latest))
	for _, k := range sortedKeys(latest) {
		if strings.HasPrefix(k, personalSectionAsset+"/") || strings.HasPrefix(k, personalSectionLiability+"/") {
			lineKeys = append(lineKeys, k)
		}
	}
	sort.SliceStable(lineKeys, func(i, j int) bool {
		ai := strings.HasPrefix(lineKeys[i], personalSectionAsset+"/")
		aj := strings.HasPrefix(lineKeys[j], personalSectionAsset+"/")
		if ai != aj {
			return ai
		}
		return lineKeys[i] < lineKeys[j]
	})

	var rows []models.SpreadRow
	var assets, liabilities *float64
	var assetRefs, liabilityRefs []models.FactRef

	for _, lineKey := range lineKeys {
		f := latest[lineKey]
		section, label, _ := strings.Cut(lineKey, "/")

		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		row.Cells["SECTION"] = models.SpreadCell{Text: strPtr(section)}
		row.Cells["LINE_ITEM"] = models.SpreadCell{Text: strPtr(label)}
		row.Cells["AMOUNT"] = factCell(f)
		rows = append(rows, row)

		if f.NumericValue == nil {
			continue
		}
		switch section {
		case personalSectionAsset:
			assets = addTo(assets, *f.NumericValue)
			assetRefs = append(assetRefs, refOf(f))
		case personalSectionLiability:
			liabilities = addTo(liabilities, *f.NumericValue)
			liabilityRefs = append(liabilityRefs, refOf(f))
		}
	}

	totals := make(map[string]models.SpreadCell)
	if assets != nil {
		totals["TOTAL_ASSETS"] = numberCell(*assets, nil, assetRefs...)
	}
	if liabilities != nil {
		totals["TOTAL_LIABILITIES"] = numberCell(*liabilities, nil, liabilityRefs...)
	}
	if assets != nil && liabilities != nil {
		refs := append(append([]models.FactRef{}, assetRefs...), liabilityRefs...)
		totals["NET_WORTH"] = numberCell(*assets-*liabilities, nil, refs...)
	}

	return &models.SpreadContent{
		Columns: pfsColumns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

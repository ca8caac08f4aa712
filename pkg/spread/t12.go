package spread

import (
	"sort"
	"strings"
	"time"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Operating statement fact keys are "<section>/<line item>" where section is
// INCOME or EXPENSE, with one fact per line item per month.
const (
	operatingSectionIncome  = "INCOME"
	operatingSectionExpense = "EXPENSE"

	// t12TrailingMonths caps the column set to the trailing twelve.
	t12TrailingMonths = 12
)

// T12Template renders the trailing-twelve-month operating statement with one
// column per month and a summed TOTAL column.
type T12Template struct{}

// Type implements Template.
func (t *T12Template) Type() models.SpreadType {
	return models.SpreadTypeT12
}

// Render implements Template.
func (t *T12Template) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	operating := filterType(facts, models.FactTypeOperating)

	// Latest fact per (line item, period): a re-extraction of the same month
	// supersedes the earlier one by creation time.
	type lineMonth struct {
		key    string
		period time.Time
	}
	latest := make(map[lineMonth]models.FinancialFact)
	for _, f := range operating {
		if f.PeriodEnd == nil || f.NumericValue == nil {
			continue
		}
		lm := lineMonth{key: f.FactKey, period: f.PeriodEnd.UTC().Truncate(24 * time.Hour)}
		cur, ok := latest[lm]
		if !ok || f.CreatedAt.After(cur.CreatedAt) {
			latest[lm] = f
		}
	}

	periods := periodColumns(operating, t12TrailingMonths)
	inWindow := make(map[time.Time]bool, len(periods))
	for _, p := range periods {
		inWindow[p] = true
	}

	columns := []models.SpreadColumn{{Key: "LINE_ITEM", Label: "Line Item"}}
	for _, p := range periods {
		columns = append(columns, models.SpreadColumn{Key: periodKey(p), Label: p.Format("Jan 2006")})
	}
	columns = append(columns, models.SpreadColumn{Key: "TOTAL", Label: "Total"})

	// Group by line item key.
	byLine := make(map[string]map[time.Time]models.FinancialFact)
	for lm, f := range latest {
		if !inWindow[lm.period] {
			continue
		}
		if byLine[lm.key] == nil {
			byLine[lm.key] = make(map[time.Time]models.FinancialFact)
		}
		byLine[lm.key][lm.period] = f
	}

	// Income lines first, then expenses, alphabetical within each section.
	lineKeys := sortedKeys(byLine)
	sort.SliceStable(lineKeys, func(i, j int) bool {
		si, sj := sectionRank(lineKeys[i]), sectionRank(lineKeys[j])
		if si != sj {
			return si < sj
		}
		return lineKeys[i] < lineKeys[j]
	})

	var rows []models.SpreadRow
	var totalIncome, totalExpense float64
	var incomeSeen, expenseSeen bool
	var incomeRefs, expenseRefs []models.FactRef

	for _, lineKey := range lineKeys {
		months := byLine[lineKey]
		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		section, label, _ := strings.Cut(lineKey, "/")
		row.Cells["LINE_ITEM"] = models.SpreadCell{Text: strPtr(label)}

		var lineTotal float64
		var lineRefs []models.FactRef
		for _, p := range periods {
			f, ok := months[p]
			if !ok {
				continue
			}
			row.Cells[periodKey(p)] = factCell(f)
			lineTotal += *f.NumericValue
			lineRefs = append(lineRefs, refOf(f))
		}
		row.Cells["TOTAL"] = numberCell(lineTotal, nil, lineRefs...)
		rows = append(rows, row)

		switch section {
		case operatingSectionIncome:
			totalIncome += lineTotal
			incomeSeen = true
			incomeRefs = append(incomeRefs, lineRefs...)
		case operatingSectionExpense:
			totalExpense += lineTotal
			expenseSeen = true
			expenseRefs = append(expenseRefs, lineRefs...)
		}
	}

	totals := make(map[string]models.SpreadCell)
	if incomeSeen {
		totals["TOTAL_INCOME"] = numberCell(totalIncome, nil, incomeRefs...)
	}
	if expenseSeen {
		totals["TOTAL_EXPENSES"] = numberCell(totalExpense, nil, expenseRefs...)
	}
	if incomeSeen && expenseSeen {
		noiRefs := append(append([]models.FactRef{}, incomeRefs...), expenseRefs...)
		totals["NOI"] = numberCell(totalIncome-totalExpense, nil, noiRefs...)
	}

	return &models.SpreadContent{
		Columns: columns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

func sectionRank(lineKey string) int {
	switch {
	case strings.HasPrefix(lineKey, operatingSectionIncome+"/"):
		return 0
	case strings.HasPrefix(lineKey, operatingSectionExpense+"/"):
		return 1
	default:
		return 2
	}
}

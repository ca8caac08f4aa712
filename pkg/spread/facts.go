package spread

import (
	"sort"
	"strings"
	"time"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// filterType returns the facts of one fact type, preserving input order.
func filterType(facts []models.FinancialFact, factType string) []models.FinancialFact {
	var out []models.FinancialFact
	for _, f := range facts {
		if f.FactType == factType {
			out = append(out, f)
		}
	}
	return out
}

// supersedes reports whether a should replace b as the "latest" fact for a
// shared key. Tie-break: prefer later period end (a known period end beats an
// unknown one), then later creation time.
func supersedes(a, b models.FinancialFact) bool {
	switch {
	case a.PeriodEnd != nil && b.PeriodEnd == nil:
		return true
	case a.PeriodEnd == nil && b.PeriodEnd != nil:
		return false
	case a.PeriodEnd != nil && b.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd):
		return a.PeriodEnd.After(*b.PeriodEnd)
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

// latestByKey collapses duplicates, keeping the most recent applicable fact
// per (fact_type, fact_key). The result is independent of input order.
func latestByKey(facts []models.FinancialFact) map[string]models.FinancialFact {
	latest := make(map[string]models.FinancialFact)
	for _, f := range facts {
		k := f.FactType + "\x00" + f.FactKey
		cur, ok := latest[k]
		if !ok || supersedes(f, cur) {
			latest[k] = f
		}
	}
	return latest
}

// latestForType returns the latest fact per fact_key for one fact type,
// keyed by fact_key.
func latestForType(facts []models.FinancialFact, factType string) map[string]models.FinancialFact {
	byKey := make(map[string]models.FinancialFact)
	for k, f := range latestByKey(filterType(facts, factType)) {
		_, factKey, _ := strings.Cut(k, "\x00")
		byKey[factKey] = f
	}
	return byKey
}

// refOf builds the provenance reference for a fact.
func refOf(f models.FinancialFact) models.FactRef {
	return models.FactRef{
		FactType:   f.FactType,
		FactKey:    f.FactKey,
		PeriodEnd:  f.PeriodEnd,
		DocumentID: f.SourceDocumentID,
	}
}

// numberCell builds a numeric cell with provenance.
func numberCell(v float64, asOf *time.Time, sources ...models.FactRef) models.SpreadCell {
	return models.SpreadCell{Number: &v, AsOf: asOf, Sources: sources}
}

// textCell builds a text cell with provenance.
func textCell(s string, asOf *time.Time, sources ...models.FactRef) models.SpreadCell {
	return models.SpreadCell{Text: &s, AsOf: asOf, Sources: sources}
}

// factCell renders a fact directly into a cell, numeric value preferred.
func factCell(f models.FinancialFact) models.SpreadCell {
	cell := models.SpreadCell{AsOf: f.Provenance.AsOf, Sources: []models.FactRef{refOf(f)}}
	if f.NumericValue != nil {
		v := *f.NumericValue
		cell.Number = &v
	} else if f.TextValue != nil {
		s := *f.TextValue
		cell.Text = &s
	}
	return cell
}

// sortedKeys returns map keys in lexicographic order for deterministic row
// iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// periodColumns extracts the distinct period ends across facts, sorted
// ascending, capped to the trailing max count.
func periodColumns(facts []models.FinancialFact, max int) []time.Time {
	seen := make(map[time.Time]bool)
	var periods []time.Time
	for _, f := range facts {
		if f.PeriodEnd == nil {
			continue
		}
		p := f.PeriodEnd.UTC().Truncate(24 * time.Hour)
		if !seen[p] {
			seen[p] = true
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	if max > 0 && len(periods) > max {
		periods = periods[len(periods)-max:]
	}
	return periods
}

// periodKey formats a period end as a column key.
func periodKey(p time.Time) string {
	return p.Format("2006-01")
}

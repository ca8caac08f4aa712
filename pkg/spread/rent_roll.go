package spread

import (
	"sort"
	"strings"
	"time"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Rent roll column contract. Order and key names are part of the template's
// contract with the UI layer, not incidental.
var rentRollColumns = []models.SpreadColumn{
	{Key: "UNIT", Label: "Unit"},
	{Key: "TENANT", Label: "Tenant"},
	{Key: "STATUS", Label: "Status"},
	{Key: "SQFT", Label: "SqFt"},
	{Key: "RENT_MO", Label: "Rent (Mo)"},
	{Key: "RENT_YR", Label: "Rent (Yr)"},
	{Key: "MARKET_RENT_MO", Label: "Market Rent (Mo)"},
	{Key: "LEASE_START", Label: "Lease Start"},
	{Key: "LEASE_END", Label: "Lease End"},
	{Key: "WALT_YEARS", Label: "WALT (Yrs)"},
	{Key: "NOTES", Label: "Notes"},
}

// Rent roll fact keys are "<unit_id>/<attribute>", one fact per cell of the
// source document.
const (
	rentRollAttrTenant     = "TENANT"
	rentRollAttrStatus     = "STATUS"
	rentRollAttrSqft       = "SQFT"
	rentRollAttrRentMo     = "RENT_MO"
	rentRollAttrMarketRent = "MARKET_RENT_MO"
	rentRollAttrLeaseStart = "LEASE_START"
	rentRollAttrLeaseEnd   = "LEASE_END"
	rentRollAttrNotes      = "NOTES"
)

const daysPerYear = 365.25

// RentRollTemplate renders the per-unit rent roll with occupancy and WALT
// derivations.
type RentRollTemplate struct{}

// Type implements Template.
func (t *RentRollTemplate) Type() models.SpreadType {
	return models.SpreadTypeRentRoll
}

// rentRollUnit collects the latest facts for one unit.
type rentRollUnit struct {
	unitID string
	attrs  map[string]models.FinancialFact
}

func (u *rentRollUnit) text(attr string) *string {
	f, ok := u.attrs[attr]
	if !ok || f.TextValue == nil {
		return nil
	}
	return f.TextValue
}

func (u *rentRollUnit) number(attr string) *float64 {
	f, ok := u.attrs[attr]
	if !ok || f.NumericValue == nil {
		return nil
	}
	return f.NumericValue
}

// occupied resolves the unit's occupancy. An explicit status wins; a named
// tenant implies occupied when status is absent.
func (u *rentRollUnit) occupied() bool {
	if s := u.text(rentRollAttrStatus); s != nil {
		return strings.EqualFold(strings.TrimSpace(*s), "OCCUPIED")
	}
	tenant := u.text(rentRollAttrTenant)
	return tenant != nil && strings.TrimSpace(*tenant) != ""
}

// walt returns the unit's weighted-average-lease-term contribution in years.
// A vacant unit contributes nil (unknown, not zero). An occupied unit with an
// already-expired lease contributes zero (known-to-be-zero, not unknown).
// An occupied unit with no lease end date contributes nil.
func (u *rentRollUnit) walt(asOf time.Time) *float64 {
	if !u.occupied() {
		return nil
	}
	endStr := u.text(rentRollAttrLeaseEnd)
	if endStr == nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(*endStr))
	if err != nil {
		return nil
	}
	years := end.Sub(asOf).Hours() / 24 / daysPerYear
	if years < 0 {
		years = 0
	}
	return &years
}

// Render implements Template.
func (t *RentRollTemplate) Render(facts []models.FinancialFact) (*models.SpreadContent, error) {
	latest := latestForType(facts, models.FactTypeRentRoll)

	units := make(map[string]*rentRollUnit)
	for factKey, f := range latest {
		unitID, attr, ok := strings.Cut(factKey, "/")
		if !ok {
			continue
		}
		u, exists := units[unitID]
		if !exists {
			u = &rentRollUnit{unitID: unitID, attrs: make(map[string]models.FinancialFact)}
			units[unitID] = u
		}
		u.attrs[attr] = f
	}

	asOf := rentRollAsOf(facts)

	ordered := make([]*rentRollUnit, 0, len(units))
	for _, id := range sortedKeys(units) {
		ordered = append(ordered, units[id])
	}
	// Stable ordering: unit id, then tenant name with missing tenants last.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].unitID != ordered[j].unitID {
			return ordered[i].unitID < ordered[j].unitID
		}
		ti, tj := ordered[i].text(rentRollAttrTenant), ordered[j].text(rentRollAttrTenant)
		switch {
		case ti == nil && tj == nil:
			return false
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return *ti < *tj
		}
	})

	rows := make([]models.SpreadRow, 0, len(ordered))

	var (
		totalSqft    *float64
		occupiedSqft *float64
		totalRentMo  *float64
		waltWeighted float64 // sum(walt * sqft) over contributing units
		waltWeight   float64 // sum(sqft) over contributing units
	)

	for _, u := range ordered {
		row := models.SpreadRow{Cells: make(map[string]models.SpreadCell)}
		row.Cells["UNIT"] = models.SpreadCell{Text: strPtr(u.unitID)}

		for attr, col := range map[string]string{
			rentRollAttrTenant:     "TENANT",
			rentRollAttrStatus:     "STATUS",
			rentRollAttrLeaseStart: "LEASE_START",
			rentRollAttrLeaseEnd:   "LEASE_END",
			rentRollAttrNotes:      "NOTES",
		} {
			if f, ok := u.attrs[attr]; ok {
				row.Cells[col] = factCell(f)
			}
		}
		for attr, col := range map[string]string{
			rentRollAttrSqft:       "SQFT",
			rentRollAttrRentMo:     "RENT_MO",
			rentRollAttrMarketRent: "MARKET_RENT_MO",
		} {
			if f, ok := u.attrs[attr]; ok {
				row.Cells[col] = factCell(f)
			}
		}

		if rentMo := u.number(rentRollAttrRentMo); rentMo != nil {
			srcs := []models.FactRef{refOf(u.attrs[rentRollAttrRentMo])}
			row.Cells["RENT_YR"] = numberCell(*rentMo*12, &asOf, srcs...)
			totalRentMo = addTo(totalRentMo, *rentMo)
		}

		if sqft := u.number(rentRollAttrSqft); sqft != nil {
			totalSqft = addTo(totalSqft, *sqft)
			if u.occupied() {
				occupiedSqft = addTo(occupiedSqft, *sqft)
			}
			if w := u.walt(asOf); w != nil {
				waltWeighted += *w * *sqft
				waltWeight += *sqft
			}
		}

		if w := u.walt(asOf); w != nil {
			var srcs []models.FactRef
			if f, ok := u.attrs[rentRollAttrLeaseEnd]; ok {
				srcs = append(srcs, refOf(f))
			}
			row.Cells["WALT_YEARS"] = numberCell(*w, &asOf, srcs...)
		}

		rows = append(rows, row)
	}

	totals := make(map[string]models.SpreadCell)
	if totalSqft != nil {
		totals["TOTAL_SQFT"] = numberCell(*totalSqft, &asOf)
		if *totalSqft > 0 {
			occ := 0.0
			if occupiedSqft != nil {
				occ = *occupiedSqft / *totalSqft
			}
			totals["OCCUPANCY_PCT"] = numberCell(occ, &asOf)
			totals["VACANCY_PCT"] = numberCell(1-occ, &asOf)
		}
	}
	if totalRentMo != nil {
		totals["TOTAL_RENT_MO"] = numberCell(*totalRentMo, &asOf)
		totals["TOTAL_RENT_YR"] = numberCell(*totalRentMo*12, &asOf)
	}
	if waltWeight > 0 {
		totals["WALT_YEARS"] = numberCell(waltWeighted/waltWeight, &asOf)
	}

	return &models.SpreadContent{
		Columns: rentRollColumns,
		Rows:    rows,
		Totals:  totals,
	}, nil
}

// rentRollAsOf picks the reference date for lease-term math: the latest
// period end among the rent roll facts, falling back to the latest fact
// creation time. Deterministic over the fact set, unlike wall-clock time.
func rentRollAsOf(facts []models.FinancialFact) time.Time {
	var asOf time.Time
	for _, f := range filterType(facts, models.FactTypeRentRoll) {
		if f.PeriodEnd != nil && f.PeriodEnd.After(asOf) {
			asOf = *f.PeriodEnd
		}
	}
	if !asOf.IsZero() {
		return asOf
	}
	for _, f := range filterType(facts, models.FactTypeRentRoll) {
		if f.CreatedAt.After(asOf) {
			asOf = f.CreatedAt
		}
	}
	return asOf
}

func strPtr(s string) *string {
	return &s
}

func addTo(sum *float64, v float64) *float64 {
	if sum == nil {
		return &v
	}
	total := *sum + v
	return &total
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// Existing-debt schedule fact key suffixes. Each existing obligation carries
// its rows as "<debt id>/<suffix>" keys in the DEBT fact type.
const (
	debtKeyAnnualService   = "ANNUAL_DEBT_SERVICE"
	debtKeyRefinanced      = "REFINANCED"
	debtKeyIncludeInGlobal = "INCLUDE_IN_GLOBAL"
)

// DebtAggregate is the derived debt-service picture for a deal. Any quantity
// whose inputs are missing stays nil; the aggregator never invents zeros.
type DebtAggregate struct {
	ProposedAnnualDebtService *float64
	ExistingAnnualDebtService *float64
	TotalAnnualDebtService    *float64
	DSCR                      *float64
	GlobalDSCR                *float64
}

// DebtService aggregates proposed and existing debt facts into total annual
// debt service and coverage ratios, writing each result back as a derived
// fact with a calculation trail.
type DebtService interface {
	Aggregate(ctx context.Context, tenantID, dealID uuid.UUID) (*DebtAggregate, error)
}

type debtService struct {
	factRepo repositories.FactRepository
	logger   *zap.Logger
}

// NewDebtService creates a DebtService.
func NewDebtService(factRepo repositories.FactRepository, logger *zap.Logger) DebtService {
	return &debtService{
		factRepo: factRepo,
		logger:   logger.Named("debt-service"),
	}
}

var _ DebtService = (*debtService)(nil)

func (s *debtService) Aggregate(ctx context.Context, tenantID, dealID uuid.UUID) (*DebtAggregate, error) {
	facts, err := s.factRepo.GetByDealAndTypes(ctx, dealID, []string{models.FactTypeDebt, models.FactTypeDerived})
	if err != nil {
		return nil, err
	}

	latest := latestFactsByKey(facts)

	agg := &DebtAggregate{}

	if f, ok := latest[factKey(models.FactTypeDebt, models.FactKeyProposedAnnualDebtService)]; ok && f.NumericValue != nil {
		v := *f.NumericValue
		agg.ProposedAnnualDebtService = &v
	}

	agg.ExistingAnnualDebtService = s.sumExistingDebt(latest)

	// Total is null only when neither side of the ledger is known.
	if agg.ProposedAnnualDebtService != nil || agg.ExistingAnnualDebtService != nil {
		total := 0.0
		if agg.ProposedAnnualDebtService != nil {
			total += *agg.ProposedAnnualDebtService
		}
		if agg.ExistingAnnualDebtService != nil {
			total += *agg.ExistingAnnualDebtService
		}
		agg.TotalAnnualDebtService = &total
	}

	noi := latestNumeric(latest, models.FactTypeDerived, models.FactKeyNetOperatingIncome)
	gcf := latestNumeric(latest, models.FactTypeDerived, models.FactKeyGlobalCashFlow)

	if noi != nil && agg.TotalAnnualDebtService != nil && *agg.TotalAnnualDebtService != 0 {
		dscr := *noi / *agg.TotalAnnualDebtService
		agg.DSCR = &dscr
	}
	if gcf != nil && agg.TotalAnnualDebtService != nil && *agg.TotalAnnualDebtService != 0 {
		gdscr := *gcf / *agg.TotalAnnualDebtService
		agg.GlobalDSCR = &gdscr
	}

	if err := s.writeDerivedFacts(ctx, tenantID, dealID, agg, noi, gcf); err != nil {
		return nil, err
	}

	return agg, nil
}

// sumExistingDebt totals annual service across the existing-debt schedule,
// skipping obligations flagged as being refinanced and obligations not
// flagged for inclusion in the global picture. Returns nil when the schedule
// has no countable rows.
func (s *debtService) sumExistingDebt(latest map[string]*models.FinancialFact) *float64 {
	var total float64
	counted := false

	for key, fact := range latest {
		factType, factKey, ok := splitFactKey(key)
		if !ok || factType != models.FactTypeDebt {
			continue
		}
		debtID, suffix, ok := splitDebtKey(factKey)
		if !ok || suffix != debtKeyAnnualService || fact.NumericValue == nil {
			continue
		}

		if boolFact(latest[factKey2(models.FactTypeDebt, debtID, debtKeyRefinanced)]) {
			continue
		}
		if !boolFact(latest[factKey2(models.FactTypeDebt, debtID, debtKeyIncludeInGlobal)]) {
			continue
		}

		total += *fact.NumericValue
		counted = true
	}

	if !counted {
		return nil
	}
	return &total
}

func (s *debtService) writeDerivedFacts(ctx context.Context, tenantID, dealID uuid.UUID, agg *DebtAggregate, noi, gcf *float64) error {
	write := func(key string, value *float64, calc string) error {
		if value == nil {
			return nil
		}
		fact := &models.FinancialFact{
			TenantID:     tenantID,
			DealID:       dealID,
			FactType:     models.FactTypeDerived,
			FactKey:      key,
			NumericValue: value,
			Confidence:   1.0,
			OwnerType:    models.OwnerScopeGlobal,
			Provenance: models.FactProvenance{
				SourceType:  models.FactSourceStructural,
				SourceRef:   "debt-service-aggregator",
				Calculation: calc,
			},
		}
		if err := s.factRepo.UpsertDerived(ctx, fact); err != nil {
			s.logger.Error("Failed to write derived debt fact",
				zap.String("deal_id", dealID.String()),
				zap.String("fact_key", key),
				zap.Error(err))
			return err
		}
		return nil
	}

	totalCalc := fmt.Sprintf("proposed %s + existing %s",
		formatAmount(agg.ProposedAnnualDebtService), formatAmount(agg.ExistingAnnualDebtService))
	if err := write(models.FactKeyTotalAnnualDebtService, agg.TotalAnnualDebtService, totalCalc); err != nil {
		return err
	}

	if agg.DSCR != nil {
		calc := fmt.Sprintf("NOI %s / ADS %s", formatAmount(noi), formatAmount(agg.TotalAnnualDebtService))
		if err := write(models.FactKeyDSCR, agg.DSCR, calc); err != nil {
			return err
		}
	}

	if agg.GlobalDSCR != nil {
		calc := fmt.Sprintf("GCF %s / ADS %s", formatAmount(gcf), formatAmount(agg.TotalAnnualDebtService))
		if err := write(models.FactKeyGlobalDSCR, agg.GlobalDSCR, calc); err != nil {
			return err
		}
	}

	return nil
}

// latestFactsByKey selects the most recent fact per (type, key): later
// period end wins, then later creation time.
func latestFactsByKey(facts []*models.FinancialFact) map[string]*models.FinancialFact {
	latest := make(map[string]*models.FinancialFact, len(facts))
	for _, f := range facts {
		key := factKey(f.FactType, f.FactKey)
		cur, ok := latest[key]
		if !ok || factSupersedes(f, cur) {
			latest[key] = f
		}
	}
	return latest
}

func factSupersedes(a, b *models.FinancialFact) bool {
	switch {
	case a.PeriodEnd != nil && b.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd):
		return a.PeriodEnd.After(*b.PeriodEnd)
	case a.PeriodEnd != nil && b.PeriodEnd == nil:
		return true
	case a.PeriodEnd == nil && b.PeriodEnd != nil:
		return false
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

func latestNumeric(latest map[string]*models.FinancialFact, factType, key string) *float64 {
	f, ok := latest[factKey(factType, key)]
	if !ok || f.NumericValue == nil {
		return nil
	}
	v := *f.NumericValue
	return &v
}

// boolFact interprets a flag fact: numeric non-zero or an affirmative text
// value counts as true. A missing flag is false.
func boolFact(f *models.FinancialFact) bool {
	if f == nil {
		return false
	}
	if f.NumericValue != nil {
		return *f.NumericValue != 0
	}
	if f.TextValue != nil {
		switch strings.ToUpper(strings.TrimSpace(*f.TextValue)) {
		case "TRUE", "YES", "Y", "1":
			return true
		}
	}
	return false
}

func factKey(factType, key string) string {
	return factType + "\x00" + key
}

func factKey2(factType, debtID, suffix string) string {
	return factKey(factType, debtID+"/"+suffix)
}

func splitFactKey(combined string) (factType, key string, ok bool) {
	idx := strings.IndexByte(combined, 0)
	if idx < 0 {
		return "", "", false
	}
	return combined[:idx], combined[idx+1:], true
}

func splitDebtKey(key string) (debtID, suffix string, ok bool) {
	idx := strings.LastIndexByte(key, '/')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

func formatAmount(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

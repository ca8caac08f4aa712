// seed-demo-deal loads a YAML deal fixture into the financial fact store so a
// fresh environment has something to render spreads from.
//
// Usage: go run ./scripts/seed-demo-deal <fixture.yaml>
//
// Database connection: uses the same config.yaml / PG* environment variables
// as the engine itself.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/buddy-hq/buddy-engine/pkg/config"
	"github.com/buddy-hq/buddy-engine/pkg/database"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// dealFixture is the YAML shape of a seedable deal.
type dealFixture struct {
	TenantID string        `yaml:"tenant_id"`
	DealID   string        `yaml:"deal_id"`
	Facts    []factFixture `yaml:"facts"`
}

type factFixture struct {
	FactType     string   `yaml:"fact_type"`
	FactKey      string   `yaml:"fact_key"`
	NumericValue *float64 `yaml:"numeric_value"`
	TextValue    *string  `yaml:"text_value"`
	PeriodStart  *string  `yaml:"period_start"` // YYYY-MM-DD
	PeriodEnd    *string  `yaml:"period_end"`
	Currency     string   `yaml:"currency"`
	Confidence   *float64 `yaml:"confidence"`
	OwnerType    string   `yaml:"owner_type"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <fixture.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(fixturePath string) error {
	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}

	var fixture dealFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	tenantID, err := uuid.Parse(fixture.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant_id: %w", err)
	}
	dealID, err := uuid.Parse(fixture.DealID)
	if err != nil {
		return fmt.Errorf("invalid deal_id: %w", err)
	}

	facts, err := buildFacts(&fixture, tenantID, dealID)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		return fmt.Errorf("fixture contains no facts")
	}

	cfg, err := config.Load("seed")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: 2,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	provider := database.NewTenantScopeProvider(db)
	tenantCtx, cleanup, err := provider.WithTenantScope(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("open tenant scope: %w", err)
	}
	defer cleanup()

	factRepo := repositories.NewFactRepository()
	if err := factRepo.CreateBatch(tenantCtx, facts); err != nil {
		return fmt.Errorf("write facts: %w", err)
	}

	logger, _ := zap.NewDevelopment()
	logger.Info("Seeded demo deal",
		zap.String("tenant_id", tenantID.String()),
		zap.String("deal_id", dealID.String()),
		zap.Int("facts", len(facts)))
	return nil
}

func buildFacts(fixture *dealFixture, tenantID, dealID uuid.UUID) ([]*models.FinancialFact, error) {
	facts := make([]*models.FinancialFact, 0, len(fixture.Facts))
	for i, ff := range fixture.Facts {
		if ff.FactType == "" || ff.FactKey == "" {
			return nil, fmt.Errorf("fact %d: fact_type and fact_key are required", i)
		}

		fact := &models.FinancialFact{
			TenantID:     tenantID,
			DealID:       dealID,
			FactType:     ff.FactType,
			FactKey:      ff.FactKey,
			NumericValue: ff.NumericValue,
			TextValue:    ff.TextValue,
			Currency:     ff.Currency,
			Confidence:   1.0,
			OwnerType:    models.OwnerScope(ff.OwnerType),
			Provenance: models.FactProvenance{
				SourceType: models.FactSourceManual,
				SourceRef:  "seed-demo-deal",
			},
		}
		if ff.Confidence != nil {
			fact.Confidence = *ff.Confidence
		}

		var err error
		if fact.PeriodStart, err = parseDate(ff.PeriodStart); err != nil {
			return nil, fmt.Errorf("fact %d: %w", i, err)
		}
		if fact.PeriodEnd, err = parseDate(ff.PeriodEnd); err != nil {
			return nil, fmt.Errorf("fact %d: %w", i, err)
		}

		facts = append(facts, fact)
	}
	return facts, nil
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", *s, err)
	}
	t = t.UTC()
	return &t, nil
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/events"
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

func newTestObserver(spreadRepo *memSpreadRepo, jobRepo *memJobRepo, eventRepo *memEventRepo) *Observer {
	logger := zap.NewNop()
	return NewObserver(nil, spreadRepo, jobRepo, events.NewRecorder(eventRepo, logger),
		time.Minute, time.Hour, 15*time.Minute, logger)
}

func TestObserver_HealsStuckGeneratingSpreads(t *testing.T) {
	spreadRepo := newMemSpreadRepo()
	jobRepo := newMemJobRepo()
	eventRepo := newMemEventRepo()
	o := newTestObserver(spreadRepo, jobRepo, eventRepo)

	tenantID := uuid.New()
	dealID := uuid.New()
	runID := uuid.New()

	stuck := &models.RenderedSpread{
		TenantID: tenantID, DealID: dealID,
		SpreadType: models.SpreadTypeT12, SpreadVersion: 1,
		OwnerType: models.OwnerScopeDeal,
	}
	require.NoError(t, spreadRepo.EnsurePlaceholder(context.Background(), stuck))
	won, err := spreadRepo.Claim(context.Background(), dealID, models.SpreadTypeT12, 1,
		models.OwnerScopeDeal, nil, runID)
	require.NoError(t, err)
	require.True(t, won)

	// Backdate the claim past the auto-heal threshold.
	row := spreadRepo.find(dealID, models.SpreadTypeT12, 1, models.OwnerScopeDeal, nil)
	require.NotNil(t, row)
	row.UpdatedAt = time.Now().Add(-2 * time.Hour)

	o.healSpreads(context.Background())

	healed := spreadRepo.find(dealID, models.SpreadTypeT12, 1, models.OwnerScopeDeal, nil)
	assert.Equal(t, models.SpreadStatusError, healed.Status)
	require.NotNil(t, healed.ErrorMessage)
	assert.Contains(t, eventRepo.kinds(), models.EventAutoHealed)
}

func TestObserver_FreshGeneratingSpreadLeftAlone(t *testing.T) {
	spreadRepo := newMemSpreadRepo()
	jobRepo := newMemJobRepo()
	eventRepo := newMemEventRepo()
	o := newTestObserver(spreadRepo, jobRepo, eventRepo)

	dealID := uuid.New()
	fresh := &models.RenderedSpread{
		TenantID: uuid.New(), DealID: dealID,
		SpreadType: models.SpreadTypeRentRoll, SpreadVersion: 1,
		OwnerType: models.OwnerScopeDeal,
	}
	require.NoError(t, spreadRepo.EnsurePlaceholder(context.Background(), fresh))
	won, err := spreadRepo.Claim(context.Background(), dealID, models.SpreadTypeRentRoll, 1,
		models.OwnerScopeDeal, nil, uuid.New())
	require.NoError(t, err)
	require.True(t, won)

	o.healSpreads(context.Background())

	row := spreadRepo.find(dealID, models.SpreadTypeRentRoll, 1, models.OwnerScopeDeal, nil)
	assert.Equal(t, models.SpreadStatusGenerating, row.Status)
	assert.Empty(t, eventRepo.kinds())
}

func TestObserver_ResetsOrphanedJobs(t *testing.T) {
	spreadRepo := newMemSpreadRepo()
	jobRepo := newMemJobRepo()
	eventRepo := newMemEventRepo()
	o := newTestObserver(spreadRepo, jobRepo, eventRepo)

	job := &models.SpreadJob{
		TenantID: uuid.New(), DealID: uuid.New(),
		RequestedTypes: []models.SpreadType{models.SpreadTypeT12},
	}
	require.NoError(t, jobRepo.Create(context.Background(), job))

	claimed, err := jobRepo.ClaimNext(context.Background(), uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Backdate the lease well past the orphan threshold.
	raw := jobRepo.byID(claimed.ID)
	require.NotNil(t, raw)
	jobRepo.mu.Lock()
	for _, j := range jobRepo.jobs {
		if j.ID == claimed.ID {
			expired := time.Now().Add(-time.Hour)
			j.LeaseExpiresAt = &expired
		}
	}
	jobRepo.mu.Unlock()

	o.resetOrphans(context.Background())

	requeued := jobRepo.byID(claimed.ID)
	require.NotNil(t, requeued)
	assert.Equal(t, models.JobStatusQueued, requeued.Status)
	assert.Nil(t, requeued.ClaimedBy)
	assert.Nil(t, requeued.LeaseExpiresAt)
	assert.Contains(t, eventRepo.kinds(), models.EventJobOrphanReset)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusActive(t *testing.T) {
	assert.True(t, JobStatusQueued.IsActive())
	assert.True(t, JobStatusRunning.IsActive())
	assert.False(t, JobStatusSucceeded.IsActive())
	assert.False(t, JobStatusFailed.IsActive())
	assert.False(t, JobStatusDebounced.IsActive())
}

func TestJobMergeTypes(t *testing.T) {
	job := &SpreadJob{RequestedTypes: []SpreadType{SpreadTypeT12}}

	added := job.MergeTypes([]SpreadType{SpreadTypeT12, SpreadTypeRentRoll})
	assert.True(t, added)
	assert.Equal(t, []SpreadType{SpreadTypeT12, SpreadTypeRentRoll}, job.RequestedTypes)

	// Merging an already-covered set is a no-op.
	added = job.MergeTypes([]SpreadType{SpreadTypeRentRoll})
	assert.False(t, added)
	assert.Len(t, job.RequestedTypes, 2)
}

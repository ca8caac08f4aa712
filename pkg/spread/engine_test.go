package spread

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

func newUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func TestEngine_RegistersAllSpreadTypes(t *testing.T) {
	e := NewEngine(zap.NewNop())
	assert.Equal(t, models.AllSpreadTypes, e.RegisteredTypes())
	for _, st := range models.AllSpreadTypes {
		assert.True(t, e.HasTemplate(st), "missing template for %s", st)
	}
}

func TestEngine_MissingTemplateProducesErrorResult(t *testing.T) {
	e := &Engine{templates: map[models.SpreadType]Template{}, logger: zap.NewNop()}

	result := e.Render(models.SpreadTypeT12, nil)
	assert.Equal(t, models.SpreadStatusError, result.Status)
	require.NotNil(t, result.ErrorMessage)
	assert.Contains(t, *result.ErrorMessage, "no template registered")
	assert.Nil(t, result.Content)
}

func TestEngine_RenderEmptyFactsStillReady(t *testing.T) {
	e := NewEngine(zap.NewNop())

	// A deal with no facts renders an empty but well-formed table; missing
	// data is a content problem, not a render failure.
	for _, st := range models.AllSpreadTypes {
		result := e.Render(st, nil)
		assert.Equal(t, models.SpreadStatusReady, result.Status, "spread type %s", st)
		require.NotNil(t, result.Content, "spread type %s", st)
		assert.NotEmpty(t, result.Content.Columns, "spread type %s", st)
	}
}

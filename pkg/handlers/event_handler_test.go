package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

func TestEventHandler_List_Success(t *testing.T) {
	dealID := uuid.New()
	otherDeal := uuid.New()
	repo := &mockEventRepo{events: []*models.SystemEvent{
		{ID: uuid.New(), DealID: &dealID, Kind: models.EventDebounced, Severity: "info"},
		{ID: uuid.New(), DealID: &dealID, Kind: models.EventZeroRender, Severity: "critical"},
		{ID: uuid.New(), DealID: &otherDeal, Kind: models.EventAutoHealed, Severity: "warning"},
	}}
	handler := NewEventHandler(repo, zap.NewNop())

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/deals/%s/events", dealID), nil)
	req.SetPathValue("did", dealID.String())
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.Data.([]any), 2)
}

func TestEventHandler_List_InvalidLimit(t *testing.T) {
	dealID := uuid.New()
	handler := NewEventHandler(&mockEventRepo{}, zap.NewNop())

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/deals/%s/events?limit=banana", dealID), nil)
	req.SetPathValue("did", dealID.String())
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventHandler_List_EmptyIsArray(t *testing.T) {
	dealID := uuid.New()
	handler := NewEventHandler(&mockEventRepo{}, zap.NewNop())

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/deals/%s/events", dealID), nil)
	req.SetPathValue("did", dealID.String())
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`)
}

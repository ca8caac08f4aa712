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

	"github.com/buddy-hq/buddy-engine/pkg/services"
)

func TestDebtHandler_Aggregate_Success(t *testing.T) {
	dealID := uuid.New()
	total := 160000.0
	dscr := 1.25
	svc := &mockDebtService{agg: &services.DebtAggregate{
		TotalAnnualDebtService: &total,
		DSCR:                   &dscr,
	}}
	handler := NewDebtHandler(svc, zap.NewNop())

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/deals/%s/debt-service/aggregate", dealID), nil)
	req.SetPathValue("did", dealID.String())
	req = withTenant(req, uuid.New())
	rr := httptest.NewRecorder()

	handler.Aggregate(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestDebtHandler_Aggregate_NoTenant(t *testing.T) {
	dealID := uuid.New()
	handler := NewDebtHandler(&mockDebtService{}, zap.NewNop())

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/deals/%s/debt-service/aggregate", dealID), nil)
	req.SetPathValue("did", dealID.String())
	rr := httptest.NewRecorder()

	handler.Aggregate(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDebtHandler_Aggregate_ServiceError(t *testing.T) {
	dealID := uuid.New()
	handler := NewDebtHandler(&mockDebtService{err: fmt.Errorf("fact store unavailable")}, zap.NewNop())

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/deals/%s/debt-service/aggregate", dealID), nil)
	req.SetPathValue("did", dealID.String())
	req = withTenant(req, uuid.New())
	rr := httptest.NewRecorder()

	handler.Aggregate(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

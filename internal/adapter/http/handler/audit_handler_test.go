package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/jibledger/internal/adapter/http/dto"
	"github.com/iho/jibledger/internal/domain"
)

func TestAuditHandlerListAuditFilters(t *testing.T) {
	svc := &stubTrailService{logs: []*domain.AuditLog{{ID: "a1", ActorID: "ops", Action: "ledger.send"}}}
	h := NewAuditHandler(svc)

	rr := serve(http.MethodGet, "/audit", "/audit?actor_id=ops&resource_id=led-1&from=2024-05-01&limit=10", "", h.ListAudit)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ops", svc.lastFilter.ActorID)
	assert.Equal(t, "led-1", svc.lastFilter.ResourceID)
	assert.Equal(t, 10, svc.lastFilter.Limit)
	require.NotNil(t, svc.lastFilter.StartDate)
	assert.Nil(t, svc.lastFilter.EndDate)

	var resp []dto.AuditLogResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "ledger.send", resp[0].Action)
}

func TestAuditHandlerListAuditBadDate(t *testing.T) {
	h := NewAuditHandler(&stubTrailService{})

	rr := serve(http.MethodGet, "/audit", "/audit?to=soon", "", h.ListAudit)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuditHandlerListEvents(t *testing.T) {
	svc := &stubTrailService{events: []*domain.OutboxEvent{{ID: "e1", EventType: domain.EventTypeLedgerSent}}}
	h := NewAuditHandler(svc)

	rr := serve(http.MethodGet, "/events", "/events?aggregate_type=ledger&aggregate_id=led-1", "", h.ListEvents)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, [2]string{"ledger", "led-1"}, svc.lastAgg)

	rr = serve(http.MethodGet, "/events", "/events?aggregate_type=account&aggregate_id=x", "", h.ListEvents)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

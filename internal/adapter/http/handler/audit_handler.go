package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iho/jibledger/internal/adapter/http/dto"
	"github.com/iho/jibledger/internal/domain"
)

// TrailService reads the audit trail and the outbox.
type TrailService interface {
	ListAuditTrail(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
	ListEvents(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
}

// AuditHandler serves the audit trail and the recorded domain events.
type AuditHandler struct {
	trail TrailService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(trail TrailService) *AuditHandler {
	return &AuditHandler{trail: trail}
}

// ListAudit lists audit entries. Supported filters: actor_id, action,
// resource_type, resource_id, from, to.
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Limit:        parseIntQuery(r, "limit", 50),
		Offset:       parseIntQuery(r, "offset", 0),
	}

	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.StartDate}, {"to", &filter.EndDate}} {
		if v := q.Get(bound.key); v != "" {
			t, err := dto.ParseDate(bound.key, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid date", err.Error())
				return
			}
			*bound.dst = &t
		}
	}

	logs, err := h.trail.ListAuditTrail(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "failed to list audit trail", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditLogsFromDomain(logs))
}

// ListEvents lists outbox events for one aggregate, oldest first.
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	aggregateType := r.URL.Query().Get("aggregate_type")
	aggregateID := r.URL.Query().Get("aggregate_id")
	if aggregateType != domain.AggregateTypeLedger && aggregateType != domain.AggregateTypeObligation {
		writeError(w, http.StatusBadRequest, "invalid aggregate_type", "expected ledger or obligation")
		return
	}
	if aggregateID == "" {
		writeError(w, http.StatusBadRequest, "missing aggregate_id", "")
		return
	}

	events, err := h.trail.ListEvents(r.Context(), aggregateType, aggregateID,
		parseIntQuery(r, "limit", 50), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeDomainError(w, r, "failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EventsFromDomain(events))
}

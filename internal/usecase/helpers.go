package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/jibledger/internal/domain"
)

func newEvent(idGen IDGenerator, aggregateID, aggregateType, eventType string, payload any, now time.Time) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       map[string]any(domain.MarshalState(payload)),
		CreatedAt:     now,
		Published:     false,
	}
}

func fullySatisfiedEvent(idGen IDGenerator, ledger *domain.Ledger, now time.Time) *domain.OutboxEvent {
	return newEvent(idGen, ledger.ID, domain.AggregateTypeLedger, domain.EventTypeLedgerFullySatisfied, domain.LedgerFullySatisfiedEvent{
		LedgerID:    ledger.ID,
		Kind:        string(ledger.Kind),
		TotalAmount: ledger.TotalAmount.String(),
		Currency:    ledger.Currency,
		Status:      string(ledger.Status),
		EventAt:     now.Format(time.RFC3339),
	}, now)
}

func writeAudit(
	ctx context.Context,
	tx Transaction,
	repo AuditRepository,
	idGen IDGenerator,
	action domain.AuditAction,
	resourceType, resourceID string,
	before, after domain.JSON,
	now time.Time,
) error {
	if repo == nil {
		return nil
	}
	return repo.CreateTx(ctx, tx, &domain.AuditLog{
		ID:           idGen.Generate(),
		ActorID:      domain.ActorFromContext(ctx),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    domain.RequestIDFromContext(ctx),
		BeforeState:  before,
		AfterState:   after,
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    now,
	})
}

func ledgerSnapshot(l *domain.Ledger) domain.JSON {
	return domain.JSON{
		"id":           l.ID,
		"code":         l.Code,
		"kind":         string(l.Kind),
		"contract_id":  l.ContractID,
		"status":       string(l.Status),
		"total_amount": l.TotalAmount.String(),
		"currency":     l.Currency,
		"parties":      len(l.Obligations),
		"sent":         l.IsSent(),
	}
}

func obligationSnapshot(o *domain.Obligation) domain.JSON {
	snap := domain.JSON{
		"id":               o.ID,
		"party_id":         o.PartyID,
		"status":           string(o.Status),
		"requested_amount": o.RequestedAmount.String(),
		"settled_amount":   o.SettledAmount.String(),
		"overpaid_amount":  o.OverpaidAmount.String(),
	}
	if o.DisputeReason != "" {
		snap["dispute_reason"] = o.DisputeReason
	}
	if o.PenaltyAmount != nil {
		snap["penalty_amount"] = o.PenaltyAmount.String()
	}
	return snap
}

// cacheStatus refreshes the read cache after a commit. The entry carries the
// ledger version so a late writer cannot overwrite a newer status. When the
// write fails the entry is dropped and the next read recomputes it.
func cacheStatus(ctx context.Context, cache StatusCache, ledger *domain.Ledger) {
	if cache == nil {
		return
	}
	err := cache.Set(ctx, ledger.ID, ledger.Version, ledger.DeriveStatus())
	if err == nil {
		return
	}
	logger := zerolog.Ctx(ctx).With().Str("ledger_id", ledger.ID).Logger()
	logger.Warn().Err(err).Msg("status cache update failed, invalidating")
	if err := cache.Delete(ctx, ledger.ID); err != nil {
		logger.Error().Err(err).Msg("status cache invalidation failed")
	}
}

// errorType is a low-cardinality label for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, domain.ErrLedgerNotSent):
		return "ledger_not_sent"
	case errors.Is(err, domain.ErrNotYetDue):
		return "not_yet_due"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, domain.ErrInvalidPaymentAmount):
		return "invalid_payment_amount"
	case errors.Is(err, domain.ErrInvalidPenaltyAmount):
		return "invalid_penalty_amount"
	case errors.Is(err, domain.ErrInvalidAllocationInput):
		return "invalid_allocation_input"
	case errors.Is(err, domain.ErrInvalidLedger):
		return "invalid_ledger"
	case errors.Is(err, domain.ErrExternalReferenceConflict):
		return "external_reference_conflict"
	case errors.Is(err, domain.ErrLedgerNotFound), errors.Is(err, domain.ErrObligationNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

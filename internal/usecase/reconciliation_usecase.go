package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/infrastructure/metrics"
)

// SettlementInput is a partner funding (cash call) or payment (JIB).
type SettlementInput struct {
	LedgerID          string
	PartyID           string
	Amount            decimal.Decimal
	ExternalReference string
	ValueDate         time.Time
	AllowOverpayment  bool
}

// ReconciliationResult is the outcome of a partner action.
// Duplicate is set when the external reference had already been applied;
// nothing was changed in that case.
type ReconciliationResult struct {
	Ledger     *domain.Ledger
	Obligation *domain.Obligation
	Duplicate  bool
}

// ReconciliationUseCase is the only writer of obligations. Every operation
// locks the ledger, applies one transition, and commits the obligation, the
// recomputed ledger status and the outbox events together.
type ReconciliationUseCase struct {
	txManager   TransactionManager
	ledgerRepo  LedgerRepository
	refRepo     ExternalReferenceRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	statusCache StatusCache
	retrier     Retrier
	idGen       IDGenerator
	clock       Clock
	metrics     *metrics.Metrics
}

// NewReconciliationUseCase creates a new ReconciliationUseCase. auditRepo,
// statusCache and metrics may be nil.
func NewReconciliationUseCase(
	txManager TransactionManager,
	ledgerRepo LedgerRepository,
	refRepo ExternalReferenceRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	statusCache StatusCache,
	retrier Retrier,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		txManager:   txManager,
		ledgerRepo:  ledgerRepo,
		refRepo:     refRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		statusCache: statusCache,
		retrier:     retrier,
		idGen:       idGen,
		clock:       clock,
		metrics:     metrics,
	}
}

type operation struct {
	name     string
	ledgerID string
	partyID  string
	action   domain.AuditAction
	// settlement and kind are set for funding and payment operations.
	settlement *SettlementInput
	kind       domain.LedgerKind
	mutate     func(ledger *domain.Ledger, now time.Time) (*domain.Obligation, error)
	events     func(ledger *domain.Ledger, o *domain.Obligation, now time.Time) []*domain.OutboxEvent
}

// RecordFunding applies a partner's funding to a cash call.
func (uc *ReconciliationUseCase) RecordFunding(ctx context.Context, in SettlementInput) (*ReconciliationResult, error) {
	return uc.recordSettlement(ctx, "record_funding", domain.LedgerKindCashCall, in)
}

// RecordPayment applies a partner's payment to a JIB statement.
func (uc *ReconciliationUseCase) RecordPayment(ctx context.Context, in SettlementInput) (*ReconciliationResult, error) {
	return uc.recordSettlement(ctx, "record_payment", domain.LedgerKindJIB, in)
}

func (uc *ReconciliationUseCase) recordSettlement(ctx context.Context, name string, kind domain.LedgerKind, in SettlementInput) (*ReconciliationResult, error) {
	in.ExternalReference = strings.TrimSpace(in.ExternalReference)

	action, eventType := domain.AuditActionObligationFund, domain.EventTypeObligationFunded
	if kind == domain.LedgerKindJIB {
		action, eventType = domain.AuditActionObligationPay, domain.EventTypeObligationPaid
	}

	req := domain.SettlementRequest{
		Amount:            in.Amount,
		ExternalReference: in.ExternalReference,
		ValueDate:         in.ValueDate,
		AllowOverpayment:  in.AllowOverpayment,
	}

	return uc.execute(ctx, operation{
		name:       name,
		ledgerID:   in.LedgerID,
		partyID:    in.PartyID,
		action:     action,
		settlement: &in,
		kind:       kind,
		mutate: func(ledger *domain.Ledger, now time.Time) (*domain.Obligation, error) {
			if kind == domain.LedgerKindJIB {
				return ledger.RecordPayment(in.PartyID, req, now)
			}
			return ledger.RecordFunding(in.PartyID, req, now)
		},
		events: func(ledger *domain.Ledger, o *domain.Obligation, now time.Time) []*domain.OutboxEvent {
			return []*domain.OutboxEvent{
				newEvent(uc.idGen, o.ID, domain.AggregateTypeObligation, eventType, domain.ObligationSettledEvent{
					LedgerID:          ledger.ID,
					ObligationID:      o.ID,
					PartyID:           o.PartyID,
					Amount:            in.Amount.String(),
					SettledAmount:     o.SettledAmount.String(),
					RequestedAmount:   o.RequestedAmount.String(),
					OverpaidAmount:    o.OverpaidAmount.String(),
					Currency:          o.Currency,
					Status:            string(o.Status),
					ExternalReference: in.ExternalReference,
					EventAt:           now.Format(time.RFC3339),
				}, now),
			}
		},
	})
}

// MarkDispute records a partner dispute. The reason is required.
func (uc *ReconciliationUseCase) MarkDispute(ctx context.Context, ledgerID, partyID, reason string) (*ReconciliationResult, error) {
	return uc.execute(ctx, operation{
		name:     "mark_dispute",
		ledgerID: ledgerID,
		partyID:  partyID,
		action:   domain.AuditActionObligationDispute,
		mutate: func(ledger *domain.Ledger, now time.Time) (*domain.Obligation, error) {
			return ledger.MarkDispute(partyID, reason, now)
		},
		events: func(ledger *domain.Ledger, o *domain.Obligation, now time.Time) []*domain.OutboxEvent {
			return []*domain.OutboxEvent{disputeEvent(uc.idGen, domain.EventTypeObligationDisputed, ledger, o, o.DisputeReason, now)}
		},
	})
}

// ResolveDispute closes a dispute without a new settlement.
func (uc *ReconciliationUseCase) ResolveDispute(ctx context.Context, ledgerID, partyID, note string) (*ReconciliationResult, error) {
	return uc.execute(ctx, operation{
		name:     "resolve_dispute",
		ledgerID: ledgerID,
		partyID:  partyID,
		action:   domain.AuditActionObligationResolve,
		mutate: func(ledger *domain.Ledger, now time.Time) (*domain.Obligation, error) {
			return ledger.ResolveDispute(partyID, note, now)
		},
		events: func(ledger *domain.Ledger, o *domain.Obligation, now time.Time) []*domain.OutboxEvent {
			return []*domain.OutboxEvent{disputeEvent(uc.idGen, domain.EventTypeObligationDisputeClosed, ledger, o, note, now)}
		},
	})
}

// MarkDefault defaults a partner whose obligation is past the ledger due date.
// The due date is evaluated against the service clock.
func (uc *ReconciliationUseCase) MarkDefault(ctx context.Context, ledgerID, partyID string, penalty *decimal.Decimal) (*ReconciliationResult, error) {
	return uc.execute(ctx, operation{
		name:     "mark_default",
		ledgerID: ledgerID,
		partyID:  partyID,
		action:   domain.AuditActionObligationDefault,
		mutate: func(ledger *domain.Ledger, now time.Time) (*domain.Obligation, error) {
			return ledger.MarkDefault(partyID, penalty, now)
		},
		events: func(ledger *domain.Ledger, o *domain.Obligation, now time.Time) []*domain.OutboxEvent {
			payload := domain.PartnerDefaultedEvent{
				LedgerID:     ledger.ID,
				ObligationID: o.ID,
				PartyID:      o.PartyID,
				Outstanding:  o.Outstanding().String(),
				Currency:     o.Currency,
				DueDate:      ledger.DueDate.Format(time.RFC3339),
				EventAt:      now.Format(time.RFC3339),
			}
			if o.PenaltyAmount != nil {
				payload.PenaltyAmount = o.PenaltyAmount.String()
			}
			return []*domain.OutboxEvent{
				newEvent(uc.idGen, o.ID, domain.AggregateTypeObligation, domain.EventTypePartnerDefaulted, payload, now),
			}
		},
	})
}

func (uc *ReconciliationUseCase) execute(ctx context.Context, op operation) (*ReconciliationResult, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().
		Str("operation", op.name).
		Str("ledger_id", op.ledgerID).
		Str("party_id", op.partyID).
		Logger()

	var (
		result   *ReconciliationResult
		attempts int
	)
	err := uc.retrier.Retry(ctx, func() error {
		attempts++
		if attempts > 1 && uc.metrics != nil {
			uc.metrics.ConcurrentRetries.Inc()
		}
		var err error
		result, err = uc.executeOnce(ctx, op)
		return err
	})
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.TransitionErrors.WithLabelValues(op.name, errorType(err)).Inc()
		}
		logger.Debug().Err(err).Msg("transition rejected")
		return nil, err
	}

	if result.Duplicate {
		if uc.metrics != nil {
			uc.metrics.DuplicateReferences.Inc()
		}
		logger.Info().Str("external_reference", op.settlement.ExternalReference).Msg("external reference already applied")
		return result, nil
	}

	uc.observe(op, result, time.Since(start))
	cacheStatus(ctx, uc.statusCache, result.Ledger)
	logger.Info().
		Str("obligation_status", string(result.Obligation.Status)).
		Str("ledger_status", string(result.Ledger.Status)).
		Msg("obligation updated")

	return result, nil
}

func (uc *ReconciliationUseCase) executeOnce(ctx context.Context, op operation) (*ReconciliationResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Lock ledger
	ledger, err := uc.ledgerRepo.GetByIDForUpdate(txCtx, tx, op.ledgerID)
	if err != nil {
		return nil, err
	}

	// A reference recorded on a cash call must not replay as a JIB payment.
	if op.kind != "" && ledger.Kind != op.kind {
		return nil, fmt.Errorf("%w: ledger %s is a %s", domain.ErrInvalidStateTransition, ledger.ID, ledger.Kind)
	}

	if s := op.settlement; s != nil && s.ExternalReference != "" {
		existing, err := uc.refRepo.Get(txCtx, tx, ledger.ID, s.ExternalReference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.PartyID != s.PartyID || !existing.Amount.Equal(s.Amount) {
				return nil, fmt.Errorf("%w: %s was applied to party %s for %s",
					domain.ErrExternalReferenceConflict, s.ExternalReference, existing.PartyID, existing.Amount.String())
			}
			applied, err := ledger.Obligation(existing.PartyID)
			if err != nil {
				return nil, err
			}
			return &ReconciliationResult{Ledger: ledger, Obligation: applied, Duplicate: true}, nil
		}
	}

	current, err := ledger.Obligation(op.partyID)
	if err != nil {
		return nil, err
	}

	before := obligationSnapshot(current)
	wasSatisfied := ledger.IsFullySatisfied()
	now := uc.clock.Now()

	obligation, err := op.mutate(ledger, now)
	if err != nil {
		return nil, err
	}

	if err := uc.ledgerRepo.Update(txCtx, tx, ledger, obligation); err != nil {
		return nil, err
	}

	if s := op.settlement; s != nil && s.ExternalReference != "" {
		err := uc.refRepo.Create(txCtx, tx, &ExternalReference{
			LedgerID:     ledger.ID,
			Reference:    s.ExternalReference,
			ObligationID: obligation.ID,
			PartyID:      obligation.PartyID,
			Amount:       s.Amount,
			CreatedAt:    now,
		})
		if errors.Is(err, domain.ErrDuplicateExternalReference) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConcurrentModification, err)
		}
		if err != nil {
			return nil, err
		}
	}

	events := op.events(ledger, obligation, now)
	if !wasSatisfied && ledger.IsFullySatisfied() {
		events = append(events, fullySatisfiedEvent(uc.idGen, ledger, now))
	}
	for _, event := range events {
		if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, op.action,
		domain.AggregateTypeObligation, obligation.ID, before, obligationSnapshot(obligation), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return &ReconciliationResult{Ledger: ledger, Obligation: obligation}, nil
}

func (uc *ReconciliationUseCase) observe(op operation, result *ReconciliationResult, elapsed time.Duration) {
	if uc.metrics == nil {
		return
	}
	kind := string(result.Ledger.Kind)
	switch op.action {
	case domain.AuditActionObligationFund, domain.AuditActionObligationPay:
		uc.metrics.Settlements.WithLabelValues(kind).Inc()
		uc.metrics.SettlementAmount.WithLabelValues(kind).Observe(op.settlement.Amount.InexactFloat64())
	case domain.AuditActionObligationDispute:
		uc.metrics.Disputes.WithLabelValues("opened").Inc()
	case domain.AuditActionObligationResolve:
		uc.metrics.Disputes.WithLabelValues("resolved").Inc()
	case domain.AuditActionObligationDefault:
		uc.metrics.Defaults.WithLabelValues(kind).Inc()
	}
	uc.metrics.LedgerStatus.WithLabelValues(string(result.Ledger.Status)).Inc()
	uc.metrics.OperationDuration.WithLabelValues(op.name).Observe(elapsed.Seconds())
}

func disputeEvent(idGen IDGenerator, eventType string, ledger *domain.Ledger, o *domain.Obligation, reason string, now time.Time) *domain.OutboxEvent {
	return newEvent(idGen, o.ID, domain.AggregateTypeObligation, eventType, domain.ObligationDisputedEvent{
		LedgerID:     ledger.ID,
		ObligationID: o.ID,
		PartyID:      o.PartyID,
		Reason:       reason,
		Status:       string(o.Status),
		EventAt:      now.Format(time.RFC3339),
	}, now)
}

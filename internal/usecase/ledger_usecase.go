package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/infrastructure/metrics"
)

// CreateCashCallInput is the request to create a cash call.
type CreateCashCallInput struct {
	Code        string
	ContractID  string
	Currency    string
	TotalAmount decimal.Decimal
	CallDate    time.Time
	DueDate     time.Time
}

// CreateJIBStatementInput is the request to create a JIB statement.
type CreateJIBStatementInput struct {
	Code        string
	ContractID  string
	Currency    string
	LineItems   []domain.LineItem
	BillingDate time.Time
	DueDate     time.Time
}

// VerificationResult reports whether a ledger's stored status still matches
// the status rebuilt from its obligations.
type VerificationResult struct {
	LedgerID      string
	StoredStatus  domain.LedgerStatus
	DerivedStatus domain.LedgerStatus
	Consistent    bool
	Problem       string
	CheckedAt     time.Time
}

// LedgerUseCase creates, sends and reads cash calls and JIB statements.
type LedgerUseCase struct {
	txManager   TransactionManager
	ledgerRepo  LedgerRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	interests   WorkingInterestProvider
	statusCache StatusCache
	retrier     Retrier
	idGen       IDGenerator
	clock       Clock
	metrics     *metrics.Metrics
}

// NewLedgerUseCase creates a new LedgerUseCase. auditRepo, statusCache and
// metrics may be nil.
func NewLedgerUseCase(
	txManager TransactionManager,
	ledgerRepo LedgerRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	interests WorkingInterestProvider,
	statusCache StatusCache,
	retrier Retrier,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:   txManager,
		ledgerRepo:  ledgerRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		interests:   interests,
		statusCache: statusCache,
		retrier:     retrier,
		idGen:       idGen,
		clock:       clock,
		metrics:     metrics,
	}
}

// CreateCashCall allocates a funding request across the contract's partners.
func (uc *LedgerUseCase) CreateCashCall(ctx context.Context, in CreateCashCallInput) (*domain.Ledger, error) {
	return uc.create(ctx, domain.NewLedgerParams{
		Code:        in.Code,
		Kind:        domain.LedgerKindCashCall,
		ContractID:  in.ContractID,
		Currency:    in.Currency,
		TotalAmount: in.TotalAmount,
		LedgerDate:  in.CallDate,
		DueDate:     in.DueDate,
	})
}

// CreateJIBStatement allocates billed line items across the contract's partners.
func (uc *LedgerUseCase) CreateJIBStatement(ctx context.Context, in CreateJIBStatementInput) (*domain.Ledger, error) {
	return uc.create(ctx, domain.NewLedgerParams{
		Code:       in.Code,
		Kind:       domain.LedgerKindJIB,
		ContractID: in.ContractID,
		Currency:   in.Currency,
		LineItems:  in.LineItems,
		LedgerDate: in.BillingDate,
		DueDate:    in.DueDate,
	})
}

func (uc *LedgerUseCase) create(ctx context.Context, params domain.NewLedgerParams) (*domain.Ledger, error) {
	start := time.Now()

	interests, err := uc.interests.GetWorkingInterests(ctx, params.ContractID, params.LedgerDate)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	ledger, err := domain.NewLedger(params, interests, uc.idGen.Generate, now)
	if err != nil {
		uc.recordFailure("create", err)
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.ledgerRepo.Create(txCtx, tx, ledger); err != nil {
		return nil, err
	}

	event := newEvent(uc.idGen, ledger.ID, domain.AggregateTypeLedger, domain.EventTypeLedgerCreated, domain.LedgerCreatedEvent{
		LedgerID:    ledger.ID,
		Code:        ledger.Code,
		Kind:        string(ledger.Kind),
		ContractID:  ledger.ContractID,
		TotalAmount: ledger.TotalAmount.String(),
		Currency:    ledger.Currency,
		Parties:     len(ledger.Obligations),
	}, now)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, err
	}

	if err := writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, domain.AuditActionLedgerCreate,
		domain.AggregateTypeLedger, ledger.ID, nil, ledgerSnapshot(ledger), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.LedgersCreated.WithLabelValues(string(ledger.Kind)).Inc()
		uc.metrics.LedgerAmount.WithLabelValues(string(ledger.Kind)).Observe(ledger.TotalAmount.InexactFloat64())
		uc.metrics.OperationDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}
	cacheStatus(ctx, uc.statusCache, ledger)

	return ledger, nil
}

// SendLedger releases a DRAFT ledger to its partners. Sending an already sent
// ledger changes nothing and reports changed=false.
func (uc *LedgerUseCase) SendLedger(ctx context.Context, ledgerID string) (*domain.Ledger, bool, error) {
	start := time.Now()

	var (
		ledger  *domain.Ledger
		changed bool
	)
	err := uc.retrier.Retry(ctx, func() error {
		var err error
		ledger, changed, err = uc.sendOnce(ctx, ledgerID)
		return err
	})
	if err != nil {
		uc.recordFailure("send", err)
		return nil, false, err
	}

	if changed {
		if uc.metrics != nil {
			uc.metrics.LedgersSent.WithLabelValues(string(ledger.Kind)).Inc()
			uc.metrics.LedgerStatus.WithLabelValues(string(ledger.Status)).Inc()
			uc.metrics.OperationDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
		}
		cacheStatus(ctx, uc.statusCache, ledger)
	}

	return ledger, changed, nil
}

func (uc *LedgerUseCase) sendOnce(ctx context.Context, ledgerID string) (*domain.Ledger, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	ledger, err := uc.ledgerRepo.GetByIDForUpdate(txCtx, tx, ledgerID)
	if err != nil {
		return nil, false, err
	}

	now := uc.clock.Now()
	if !ledger.Send(now) {
		return ledger, false, nil
	}

	if err := uc.ledgerRepo.Update(txCtx, tx, ledger, ledger.Obligations...); err != nil {
		return nil, false, err
	}

	events := []*domain.OutboxEvent{
		newEvent(uc.idGen, ledger.ID, domain.AggregateTypeLedger, domain.EventTypeLedgerSent, domain.LedgerSentEvent{
			LedgerID: ledger.ID,
			Kind:     string(ledger.Kind),
			DueDate:  ledger.DueDate.Format(time.RFC3339),
			SentAt:   now.Format(time.RFC3339),
		}, now),
	}
	if ledger.IsFullySatisfied() {
		events = append(events, fullySatisfiedEvent(uc.idGen, ledger, now))
	}
	for _, event := range events {
		if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
			return nil, false, err
		}
	}

	if err := writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, domain.AuditActionLedgerSend,
		domain.AggregateTypeLedger, ledger.ID, nil, ledgerSnapshot(ledger), now); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, false, err
	}

	return ledger, true, nil
}

// GetLedger returns a ledger with its obligations.
func (uc *LedgerUseCase) GetLedger(ctx context.Context, ledgerID string) (*domain.Ledger, error) {
	return uc.ledgerRepo.GetByID(ctx, ledgerID)
}

// ListLedgers lists ledgers, newest first.
func (uc *LedgerUseCase) ListLedgers(ctx context.Context, filter LedgerFilter) ([]*domain.Ledger, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.ledgerRepo.List(ctx, filter)
}

// GetLedgerStatus returns the aggregate status, served from cache when possible.
func (uc *LedgerUseCase) GetLedgerStatus(ctx context.Context, ledgerID string) (domain.LedgerStatus, error) {
	if uc.statusCache != nil {
		status, ok, err := uc.statusCache.Get(ctx, ledgerID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("ledger_id", ledgerID).Msg("status cache read failed")
		} else if ok {
			return status, nil
		}
	}

	ledger, err := uc.ledgerRepo.GetByID(ctx, ledgerID)
	if err != nil {
		return "", err
	}
	status := ledger.DeriveStatus()
	cacheStatus(ctx, uc.statusCache, ledger)
	return status, nil
}

// VerifyLedger rebuilds the aggregate status from the obligations and
// compares it with the stored and cached status.
func (uc *LedgerUseCase) VerifyLedger(ctx context.Context, ledgerID string) (*VerificationResult, error) {
	ledger, err := uc.ledgerRepo.GetByID(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		LedgerID:      ledger.ID,
		StoredStatus:  ledger.Status,
		DerivedStatus: ledger.DeriveStatus(),
		Consistent:    true,
		CheckedAt:     uc.clock.Now(),
	}

	if err := ledger.Verify(); err != nil {
		if !errors.Is(err, domain.ErrLedgerInconsistent) {
			return nil, err
		}
		result.Consistent = false
		result.Problem = err.Error()
	}

	if uc.statusCache != nil {
		cached, ok, err := uc.statusCache.Get(ctx, ledgerID)
		if err == nil && ok && cached != result.DerivedStatus {
			if result.Consistent {
				result.Consistent = false
				result.Problem = "cached status " + string(cached) + " differs from derived " + string(result.DerivedStatus)
			}
			cacheStatus(ctx, uc.statusCache, ledger)
		}
	}

	if !result.Consistent {
		zerolog.Ctx(ctx).Error().
			Str("ledger_id", ledgerID).
			Str("stored_status", string(result.StoredStatus)).
			Str("derived_status", string(result.DerivedStatus)).
			Msg(result.Problem)
		if uc.metrics != nil {
			uc.metrics.StatusDriftsDetected.Inc()
		}
	}

	return result, nil
}

// ListAuditTrail returns audit entries, newest first.
func (uc *LedgerUseCase) ListAuditTrail(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	if uc.auditRepo == nil {
		return nil, nil
	}
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.auditRepo.List(ctx, filter)
}

// ListEvents returns the outbox events recorded for one aggregate.
func (uc *LedgerUseCase) ListEvents(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.outboxRepo.GetByAggregate(ctx, aggregateType, aggregateID, limit, offset)
}

func (uc *LedgerUseCase) recordFailure(operation string, err error) {
	if uc.metrics != nil {
		uc.metrics.TransitionErrors.WithLabelValues(operation, errorType(err)).Inc()
	}
}

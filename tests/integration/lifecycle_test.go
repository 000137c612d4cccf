package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
	"github.com/iho/jibledger/tests/testutil"
)

var (
	callDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dueDate  = callDate.AddDate(0, 0, 30)
)

func TestCashCallLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	db.SeedWorkingInterests(ctx, "K-1", map[string]int64{"A": 60, "B": 25, "C": 15})
	svc := db.NewServices(testutil.NewClock(callDate), nil)

	ledger, err := svc.Ledgers.CreateCashCall(ctx, usecase.CreateCashCallInput{
		Code:        "CC-" + testutil.GenerateID(),
		ContractID:  "K-1",
		Currency:    "USD",
		TotalAmount: testutil.Amount("100000.00"),
		CallDate:    callDate,
		DueDate:     dueDate,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusDraft, ledger.Status)
	assert.True(t, testutil.ObligationFor(t, ledger, "A").RequestedAmount.Equal(testutil.Amount("60000")))

	_, changed, err := svc.Ledgers.SendLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	res, err := svc.Recon.RecordFunding(ctx, usecase.SettlementInput{
		LedgerID: ledger.ID, PartyID: "A", Amount: testutil.Amount("60000.00"), ExternalReference: "wire-A",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusFunded, res.Obligation.Status)
	assert.Equal(t, domain.LedgerStatusPartiallyFunded, res.Ledger.Status)

	replay, err := svc.Recon.RecordFunding(ctx, usecase.SettlementInput{
		LedgerID: ledger.ID, PartyID: "A", Amount: testutil.Amount("60000.00"), ExternalReference: "wire-A",
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	_, err = svc.Recon.RecordFunding(ctx, usecase.SettlementInput{
		LedgerID: ledger.ID, PartyID: "B", Amount: testutil.Amount("1.00"), ExternalReference: "wire-A",
	})
	assert.True(t, errors.Is(err, domain.ErrExternalReferenceConflict), "got %v", err)

	for party, amount := range map[string]string{"B": "25000", "C": "15000"} {
		_, err := svc.Recon.RecordFunding(ctx, usecase.SettlementInput{
			LedgerID: ledger.ID, PartyID: party, Amount: testutil.Amount(amount),
		})
		require.NoError(t, err)
	}

	stored, err := svc.Ledgers.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusFunded, stored.Status)
	require.NoError(t, stored.Verify())

	result, err := svc.Ledgers.VerifyLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)

	events, err := svc.Outbox.GetByAggregate(ctx, domain.AggregateTypeLedger, ledger.ID, 100, 0)
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	assert.Contains(t, types, domain.EventTypeLedgerCreated)
	assert.Contains(t, types, domain.EventTypeLedgerSent)
	assert.Contains(t, types, domain.EventTypeLedgerFullySatisfied)
}

func TestJIBDisputeAndDefault(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	db.SeedWorkingInterests(ctx, "K-2", map[string]int64{"A": 50, "B": 50})
	clock := testutil.NewClock(callDate)
	svc := db.NewServices(clock, nil)

	ledger, err := svc.Ledgers.CreateJIBStatement(ctx, usecase.CreateJIBStatementInput{
		Code:       "JIB-" + testutil.GenerateID(),
		ContractID: "K-2",
		Currency:   "USD",
		LineItems: []domain.LineItem{
			{Description: "rig day rate", Amount: testutil.Amount("12500.00")},
			{Description: "mud", Amount: testutil.Amount("830.25")},
		},
		BillingDate: callDate,
		DueDate:     dueDate,
	})
	require.NoError(t, err)
	assert.True(t, ledger.TotalAmount.Equal(testutil.Amount("13330.25")))

	_, _, err = svc.Ledgers.SendLedger(ctx, ledger.ID)
	require.NoError(t, err)

	ctx = domain.ContextWithActor(ctx, "jv-accountant")
	res, err := svc.Recon.MarkDispute(ctx, ledger.ID, "A", "rig rate exceeds AFE")
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusDisputed, res.Ledger.Status)

	res, err = svc.Recon.ResolveDispute(ctx, ledger.ID, "A", "rate confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusInvoiced, res.Obligation.Status)

	_, err = svc.Recon.MarkDefault(ctx, ledger.ID, "B", nil)
	assert.True(t, errors.Is(err, domain.ErrNotYetDue), "got %v", err)

	clock.Set(dueDate.Add(24 * time.Hour))
	penalty := testutil.Amount("250.00")
	res, err = svc.Recon.MarkDefault(ctx, ledger.ID, "B", &penalty)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusDefaulted, res.Ledger.Status)

	_, err = svc.Recon.RecordPayment(ctx, usecase.SettlementInput{LedgerID: ledger.ID, PartyID: "B", Amount: testutil.Amount("1")})
	assert.True(t, errors.Is(err, domain.ErrAlreadyTerminal), "got %v", err)

	stored, err := svc.Ledgers.GetLedger(ctx, ledger.ID)
	require.NoError(t, err)
	b := testutil.ObligationFor(t, stored, "B")
	require.NotNil(t, b.PenaltyAmount)
	assert.True(t, b.PenaltyAmount.Equal(penalty))
	assert.NotEmpty(t, b.History)

	trail, err := svc.Ledgers.ListAuditTrail(ctx, domain.AuditFilter{ActorID: "jv-accountant"})
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

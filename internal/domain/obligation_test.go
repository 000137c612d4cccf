package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func openObligation(kind LedgerKind, requested string) *Obligation {
	o := &Obligation{
		ID:              "obl-1",
		LedgerID:        "led-1",
		PartyID:         "A",
		Kind:            kind,
		RequestedAmount: decimal.RequireFromString(requested),
		SettledAmount:   decimal.Zero,
		OverpaidAmount:  decimal.Zero,
		Currency:        "USD",
		Status:          ObligationStatusPending,
	}
	o.send(callDate)
	return o
}

func TestObligation_SettleRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"0", "-5.00", "1.005"} {
		o := openObligation(LedgerKindCashCall, "100.00")
		err := o.Settle(settle(amount, ""), callDate)
		if !errors.Is(err, ErrInvalidPaymentAmount) {
			t.Fatalf("amount %s: expected ErrInvalidPaymentAmount, got %v", amount, err)
		}
		if !o.SettledAmount.IsZero() || o.Status != ObligationStatusPending || len(o.History) != 0 {
			t.Fatalf("amount %s: failed settle mutated obligation: %+v", amount, o)
		}
	}
}

func TestObligation_Overpayment(t *testing.T) {
	t.Parallel()

	t.Run("rejected by default", func(t *testing.T) {
		o := openObligation(LedgerKindCashCall, "100.00")
		if err := o.Settle(settle("100.01", "wire-1"), callDate); !errors.Is(err, ErrInvalidPaymentAmount) {
			t.Fatalf("expected ErrInvalidPaymentAmount, got %v", err)
		}
		if !o.SettledAmount.IsZero() {
			t.Fatalf("expected no change, got settled %s", o.SettledAmount)
		}
	})

	t.Run("recorded separately when allowed", func(t *testing.T) {
		o := openObligation(LedgerKindCashCall, "100.00")
		req := settle("120.00", "wire-1")
		req.AllowOverpayment = true
		if err := o.Settle(req, callDate); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !o.SettledAmount.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("settled amount must be capped at requested, got %s", o.SettledAmount)
		}
		if !o.OverpaidAmount.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("expected overpaid 20, got %s", o.OverpaidAmount)
		}
		if len(o.Settlements) != 2 || o.Settlements[1].Kind != SettlementKindOverpayment {
			t.Fatalf("expected payment and overpayment entries, got %+v", o.Settlements)
		}
		if o.Status != ObligationStatusFunded {
			t.Fatalf("expected FUNDED, got %s", o.Status)
		}
	})
}

func TestObligation_FundingIsMonotonic(t *testing.T) {
	t.Parallel()

	o := openObligation(LedgerKindCashCall, "100.00")
	previous := o.SettledAmount
	for _, amount := range []string{"10.00", "0.01", "39.99", "50.00"} {
		if err := o.Settle(settle(amount, ""), callDate); err != nil {
			t.Fatalf("settle %s: %v", amount, err)
		}
		if o.SettledAmount.LessThan(previous) {
			t.Fatalf("settled amount decreased from %s to %s", previous, o.SettledAmount)
		}
		previous = o.SettledAmount
	}
	if o.Status != ObligationStatusFunded {
		t.Fatalf("expected FUNDED, got %s", o.Status)
	}
	if len(o.Settlements) != 4 {
		t.Fatalf("expected full settlement history, got %d entries", len(o.Settlements))
	}
}

func TestObligation_TerminalImmutability(t *testing.T) {
	t.Parallel()

	funded := openObligation(LedgerKindCashCall, "10.00")
	if err := funded.Settle(settle("10.00", ""), callDate); err != nil {
		t.Fatalf("settle: %v", err)
	}

	paid := openObligation(LedgerKindJIB, "10.00")
	if err := paid.Settle(settle("10.00", ""), callDate); err != nil {
		t.Fatalf("settle: %v", err)
	}

	defaulted := openObligation(LedgerKindCashCall, "10.00")
	if err := defaulted.Default(dueDate, nil, dueDate.Add(time.Second)); err != nil {
		t.Fatalf("default: %v", err)
	}

	for _, o := range []*Obligation{funded, paid, defaulted} {
		before := o.Clone()
		actions := map[string]error{
			"settle":  o.Settle(settle("1.00", ""), callDate),
			"dispute": o.Dispute("late", callDate),
			"default": o.Default(dueDate, nil, dueDate.Add(time.Hour)),
		}
		for name, err := range actions {
			if !errors.Is(err, ErrAlreadyTerminal) {
				t.Fatalf("%s on %s: expected ErrAlreadyTerminal, got %v", name, o.Status, err)
			}
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("%s on %s: expected error to also be a state transition error", name, o.Status)
			}
		}
		if !o.SettledAmount.Equal(before.SettledAmount) || o.Status != before.Status || len(o.History) != len(before.History) {
			t.Fatalf("terminal obligation mutated: before %+v after %+v", before, o)
		}
	}
}

func TestObligation_DisputeKeepsProgress(t *testing.T) {
	t.Parallel()

	o := openObligation(LedgerKindCashCall, "100.00")
	if err := o.Settle(settle("40.00", ""), callDate); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if err := o.Dispute("   ", callDate); !errors.Is(err, ErrDisputeReasonRequired) {
		t.Fatalf("expected ErrDisputeReasonRequired, got %v", err)
	}
	if err := o.Dispute("AFE not approved", callDate); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if o.Status != ObligationStatusDisputed || !o.SettledAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected state after dispute: %s %s", o.Status, o.SettledAmount)
	}
	if err := o.Dispute("again", callDate); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected re-dispute to be rejected, got %v", err)
	}
	if err := o.Default(dueDate, nil, dueDate.Add(time.Hour)); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected default of disputed obligation to be rejected, got %v", err)
	}

	if err := o.ResolveDispute("", callDate); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if o.Status != ObligationStatusPartial || o.DisputeReason != "" {
		t.Fatalf("expected PARTIAL after resolution, got %s (%q)", o.Status, o.DisputeReason)
	}

	wantPath := []ObligationStatus{ObligationStatusPartial, ObligationStatusDisputed, ObligationStatusPartial}
	if len(o.History) != len(wantPath) {
		t.Fatalf("expected %d history entries, got %d", len(wantPath), len(o.History))
	}
	for i, want := range wantPath {
		if o.History[i].To != want {
			t.Errorf("history[%d]: expected %s, got %s", i, want, o.History[i].To)
		}
	}
}

func TestObligation_DefaultPenalty(t *testing.T) {
	t.Parallel()

	after := dueDate.Add(time.Hour)

	o := openObligation(LedgerKindCashCall, "100.00")
	negative := decimal.NewFromInt(-1)
	if err := o.Default(dueDate, &negative, after); !errors.Is(err, ErrInvalidPenaltyAmount) {
		t.Fatalf("expected ErrInvalidPenaltyAmount, got %v", err)
	}
	if o.Status != ObligationStatusPending || o.PenaltyAmount != nil {
		t.Fatalf("failed default mutated obligation: %+v", o)
	}

	penalty := decimal.RequireFromString("12.50")
	if err := o.Default(dueDate, &penalty, after); err != nil {
		t.Fatalf("default: %v", err)
	}
	if o.PenaltyAmount == nil || !o.PenaltyAmount.Equal(penalty) {
		t.Fatalf("expected penalty 12.50, got %v", o.PenaltyAmount)
	}
	if !o.SettledAmount.IsZero() {
		t.Fatalf("penalty must not be blended into settled amount, got %s", o.SettledAmount)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   LedgerKind
		from   ObligationStatus
		action ObligationAction
		want   bool
	}{
		{LedgerKindCashCall, ObligationStatusPending, ActionSettle, true},
		{LedgerKindCashCall, ObligationStatusDisputed, ActionSettle, true},
		{LedgerKindCashCall, ObligationStatusDisputed, ActionDefault, false},
		{LedgerKindCashCall, ObligationStatusFunded, ActionDispute, false},
		{LedgerKindJIB, ObligationStatusPending, ActionSettle, false},
		{LedgerKindJIB, ObligationStatusInvoiced, ActionDefault, true},
		{LedgerKindJIB, ObligationStatusPartiallyPaid, ActionDispute, true},
		{LedgerKindJIB, ObligationStatusPaid, ActionSettle, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.kind, tt.from, tt.action); got != tt.want {
			t.Errorf("CanTransition(%s, %s, %s) = %v, want %v", tt.kind, tt.from, tt.action, got, tt.want)
		}
	}
}

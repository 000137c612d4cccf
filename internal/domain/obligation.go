package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementKind classifies a settlement history entry.
type SettlementKind string

const (
	SettlementKindPayment     SettlementKind = "payment"
	SettlementKindOverpayment SettlementKind = "overpayment"
)

// Settlement is an append-only record of money received against an obligation.
type Settlement struct {
	ExternalReference string
	Amount            decimal.Decimal
	Kind              SettlementKind
	ValueDate         time.Time
	RecordedAt        time.Time
}

// StatusChange is an append-only record of a status transition.
type StatusChange struct {
	From   ObligationStatus
	To     ObligationStatus
	Reason string
	At     time.Time
}

// SettlementRequest describes a funding (cash call) or payment (JIB) to apply.
type SettlementRequest struct {
	Amount            decimal.Decimal
	ExternalReference string
	ValueDate         time.Time
	AllowOverpayment  bool
}

// Obligation is one party's share of a ledger.
type Obligation struct {
	ID                     string
	LedgerID               string
	PartyID                string
	Kind                   LedgerKind
	WorkingInterestPercent decimal.Decimal
	RequestedAmount        decimal.Decimal
	SettledAmount          decimal.Decimal
	OverpaidAmount         decimal.Decimal
	PenaltyAmount          *decimal.Decimal
	Currency               string
	Status                 ObligationStatus
	DisputeReason          string
	LastSettledAt          *time.Time
	History                []StatusChange
	Settlements            []Settlement
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Outstanding is the amount still owed.
func (o *Obligation) Outstanding() decimal.Decimal {
	return o.RequestedAmount.Sub(o.SettledAmount)
}

// Clone returns a deep copy.
func (o *Obligation) Clone() *Obligation {
	c := *o
	if o.PenaltyAmount != nil {
		p := *o.PenaltyAmount
		c.PenaltyAmount = &p
	}
	if o.LastSettledAt != nil {
		t := *o.LastSettledAt
		c.LastSettledAt = &t
	}
	c.History = append([]StatusChange(nil), o.History...)
	c.Settlements = append([]Settlement(nil), o.Settlements...)
	return &c
}

func (o *Obligation) baseStatus() ObligationStatus {
	if o.Kind == LedgerKindJIB {
		return ObligationStatusInvoiced
	}
	return ObligationStatusPending
}

func (o *Obligation) partialStatus() ObligationStatus {
	if o.Kind == LedgerKindJIB {
		return ObligationStatusPartiallyPaid
	}
	return ObligationStatusPartial
}

func (o *Obligation) satisfiedStatus() ObligationStatus {
	if o.Kind == LedgerKindJIB {
		return ObligationStatusPaid
	}
	return ObligationStatusFunded
}

// statusForAmounts is the non-disputed status implied by the settled amount.
func (o *Obligation) statusForAmounts() ObligationStatus {
	switch {
	case o.SettledAmount.GreaterThanOrEqual(o.RequestedAmount):
		return o.satisfiedStatus()
	case o.SettledAmount.IsPositive():
		return o.partialStatus()
	default:
		return o.baseStatus()
	}
}

func (o *Obligation) checkAction(action ObligationAction) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: %w: obligation %s is %s", ErrAlreadyTerminal, ErrInvalidStateTransition, o.PartyID, o.Status)
	}
	if !CanTransition(o.Kind, o.Status, action) {
		return fmt.Errorf("%w: cannot %s %s obligation in status %s", ErrInvalidStateTransition, action, o.Kind, o.Status)
	}
	return nil
}

func (o *Obligation) moveTo(next ObligationStatus, reason string, at time.Time) {
	if next == o.Status {
		return
	}
	o.History = append(o.History, StatusChange{From: o.Status, To: next, Reason: reason, At: at})
	o.Status = next
}

// send moves a freshly created obligation into its open state. JIB obligations
// become INVOICED; zero-amount obligations are satisfied immediately.
func (o *Obligation) send(now time.Time) {
	if !CanTransition(o.Kind, o.Status, ActionSend) {
		return
	}
	if o.Kind == LedgerKindJIB {
		o.moveTo(ObligationStatusInvoiced, "invoiced", now)
	}
	if o.RequestedAmount.IsZero() {
		o.moveTo(o.satisfiedStatus(), "nothing owed", now)
	}
	o.UpdatedAt = now
}

// Settle applies a funding or payment. Amounts above the outstanding balance
// are rejected unless AllowOverpayment is set, in which case the excess is
// recorded as a separate overpayment entry and never added to SettledAmount.
func (o *Obligation) Settle(req SettlementRequest, now time.Time) error {
	if err := o.checkAction(ActionSettle); err != nil {
		return err
	}
	if err := ValidateSettlementAmount(req.Amount, o.Currency); err != nil {
		return err
	}

	applied, excess := req.Amount, decimal.Zero
	if outstanding := o.Outstanding(); req.Amount.GreaterThan(outstanding) {
		if !req.AllowOverpayment {
			return fmt.Errorf("%w: amount %s exceeds outstanding %s", ErrInvalidPaymentAmount, req.Amount.String(), outstanding.String())
		}
		applied, excess = outstanding, req.Amount.Sub(outstanding)
	}

	valueDate := req.ValueDate
	if valueDate.IsZero() {
		valueDate = now
	}

	if applied.IsPositive() {
		o.SettledAmount = o.SettledAmount.Add(applied)
		o.Settlements = append(o.Settlements, Settlement{
			ExternalReference: req.ExternalReference,
			Amount:            applied,
			Kind:              SettlementKindPayment,
			ValueDate:         valueDate,
			RecordedAt:        now,
		})
	}
	if excess.IsPositive() {
		o.OverpaidAmount = o.OverpaidAmount.Add(excess)
		o.Settlements = append(o.Settlements, Settlement{
			ExternalReference: req.ExternalReference,
			Amount:            excess,
			Kind:              SettlementKindOverpayment,
			ValueDate:         valueDate,
			RecordedAt:        now,
		})
	}

	o.LastSettledAt = &valueDate
	o.DisputeReason = ""
	o.moveTo(o.statusForAmounts(), string(SettlementKindPayment), now)
	o.UpdatedAt = now
	return nil
}

// Dispute marks the obligation as disputed. Amounts are untouched.
func (o *Obligation) Dispute(reason string, now time.Time) error {
	if err := o.checkAction(ActionDispute); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: %w", ErrInvalidStateTransition, ErrDisputeReasonRequired)
	}

	o.DisputeReason = reason
	o.moveTo(ObligationStatusDisputed, reason, now)
	o.UpdatedAt = now
	return nil
}

// ResolveDispute returns a disputed obligation to the status implied by its
// amounts without requiring a new settlement.
func (o *Obligation) ResolveDispute(note string, now time.Time) error {
	if err := o.checkAction(ActionResolveDispute); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = "dispute resolved"
	}

	o.DisputeReason = ""
	o.moveTo(o.statusForAmounts(), note, now)
	o.UpdatedAt = now
	return nil
}

// Default marks the obligation as defaulted once dueDate has passed.
// The optional penalty is stored apart from SettledAmount.
func (o *Obligation) Default(dueDate time.Time, penalty *decimal.Decimal, now time.Time) error {
	if err := o.checkAction(ActionDefault); err != nil {
		return err
	}
	if !now.After(dueDate) {
		return fmt.Errorf("%w: %w: due %s", ErrInvalidStateTransition, ErrNotYetDue, dueDate.Format(time.RFC3339))
	}
	if penalty != nil {
		scale, err := CurrencyScale(o.Currency)
		if err != nil {
			return err
		}
		if penalty.IsNegative() || !FitsScale(*penalty, scale) {
			return fmt.Errorf("%w: %s", ErrInvalidPenaltyAmount, penalty.String())
		}
		p := *penalty
		o.PenaltyAmount = &p
	}

	o.moveTo(ObligationStatusDefaulted, "due date passed", now)
	o.UpdatedAt = now
	return nil
}

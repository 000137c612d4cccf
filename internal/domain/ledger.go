package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerStatus is the aggregate status of a cash call or JIB statement.
// It is always derived from the obligations.
type LedgerStatus string

const (
	LedgerStatusDraft           LedgerStatus = "DRAFT"
	LedgerStatusSent            LedgerStatus = "SENT"
	LedgerStatusInvoiced        LedgerStatus = "INVOICED"
	LedgerStatusPartiallyFunded LedgerStatus = "PARTIALLY_FUNDED"
	LedgerStatusPartiallyPaid   LedgerStatus = "PARTIALLY_PAID"
	LedgerStatusFunded          LedgerStatus = "FUNDED"
	LedgerStatusPaid            LedgerStatus = "PAID"
	LedgerStatusDisputed        LedgerStatus = "DISPUTED"
	LedgerStatusDefaulted       LedgerStatus = "DEFAULTED"
)

// LineItem is one billed cost on a JIB statement.
type LineItem struct {
	Description string
	Amount      decimal.Decimal
}

// Ledger is a cash call or JIB statement with one obligation per party.
type Ledger struct {
	ID          string
	Code        string
	Kind        LedgerKind
	ContractID  string
	TotalAmount decimal.Decimal
	Currency    string
	LineItems   []LineItem
	Obligations []*Obligation
	LedgerDate  time.Time
	DueDate     time.Time
	SentAt      *time.Time
	Status      LedgerStatus
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLedgerParams holds the inputs for creating a ledger.
type NewLedgerParams struct {
	Code       string
	Kind       LedgerKind
	ContractID string
	Currency   string
	// TotalAmount is used for cash calls; JIB totals are the sum of LineItems.
	TotalAmount decimal.Decimal
	LineItems   []LineItem
	LedgerDate  time.Time
	DueDate     time.Time
}

// NewLedger validates params, allocates the total across the interests active
// on the ledger date and returns a DRAFT ledger. newID supplies identifiers.
func NewLedger(p NewLedgerParams, interests WorkingInterestSet, newID func() string, now time.Time) (*Ledger, error) {
	if !p.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLedger, p.Kind)
	}
	if strings.TrimSpace(p.ContractID) == "" {
		return nil, fmt.Errorf("%w: contract id is required", ErrInvalidLedger)
	}
	if p.LedgerDate.IsZero() || p.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: ledger date and due date are required", ErrInvalidLedger)
	}
	if p.DueDate.Before(p.LedgerDate) {
		return nil, fmt.Errorf("%w: due date precedes ledger date", ErrInvalidLedger)
	}
	if interests.ContractID != "" && interests.ContractID != p.ContractID {
		return nil, fmt.Errorf("%w: working interests belong to contract %s", ErrInvalidAllocationInput, interests.ContractID)
	}

	currency := NormalizeCurrency(p.Currency)
	total := p.TotalAmount
	var items []LineItem
	if p.Kind == LedgerKindJIB {
		var err error
		total, items, err = sumLineItems(p.LineItems, currency)
		if err != nil {
			return nil, err
		}
	}

	seeds, err := Allocate(total, currency, interests, p.LedgerDate)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		ID:          newID(),
		Code:        strings.TrimSpace(p.Code),
		Kind:        p.Kind,
		ContractID:  p.ContractID,
		TotalAmount: total,
		Currency:    currency,
		LineItems:   items,
		LedgerDate:  p.LedgerDate,
		DueDate:     p.DueDate,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if l.Code == "" {
		l.Code = l.ID
	}

	l.Obligations = make([]*Obligation, len(seeds))
	for i, seed := range seeds {
		l.Obligations[i] = &Obligation{
			ID:                     newID(),
			LedgerID:               l.ID,
			PartyID:                seed.PartyID,
			Kind:                   p.Kind,
			WorkingInterestPercent: seed.WorkingInterestPercent,
			RequestedAmount:        seed.Amount,
			SettledAmount:          decimal.Zero,
			OverpaidAmount:         decimal.Zero,
			Currency:               currency,
			Status:                 ObligationStatusPending,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
	}
	l.Status = l.DeriveStatus()

	return l, nil
}

func sumLineItems(items []LineItem, currency string) (decimal.Decimal, []LineItem, error) {
	if len(items) == 0 {
		return decimal.Zero, nil, fmt.Errorf("%w: JIB statement requires line items", ErrInvalidLedger)
	}
	scale, err := CurrencyScale(currency)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: %w", ErrInvalidAllocationInput, err)
	}

	total := decimal.Zero
	out := make([]LineItem, len(items))
	for i, item := range items {
		if item.Amount.IsNegative() || !FitsScale(item.Amount, scale) {
			return decimal.Zero, nil, fmt.Errorf("%w: line item %d amount %s", ErrInvalidAllocationInput, i+1, item.Amount.String())
		}
		out[i] = LineItem{Description: strings.TrimSpace(item.Description), Amount: item.Amount}
		total = total.Add(item.Amount)
	}
	return total, out, nil
}

// IsSent reports whether Send has been called.
func (l *Ledger) IsSent() bool {
	return l.SentAt != nil
}

// DeriveStatus computes the aggregate status from the obligation statuses
// alone. Any obligation past PENDING/INVOICED counts as progress.
func (l *Ledger) DeriveStatus() LedgerStatus {
	if l.SentAt == nil {
		return LedgerStatusDraft
	}

	var defaulted, disputed, progressed bool
	satisfied := 0
	for _, o := range l.Obligations {
		switch {
		case o.Status == ObligationStatusDefaulted:
			defaulted = true
		case o.Status == ObligationStatusDisputed:
			disputed = true
		case o.Status.IsSatisfied():
			satisfied++
		}
		if o.Status != ObligationStatusPending && o.Status != ObligationStatusInvoiced {
			progressed = true
		}
	}

	jib := l.Kind == LedgerKindJIB
	switch {
	case defaulted:
		return LedgerStatusDefaulted
	case disputed:
		return LedgerStatusDisputed
	case satisfied == len(l.Obligations):
		if jib {
			return LedgerStatusPaid
		}
		return LedgerStatusFunded
	case progressed:
		if jib {
			return LedgerStatusPartiallyPaid
		}
		return LedgerStatusPartiallyFunded
	case jib:
		return LedgerStatusInvoiced
	default:
		return LedgerStatusSent
	}
}

// IsFullySatisfied reports whether every obligation is funded or paid.
func (l *Ledger) IsFullySatisfied() bool {
	s := l.DeriveStatus()
	return s == LedgerStatusFunded || s == LedgerStatusPaid
}

// Send releases the ledger to partners. It is idempotent: the second call
// returns false and changes nothing.
func (l *Ledger) Send(now time.Time) bool {
	if l.SentAt != nil {
		return false
	}
	sentAt := now
	l.SentAt = &sentAt
	for _, o := range l.Obligations {
		o.send(now)
	}
	l.refresh(now)
	return true
}

// Obligation returns the obligation for a party.
func (l *Ledger) Obligation(partyID string) (*Obligation, error) {
	for _, o := range l.Obligations {
		if o.PartyID == partyID {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: party %s on ledger %s", ErrObligationNotFound, partyID, l.ID)
}

func (l *Ledger) openObligation(partyID string) (*Obligation, error) {
	if l.SentAt == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStateTransition, ErrLedgerNotSent)
	}
	return l.Obligation(partyID)
}

// RecordFunding applies a partner funding to a cash call.
func (l *Ledger) RecordFunding(partyID string, req SettlementRequest, now time.Time) (*Obligation, error) {
	return l.settle(LedgerKindCashCall, partyID, req, now)
}

// RecordPayment applies a partner payment to a JIB statement.
func (l *Ledger) RecordPayment(partyID string, req SettlementRequest, now time.Time) (*Obligation, error) {
	return l.settle(LedgerKindJIB, partyID, req, now)
}

func (l *Ledger) settle(kind LedgerKind, partyID string, req SettlementRequest, now time.Time) (*Obligation, error) {
	if l.Kind != kind {
		return nil, fmt.Errorf("%w: ledger %s is a %s", ErrInvalidStateTransition, l.ID, l.Kind)
	}
	o, err := l.openObligation(partyID)
	if err != nil {
		return nil, err
	}
	if err := o.Settle(req, now); err != nil {
		return nil, err
	}
	l.refresh(now)
	return o, nil
}

// MarkDispute disputes a party's obligation.
func (l *Ledger) MarkDispute(partyID, reason string, now time.Time) (*Obligation, error) {
	o, err := l.openObligation(partyID)
	if err != nil {
		return nil, err
	}
	if err := o.Dispute(reason, now); err != nil {
		return nil, err
	}
	l.refresh(now)
	return o, nil
}

// ResolveDispute clears a dispute on a party's obligation.
func (l *Ledger) ResolveDispute(partyID, note string, now time.Time) (*Obligation, error) {
	o, err := l.openObligation(partyID)
	if err != nil {
		return nil, err
	}
	if err := o.ResolveDispute(note, now); err != nil {
		return nil, err
	}
	l.refresh(now)
	return o, nil
}

// MarkDefault defaults a party's obligation after the ledger due date.
func (l *Ledger) MarkDefault(partyID string, penalty *decimal.Decimal, now time.Time) (*Obligation, error) {
	o, err := l.openObligation(partyID)
	if err != nil {
		return nil, err
	}
	if err := o.Default(l.DueDate, penalty, now); err != nil {
		return nil, err
	}
	l.refresh(now)
	return o, nil
}

func (l *Ledger) refresh(now time.Time) {
	l.Status = l.DeriveStatus()
	l.UpdatedAt = now
}

// Verify rebuilds the aggregate status and the allocation total and compares
// them with what is stored.
func (l *Ledger) Verify() error {
	if derived := l.DeriveStatus(); derived != l.Status {
		return fmt.Errorf("%w: cached status %s, derived %s", ErrLedgerInconsistent, l.Status, derived)
	}
	requested := decimal.Zero
	for _, o := range l.Obligations {
		requested = requested.Add(o.RequestedAmount)
		if o.SettledAmount.IsNegative() || o.SettledAmount.GreaterThan(o.RequestedAmount) {
			return fmt.Errorf("%w: party %s settled %s of %s", ErrLedgerInconsistent, o.PartyID, o.SettledAmount.String(), o.RequestedAmount.String())
		}
	}
	if !requested.Equal(l.TotalAmount) {
		return fmt.Errorf("%w: obligations sum to %s, total is %s", ErrLedgerInconsistent, requested.String(), l.TotalAmount.String())
	}
	return nil
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := *l
	if l.SentAt != nil {
		t := *l.SentAt
		c.SentAt = &t
	}
	c.LineItems = append([]LineItem(nil), l.LineItems...)
	c.Obligations = make([]*Obligation, len(l.Obligations))
	for i, o := range l.Obligations {
		c.Obligations[i] = o.Clone()
	}
	return &c
}

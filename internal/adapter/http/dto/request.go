package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// CreateCashCallRequest represents a request to create a cash call.
type CreateCashCallRequest struct {
	Code        string          `json:"code,omitempty"`
	ContractID  string          `json:"contract_id"`
	Currency    string          `json:"currency"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CallDate    string          `json:"call_date"`
	DueDate     string          `json:"due_date"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateCashCallRequest) ToUseCaseInput() (usecase.CreateCashCallInput, error) {
	callDate, err := ParseDate("call_date", r.CallDate)
	if err != nil {
		return usecase.CreateCashCallInput{}, err
	}
	dueDate, err := ParseDate("due_date", r.DueDate)
	if err != nil {
		return usecase.CreateCashCallInput{}, err
	}
	return usecase.CreateCashCallInput{
		Code:        r.Code,
		ContractID:  r.ContractID,
		Currency:    r.Currency,
		TotalAmount: r.TotalAmount,
		CallDate:    callDate,
		DueDate:     dueDate,
	}, nil
}

// LineItemRequest is one billed cost on a JIB statement.
type LineItemRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// CreateJIBStatementRequest represents a request to create a JIB statement.
type CreateJIBStatementRequest struct {
	Code        string            `json:"code,omitempty"`
	ContractID  string            `json:"contract_id"`
	Currency    string            `json:"currency"`
	LineItems   []LineItemRequest `json:"line_items"`
	BillingDate string            `json:"billing_date"`
	DueDate     string            `json:"due_date"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateJIBStatementRequest) ToUseCaseInput() (usecase.CreateJIBStatementInput, error) {
	billingDate, err := ParseDate("billing_date", r.BillingDate)
	if err != nil {
		return usecase.CreateJIBStatementInput{}, err
	}
	dueDate, err := ParseDate("due_date", r.DueDate)
	if err != nil {
		return usecase.CreateJIBStatementInput{}, err
	}

	items := make([]domain.LineItem, len(r.LineItems))
	for i, item := range r.LineItems {
		items[i] = domain.LineItem{Description: item.Description, Amount: item.Amount}
	}

	return usecase.CreateJIBStatementInput{
		Code:        r.Code,
		ContractID:  r.ContractID,
		Currency:    r.Currency,
		LineItems:   items,
		BillingDate: billingDate,
		DueDate:     dueDate,
	}, nil
}

// SettlementRequest is a partner funding or payment.
type SettlementRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	ExternalReference string          `json:"external_reference,omitempty"`
	ValueDate         string          `json:"value_date,omitempty"`
	AllowOverpayment  bool            `json:"allow_overpayment,omitempty"`
}

// ToUseCaseInput converts to use case input for the given obligation.
func (r *SettlementRequest) ToUseCaseInput(ledgerID, partyID string) (usecase.SettlementInput, error) {
	var valueDate time.Time
	if r.ValueDate != "" {
		var err error
		if valueDate, err = ParseDate("value_date", r.ValueDate); err != nil {
			return usecase.SettlementInput{}, err
		}
	}
	return usecase.SettlementInput{
		LedgerID:          ledgerID,
		PartyID:           partyID,
		Amount:            r.Amount,
		ExternalReference: r.ExternalReference,
		ValueDate:         valueDate,
		AllowOverpayment:  r.AllowOverpayment,
	}, nil
}

// DisputeRequest opens or resolves a dispute.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// DefaultRequest marks a partner as defaulted.
type DefaultRequest struct {
	PenaltyAmount *decimal.Decimal `json:"penalty_amount,omitempty"`
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Calendar dates are taken as midnight UTC.
func ParseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD or RFC 3339, got %q", field, value)
	}
	return t.UTC(), nil
}

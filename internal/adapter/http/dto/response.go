package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// LedgerResponse represents a cash call or JIB statement in API responses.
type LedgerResponse struct {
	ID          string                `json:"id"`
	Code        string                `json:"code"`
	Kind        string                `json:"kind"`
	ContractID  string                `json:"contract_id"`
	Status      string                `json:"status"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	Currency    string                `json:"currency"`
	LedgerDate  time.Time             `json:"ledger_date"`
	DueDate     time.Time             `json:"due_date"`
	SentAt      *time.Time            `json:"sent_at,omitempty"`
	LineItems   []LineItemResponse    `json:"line_items,omitempty"`
	Obligations []*ObligationResponse `json:"obligations"`
	Version     int64                 `json:"version"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// LineItemResponse is one billed cost.
type LineItemResponse struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ObligationResponse is one partner's share.
type ObligationResponse struct {
	ID                     string               `json:"id"`
	PartyID                string               `json:"party_id"`
	WorkingInterestPercent decimal.Decimal      `json:"working_interest_percent"`
	RequestedAmount        decimal.Decimal      `json:"requested_amount"`
	SettledAmount          decimal.Decimal      `json:"settled_amount"`
	OutstandingAmount      decimal.Decimal      `json:"outstanding_amount"`
	OverpaidAmount         decimal.Decimal      `json:"overpaid_amount"`
	PenaltyAmount          *decimal.Decimal     `json:"penalty_amount,omitempty"`
	Currency               string               `json:"currency"`
	Status                 string               `json:"status"`
	DisputeReason          string               `json:"dispute_reason,omitempty"`
	LastSettledAt          *time.Time           `json:"last_settled_at,omitempty"`
	History                []StatusChange       `json:"history,omitempty"`
	Settlements            []SettlementResponse `json:"settlements,omitempty"`
}

// StatusChange is one entry of an obligation's status history.
type StatusChange struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// SettlementResponse is one applied funding or payment.
type SettlementResponse struct {
	ExternalReference string          `json:"external_reference,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Kind              string          `json:"kind"`
	ValueDate         time.Time       `json:"value_date"`
	RecordedAt        time.Time       `json:"recorded_at"`
}

// LedgerFromDomain converts a domain ledger to a response.
func LedgerFromDomain(l *domain.Ledger) *LedgerResponse {
	resp := &LedgerResponse{
		ID:          l.ID,
		Code:        l.Code,
		Kind:        string(l.Kind),
		ContractID:  l.ContractID,
		Status:      string(l.Status),
		TotalAmount: l.TotalAmount,
		Currency:    l.Currency,
		LedgerDate:  l.LedgerDate,
		DueDate:     l.DueDate,
		SentAt:      l.SentAt,
		Obligations: make([]*ObligationResponse, len(l.Obligations)),
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
	for _, item := range l.LineItems {
		resp.LineItems = append(resp.LineItems, LineItemResponse{Description: item.Description, Amount: item.Amount})
	}
	for i, o := range l.Obligations {
		resp.Obligations[i] = ObligationFromDomain(o)
	}
	return resp
}

// LedgersFromDomain converts domain ledgers to responses.
func LedgersFromDomain(ledgers []*domain.Ledger) []*LedgerResponse {
	result := make([]*LedgerResponse, len(ledgers))
	for i, l := range ledgers {
		result[i] = LedgerFromDomain(l)
	}
	return result
}

// ObligationFromDomain converts a domain obligation to a response.
func ObligationFromDomain(o *domain.Obligation) *ObligationResponse {
	resp := &ObligationResponse{
		ID:                     o.ID,
		PartyID:                o.PartyID,
		WorkingInterestPercent: o.WorkingInterestPercent,
		RequestedAmount:        o.RequestedAmount,
		SettledAmount:          o.SettledAmount,
		OutstandingAmount:      o.Outstanding(),
		OverpaidAmount:         o.OverpaidAmount,
		PenaltyAmount:          o.PenaltyAmount,
		Currency:               o.Currency,
		Status:                 string(o.Status),
		DisputeReason:          o.DisputeReason,
		LastSettledAt:          o.LastSettledAt,
	}
	for _, h := range o.History {
		resp.History = append(resp.History, StatusChange{From: string(h.From), To: string(h.To), Reason: h.Reason, At: h.At})
	}
	for _, s := range o.Settlements {
		resp.Settlements = append(resp.Settlements, SettlementResponse{
			ExternalReference: s.ExternalReference,
			Amount:            s.Amount,
			Kind:              string(s.Kind),
			ValueDate:         s.ValueDate,
			RecordedAt:        s.RecordedAt,
		})
	}
	return resp
}

// ReconciliationResponse is returned by every partner action.
type ReconciliationResponse struct {
	LedgerID     string              `json:"ledger_id"`
	LedgerStatus string              `json:"ledger_status"`
	Obligation   *ObligationResponse `json:"obligation"`
	Duplicate    bool                `json:"duplicate"`
}

// ReconciliationFromResult converts a use case result to a response.
func ReconciliationFromResult(r *usecase.ReconciliationResult) *ReconciliationResponse {
	return &ReconciliationResponse{
		LedgerID:     r.Ledger.ID,
		LedgerStatus: string(r.Ledger.Status),
		Obligation:   ObligationFromDomain(r.Obligation),
		Duplicate:    r.Duplicate,
	}
}

// StatusResponse carries a ledger's aggregate status.
type StatusResponse struct {
	LedgerID string `json:"ledger_id"`
	Status   string `json:"status"`
}

// SendResponse reports whether a send changed anything.
type SendResponse struct {
	Ledger  *LedgerResponse `json:"ledger"`
	Changed bool            `json:"changed"`
}

// VerificationResponse reports a status consistency check.
type VerificationResponse struct {
	LedgerID      string    `json:"ledger_id"`
	StoredStatus  string    `json:"stored_status"`
	DerivedStatus string    `json:"derived_status"`
	Consistent    bool      `json:"consistent"`
	Problem       string    `json:"problem,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// VerificationFromResult converts a use case result to a response.
func VerificationFromResult(v *usecase.VerificationResult) *VerificationResponse {
	return &VerificationResponse{
		LedgerID:      v.LedgerID,
		StoredStatus:  string(v.StoredStatus),
		DerivedStatus: string(v.DerivedStatus),
		Consistent:    v.Consistent,
		Problem:       v.Problem,
		CheckedAt:     v.CheckedAt,
	}
}

// AuditLogResponse is one audit trail entry.
type AuditLogResponse struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	RequestID    string         `json:"request_id,omitempty"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditLogsFromDomain converts audit entries to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:           l.ID,
			ActorID:      l.ActorID,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			RequestID:    l.RequestID,
			BeforeState:  l.BeforeState,
			AfterState:   l.AfterState,
			Status:       l.Status,
			CreatedAt:    l.CreatedAt,
		}
	}
	return result
}

// EventResponse is one outbox event.
type EventResponse struct {
	ID            string         `json:"id"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	Published     bool           `json:"published"`
	CreatedAt     time.Time      `json:"created_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
}

// EventsFromDomain converts outbox events to responses.
func EventsFromDomain(events []*domain.OutboxEvent) []*EventResponse {
	result := make([]*EventResponse, len(events))
	for i, e := range events {
		result[i] = &EventResponse{
			ID:            e.ID,
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			EventType:     e.EventType,
			Payload:       e.Payload,
			Published:     e.Published,
			CreatedAt:     e.CreatedAt,
			PublishedAt:   e.PublishedAt,
		}
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

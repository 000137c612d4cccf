package domain

import "time"

// Event types
const (
	EventTypeLedgerCreated           = "ledger.created"
	EventTypeLedgerSent              = "ledger.sent"
	EventTypeObligationFunded        = "obligation.funded"
	EventTypeObligationPaid          = "obligation.paid"
	EventTypeObligationDisputed      = "obligation.disputed"
	EventTypeObligationDisputeClosed = "obligation.dispute_resolved"
	EventTypePartnerDefaulted        = "partner.defaulted"
	EventTypeLedgerFullySatisfied    = "ledger.fully_satisfied"
)

// Aggregate types
const (
	AggregateTypeLedger     = "ledger"
	AggregateTypeObligation = "obligation"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// LedgerCreatedEvent payload
type LedgerCreatedEvent struct {
	LedgerID    string `json:"ledger_id"`
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	ContractID  string `json:"contract_id"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`
	Parties     int    `json:"parties"`
}

// LedgerSentEvent payload
type LedgerSentEvent struct {
	LedgerID string `json:"ledger_id"`
	Kind     string `json:"kind"`
	DueDate  string `json:"due_date"`
	SentAt   string `json:"sent_at"`
}

// ObligationSettledEvent payload, emitted as obligation.funded or obligation.paid.
type ObligationSettledEvent struct {
	LedgerID          string `json:"ledger_id"`
	ObligationID      string `json:"obligation_id"`
	PartyID           string `json:"party_id"`
	Amount            string `json:"amount"`
	SettledAmount     string `json:"settled_amount"`
	RequestedAmount   string `json:"requested_amount"`
	OverpaidAmount    string `json:"overpaid_amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference,omitempty"`
	EventAt           string `json:"event_at"`
}

// ObligationDisputedEvent payload, also used for obligation.dispute_resolved.
type ObligationDisputedEvent struct {
	LedgerID     string `json:"ledger_id"`
	ObligationID string `json:"obligation_id"`
	PartyID      string `json:"party_id"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
	EventAt      string `json:"event_at"`
}

// PartnerDefaultedEvent payload
type PartnerDefaultedEvent struct {
	LedgerID      string `json:"ledger_id"`
	ObligationID  string `json:"obligation_id"`
	PartyID       string `json:"party_id"`
	Outstanding   string `json:"outstanding"`
	PenaltyAmount string `json:"penalty_amount,omitempty"`
	Currency      string `json:"currency"`
	DueDate       string `json:"due_date"`
	EventAt       string `json:"event_at"`
}

// LedgerFullySatisfiedEvent payload
type LedgerFullySatisfiedEvent struct {
	LedgerID    string `json:"ledger_id"`
	Kind        string `json:"kind"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	EventAt     string `json:"event_at"`
}

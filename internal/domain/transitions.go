package domain

// LedgerKind distinguishes cash calls from JIB statements.
type LedgerKind string

const (
	LedgerKindCashCall LedgerKind = "CASH_CALL"
	LedgerKindJIB      LedgerKind = "JIB"
)

// IsValid checks if the kind is known.
func (k LedgerKind) IsValid() bool {
	return k == LedgerKindCashCall || k == LedgerKindJIB
}

// ObligationStatus is the per-partner state within a ledger.
type ObligationStatus string

const (
	ObligationStatusPending       ObligationStatus = "PENDING"
	ObligationStatusInvoiced      ObligationStatus = "INVOICED"
	ObligationStatusPartial       ObligationStatus = "PARTIAL"
	ObligationStatusFunded        ObligationStatus = "FUNDED"
	ObligationStatusPartiallyPaid ObligationStatus = "PARTIALLY_PAID"
	ObligationStatusPaid          ObligationStatus = "PAID"
	ObligationStatusDisputed      ObligationStatus = "DISPUTED"
	ObligationStatusDefaulted     ObligationStatus = "DEFAULTED"
)

// IsTerminal reports whether no further transitions are accepted.
func (s ObligationStatus) IsTerminal() bool {
	switch s {
	case ObligationStatusFunded, ObligationStatusPaid, ObligationStatusDefaulted:
		return true
	}
	return false
}

// IsSatisfied reports whether the obligation has been fully funded or paid.
func (s ObligationStatus) IsSatisfied() bool {
	return s == ObligationStatusFunded || s == ObligationStatusPaid
}

// ObligationAction is an operation that may move an obligation between states.
type ObligationAction string

const (
	ActionSend           ObligationAction = "send"
	ActionSettle         ObligationAction = "settle"
	ActionDispute        ObligationAction = "dispute"
	ActionResolveDispute ObligationAction = "resolve_dispute"
	ActionDefault        ObligationAction = "default"
)

type transitionKey struct {
	kind   LedgerKind
	from   ObligationStatus
	action ObligationAction
}

// allowedTransitions is the legality table. The target state of a settle or
// resolve depends on amounts and is computed by the obligation itself.
var allowedTransitions = map[transitionKey]bool{
	{LedgerKindCashCall, ObligationStatusPending, ActionSend}:    true,
	{LedgerKindCashCall, ObligationStatusPending, ActionSettle}:  true,
	{LedgerKindCashCall, ObligationStatusPending, ActionDispute}: true,
	{LedgerKindCashCall, ObligationStatusPending, ActionDefault}: true,

	{LedgerKindCashCall, ObligationStatusPartial, ActionSettle}:  true,
	{LedgerKindCashCall, ObligationStatusPartial, ActionDispute}: true,
	{LedgerKindCashCall, ObligationStatusPartial, ActionDefault}: true,

	{LedgerKindCashCall, ObligationStatusDisputed, ActionSettle}:         true,
	{LedgerKindCashCall, ObligationStatusDisputed, ActionResolveDispute}: true,

	{LedgerKindJIB, ObligationStatusPending, ActionSend}: true,

	{LedgerKindJIB, ObligationStatusInvoiced, ActionSettle}:  true,
	{LedgerKindJIB, ObligationStatusInvoiced, ActionDispute}: true,
	{LedgerKindJIB, ObligationStatusInvoiced, ActionDefault}: true,

	{LedgerKindJIB, ObligationStatusPartiallyPaid, ActionSettle}:  true,
	{LedgerKindJIB, ObligationStatusPartiallyPaid, ActionDispute}: true,
	{LedgerKindJIB, ObligationStatusPartiallyPaid, ActionDefault}: true,

	{LedgerKindJIB, ObligationStatusDisputed, ActionSettle}:         true,
	{LedgerKindJIB, ObligationStatusDisputed, ActionResolveDispute}: true,
}

// CanTransition reports whether action is legal from status for the given kind.
func CanTransition(kind LedgerKind, from ObligationStatus, action ObligationAction) bool {
	return allowedTransitions[transitionKey{kind: kind, from: from, action: action}]
}

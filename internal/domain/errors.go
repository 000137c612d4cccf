package domain

import "errors"

var (
	// Allocation errors
	ErrInvalidAllocationInput = errors.New("invalid allocation input")
	ErrInvalidWorkingInterest = errors.New("invalid working interest set")
	ErrInvalidCurrency        = errors.New("invalid currency code")

	// Transition errors
	ErrInvalidPaymentAmount   = errors.New("invalid payment amount")
	ErrInvalidPenaltyAmount   = errors.New("invalid penalty amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyTerminal        = errors.New("obligation is in a terminal state")
	ErrDisputeReasonRequired  = errors.New("dispute reason is required")
	ErrNotYetDue              = errors.New("obligation is not past its due date")
	ErrLedgerNotSent          = errors.New("ledger has not been sent to partners")

	// Idempotency errors
	ErrDuplicateExternalReference = errors.New("external reference already applied")
	ErrExternalReferenceConflict  = errors.New("external reference already used for a different settlement")

	// Lookup and consistency errors
	ErrLedgerNotFound         = errors.New("ledger not found")
	ErrObligationNotFound     = errors.New("obligation not found")
	ErrInvalidLedger          = errors.New("invalid ledger")
	ErrLedgerInconsistent     = errors.New("ledger is inconsistent")
	ErrConcurrentModification = errors.New("ledger was modified concurrently")
)

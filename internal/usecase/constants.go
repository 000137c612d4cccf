package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds one ledger mutation, including the time
	// spent waiting on the ledger row lock.
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long an HTTP Idempotency-Key response is replayable.
	IdempotencyKeyTTL = 24 * time.Hour
)

package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
)

// LedgerRepository defines data access for ledgers and their obligations.
type LedgerRepository interface {
	// Create stores a new ledger with all of its obligations.
	Create(ctx context.Context, tx Transaction, ledger *domain.Ledger) error
	GetByID(ctx context.Context, id string) (*domain.Ledger, error)
	// GetByIDForUpdate loads a ledger and holds a write lock on it for the
	// lifetime of tx.
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Ledger, error)
	// Update persists the ledger header (status, sent_at) and the changed
	// obligations, appending any new history and settlement entries. It fails
	// with domain.ErrConcurrentModification when the stored version differs
	// from ledger.Version; on success ledger.Version is incremented.
	Update(ctx context.Context, tx Transaction, ledger *domain.Ledger, changed ...*domain.Obligation) error
	List(ctx context.Context, filter LedgerFilter) ([]*domain.Ledger, error)
}

// LedgerFilter narrows List results.
type LedgerFilter struct {
	ContractID string
	Kind       domain.LedgerKind
	Limit      int
	Offset     int
}

// ExternalReference is a dedupe record for an applied settlement.
type ExternalReference struct {
	LedgerID     string
	Reference    string
	ObligationID string
	PartyID      string
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// ExternalReferenceRepository is the dedupe table keyed by (ledger, reference).
type ExternalReferenceRepository interface {
	// Get returns nil, nil when the reference has not been applied.
	Get(ctx context.Context, tx Transaction, ledgerID, reference string) (*ExternalReference, error)
	// Create fails with domain.ErrDuplicateExternalReference if the
	// reference was stored concurrently.
	Create(ctx context.Context, tx Transaction, ref *ExternalReference) error
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// WorkingInterestProvider supplies contract working interests. It is owned by
// the contract administration system and is read-only here.
type WorkingInterestProvider interface {
	GetWorkingInterests(ctx context.Context, contractID string, asOf time.Time) (domain.WorkingInterestSet, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation when the store reports a retryable conflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock is the single source of "now" for due-date evaluation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// StatusCache caches derived ledger statuses for read paths. Set must not
// replace an entry written for a newer ledger version.
type StatusCache interface {
	Get(ctx context.Context, ledgerID string) (domain.LedgerStatus, bool, error)
	Set(ctx context.Context, ledgerID string, version int64, status domain.LedgerStatus) error
	Delete(ctx context.Context, ledgerID string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release frees a claimed key after a failed request.
	Release(ctx context.Context, key string) error
}

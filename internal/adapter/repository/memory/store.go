// Package memory provides in-process implementations of the usecase
// repositories. Writes are staged on a Tx and applied atomically on Commit,
// where ledger versions are checked the way the PostgreSQL adapter checks
// them with its version column.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

var errTxClosed = errors.New("memory: transaction already closed")

type refKey struct {
	ledgerID  string
	reference string
}

// Store holds committed state shared by all memory repositories.
type Store struct {
	mu        sync.RWMutex
	ledgers   map[string]*domain.Ledger
	refs      map[refKey]usecase.ExternalReference
	events    []*domain.OutboxEvent
	audit     []*domain.AuditLog
	interests map[string][]domain.WorkingInterest
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		ledgers:   make(map[string]*domain.Ledger),
		refs:      make(map[refKey]usecase.ExternalReference),
		interests: make(map[string][]domain.WorkingInterest),
	}
}

// TxManager implements usecase.TransactionManager over a Store.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin opens a transaction. It never blocks.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:   m.store,
		creates: make(map[string]*domain.Ledger),
		updates: make(map[string]*stagedUpdate),
		refs:    make(map[refKey]usecase.ExternalReference),
	}, nil
}

type stagedUpdate struct {
	expectedVersion int64
	ledger          *domain.Ledger
}

// Tx buffers writes until Commit.
type Tx struct {
	store   *Store
	closed  bool
	creates map[string]*domain.Ledger
	updates map[string]*stagedUpdate
	refs    map[refKey]usecase.ExternalReference
	events  []*domain.OutboxEvent
	audit   []*domain.AuditLog
}

// Commit validates staged ledger versions and applies every staged write,
// or none of them.
func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range t.creates {
		if _, exists := s.ledgers[id]; exists {
			return fmt.Errorf("%w: ledger %s already exists", domain.ErrInvalidLedger, id)
		}
		if s.codeTaken(l.ContractID, l.Code) {
			return fmt.Errorf("%w: code %q already used on contract %s", domain.ErrInvalidLedger, l.Code, l.ContractID)
		}
	}
	for id, u := range t.updates {
		if _, created := t.creates[id]; created {
			continue
		}
		current, ok := s.ledgers[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrLedgerNotFound, id)
		}
		if current.Version != u.expectedVersion {
			return fmt.Errorf("commit ledger %s at version %d (stored %d): %w",
				id, u.expectedVersion, current.Version, domain.ErrConcurrentModification)
		}
	}
	for key := range t.refs {
		if _, exists := s.refs[key]; exists {
			return fmt.Errorf("%w: %s", domain.ErrConcurrentModification, key.reference)
		}
	}

	for id, l := range t.creates {
		s.ledgers[id] = l
	}
	for id, u := range t.updates {
		s.ledgers[id] = u.ledger
	}
	for key, ref := range t.refs {
		s.refs[key] = ref
	}
	s.events = append(s.events, t.events...)
	s.audit = append(s.audit, t.audit...)
	return nil
}

// Rollback discards staged writes.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	return nil
}

// codeTaken must be called with s.mu held.
func (s *Store) codeTaken(contractID, code string) bool {
	for _, l := range s.ledgers {
		if l.ContractID == contractID && l.Code == code {
			return true
		}
	}
	return false
}

func unwrapTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("memory: unsupported transaction type %T", tx)
	}
	if t.closed {
		return nil, errTxClosed
	}
	return t, nil
}

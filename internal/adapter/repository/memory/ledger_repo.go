package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// Create stages a new ledger.
func (r *LedgerRepository) Create(ctx context.Context, tx usecase.Transaction, ledger *domain.Ledger) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	if ledger == nil || ledger.ID == "" {
		return fmt.Errorf("%w: ledger id is required", domain.ErrInvalidLedger)
	}
	t.creates[ledger.ID] = ledger.Clone()
	return nil
}

// GetByID returns a copy of the committed ledger.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*domain.Ledger, error) {
	r.store.mu.RLock()
	l := r.store.ledgers[id]
	r.store.mu.RUnlock()
	if l == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrLedgerNotFound, id)
	}
	return l.Clone(), nil
}

// GetByIDForUpdate returns the ledger as seen by tx. No lock is taken;
// conflicting writers are rejected by the version check at commit.
func (r *LedgerRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Ledger, error) {
	t, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	if u, ok := t.updates[id]; ok {
		return u.ledger.Clone(), nil
	}
	if l, ok := t.creates[id]; ok {
		return l.Clone(), nil
	}
	return r.GetByID(ctx, id)
}

// Update stages the whole ledger; changed is accepted for interface parity.
func (r *LedgerRepository) Update(ctx context.Context, tx usecase.Transaction, ledger *domain.Ledger, changed ...*domain.Obligation) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	expected := ledger.Version
	if u, ok := t.updates[ledger.ID]; ok {
		if u.ledger.Version != ledger.Version {
			return fmt.Errorf("update ledger %s at version %d: %w", ledger.ID, ledger.Version, domain.ErrConcurrentModification)
		}
		expected = u.expectedVersion
	}

	staged := ledger.Clone()
	staged.Version++
	t.updates[ledger.ID] = &stagedUpdate{expectedVersion: expected, ledger: staged}
	ledger.Version++
	return nil
}

// List returns committed ledgers newest first.
func (r *LedgerRepository) List(ctx context.Context, filter usecase.LedgerFilter) ([]*domain.Ledger, error) {
	r.store.mu.RLock()
	matched := make([]*domain.Ledger, 0, len(r.store.ledgers))
	for _, l := range r.store.ledgers {
		if filter.ContractID != "" && l.ContractID != filter.ContractID {
			continue
		}
		if filter.Kind != "" && l.Kind != filter.Kind {
			continue
		}
		matched = append(matched, l.Clone())
	}
	r.store.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit, offset := domain.ValidatePagination(filter.Limit, filter.Offset)
	return paginate(matched, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

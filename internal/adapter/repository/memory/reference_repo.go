package memory

import (
	"context"
	"fmt"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// ExternalReferenceRepository implements usecase.ExternalReferenceRepository.
type ExternalReferenceRepository struct {
	store *Store
}

// NewExternalReferenceRepository creates a new ExternalReferenceRepository.
func NewExternalReferenceRepository(store *Store) *ExternalReferenceRepository {
	return &ExternalReferenceRepository{store: store}
}

// Get returns the reference staged in tx or committed, or nil.
func (r *ExternalReferenceRepository) Get(ctx context.Context, tx usecase.Transaction, ledgerID, reference string) (*usecase.ExternalReference, error) {
	t, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	key := refKey{ledgerID: ledgerID, reference: reference}
	if ref, ok := t.refs[key]; ok {
		return &ref, nil
	}

	r.store.mu.RLock()
	ref, ok := r.store.refs[key]
	r.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

// Create stages a reference.
func (r *ExternalReferenceRepository) Create(ctx context.Context, tx usecase.Transaction, ref *usecase.ExternalReference) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	key := refKey{ledgerID: ref.LedgerID, reference: ref.Reference}
	if _, ok := t.refs[key]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalReference, ref.Reference)
	}

	r.store.mu.RLock()
	_, exists := r.store.refs[key]
	r.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalReference, ref.Reference)
	}

	t.refs[key] = *ref
	return nil
}

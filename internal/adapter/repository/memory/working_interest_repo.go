package memory

import (
	"context"
	"time"

	"github.com/iho/jibledger/internal/domain"
)

// WorkingInterestRepository is an in-memory usecase.WorkingInterestProvider.
type WorkingInterestRepository struct {
	store *Store
}

// NewWorkingInterestRepository creates a new WorkingInterestRepository.
func NewWorkingInterestRepository(store *Store) *WorkingInterestRepository {
	return &WorkingInterestRepository{store: store}
}

// SetWorkingInterests replaces the interests recorded for a contract.
func (r *WorkingInterestRepository) SetWorkingInterests(contractID string, interests ...domain.WorkingInterest) {
	r.store.mu.Lock()
	r.store.interests[contractID] = append([]domain.WorkingInterest(nil), interests...)
	r.store.mu.Unlock()
}

// GetWorkingInterests returns the interests in effect on asOf.
func (r *WorkingInterestRepository) GetWorkingInterests(ctx context.Context, contractID string, asOf time.Time) (domain.WorkingInterestSet, error) {
	r.store.mu.RLock()
	all := r.store.interests[contractID]
	r.store.mu.RUnlock()

	set := domain.WorkingInterestSet{ContractID: contractID, Interests: all}
	set.Interests = set.Active(asOf)
	return set, nil
}

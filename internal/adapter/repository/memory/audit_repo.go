package memory

import (
	"context"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// CreateTx stages an audit entry.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	l := *log
	t.audit = append(t.audit, &l)
	return nil
}

// List returns matching entries, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	r.store.mu.RLock()
	var matched []*domain.AuditLog
	for i := len(r.store.audit) - 1; i >= 0; i-- {
		l := r.store.audit[i]
		switch {
		case filter.ActorID != "" && l.ActorID != filter.ActorID,
			filter.Action != "" && l.Action != filter.Action,
			filter.ResourceType != "" && l.ResourceType != filter.ResourceType,
			filter.ResourceID != "" && l.ResourceID != filter.ResourceID,
			filter.StartDate != nil && l.CreatedAt.Before(*filter.StartDate),
			filter.EndDate != nil && !l.CreatedAt.Before(*filter.EndDate):
			continue
		}
		c := *l
		matched = append(matched, &c)
	}
	r.store.mu.RUnlock()

	limit, offset := domain.ValidatePagination(filter.Limit, filter.Offset)
	return paginate(matched, limit, offset), nil
}

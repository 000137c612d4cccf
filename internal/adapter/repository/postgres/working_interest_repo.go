package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/jibledger/internal/domain"
)

// WorkingInterestRepository reads contract_working_interests, which is
// maintained by contract administration.
type WorkingInterestRepository struct {
	db querier
}

// NewWorkingInterestRepository creates a new WorkingInterestRepository.
func NewWorkingInterestRepository(pool *pgxpool.Pool) *WorkingInterestRepository {
	return &WorkingInterestRepository{db: pool}
}

// GetWorkingInterests returns the rows in effect on asOf. Validation of the
// set happens in the allocator.
func (r *WorkingInterestRepository) GetWorkingInterests(ctx context.Context, contractID string, asOf time.Time) (domain.WorkingInterestSet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT party_id, percent, effective_from, effective_to
		FROM contract_working_interests
		WHERE contract_id = $1
		  AND (effective_from IS NULL OR effective_from <= $2)
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY party_id`,
		contractID, timeToPgTimestamptz(asOf),
	)
	if err != nil {
		return domain.WorkingInterestSet{}, fmt.Errorf("select working interests: %w", err)
	}
	defer rows.Close()

	set := domain.WorkingInterestSet{ContractID: contractID}
	for rows.Next() {
		var (
			wi          domain.WorkingInterest
			percent     pgtype.Numeric
			from, until pgtype.Timestamptz
		)
		if err := rows.Scan(&wi.PartyID, &percent, &from, &until); err != nil {
			return domain.WorkingInterestSet{}, fmt.Errorf("scan working interest: %w", err)
		}
		wi.Percent = numericToDecimal(percent)
		wi.EffectiveFrom = from.Time
		wi.EffectiveTo = pgTimestamptzToPtr(until)
		set.Interests = append(set.Interests, wi)
	}
	if err := rows.Err(); err != nil {
		return domain.WorkingInterestSet{}, err
	}

	return set, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// ExternalReferenceRepository implements usecase.ExternalReferenceRepository.
// The primary key (ledger_id, reference) is the dedupe guarantee.
type ExternalReferenceRepository struct{}

// NewExternalReferenceRepository creates a new ExternalReferenceRepository.
func NewExternalReferenceRepository() *ExternalReferenceRepository {
	return &ExternalReferenceRepository{}
}

// Get returns the stored reference, or nil if it was never applied.
func (r *ExternalReferenceRepository) Get(ctx context.Context, tx usecase.Transaction, ledgerID, reference string) (*usecase.ExternalReference, error) {
	q, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	var (
		ref       usecase.ExternalReference
		amount    pgtype.Numeric
		createdAt pgtype.Timestamptz
	)
	err = q.QueryRow(ctx, `
		SELECT ledger_id, reference, obligation_id, party_id, amount, created_at
		FROM external_references
		WHERE ledger_id = $1 AND reference = $2`,
		ledgerID, reference,
	).Scan(&ref.LedgerID, &ref.Reference, &ref.ObligationID, &ref.PartyID, &amount, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select external reference: %w", err)
	}

	ref.Amount = numericToDecimal(amount)
	ref.CreatedAt = createdAt.Time
	return &ref, nil
}

// Create stores a reference. A concurrent insert of the same reference
// surfaces as domain.ErrDuplicateExternalReference.
func (r *ExternalReferenceRepository) Create(ctx context.Context, tx usecase.Transaction, ref *usecase.ExternalReference) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO external_references (ledger_id, reference, obligation_id, party_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ref.LedgerID,
		ref.Reference,
		ref.ObligationID,
		ref.PartyID,
		decimalToNumeric(ref.Amount),
		timeToPgTimestamptz(ref.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalReference, ref.Reference)
		}
		return fmt.Errorf("insert external reference: %w", err)
	}
	return nil
}

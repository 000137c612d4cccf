package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

const ledgerColumns = `id, code, kind, contract_id, total_amount, currency, ledger_date, due_date,
	sent_at, status, version, created_at, updated_at`

const obligationColumns = `id, ledger_id, party_id, working_interest_percent, requested_amount,
	settled_amount, overpaid_amount, penalty_amount, currency, status, dispute_reason,
	last_settled_at, created_at, updated_at`

// LedgerRepository stores ledgers in ledgers, ledger_line_items, obligations,
// obligation_status_history and obligation_settlements.
type LedgerRepository struct {
	db querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: pool}
}

// Create inserts a ledger, its line items and its obligations.
func (r *LedgerRepository) Create(ctx context.Context, tx usecase.Transaction, ledger *domain.Ledger) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ledgers (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ledger.ID,
		ledger.Code,
		string(ledger.Kind),
		ledger.ContractID,
		decimalToNumeric(ledger.TotalAmount),
		ledger.Currency,
		timeToPgTimestamptz(ledger.LedgerDate),
		timeToPgTimestamptz(ledger.DueDate),
		timePtrToPgTimestamptz(ledger.SentAt),
		string(ledger.Status),
		ledger.Version,
		timeToPgTimestamptz(ledger.CreatedAt),
		timeToPgTimestamptz(ledger.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: code %q already used on contract %s", domain.ErrInvalidLedger, ledger.Code, ledger.ContractID)
		}
		return fmt.Errorf("insert ledger: %w", err)
	}

	for i, item := range ledger.LineItems {
		_, err = q.Exec(ctx, `
			INSERT INTO ledger_line_items (ledger_id, seq, description, amount)
			VALUES ($1, $2, $3, $4)`,
			ledger.ID, int32(i), item.Description, decimalToNumeric(item.Amount),
		)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}

	for i, o := range ledger.Obligations {
		_, err = q.Exec(ctx, `
			INSERT INTO obligations (`+obligationColumns+`, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			o.ID,
			o.LedgerID,
			o.PartyID,
			decimalToNumeric(o.WorkingInterestPercent),
			decimalToNumeric(o.RequestedAmount),
			decimalToNumeric(o.SettledAmount),
			decimalToNumeric(o.OverpaidAmount),
			decimalPtrToNumeric(o.PenaltyAmount),
			o.Currency,
			string(o.Status),
			o.DisputeReason,
			timePtrToPgTimestamptz(o.LastSettledAt),
			timeToPgTimestamptz(o.CreatedAt),
			timeToPgTimestamptz(o.UpdatedAt),
			int32(i),
		)
		if err != nil {
			return fmt.Errorf("insert obligation %s: %w", o.PartyID, err)
		}
		if err := appendTrail(ctx, q, o); err != nil {
			return err
		}
	}

	return nil
}

// GetByID loads a ledger outside of any transaction.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*domain.Ledger, error) {
	return r.load(ctx, r.db, id, false)
}

// GetByIDForUpdate loads a ledger and locks its row until tx ends.
func (r *LedgerRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Ledger, error) {
	q, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, q, id, true)
}

func (r *LedgerRepository) load(ctx context.Context, q querier, id string, lock bool) (*domain.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	ledger, err := scanLedger(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLedgerNotFound, id)
		}
		return nil, fmt.Errorf("select ledger: %w", err)
	}

	if err := loadChildren(ctx, q, []*domain.Ledger{ledger}); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Update bumps the ledger version and writes the changed obligations.
func (r *LedgerRepository) Update(ctx context.Context, tx usecase.Transaction, ledger *domain.Ledger, changed ...*domain.Obligation) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE ledgers
		SET status = $2, sent_at = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $5`,
		ledger.ID,
		string(ledger.Status),
		timePtrToPgTimestamptz(ledger.SentAt),
		timeToPgTimestamptz(ledger.UpdatedAt),
		ledger.Version,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update ledger %s at version %d: %w", ledger.ID, ledger.Version, domain.ErrConcurrentModification)
	}

	for _, o := range changed {
		tag, err := q.Exec(ctx, `
			UPDATE obligations
			SET settled_amount = $2, overpaid_amount = $3, penalty_amount = $4, status = $5,
				dispute_reason = $6, last_settled_at = $7, updated_at = $8
			WHERE id = $1`,
			o.ID,
			decimalToNumeric(o.SettledAmount),
			decimalToNumeric(o.OverpaidAmount),
			decimalPtrToNumeric(o.PenaltyAmount),
			string(o.Status),
			o.DisputeReason,
			timePtrToPgTimestamptz(o.LastSettledAt),
			timeToPgTimestamptz(o.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("update obligation %s: %w", o.PartyID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrObligationNotFound, o.ID)
		}
		if err := appendTrail(ctx, q, o); err != nil {
			return err
		}
	}

	ledger.Version++
	return nil
}

// List returns ledgers newest first.
func (r *LedgerRepository) List(ctx context.Context, filter usecase.LedgerFilter) ([]*domain.Ledger, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ContractID != "" {
		args = append(args, filter.ContractID)
		conditions = append(conditions, fmt.Sprintf("contract_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledgers`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	limit, offset := domain.ValidatePagination(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []*domain.Ledger
	for rows.Next() {
		ledger, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		ledgers = append(ledgers, ledger)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadChildren(ctx, r.db, ledgers); err != nil {
		return nil, err
	}
	return ledgers, nil
}

func scanLedger(row pgx.Row) (*domain.Ledger, error) {
	var (
		l                    domain.Ledger
		kind, status         string
		total                pgtype.Numeric
		ledgerDate, dueDate  pgtype.Timestamptz
		sentAt               pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&l.ID, &l.Code, &kind, &l.ContractID, &total, &l.Currency,
		&ledgerDate, &dueDate, &sentAt, &status, &l.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Kind = domain.LedgerKind(kind)
	l.Status = domain.LedgerStatus(status)
	l.TotalAmount = numericToDecimal(total)
	l.LedgerDate = ledgerDate.Time
	l.DueDate = dueDate.Time
	l.SentAt = pgTimestamptzToPtr(sentAt)
	l.CreatedAt = createdAt.Time
	l.UpdatedAt = updatedAt.Time
	return &l, nil
}

// loadChildren fills line items, obligations and their trails for a page of
// ledgers using one query per table.
func loadChildren(ctx context.Context, q querier, ledgers []*domain.Ledger) error {
	if len(ledgers) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Ledger, len(ledgers))
	ids := make([]string, len(ledgers))
	for i, l := range ledgers {
		ids[i] = l.ID
		byID[l.ID] = l
	}

	rows, err := q.Query(ctx, `
		SELECT ledger_id, description, amount
		FROM ledger_line_items
		WHERE ledger_id = ANY($1)
		ORDER BY ledger_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("select line items: %w", err)
	}
	for rows.Next() {
		var (
			ledgerID string
			item     domain.LineItem
			amount   pgtype.Numeric
		)
		if err := rows.Scan(&ledgerID, &item.Description, &amount); err != nil {
			rows.Close()
			return fmt.Errorf("scan line item: %w", err)
		}
		item.Amount = numericToDecimal(amount)
		if l := byID[ledgerID]; l != nil {
			l.LineItems = append(l.LineItems, item)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	obligations := make(map[string]*domain.Obligation)
	rows, err = q.Query(ctx, `
		SELECT `+obligationColumns+`
		FROM obligations
		WHERE ledger_id = ANY($1)
		ORDER BY ledger_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("select obligations: %w", err)
	}
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan obligation: %w", err)
		}
		l := byID[o.LedgerID]
		if l == nil {
			continue
		}
		o.Kind = l.Kind
		l.Obligations = append(l.Obligations, o)
		obligations[o.ID] = o
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(obligations) == 0 {
		return nil
	}
	if err := loadHistory(ctx, q, ids, obligations); err != nil {
		return err
	}
	return loadSettlements(ctx, q, ids, obligations)
}

func scanObligation(row pgx.Row) (*domain.Obligation, error) {
	var (
		o                                 domain.Obligation
		status                            string
		pct, requested, settled, overpaid pgtype.Numeric
		penalty                           pgtype.Numeric
		lastSettledAt                     pgtype.Timestamptz
		createdAt, updatedAt              pgtype.Timestamptz
	)
	err := row.Scan(
		&o.ID, &o.LedgerID, &o.PartyID, &pct, &requested, &settled, &overpaid, &penalty,
		&o.Currency, &status, &o.DisputeReason, &lastSettledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.ObligationStatus(status)
	o.WorkingInterestPercent = numericToDecimal(pct)
	o.RequestedAmount = numericToDecimal(requested)
	o.SettledAmount = numericToDecimal(settled)
	o.OverpaidAmount = numericToDecimal(overpaid)
	o.PenaltyAmount = numericToDecimalPtr(penalty)
	o.LastSettledAt = pgTimestamptzToPtr(lastSettledAt)
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}

func loadHistory(ctx context.Context, q querier, ledgerIDs []string, obligations map[string]*domain.Obligation) error {
	rows, err := q.Query(ctx, `
		SELECT h.obligation_id, h.from_status, h.to_status, h.reason, h.changed_at
		FROM obligation_status_history h
		JOIN obligations o ON o.id = h.obligation_id
		WHERE o.ledger_id = ANY($1)
		ORDER BY h.obligation_id, h.seq`, ledgerIDs)
	if err != nil {
		return fmt.Errorf("select status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			obligationID, from, to string
			change                 domain.StatusChange
			at                     pgtype.Timestamptz
		)
		if err := rows.Scan(&obligationID, &from, &to, &change.Reason, &at); err != nil {
			return fmt.Errorf("scan status change: %w", err)
		}
		change.From = domain.ObligationStatus(from)
		change.To = domain.ObligationStatus(to)
		change.At = at.Time
		if o := obligations[obligationID]; o != nil {
			o.History = append(o.History, change)
		}
	}
	return rows.Err()
}

func loadSettlements(ctx context.Context, q querier, ledgerIDs []string, obligations map[string]*domain.Obligation) error {
	rows, err := q.Query(ctx, `
		SELECT s.obligation_id, s.external_reference, s.amount, s.kind, s.value_date, s.recorded_at
		FROM obligation_settlements s
		JOIN obligations o ON o.id = s.obligation_id
		WHERE o.ledger_id = ANY($1)
		ORDER BY s.obligation_id, s.seq`, ledgerIDs)
	if err != nil {
		return fmt.Errorf("select settlements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			obligationID, kind    string
			s                     domain.Settlement
			amount                pgtype.Numeric
			valueDate, recordedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&obligationID, &s.ExternalReference, &amount, &kind, &valueDate, &recordedAt); err != nil {
			return fmt.Errorf("scan settlement: %w", err)
		}
		s.Amount = numericToDecimal(amount)
		s.Kind = domain.SettlementKind(kind)
		s.ValueDate = valueDate.Time
		s.RecordedAt = recordedAt.Time
		if o := obligations[obligationID]; o != nil {
			o.Settlements = append(o.Settlements, s)
		}
	}
	return rows.Err()
}

// appendTrail writes the obligation's status history and settlements. Rows
// are keyed by (obligation_id, seq) where seq is the slice index, so entries
// written by an earlier Update are skipped.
func appendTrail(ctx context.Context, q querier, o *domain.Obligation) error {
	if n := len(o.History); n > 0 {
		seqs := make([]int32, n)
		from := make([]string, n)
		to := make([]string, n)
		reasons := make([]string, n)
		at := make([]time.Time, n)
		for i, h := range o.History {
			seqs[i], from[i], to[i], reasons[i], at[i] = int32(i), string(h.From), string(h.To), h.Reason, h.At
		}
		_, err := q.Exec(ctx, `
			INSERT INTO obligation_status_history (obligation_id, seq, from_status, to_status, reason, changed_at)
			SELECT $1, t.seq, t.from_status, t.to_status, t.reason, t.changed_at
			FROM unnest($2::int[], $3::text[], $4::text[], $5::text[], $6::timestamptz[])
				AS t(seq, from_status, to_status, reason, changed_at)
			ON CONFLICT (obligation_id, seq) DO NOTHING`,
			o.ID, seqs, from, to, reasons, at,
		)
		if err != nil {
			return fmt.Errorf("append status history: %w", err)
		}
	}

	if n := len(o.Settlements); n > 0 {
		seqs := make([]int32, n)
		refs := make([]string, n)
		amounts := make([]pgtype.Numeric, n)
		kinds := make([]string, n)
		valueDates := make([]time.Time, n)
		recordedAt := make([]time.Time, n)
		for i, s := range o.Settlements {
			seqs[i], refs[i], kinds[i] = int32(i), s.ExternalReference, string(s.Kind)
			amounts[i] = decimalToNumeric(s.Amount)
			valueDates[i], recordedAt[i] = s.ValueDate, s.RecordedAt
		}
		_, err := q.Exec(ctx, `
			INSERT INTO obligation_settlements (obligation_id, seq, external_reference, amount, kind, value_date, recorded_at)
			SELECT $1, t.seq, t.external_reference, t.amount, t.kind, t.value_date, t.recorded_at
			FROM unnest($2::int[], $3::text[], $4::numeric[], $5::text[], $6::timestamptz[], $7::timestamptz[])
				AS t(seq, external_reference, amount, kind, value_date, recorded_at)
			ON CONFLICT (obligation_id, seq) DO NOTHING`,
			o.ID, seqs, refs, amounts, kinds, valueDates, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("append settlements: %w", err)
		}
	}

	return nil
}

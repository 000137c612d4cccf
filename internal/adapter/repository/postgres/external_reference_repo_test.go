package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

func TestExternalReferenceGetMissing(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	mock.ExpectQuery("FROM external_references").WithArgs("led-1", "wire-1").WillReturnError(pgx.ErrNoRows)

	ref, err := NewExternalReferenceRepository().Get(context.Background(), tx, "led-1", "wire-1")
	if err != nil || ref != nil {
		t.Fatalf("expected nil, nil for an unknown reference, got %v, %v", ref, err)
	}
}

func TestExternalReferenceGetFound(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	mock.ExpectQuery("FROM external_references").WithArgs("led-1", "wire-1").WillReturnRows(
		pgxmock.NewRows([]string{"ledger_id", "reference", "obligation_id", "party_id", "amount", "created_at"}).
			AddRow("led-1", "wire-1", "obl-1", "A", decimalToNumeric(decimal.RequireFromString("12.50")), timeToPgTimestamptz(repoNow)),
	)

	ref, err := NewExternalReferenceRepository().Get(context.Background(), tx, "led-1", "wire-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ref.PartyID != "A" || !ref.Amount.Equal(decimal.RequireFromString("12.5")) || !ref.CreatedAt.Equal(repoNow) {
		t.Fatalf("unexpected reference: %+v", ref)
	}
}

func TestExternalReferenceCreateRace(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	mock.ExpectExec("INSERT INTO external_references").
		WithArgs("led-1", "wire-1", pgxmock.AnyArg(), "A", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := NewExternalReferenceRepository().Create(context.Background(), tx, &usecase.ExternalReference{
		LedgerID:  "led-1",
		Reference: "wire-1",
		PartyID:   "A",
		Amount:    decimal.NewFromInt(10),
		CreatedAt: repoNow,
	})
	if !errors.Is(err, domain.ErrDuplicateExternalReference) {
		t.Fatalf("expected ErrDuplicateExternalReference, got %v", err)
	}
}

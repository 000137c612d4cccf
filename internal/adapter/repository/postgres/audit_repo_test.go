package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/jibledger/internal/domain"
)

func TestAuditRepositoryCreateTxAssignsID(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(pgxmock.AnyArg(), "ops@example.com", string(domain.AuditActionObligationPay),
			domain.AggregateTypeObligation, "obl-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			string(domain.AuditStatusSuccess), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := &AuditRepository{db: mock}
	log := &domain.AuditLog{
		ActorID:      "ops@example.com",
		Action:       string(domain.AuditActionObligationPay),
		ResourceType: domain.AggregateTypeObligation,
		ResourceID:   "obl-1",
		AfterState:   domain.JSON{"status": "PAID"},
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    repoNow,
	}
	if err := repo.CreateTx(context.Background(), tx, log); err != nil {
		t.Fatalf("create: %v", err)
	}
	if log.ID == "" {
		t.Fatalf("expected generated audit id")
	}

	assertExpectations(t, mock)
}

func TestAuditRepositoryListBuildsFilter(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("WHERE resource_type = \\$1 AND resource_id = \\$2 ORDER BY created_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("obligation", "obl-1", 20, 0).
		WillReturnRows(
			pgxmock.NewRows([]string{"id", "actor_id", "action", "resource_type", "resource_id", "request_id",
				"before_state", "after_state", "status", "error_message", "created_at"}).
				AddRow("aud-1", "system", "obligation.dispute", "obligation", "obl-1", pgtype.Text{String: "req-1", Valid: true},
					nil, []byte(`{"status":"DISPUTED"}`), "success", pgtype.Text{}, timeToPgTimestamptz(repoNow)),
		)

	repo := &AuditRepository{db: mock}
	logs, err := repo.List(context.Background(), domain.AuditFilter{
		ResourceType: "obligation",
		ResourceID:   "obl-1",
		Limit:        20,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].RequestID != "req-1" || logs[0].AfterState["status"] != "DISPUTED" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if logs[0].BeforeState != nil {
		t.Fatalf("expected empty before state")
	}
}

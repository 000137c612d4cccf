package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/jibledger/internal/domain"
)

func TestOutboxRepositoryCreate(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("evt-1", "led-1", domain.AggregateTypeLedger, domain.EventTypeLedgerSent,
			[]byte(`{"ledger_id":"led-1"}`), pgxmock.AnyArg(), pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := &OutboxRepository{db: mock}
	err := repo.Create(context.Background(), tx, &domain.OutboxEvent{
		ID:            "evt-1",
		AggregateID:   "led-1",
		AggregateType: domain.AggregateTypeLedger,
		EventType:     domain.EventTypeLedgerSent,
		Payload:       map[string]any{"ledger_id": "led-1"},
		CreatedAt:     repoNow,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	assertExpectations(t, mock)
}

func TestOutboxRepositoryGetUnpublished(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("WHERE published = false").WithArgs(10).WillReturnRows(
		pgxmock.NewRows([]string{"id", "aggregate_id", "aggregate_type", "event_type", "payload", "created_at", "published_at", "published"}).
			AddRow("evt-1", "led-1", "ledger", "ledger.created", []byte(`{"code":"CC-1"}`),
				timeToPgTimestamptz(repoNow), pgtype.Timestamptz{}, false),
	)

	repo := &OutboxRepository{db: mock}
	events, err := repo.GetUnpublished(context.Background(), 10)
	if err != nil {
		t.Fatalf("get unpublished: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Payload["code"] != "CC-1" || events[0].PublishedAt != nil {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestOutboxRepositoryMarkPublished(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec("UPDATE outbox_events SET published = true").
		WithArgs("evt-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := &OutboxRepository{db: mock}
	if err := repo.MarkPublished(context.Background(), "evt-1", repoNow); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	assertExpectations(t, mock)
}

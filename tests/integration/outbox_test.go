package integration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisRepo "github.com/iho/jibledger/internal/adapter/repository/redis"
	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/infrastructure/eventpublisher"
	"github.com/iho/jibledger/internal/usecase"
	"github.com/iho/jibledger/tests/testutil"
)

func TestOutboxRelayToRedisStream(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	db.SeedWorkingInterests(ctx, "K-4", map[string]int64{"A": 100})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := redisRepo.NewStatusCache(client, time.Minute)
	svc := db.NewServices(testutil.NewClock(callDate), cache)

	ledger, err := svc.Ledgers.CreateCashCall(ctx, usecase.CreateCashCallInput{
		ContractID:  "K-4",
		Currency:    "USD",
		TotalAmount: testutil.Amount("500.00"),
		CallDate:    callDate,
		DueDate:     dueDate,
	})
	require.NoError(t, err)
	_, _, err = svc.Ledgers.SendLedger(ctx, ledger.ID)
	require.NoError(t, err)

	status, err := svc.Ledgers.GetLedgerStatus(ctx, ledger.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusSent, status)
	cached, ok, err := cache.Get(ctx, ledger.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.LedgerStatusSent, cached)

	relayCtx, cancel := context.WithCancel(ctx)
	relay := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: svc.Outbox,
		Publisher:  eventpublisher.NewRedisStreamPublisher(client, "jib:events", 1000),
		Logger:     zerolog.Nop(),
		Interval:   20 * time.Millisecond,
	})
	done := make(chan error, 1)
	go func() { done <- relay.Start(relayCtx) }()

	require.Eventually(t, func() bool {
		pending, err := svc.Outbox.GetUnpublished(ctx, 10)
		return err == nil && len(pending) == 0
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	entries, err := client.XRange(ctx, "jib:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EventTypeLedgerCreated, entries[0].Values["event_type"])
	assert.Equal(t, domain.EventTypeLedgerSent, entries[1].Values["event_type"])
}

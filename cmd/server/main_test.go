package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/jibledger/internal/infrastructure/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage:             config.StorageMemory,
		HTTPPort:            "0",
		HTTPShutdownTimeout: time.Second,
		OutboxBatchSize:     10,
		OutboxPollInterval:  10 * time.Millisecond,
		StatusCacheTTL:      time.Minute,
		RedisEventStream:    "jib:events",
	}
}

func TestOpenStorageMemory(t *testing.T) {
	store, err := openStorage(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer store.close()

	assert.NotNil(t, store.txManager)
	assert.NotNil(t, store.ledgers)
	assert.NotNil(t, store.references)
	assert.Nil(t, store.ping, "memory storage has nothing to ping")
}

func TestOpenRedisDisabled(t *testing.T) {
	rds, err := openRedis(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer rds.close()

	assert.Nil(t, rds.statusCache)
	assert.Nil(t, rds.idempotency)
	assert.NotNil(t, rds.publisher)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	rds, err := openRedis(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer rds.close()

	assert.NotNil(t, rds.statusCache)
	assert.NotNil(t, rds.idempotency)
	require.NotNil(t, rds.ping)
	assert.NoError(t, rds.ping.Ping(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, memoryConfig(), zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

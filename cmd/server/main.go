package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/jibledger/internal/adapter/http"
	"github.com/iho/jibledger/internal/adapter/http/handler"
	"github.com/iho/jibledger/internal/adapter/http/middleware"
	"github.com/iho/jibledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/jibledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/jibledger/internal/adapter/repository/redis"
	"github.com/iho/jibledger/internal/infrastructure/config"
	"github.com/iho/jibledger/internal/infrastructure/eventpublisher"
	"github.com/iho/jibledger/internal/infrastructure/logger"
	"github.com/iho/jibledger/internal/infrastructure/metrics"
	"github.com/iho/jibledger/internal/infrastructure/postgres"
	"github.com/iho/jibledger/internal/infrastructure/redis"
	"github.com/iho/jibledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "jibledger"})
	log.Logger = appLogger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal().Err(err).Msg("server failed")
	}
	appLogger.Info().Msg("server stopped")
}

// storage is the set of repositories one backend provides.
type storage struct {
	txManager  usecase.TransactionManager
	ledgers    usecase.LedgerRepository
	references usecase.ExternalReferenceRepository
	outbox     usecase.OutboxRepository
	audit      usecase.AuditRepository
	interests  usecase.WorkingInterestProvider
	retrier    usecase.Retrier
	idGen      usecase.IDGenerator
	ping       handler.Pinger
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &storage{
			txManager:  memory.NewTxManager(store),
			ledgers:    memory.NewLedgerRepository(store),
			references: memory.NewExternalReferenceRepository(store),
			outbox:     memory.NewOutboxRepository(store),
			audit:      memory.NewAuditRepository(store),
			interests:  memory.NewWorkingInterestRepository(store),
			retrier:    postgresRepo.NewRetrier(),
			idGen:      postgresRepo.NewULIDGenerator(),
			close:      func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
	defer cancel()

	pool, err := postgres.NewPoolWithConfig(connectCtx, postgres.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info().Msg("connected to postgres")

	if err := postgres.RunMigrations(logger, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, err
	}

	return postgresStorage(pool), nil
}

func postgresStorage(pool *pgxpool.Pool) *storage {
	return &storage{
		txManager:  postgresRepo.NewTxManager(pool),
		ledgers:    postgresRepo.NewLedgerRepository(pool),
		references: postgresRepo.NewExternalReferenceRepository(),
		outbox:     postgresRepo.NewOutboxRepository(pool),
		audit:      postgresRepo.NewAuditRepository(pool),
		interests:  postgresRepo.NewWorkingInterestRepository(pool),
		retrier:    postgresRepo.NewRetrier(),
		idGen:      postgresRepo.NewULIDGenerator(),
		ping:       pool,
		close:      pool.Close,
	}
}

// redisServices are the optional Redis-backed components.
type redisServices struct {
	statusCache usecase.StatusCache
	idempotency usecase.IdempotencyStore
	publisher   eventpublisher.Publisher
	ping        handler.Pinger
	close       func()
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redisServices, error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; status cache and idempotency replay disabled, events go to the log")
		return &redisServices{publisher: eventpublisher.NewLogPublisher(logger), close: func() {}}, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("connected to redis")

	return &redisServices{
		statusCache: redisRepo.NewStatusCache(client, cfg.StatusCacheTTL),
		idempotency: redisRepo.NewIdempotencyStore(client),
		publisher:   eventpublisher.NewRedisStreamPublisher(client, cfg.RedisEventStream, 100_000),
		ping:        handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
		close:       func() { _ = client.Close() },
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	rds, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rds.close()

	m := metrics.New()
	clock := usecase.SystemClock{}

	ledgerUC := usecase.NewLedgerUseCase(store.txManager, store.ledgers, store.outbox, store.audit,
		store.interests, rds.statusCache, store.retrier, store.idGen, clock, m)
	reconUC := usecase.NewReconciliationUseCase(store.txManager, store.ledgers, store.references,
		store.outbox, store.audit, rds.statusCache, store.retrier, store.idGen, clock, m)

	checks := map[string]handler.Pinger{}
	if store.ping != nil {
		checks["postgres"] = store.ping
	}
	if rds.ping != nil {
		checks["redis"] = rds.ping
	}

	routerCfg := httpAdapter.RouterConfig{
		LedgerHandler:         handler.NewLedgerHandler(ledgerUC),
		ReconciliationHandler: handler.NewReconciliationHandler(reconUC),
		AuditHandler:          handler.NewAuditHandler(ledgerUC),
		HealthHandler:         handler.NewHealthHandler(checks),
		Logger:                logger,
		Metrics:               m,
		IdempotencyStore:      rds.idempotency,
		IdempotencyTTL:        cfg.IdempotencyTTL,
	}
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
		go limiter.RunCleanup(ctx, 10*time.Minute, time.Hour)
		routerCfg.RateLimiter = limiter
	}

	relay := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  rds.publisher,
		Logger:     logger,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
		Clock:      clock,
	})
	relayDone := make(chan error, 1)
	go func() { relayDone <- relay.Start(ctx) }()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-relayDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("event publisher stopped with error")
	}
	return nil
}

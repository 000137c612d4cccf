package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/adapter/repository/postgres"
	"github.com/iho/jibledger/internal/domain"
	infrapg "github.com/iho/jibledger/internal/infrastructure/postgres"
	"github.com/iho/jibledger/internal/usecase"
)

// TestDB provides a migrated test database.
type TestDB struct {
	Pool *pgxpool.Pool
	t    *testing.T
}

// NewTestDB connects to DATABASE_URL and applies migrations. The test is
// skipped in -short mode or when DATABASE_URL is not set.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	if err := infrapg.RunMigrations(zerolog.Nop(), dbURL, findMigrations(t)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infrapg.NewPool(ctx, dbURL, 20, 2)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	db := &TestDB{Pool: pool, t: t}
	t.Cleanup(db.Cleanup)
	db.TruncateAll(ctx)
	return db
}

// findMigrations walks up from the working directory to the repo's
// migrations folder.
func findMigrations(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations directory not found")
		}
		dir = parent
	}
}

// Cleanup closes the database connection.
func (db *TestDB) Cleanup() {
	db.Pool.Close()
}

// TruncateAll removes all data from tables.
func (db *TestDB) TruncateAll(ctx context.Context) {
	db.t.Helper()

	_, err := db.Pool.Exec(ctx, `
		TRUNCATE TABLE
			obligation_settlements,
			obligation_status_history,
			external_references,
			obligations,
			ledger_line_items,
			ledgers,
			outbox_events,
			audit_logs,
			contract_working_interests
		CASCADE`)
	if err != nil {
		db.t.Fatalf("failed to truncate tables: %v", err)
	}
}

// SeedWorkingInterests inserts open-ended interests for a contract.
func (db *TestDB) SeedWorkingInterests(ctx context.Context, contractID string, shares map[string]int64) {
	db.t.Helper()

	for party, pct := range shares {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO contract_working_interests (contract_id, party_id, percent) VALUES ($1, $2, $3)`,
			contractID, party, pct)
		if err != nil {
			db.t.Fatalf("failed to seed working interest: %v", err)
		}
	}
}

// Clock is a settable usecase.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at now.
func NewClock(now time.Time) *Clock { return &Clock{now: now} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Services are the use cases wired to postgres repositories.
type Services struct {
	Ledgers *usecase.LedgerUseCase
	Recon   *usecase.ReconciliationUseCase
	Outbox  *postgres.OutboxRepository
	Audit   *postgres.AuditRepository
	Repo    *postgres.LedgerRepository
}

// NewServices wires the use cases the way the server does, minus Redis.
func (db *TestDB) NewServices(clock usecase.Clock, cache usecase.StatusCache) *Services {
	pool := db.Pool
	txManager := postgres.NewTxManager(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	outbox := postgres.NewOutboxRepository(pool)
	audit := postgres.NewAuditRepository(pool)
	idGen := postgres.NewULIDGenerator()
	retrier := postgres.NewRetrier()

	return &Services{
		Ledgers: usecase.NewLedgerUseCase(txManager, ledgerRepo, outbox, audit,
			postgres.NewWorkingInterestRepository(pool), cache, retrier, idGen, clock, nil),
		Recon: usecase.NewReconciliationUseCase(txManager, ledgerRepo, postgres.NewExternalReferenceRepository(),
			outbox, audit, cache, retrier, idGen, clock, nil),
		Outbox: outbox,
		Audit:  audit,
		Repo:   ledgerRepo,
	}
}

// Amount parses a decimal literal.
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// GenerateID generates a new ULID.
func GenerateID() string {
	return ulid.Make().String()
}

// ObligationFor returns the obligation of partyID.
func ObligationFor(t *testing.T, ledger *domain.Ledger, partyID string) *domain.Obligation {
	t.Helper()
	for _, o := range ledger.Obligations {
		if o.PartyID == partyID {
			return o
		}
	}
	t.Fatalf("no obligation for party %s", partyID)
	return nil
}

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/adapter/repository/memory"
	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

var (
	callDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dueDate  = callDate.AddDate(0, 0, 30)
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// conflictRetrier re-runs operations that lost an optimistic version race.
type conflictRetrier struct {
	attempts int
}

func (r conflictRetrier) Retry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < r.attempts; i++ {
		if err = op(); !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
	}
	return err
}

type cachedStatus struct {
	version int64
	status  domain.LedgerStatus
}

// mapStatusCache mirrors the Redis cache: writes for an older version are
// ignored. failSet makes every Set fail.
type mapStatusCache struct {
	mu       sync.Mutex
	statuses map[string]cachedStatus
	failSet  bool
}

func newMapStatusCache() *mapStatusCache {
	return &mapStatusCache{statuses: make(map[string]cachedStatus)}
}

func (c *mapStatusCache) Get(_ context.Context, id string) (domain.LedgerStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.statuses[id]
	return entry.status, ok, nil
}

func (c *mapStatusCache) Set(_ context.Context, id string, version int64, s domain.LedgerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("cache unavailable")
	}
	if current, ok := c.statuses[id]; ok && current.version > version {
		return nil
	}
	c.statuses[id] = cachedStatus{version: version, status: s}
	return nil
}

func (c *mapStatusCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, id)
	return nil
}

func (c *mapStatusCache) setFailing(fail bool) {
	c.mu.Lock()
	c.failSet = fail
	c.mu.Unlock()
}

type harness struct {
	store     *memory.Store
	interests *memory.WorkingInterestRepository
	outbox    *memory.OutboxRepository
	audit     *memory.AuditRepository
	cache     *mapStatusCache
	clock     *fakeClock
	ledgers   *usecase.LedgerUseCase
	recon     *usecase.ReconciliationUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	h := &harness{
		store:     store,
		interests: memory.NewWorkingInterestRepository(store),
		outbox:    memory.NewOutboxRepository(store),
		audit:     memory.NewAuditRepository(store),
		cache:     newMapStatusCache(),
		clock:     &fakeClock{now: callDate},
	}
	txm := memory.NewTxManager(store)
	ledgerRepo := memory.NewLedgerRepository(store)
	ids := &seqIDs{}
	retrier := conflictRetrier{attempts: 50}

	h.ledgers = usecase.NewLedgerUseCase(txm, ledgerRepo, h.outbox, h.audit, h.interests, h.cache, retrier, ids, h.clock, nil)
	h.recon = usecase.NewReconciliationUseCase(txm, ledgerRepo, memory.NewExternalReferenceRepository(store),
		h.outbox, h.audit, h.cache, retrier, ids, h.clock, nil)

	h.interests.SetWorkingInterests("contract-1",
		domain.WorkingInterest{PartyID: "A", Percent: decimal.NewFromInt(60)},
		domain.WorkingInterest{PartyID: "B", Percent: decimal.NewFromInt(25)},
		domain.WorkingInterest{PartyID: "C", Percent: decimal.NewFromInt(15)},
	)
	return h
}

func (h *harness) sentCashCall(t *testing.T, total string) *domain.Ledger {
	t.Helper()
	ctx := context.Background()
	ledger, err := h.ledgers.CreateCashCall(ctx, usecase.CreateCashCallInput{
		ContractID:  "contract-1",
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString(total),
		CallDate:    callDate,
		DueDate:     dueDate,
	})
	if err != nil {
		t.Fatalf("create cash call: %v", err)
	}
	ledger, _, err = h.ledgers.SendLedger(ctx, ledger.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return ledger
}

func (h *harness) eventTypes(t *testing.T, aggregateID string) []string {
	t.Helper()
	events, err := h.outbox.GetByAggregate(context.Background(), domain.AggregateTypeLedger, aggregateID, 500, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	return types
}

func (h *harness) allEventTypes(t *testing.T) map[string]int {
	t.Helper()
	events, err := h.outbox.GetUnpublished(context.Background(), 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.EventType]++
	}
	return counts
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

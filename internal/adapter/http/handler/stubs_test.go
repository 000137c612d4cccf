package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

var stubNow = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func sampleLedger() *domain.Ledger {
	return &domain.Ledger{
		ID:          "led-1",
		Code:        "CC-1",
		Kind:        domain.LedgerKindCashCall,
		ContractID:  "contract-1",
		TotalAmount: decimal.RequireFromString("1000"),
		Currency:    "USD",
		Status:      domain.LedgerStatusSent,
		LedgerDate:  stubNow,
		DueDate:     stubNow.AddDate(0, 0, 30),
		Version:     2,
		Obligations: []*domain.Obligation{{
			ID:                     "obl-1",
			LedgerID:               "led-1",
			PartyID:                "A",
			Kind:                   domain.LedgerKindCashCall,
			WorkingInterestPercent: decimal.NewFromInt(100),
			RequestedAmount:        decimal.RequireFromString("1000"),
			Currency:               "USD",
			Status:                 domain.ObligationStatusPending,
		}},
	}
}

type stubLedgerService struct {
	ledger     *domain.Ledger
	err        error
	changed    bool
	status     domain.LedgerStatus
	verify     *usecase.VerificationResult
	lastFilter usecase.LedgerFilter
	lastCash   usecase.CreateCashCallInput
	lastJIB    usecase.CreateJIBStatementInput
}

func (s *stubLedgerService) CreateCashCall(_ context.Context, in usecase.CreateCashCallInput) (*domain.Ledger, error) {
	s.lastCash = in
	return s.ledger, s.err
}

func (s *stubLedgerService) CreateJIBStatement(_ context.Context, in usecase.CreateJIBStatementInput) (*domain.Ledger, error) {
	s.lastJIB = in
	return s.ledger, s.err
}

func (s *stubLedgerService) SendLedger(context.Context, string) (*domain.Ledger, bool, error) {
	return s.ledger, s.changed, s.err
}

func (s *stubLedgerService) GetLedger(context.Context, string) (*domain.Ledger, error) {
	return s.ledger, s.err
}

func (s *stubLedgerService) ListLedgers(_ context.Context, filter usecase.LedgerFilter) ([]*domain.Ledger, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return []*domain.Ledger{s.ledger}, nil
}

func (s *stubLedgerService) GetLedgerStatus(context.Context, string) (domain.LedgerStatus, error) {
	return s.status, s.err
}

func (s *stubLedgerService) VerifyLedger(context.Context, string) (*usecase.VerificationResult, error) {
	return s.verify, s.err
}

type stubReconciliationService struct {
	result      *usecase.ReconciliationResult
	err         error
	lastInput   usecase.SettlementInput
	lastReason  string
	lastPenalty *decimal.Decimal
}

func (s *stubReconciliationService) RecordFunding(_ context.Context, in usecase.SettlementInput) (*usecase.ReconciliationResult, error) {
	s.lastInput = in
	return s.result, s.err
}

func (s *stubReconciliationService) RecordPayment(_ context.Context, in usecase.SettlementInput) (*usecase.ReconciliationResult, error) {
	s.lastInput = in
	return s.result, s.err
}

func (s *stubReconciliationService) MarkDispute(_ context.Context, _, _, reason string) (*usecase.ReconciliationResult, error) {
	s.lastReason = reason
	return s.result, s.err
}

func (s *stubReconciliationService) ResolveDispute(_ context.Context, _, _, note string) (*usecase.ReconciliationResult, error) {
	s.lastReason = note
	return s.result, s.err
}

func (s *stubReconciliationService) MarkDefault(_ context.Context, _, _ string, penalty *decimal.Decimal) (*usecase.ReconciliationResult, error) {
	s.lastPenalty = penalty
	return s.result, s.err
}

type stubTrailService struct {
	logs       []*domain.AuditLog
	events     []*domain.OutboxEvent
	lastFilter domain.AuditFilter
	lastAgg    [2]string
}

func (s *stubTrailService) ListAuditTrail(_ context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	s.lastFilter = filter
	return s.logs, nil
}

func (s *stubTrailService) ListEvents(_ context.Context, aggregateType, aggregateID string, _, _ int) ([]*domain.OutboxEvent, error) {
	s.lastAgg = [2]string{aggregateType, aggregateID}
	return s.events, nil
}

// serve routes a single request through chi so URL params resolve.
func serve(method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

func TestLedgerFromDomain(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	penalty := decimal.RequireFromString("12.50")
	ledger := &domain.Ledger{
		ID:          "led-1",
		Code:        "JIB-1",
		Kind:        domain.LedgerKindJIB,
		ContractID:  "contract-1",
		TotalAmount: decimal.RequireFromString("100.00"),
		Currency:    "USD",
		LineItems:   []domain.LineItem{{Description: "rig", Amount: decimal.RequireFromString("100.00")}},
		Status:      domain.LedgerStatusDefaulted,
		Version:     4,
		Obligations: []*domain.Obligation{{
			ID:              "obl-1",
			PartyID:         "A",
			RequestedAmount: decimal.RequireFromString("100.00"),
			SettledAmount:   decimal.RequireFromString("40.00"),
			OverpaidAmount:  decimal.Zero,
			PenaltyAmount:   &penalty,
			Currency:        "USD",
			Status:          domain.ObligationStatusDefaulted,
			History: []domain.StatusChange{
				{From: domain.ObligationStatusPending, To: domain.ObligationStatusInvoiced, At: now},
			},
		}},
	}

	resp := LedgerFromDomain(ledger)
	if resp.ID != "led-1" || resp.Kind != "JIB" || resp.Version != 4 || len(resp.LineItems) != 1 {
		t.Fatalf("unexpected ledger response: %+v", resp)
	}

	o := resp.Obligations[0]
	if !o.OutstandingAmount.Equal(decimal.RequireFromString("60")) || o.PenaltyAmount == nil || len(o.History) != 1 {
		t.Fatalf("unexpected obligation response: %+v", o)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["total_amount"] != "100" {
		t.Fatalf("amounts should be encoded as strings, got %v", decoded["total_amount"])
	}
	if _, ok := decoded["sent_at"]; ok {
		t.Fatalf("unsent ledger should omit sent_at")
	}
}

func TestReconciliationFromResult(t *testing.T) {
	result := &usecase.ReconciliationResult{
		Ledger:     &domain.Ledger{ID: "led-1", Status: domain.LedgerStatusFunded},
		Obligation: &domain.Obligation{ID: "obl-1", PartyID: "C", Status: domain.ObligationStatusFunded},
		Duplicate:  true,
	}

	resp := ReconciliationFromResult(result)
	if resp.LedgerStatus != "FUNDED" || !resp.Duplicate || resp.Obligation.PartyID != "C" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWorkingInterestSet_Validate(t *testing.T) {
	t.Parallel()

	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		set     WorkingInterestSet
		wantErr bool
	}{
		{name: "exactly 100", set: interestSet("A", "60", "B", "25", "C", "15")},
		{name: "within epsilon below", set: interestSet("A", "33.3333", "B", "33.3333", "C", "33.3333")},
		{name: "within epsilon above", set: interestSet("A", "50.005", "B", "50.005")},
		{name: "zero percent party allowed", set: interestSet("A", "100", "B", "0")},
		{name: "99.5 rejected", set: interestSet("A", "50", "B", "49.5"), wantErr: true},
		{name: "100.5 rejected", set: interestSet("A", "50", "B", "50.5"), wantErr: true},
		{name: "negative percent", set: interestSet("A", "110", "B", "-10"), wantErr: true},
		{name: "percent above 100", set: interestSet("A", "100.001"), wantErr: true},
		{name: "too many decimals", set: interestSet("A", "33.33333", "B", "66.66667"), wantErr: true},
		{name: "duplicate party", set: interestSet("A", "50", "A", "50"), wantErr: true},
		{name: "empty party id", set: interestSet(" ", "100"), wantErr: true},
		{name: "empty set", set: WorkingInterestSet{}, wantErr: true},
		{
			name: "all interests expired",
			set: WorkingInterestSet{Interests: []WorkingInterest{
				{PartyID: "A", Percent: decimal.NewFromInt(100), EffectiveTo: &end},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate(asOf)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidWorkingInterest) {
					t.Fatalf("expected ErrInvalidWorkingInterest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected valid set, got %v", err)
			}
		})
	}
}

func TestWorkingInterest_ActiveOn(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	wi := WorkingInterest{PartyID: "A", Percent: decimal.NewFromInt(100), EffectiveFrom: from, EffectiveTo: &to}

	if wi.ActiveOn(from.Add(-time.Second)) {
		t.Error("expected inactive before EffectiveFrom")
	}
	if !wi.ActiveOn(from) {
		t.Error("expected active on EffectiveFrom")
	}
	if wi.ActiveOn(to) {
		t.Error("expected EffectiveTo to be exclusive")
	}
}

func TestWorkingInterestSet_TotalPercentCountsActiveOnly(t *testing.T) {
	t.Parallel()

	switchover := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	set := WorkingInterestSet{ContractID: "ctr-1", Interests: []WorkingInterest{
		{PartyID: "A", Percent: decimal.NewFromInt(60)},
		{PartyID: "B", Percent: decimal.NewFromInt(40), EffectiveTo: &switchover},
		{PartyID: "C", Percent: decimal.NewFromInt(40), EffectiveFrom: switchover},
	}}

	before, after := switchover.AddDate(0, 0, -1), switchover
	if got := set.TotalPercent(before); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total before switchover = %s, want 100", got)
	}
	if got := set.TotalPercent(after); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total after switchover = %s, want 100", got)
	}
	if err := set.Validate(after); err != nil {
		t.Fatalf("validate after switchover: %v", err)
	}
}

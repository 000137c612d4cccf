package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Working interest precision constants.
const (
	// MaxPercentPlaces is the finest percentage precision accepted (e.g. 33.3333).
	MaxPercentPlaces int32 = 4
)

var (
	// PercentEpsilon is the tolerance, in percentage points, for the 100% invariant.
	PercentEpsilon = decimal.RequireFromString("0.01")

	hundred = decimal.NewFromInt(100)
)

// WorkingInterest is one party's cost-responsibility share in a contract.
// EffectiveTo is exclusive; a zero EffectiveFrom means "since inception".
type WorkingInterest struct {
	PartyID       string
	Percent       decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// ActiveOn reports whether the interest applies on the given date.
func (wi WorkingInterest) ActiveOn(asOf time.Time) bool {
	if !wi.EffectiveFrom.IsZero() && asOf.Before(wi.EffectiveFrom) {
		return false
	}
	if wi.EffectiveTo != nil && !asOf.Before(*wi.EffectiveTo) {
		return false
	}
	return true
}

// WorkingInterestSet is the read-only collection of interests for a contract.
type WorkingInterestSet struct {
	ContractID string
	Interests  []WorkingInterest
}

// Active returns the interests effective on asOf, preserving input order.
func (s WorkingInterestSet) Active(asOf time.Time) []WorkingInterest {
	active := make([]WorkingInterest, 0, len(s.Interests))
	for _, wi := range s.Interests {
		if wi.ActiveOn(asOf) {
			active = append(active, wi)
		}
	}
	return active
}

// TotalPercent sums the percentages active on asOf.
func (s WorkingInterestSet) TotalPercent(asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, wi := range s.Active(asOf) {
		total = total.Add(wi.Percent)
	}
	return total
}

// Validate checks the set against the 100% invariant as of the given date.
// It has no side effects.
func (s WorkingInterestSet) Validate(asOf time.Time) error {
	for _, wi := range s.Interests {
		if strings.TrimSpace(wi.PartyID) == "" {
			return fmt.Errorf("%w: party id is required", ErrInvalidWorkingInterest)
		}
		if wi.Percent.IsNegative() {
			return fmt.Errorf("%w: party %s has negative percentage %s", ErrInvalidWorkingInterest, wi.PartyID, wi.Percent.String())
		}
		if wi.Percent.GreaterThan(hundred) {
			return fmt.Errorf("%w: party %s has percentage %s above 100", ErrInvalidWorkingInterest, wi.PartyID, wi.Percent.String())
		}
		if !FitsScale(wi.Percent, MaxPercentPlaces) {
			return fmt.Errorf("%w: party %s percentage %s exceeds %d decimal places", ErrInvalidWorkingInterest, wi.PartyID, wi.Percent.String(), MaxPercentPlaces)
		}
		if wi.EffectiveTo != nil && !wi.EffectiveFrom.IsZero() && !wi.EffectiveTo.After(wi.EffectiveFrom) {
			return fmt.Errorf("%w: party %s has an empty effective period", ErrInvalidWorkingInterest, wi.PartyID)
		}
	}

	active := s.Active(asOf)
	if len(active) == 0 {
		return fmt.Errorf("%w: no working interests active on %s", ErrInvalidWorkingInterest, asOf.Format(time.DateOnly))
	}

	seen := make(map[string]struct{}, len(active))
	for _, wi := range active {
		if _, dup := seen[wi.PartyID]; dup {
			return fmt.Errorf("%w: duplicate party %s", ErrInvalidWorkingInterest, wi.PartyID)
		}
		seen[wi.PartyID] = struct{}{}
	}

	if total := s.TotalPercent(asOf); total.Sub(hundred).Abs().GreaterThan(PercentEpsilon) {
		return fmt.Errorf("%w: percentages sum to %s, expected 100 within %s", ErrInvalidWorkingInterest, total.String(), PercentEpsilon.String())
	}

	return nil
}

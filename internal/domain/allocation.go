package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ObligationSeed is one party's share produced by Allocate.
type ObligationSeed struct {
	PartyID                string
	WorkingInterestPercent decimal.Decimal
	Amount                 decimal.Decimal
}

// Allocate splits total across the interests active on asOf.
//
// Each raw share is total*percent/100 rounded half-to-even to the currency's
// minor unit. Any residual is then handed out one minor unit at a time to the
// parties ordered by percentage descending, party id ascending, so the shares
// always sum exactly to total. Seeds are returned in the input order.
func Allocate(total decimal.Decimal, currencyCode string, set WorkingInterestSet, asOf time.Time) ([]ObligationSeed, error) {
	scale, err := CurrencyScale(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAllocationInput, err)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: total %s is negative", ErrInvalidAllocationInput, total.String())
	}
	if !FitsScale(total, scale) {
		return nil, fmt.Errorf("%w: total %s has more than %d decimal places", ErrInvalidAllocationInput, total.String(), scale)
	}
	if err := set.Validate(asOf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAllocationInput, err)
	}

	active := set.Active(asOf)
	seeds := make([]ObligationSeed, len(active))
	allocated := decimal.Zero
	for i, wi := range active {
		share := total.Mul(wi.Percent).Shift(-2).RoundBank(scale)
		seeds[i] = ObligationSeed{
			PartyID:                wi.PartyID,
			WorkingInterestPercent: wi.Percent,
			Amount:                 share,
		}
		allocated = allocated.Add(share)
	}

	delta := ToMinorUnits(total.Sub(allocated), scale)
	if delta != 0 {
		distributeResidual(seeds, residualOrder(seeds), delta, scale)
	}

	return seeds, nil
}

// residualOrder lists the indexes of parties eligible for residual units.
func residualOrder(seeds []ObligationSeed) []int {
	order := make([]int, 0, len(seeds))
	for i, s := range seeds {
		if s.WorkingInterestPercent.IsPositive() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := seeds[order[a]].WorkingInterestPercent, seeds[order[b]].WorkingInterestPercent
		if !pa.Equal(pb) {
			return pa.GreaterThan(pb)
		}
		return seeds[order[a]].PartyID < seeds[order[b]].PartyID
	})
	return order
}

// distributeResidual applies delta minor units round-robin over order. Full
// rounds are applied in bulk; they are equivalent to unit-by-unit passes.
// A unit is never taken from a share that would go negative.
func distributeResidual(seeds []ObligationSeed, order []int, delta int64, scale int32) {
	if len(order) == 0 {
		return
	}
	unit := MinorUnit(scale)

	if delta > 0 {
		n := int64(len(order))
		perParty, rest := delta/n, delta%n
		for i, idx := range order {
			units := perParty
			if int64(i) < rest {
				units++
			}
			if units > 0 {
				seeds[idx].Amount = seeds[idx].Amount.Add(unit.Mul(decimal.NewFromInt(units)))
			}
		}
		return
	}

	for delta < 0 {
		eligible := make([]int, 0, len(order))
		minUnits := int64(-1)
		for _, idx := range order {
			units := ToMinorUnits(seeds[idx].Amount, scale)
			if units <= 0 {
				continue
			}
			eligible = append(eligible, idx)
			if minUnits < 0 || units < minUnits {
				minUnits = units
			}
		}
		if len(eligible) == 0 {
			return
		}

		rounds := min(-delta/int64(len(eligible)), minUnits)
		if rounds > 0 {
			step := unit.Mul(decimal.NewFromInt(rounds))
			for _, idx := range eligible {
				seeds[idx].Amount = seeds[idx].Amount.Sub(step)
			}
			delta += rounds * int64(len(eligible))
			continue
		}

		for _, idx := range eligible {
			if delta == 0 {
				break
			}
			seeds[idx].Amount = seeds[idx].Amount.Sub(unit)
			delta++
		}
	}
}

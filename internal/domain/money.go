package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CurrencyScale returns the number of minor-unit digits for an ISO 4217
// currency (2 for USD, 0 for JPY, 3 for KWD).
func CurrencyScale(code string) (int32, error) {
	code = NormalizeCurrency(code)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a recognized ISO 4217 currency code", ErrInvalidCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// ValidateCurrency validates currency code
func ValidateCurrency(code string) error {
	_, err := CurrencyScale(code)
	return err
}

// MinorUnit is the smallest representable amount at the given scale.
func MinorUnit(scale int32) decimal.Decimal {
	return decimal.New(1, -scale)
}

// FitsScale reports whether amount has no more decimal places than scale.
func FitsScale(amount decimal.Decimal, scale int32) bool {
	return amount.Equal(amount.Truncate(scale))
}

// ToMinorUnits converts an amount already at scale into an integer count of minor units.
func ToMinorUnits(amount decimal.Decimal, scale int32) int64 {
	return amount.Shift(scale).IntPart()
}

// ValidateSettlementAmount checks that amount is positive and representable in the currency.
func ValidateSettlementAmount(amount decimal.Decimal, code string) error {
	scale, err := CurrencyScale(code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPaymentAmount, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidPaymentAmount, amount.String())
	}
	if !FitsScale(amount, scale) {
		return fmt.Errorf("%w: %s has more than %d decimal places for %s", ErrInvalidPaymentAmount, amount.String(), scale, NormalizeCurrency(code))
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 500
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

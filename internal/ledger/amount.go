package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that cannot be charged.
var ErrInvalidAmount = errors.New("ledger: invalid amount")

// FromMinorUnits converts an integer count of cents to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}

// ToMinorUnits converts a decimal amount to cents. Sub-cent precision and
// non-positive amounts are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount.String())
	}
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-cent precision", ErrInvalidAmount, amount.String())
	}
	if minor.Cmp(decimal.NewFromInt(1<<62)) > 0 {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, amount.String())
	}
	return minor.IntPart(), nil
}

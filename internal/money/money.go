package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (cents). All arithmetic inside
// the service happens on this type; decimal values exist only at the API
// boundary.
type Amount int64

var (
	// ErrTooPrecise indicates a decimal value with more than two fractional digits.
	ErrTooPrecise = errors.New("amount has more than two fractional digits")

	// ErrTooLarge indicates a decimal whose minor-unit value does not fit in int64.
	ErrTooLarge = errors.New("amount exceeds representable range")

	// ErrNotPositive indicates a zero or negative amount where a positive one is required.
	ErrNotPositive = errors.New("amount must be positive")
)

// FromDecimal converts a boundary decimal into minor units. Values with more
// than two fractional digits are rejected rather than rounded, and values
// whose cents overflow int64 are rejected rather than wrapped.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrTooLarge, d.String())
	}
	return Amount(cents.IntPart()), nil
}

// PositiveFromDecimal converts like FromDecimal and additionally requires the
// result to be strictly positive.
func PositiveFromDecimal(d decimal.Decimal) (Amount, error) {
	a, err := FromDecimal(d)
	if err != nil {
		return 0, err
	}
	if a <= 0 {
		return 0, ErrNotPositive
	}
	return a, nil
}

// Decimal renders the amount as a two-fractional-digit decimal for responses.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String formats the amount as e.g. "50.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

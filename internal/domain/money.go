package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitsPerMajor is the kobo-per-naira factor.
const minorUnitsPerMajor = 100

// Money is an amount in minor units (kobo). The platform settles in a single currency.
type Money int64

// ToDecimal converts minor units to a major-unit decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(minorUnitsPerMajor))
}

// MoneyFromDecimal converts a major-unit decimal to minor units, rounding down sub-kobo fractions.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(decimal.NewFromInt(minorUnitsPerMajor)).Floor().IntPart())
}

// ParseMoney parses a major-unit string such as "150.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d), nil
}

// String renders the amount as "NGN 150.50".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", Currency, m.ToDecimal().StringFixed(2))
}

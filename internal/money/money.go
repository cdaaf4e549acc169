// Package money wraps shopspring/decimal with the 2-decimal arithmetic
// used for invoice amounts. All comparisons against declared totals go
// through WithinTolerance so drift from repeated addition never creeps in.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Tolerance is the fixed rounding tolerance for comparing computed
// aggregates against declared amounts.
var Tolerance = decimal.New(1, -2) // 0.01

// FromString parses a decimal amount from its lexical form
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// MustFromString parses a decimal amount, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round2 rounds to 2 decimal places, half away from zero
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// TaxOf computes the tax amount for a taxable amount at the given percent,
// rounded to 2 places: round(taxable * percent / 100, 2)
func TaxOf(taxable, percent decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return taxable.Mul(percent).Div(hundred).Round(2)
}

// Sum sums a slice of decimals exactly
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// WithinTolerance reports whether two amounts agree at 2-decimal precision
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// FractionDigits returns the number of fractional digits in the lexical
// form of an amount. The check is lexical: "123.450" has three.
func FractionDigits(literal string) int {
	s := strings.TrimSpace(literal)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

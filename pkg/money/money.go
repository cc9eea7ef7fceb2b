// Package money converts between integer minor units and decimal amounts.
// Order amounts are stored as cents; decimals only appear at the edges
// (client-submitted totals, provider amounts, exchange rates).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of fraction digits every order currency is rounded to.
const MinorUnitPlaces = 2

// FromCents returns the decimal value of an amount expressed in cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnitPlaces)
}

// ToCents rounds a decimal amount to the minor unit and returns it in cents.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(MinorUnitPlaces).Shift(MinorUnitPlaces).IntPart()
}

// ParseCents parses a decimal string such as "22.00" into cents.
func ParseCents(value string) (int64, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return ToCents(amount), nil
}

// Format renders cents with exactly two fraction digits.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(MinorUnitPlaces)
}

// Convert multiplies a cent amount by rate and rounds the result to places.
// Rounding is half away from zero.
func Convert(cents int64, rate decimal.Decimal, places int32) decimal.Decimal {
	return FromCents(cents).Mul(rate).Round(places)
}

// ConvertUp is Convert rounding toward positive infinity, so a customer is
// never asked for less than the order is worth.
func ConvertUp(cents int64, rate decimal.Decimal, places int32) decimal.Decimal {
	return FromCents(cents).Mul(rate).RoundUp(places)
}

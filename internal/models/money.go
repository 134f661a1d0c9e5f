package models

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places (minor units) kept on every
// stored amount.
const MoneyPlaces = 2

func init() {
	// Balances go over the wire as JSON numbers, matching the client contract.
	decimal.MarshalJSONWithoutQuotes = true
}

// Money rounds an amount to minor-unit precision.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// IsMinorUnits reports whether d needs no rounding to be stored.
func IsMinorUnits(d decimal.Decimal) bool {
	return d.Equal(Money(d))
}

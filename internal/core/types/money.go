// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors; every monetary column
// is stored as a fixed-point NUMERIC, never a float.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// ToBase converts an original-currency amount to the base currency (ARS)
// using the rate frozen at document creation. Rounded to 2 decimal places,
// matching NUMERIC(15,2) storage.
func ToBase(original Money, fxRate Money) Money {
	return original.Mul(fxRate).Round(2)
}

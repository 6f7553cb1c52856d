// Package numerator provides domain contracts for document auto-numbering.
// Implementations live in pkg/numerator.
package numerator

import (
	"context"
	"time"
)

// Generator issues gap-free sequential numbers scoped by a string key.
// This is the domain contract - the implementation lives outside the domain.
//
// Next must never return the same value twice for the same scope, even under
// concurrent callers. Called inside the enclosing business transaction, so an
// aborted transaction is the only possible gap source.
type Generator interface {
	// Next returns the next number for scope, starting at 1 for a new scope.
	Next(ctx context.Context, scope string) (int64, error)

	// NextFormatted returns the next number rendered with the given config.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., REC-2026-00001)
	NextFormatted(ctx context.Context, cfg Config, period time.Time) (string, error)
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "REC")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

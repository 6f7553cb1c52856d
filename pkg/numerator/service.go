// Package numerator provides the receipt/document auto-numbering service
// backed by the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"cobranza/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierProvider resolves the querier for the current call. Wiring passes the
// transaction manager's GetQuerier here so the sequence increment participates
// in the caller's transaction: a number consumed by an aborted transaction is
// the only possible gap.
type QuerierProvider func(ctx context.Context) Querier

// Service provides document numbering functionality.
//
// Numbers are issued with a single conditional upsert
// (INSERT ... ON CONFLICT ... DO UPDATE ... RETURNING), so two concurrent
// callers for the same scope can never observe or receive the same number:
// the row lock taken by the UPDATE serializes them.
type Service struct {
	querier QuerierProvider
}

// New creates a numerator service resolving its querier per call.
func New(provider QuerierProvider) *Service {
	return &Service{querier: provider}
}

// NewStatic creates a numerator service bound to a fixed querier.
// Use for single-connection scenarios and tests.
func NewStatic(q Querier) *Service {
	return &Service{querier: func(context.Context) Querier { return q }}
}

// Next returns the next number for scope, creating the scope row with the
// value 1 if absent. The read-increment-write is one atomic statement.
func (s *Service) Next(ctx context.Context, scope string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}

	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
        INSERT INTO sys_sequences (scope, current_val)
        VALUES ($1, 1)
        ON CONFLICT (scope) DO UPDATE SET current_val = sys_sequences.current_val + 1
        RETURNING current_val
	`, scope).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("next number for %q: %w", scope, err)
	}
	return num, nil
}

// NextFormatted generates the next formatted document number.
// Pattern: PREFIX-YEAR-XXXXX (e.g., REC-2026-00001)
func (s *Service) NextFormatted(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
	num, err := s.Next(ctx, buildScope(cfg, period))
	if err != nil {
		return "", err
	}
	return formatNumber(cfg, period, num), nil
}

// buildScope creates the sequence scope key based on config and period.
func buildScope(cfg numerator.Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// formatNumber creates the final number string.
func formatNumber(cfg numerator.Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseNumber extracts the numeric part from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	idx := strings.LastIndexByte(formatted, '-')
	if idx < 0 || idx == len(formatted)-1 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return num
}

// Ensure compile-time interface compliance.
var _ numerator.Generator = (*Service)(nil)

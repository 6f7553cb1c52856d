// Package numerator provides domain contracts for document auto-numbering.
package numerator

import (
	"context"
	"sync"
	"time"
)

// MockGenerator is a test implementation of Generator.
// Use in unit tests to avoid database dependencies.
type MockGenerator struct {
	NextFunc          func(ctx context.Context, scope string) (int64, error)
	NextFormattedFunc func(ctx context.Context, cfg Config, period time.Time) (string, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Generator. Without NextFunc it counts per scope in memory.
func (m *MockGenerator) Next(ctx context.Context, scope string) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, scope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[scope]++
	return m.counters[scope], nil
}

// NextFormatted implements Generator.
func (m *MockGenerator) NextFormatted(ctx context.Context, cfg Config, period time.Time) (string, error) {
	if m.NextFormattedFunc != nil {
		return m.NextFormattedFunc(ctx, cfg, period)
	}
	// Default: return predictable mock number
	return "MOCK-2026-00001", nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)

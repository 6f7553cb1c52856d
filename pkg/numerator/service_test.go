package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"cobranza/internal/core/numerator"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64 // Simulates sys_sequences rows per scope
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		m.values = make(map[string]int64)
	}

	scope, _ := args[0].(string)
	m.values[scope]++
	return &mockRow{val: m.values[scope]}
}

func TestNextFormatted(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()
	cfg := numerator.DefaultConfig("REC")
	period := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	num, err := svc.NextFormatted(ctx, cfg, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "REC-2026-00001" {
		t.Errorf("expected REC-2026-00001, got %s", num)
	}

	num, err = svc.NextFormatted(ctx, cfg, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "REC-2026-00002" {
		t.Errorf("expected REC-2026-00002, got %s", num)
	}
}

func TestNext_ScopesAreIndependent(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		num, err := svc.Next(ctx, "REC_2026")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if num != i {
			t.Errorf("expected %d, got %d", i, num)
		}
	}

	num, err := svc.Next(ctx, "REC_2027")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != 1 {
		t.Errorf("expected fresh scope to start at 1, got %d", num)
	}
}

func TestNextFormatted_YearlyReset(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()
	cfg := numerator.DefaultConfig("REC")

	// Two numbers in 2026, then the series restarts for 2027.
	if _, err := svc.NextFormatted(ctx, cfg, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	num, err := svc.NextFormatted(ctx, cfg, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "REC-2026-00002" {
		t.Errorf("expected REC-2026-00002, got %s", num)
	}

	num, err = svc.NextFormatted(ctx, cfg, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "REC-2027-00001" {
		t.Errorf("expected REC-2027-00001, got %s", num)
	}
}

func TestNext_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	q := &mockQuerier{}
	svc := NewStatic(q)
	ctx := context.Background()

	const callers = 100
	results := make(chan int64, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Next(ctx, "REC_2026")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, callers)
	for num := range results {
		if seen[num] {
			t.Fatalf("number %d issued twice", num)
		}
		seen[num] = true
	}
	// Distinct and dense: exactly 1..callers with no gaps.
	for i := int64(1); i <= callers; i++ {
		if !seen[i] {
			t.Errorf("number %d never issued", i)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		formatted string
		want      int64
	}{
		{"REC-2026-00042", 42},
		{"REC-00007", 7},
		{"garbage", -1},
		{"REC-2026-", -1},
		{"REC-2026-abc", -1},
	}

	for _, tt := range tests {
		if got := ParseNumber(tt.formatted); got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tt.formatted, got, tt.want)
		}
	}
}

// Package receipt provides the receipt repository contract.
package receipt

import (
	"context"
	"time"

	"cobranza/internal/core/id"
	"cobranza/internal/domain/ledger"
)

// Repository defines operations for receipt documents.
type Repository interface {
	Create(ctx context.Context, rec *Receipt) error
	GetByID(ctx context.Context, recID id.ID) (*Receipt, error)
	GetByNumber(ctx context.Context, number string) (*Receipt, error)

	// Update modifies the receipt with optimistic locking; only the voided
	// flag ever changes after creation.
	Update(ctx context.Context, rec *Receipt) error

	// Line operations
	GetLines(ctx context.Context, recID id.ID) ([]PaymentLine, error)
	SaveLines(ctx context.Context, recID id.ID, lines []PaymentLine) error

	// List retrieves receipts with filtering and pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)
}

// ListFilter for filtering receipts.
type ListFilter struct {
	PartyType ledger.PartyType
	PartyID   *id.ID

	IncludeVoided bool
	DateFrom      *time.Time
	DateTo        *time.Time

	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Receipt `json:"items"`
	TotalCount int64      `json:"totalCount"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

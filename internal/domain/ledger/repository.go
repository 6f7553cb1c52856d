// Package ledger provides the ledger document repository contract.
package ledger

import (
	"context"
	"time"

	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
)

// Repository defines operations over ledger documents.
type Repository interface {
	// CRUD operations
	Create(ctx context.Context, doc *LedgerDocument) error
	GetByID(ctx context.Context, docID id.ID) (*LedgerDocument, error)
	GetByRef(ctx context.Context, kind Kind, refID id.ID) (*LedgerDocument, error)

	// Update modifies a document with optimistic locking on the version column.
	Update(ctx context.Context, doc *LedgerDocument) error

	// Locking. GetForUpdate takes a row lock; GetPairForUpdate locks two
	// documents in ascending-id order so concurrent engine calls can never
	// deadlock on lock ordering. Both must run inside a transaction.
	GetForUpdate(ctx context.Context, docID id.ID) (*LedgerDocument, error)
	GetPairForUpdate(ctx context.Context, aID, bID id.ID) (*LedgerDocument, *LedgerDocument, error)

	// AdjustPending moves the pending balance by delta (negative to consume,
	// positive to release). The update is guarded: it fails the enclosing
	// transaction if the result would leave pending outside [0, amount_base].
	// Only ever invoked from within the allocation engine's transaction.
	AdjustPending(ctx context.Context, docID id.ID, delta types.Money) error

	// List retrieves documents with filtering and pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)

	// PendingByKind returns the sum of pending balances per kind for a party,
	// over active documents only.
	PendingByKind(ctx context.Context, partyType PartyType, partyID id.ID) (map[Kind]types.Money, error)

	// AvailableCredits returns active credit-kind documents with pending > 0
	// for a party, oldest document date first, ties broken by ascending id.
	// minAmount, when set, filters out credits below it.
	AvailableCredits(ctx context.Context, partyType PartyType, partyID id.ID, minAmount *types.Money) ([]*LedgerDocument, error)
}

// ListFilter for the paged ledger listing.
type ListFilter struct {
	PartyType PartyType
	PartyID   id.ID

	Kinds       []Kind
	Status      *Status
	DateFrom    *time.Time
	DateTo      *time.Time
	PendingOnly bool

	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*LedgerDocument `json:"items"`
	TotalCount int64             `json:"totalCount"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

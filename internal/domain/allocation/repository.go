// Package allocation provides the allocation repository contract.
package allocation

import (
	"context"

	"cobranza/internal/core/id"
)

// Repository defines operations for allocation rows and batches.
// Allocations are append/delete only; there is no update.
type Repository interface {
	CreateAllocation(ctx context.Context, alloc *Allocation) error
	GetAllocation(ctx context.Context, allocID id.ID) (*Allocation, error)
	DeleteAllocation(ctx context.Context, allocID id.ID) error

	// CreateBatch inserts the batch header and all its items.
	CreateBatch(ctx context.Context, batch *AllocationBatch) error
	GetBatch(ctx context.Context, batchID id.ID) (*AllocationBatch, error)

	// ListBySource returns allocations funded by a document, oldest first.
	ListBySource(ctx context.Context, sourceDocumentID id.ID) ([]*Allocation, error)

	// ListByTarget returns allocations covering a document, oldest first.
	ListByTarget(ctx context.Context, targetDocumentID id.ID) ([]*Allocation, error)
}

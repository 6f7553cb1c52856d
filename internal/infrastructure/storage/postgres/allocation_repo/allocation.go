// Package allocation_repo provides the PostgreSQL implementation of the
// allocation repository (single allocations, batches and batch items).
package allocation_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/domain/allocation"
	"cobranza/internal/infrastructure/storage/postgres"
)

const (
	allocationsTable = "allocations"
	batchesTable     = "allocation_batches"
	batchItemsTable  = "allocation_batch_items"
)

var allocationColumns = []string{
	"id", "version", "created_at", "updated_at",
	"source_kind", "source_document_id", "target_document_id", "amount_base",
}

// AllocationRepo implements allocation.Repository.
type AllocationRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewAllocationRepo creates a new allocation repository.
func NewAllocationRepo(txm *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateAllocation inserts an allocation row.
func (r *AllocationRepo) CreateAllocation(ctx context.Context, alloc *allocation.Allocation) error {
	q := r.builder.Insert(allocationsTable).
		Columns(allocationColumns...).
		Values(
			alloc.ID, alloc.Version, alloc.CreatedAt, alloc.UpdatedAt,
			alloc.SourceKind, alloc.SourceDocumentID, alloc.TargetDocumentID, alloc.AmountBase,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", allocationsTable, err)
	}
	return nil
}

// GetAllocation retrieves an allocation by id.
func (r *AllocationRepo) GetAllocation(ctx context.Context, allocID id.ID) (*allocation.Allocation, error) {
	q := r.builder.Select(allocationColumns...).
		From(allocationsTable).
		Where(squirrel.Eq{"id": allocID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var alloc allocation.Allocation
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &alloc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation", allocID.String())
		}
		return nil, fmt.Errorf("get %s: %w", allocationsTable, err)
	}
	return &alloc, nil
}

// DeleteAllocation removes an allocation row.
func (r *AllocationRepo) DeleteAllocation(ctx context.Context, allocID id.ID) error {
	sql, args, err := r.builder.Delete(allocationsTable).
		Where(squirrel.Eq{"id": allocID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", allocationsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("allocation", allocID.String())
	}
	return nil
}

// CreateBatch inserts a batch header with all its items.
func (r *AllocationRepo) CreateBatch(ctx context.Context, batch *allocation.AllocationBatch) error {
	querier := r.txm.GetQuerier(ctx)

	headerSql, headerArgs, err := r.builder.Insert(batchesTable).
		Columns("id", "version", "created_at", "updated_at", "target_document_id", "reason").
		Values(batch.ID, batch.Version, batch.CreatedAt, batch.UpdatedAt, batch.TargetDocumentID, batch.Reason).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, headerSql, headerArgs...); err != nil {
		return fmt.Errorf("insert %s: %w", batchesTable, err)
	}

	if len(batch.Items) == 0 {
		return nil
	}

	q := r.builder.Insert(batchItemsTable).
		Columns("id", "batch_id", "source_kind", "source_document_id", "amount_base")
	for _, item := range batch.Items {
		q = q.Values(item.ID, batch.ID, item.SourceKind, item.SourceDocumentID, item.AmountBase)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", batchItemsTable, err)
	}
	return nil
}

// GetBatch retrieves a batch header with its items.
func (r *AllocationRepo) GetBatch(ctx context.Context, batchID id.ID) (*allocation.AllocationBatch, error) {
	headerSql, headerArgs, err := r.builder.
		Select("id", "version", "created_at", "updated_at", "target_document_id", "reason").
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batch allocation.AllocationBatch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &batch, headerSql, headerArgs...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation batch", batchID.String())
		}
		return nil, fmt.Errorf("get %s: %w", batchesTable, err)
	}

	itemsSql, itemsArgs, err := r.builder.
		Select("id", "batch_id", "source_kind", "source_document_id", "amount_base").
		From(batchItemsTable).
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &batch.Items, itemsSql, itemsArgs...); err != nil {
		return nil, fmt.Errorf("select %s: %w", batchItemsTable, err)
	}
	return &batch, nil
}

// ListBySource returns allocations funded by a document, oldest first.
func (r *AllocationRepo) ListBySource(ctx context.Context, sourceDocumentID id.ID) ([]*allocation.Allocation, error) {
	return r.list(ctx, squirrel.Eq{"source_document_id": sourceDocumentID})
}

// ListByTarget returns allocations covering a document, oldest first.
func (r *AllocationRepo) ListByTarget(ctx context.Context, targetDocumentID id.ID) ([]*allocation.Allocation, error) {
	return r.list(ctx, squirrel.Eq{"target_document_id": targetDocumentID})
}

func (r *AllocationRepo) list(ctx context.Context, where squirrel.Eq) ([]*allocation.Allocation, error) {
	q := r.builder.Select(allocationColumns...).
		From(allocationsTable).
		Where(where).
		OrderBy("created_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var allocs []*allocation.Allocation
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &allocs, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", allocationsTable, err)
	}
	return allocs, nil
}

// Ensure interface compliance at compile time.
var _ allocation.Repository = (*AllocationRepo)(nil)

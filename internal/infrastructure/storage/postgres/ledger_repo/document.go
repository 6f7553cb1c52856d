// Package ledger_repo provides the PostgreSQL implementation of the ledger
// document repository.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
	"cobranza/internal/infrastructure/storage/postgres"
)

const documentsTable = "ledger_documents"

var documentColumns = []string{
	"id", "version", "created_at", "updated_at",
	"party_type", "party_id", "kind", "ref_id", "ref_number",
	"document_date", "currency", "fx_rate",
	"amount_original", "amount_base", "pending",
	"status", "voided_at",
}

// DocumentRepo implements ledger.Repository.
type DocumentRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewDocumentRepo creates a new ledger document repository.
func NewDocumentRepo(txm *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new ledger document.
func (r *DocumentRepo) Create(ctx context.Context, doc *ledger.LedgerDocument) error {
	q := r.builder.Insert(documentsTable).
		Columns(documentColumns...).
		Values(
			doc.ID, doc.Version, doc.CreatedAt, doc.UpdatedAt,
			doc.PartyType, doc.PartyID, doc.Kind, doc.RefID, doc.RefNumber,
			doc.DocumentDate, doc.Currency, doc.FxRate,
			doc.AmountOriginal, doc.AmountBase, doc.Pending,
			doc.Status, doc.VoidedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", documentsTable, err)
	}
	return nil
}

// GetByID retrieves a document by primary key.
func (r *DocumentRepo) GetByID(ctx context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	return r.getOne(ctx, squirrel.Eq{"id": docID}, docID.String())
}

// GetByRef retrieves a document by its idempotency key (kind, refID).
func (r *DocumentRepo) GetByRef(ctx context.Context, kind ledger.Kind, refID id.ID) (*ledger.LedgerDocument, error) {
	return r.getOne(ctx, squirrel.Eq{"kind": kind, "ref_id": refID}, refID.String())
}

func (r *DocumentRepo) getOne(ctx context.Context, where squirrel.Eq, key string) (*ledger.LedgerDocument, error) {
	q := r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(where).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var doc ledger.LedgerDocument
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ledger document", key)
		}
		return nil, fmt.Errorf("get %s: %w", documentsTable, err)
	}
	return &doc, nil
}

// Update modifies a document with optimistic locking.
// The caller already advanced the version via Touch(); the stored row is
// expected to be exactly one behind.
func (r *DocumentRepo) Update(ctx context.Context, doc *ledger.LedgerDocument) error {
	q := r.builder.Update(documentsTable).
		Set("version", doc.Version).
		Set("updated_at", doc.UpdatedAt).
		Set("ref_number", doc.RefNumber).
		Set("document_date", doc.DocumentDate).
		Set("amount_original", doc.AmountOriginal).
		Set("amount_base", doc.AmountBase).
		Set("pending", doc.Pending).
		Set("status", doc.Status).
		Set("voided_at", doc.VoidedAt).
		Where(squirrel.Eq{"id": doc.ID}).
		Where(squirrel.Eq{"version": doc.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", documentsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(documentsTable, doc.ID)
	}
	return nil
}

// GetForUpdate retrieves a document with a pessimistic row lock.
// Must run inside a transaction.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	sql := `
		SELECT id, version, created_at, updated_at,
		       party_type, party_id, kind, ref_id, ref_number,
		       document_date, currency, fx_rate,
		       amount_original, amount_base, pending,
		       status, voided_at
		FROM ledger_documents
		WHERE id = $1
		FOR UPDATE
	`

	var doc ledger.LedgerDocument
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &doc, sql, docID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ledger document", docID.String())
		}
		return nil, fmt.Errorf("get for update: %w", err)
	}
	return &doc, nil
}

// GetPairForUpdate locks two documents, always taking the lower id first so
// concurrent engine transactions acquire locks in the same order.
func (r *DocumentRepo) GetPairForUpdate(ctx context.Context, aID, bID id.ID) (*ledger.LedgerDocument, *ledger.LedgerDocument, error) {
	first, second := aID, bID
	if id.Less(bID, aID) {
		first, second = bID, aID
	}

	firstDoc, err := r.GetForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	secondDoc, err := r.GetForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if firstDoc.ID == aID {
		return firstDoc, secondDoc, nil
	}
	return secondDoc, firstDoc, nil
}

// AdjustPending moves pending by delta in one guarded statement. The guard
// repeats the domain invariant at the database level: a result outside
// [0, amount_base] matches no row and fails the enclosing transaction.
func (r *DocumentRepo) AdjustPending(ctx context.Context, docID id.ID, delta types.Money) error {
	sql := `
		UPDATE ledger_documents
		SET pending = pending + $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND pending + $2 >= 0
		  AND pending + $2 <= amount_base
	`

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, docID, delta)
	if err != nil {
		return fmt.Errorf("adjust pending: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a vanished row from a guard rejection for the error.
	doc, getErr := r.GetByID(ctx, docID)
	if getErr != nil {
		return getErr
	}
	return apperror.NewInsufficientBalance(docID.String(), delta.Abs().String(), doc.Pending.String())
}

// List retrieves documents with filtering and pagination.
func (r *DocumentRepo) List(ctx context.Context, filter ledger.ListFilter) (ledger.ListResult, error) {
	where := r.listConditions(filter)

	countQ := r.builder.Select("COUNT(*)").From(documentsTable)
	for _, cond := range where {
		countQ = countQ.Where(cond)
	}
	countSql, countArgs, err := countQ.ToSql()
	if err != nil {
		return ledger.ListResult{}, fmt.Errorf("build count: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var total int64
	if err := querier.QueryRow(ctx, countSql, countArgs...).Scan(&total); err != nil {
		return ledger.ListResult{}, fmt.Errorf("count %s: %w", documentsTable, err)
	}

	q := r.builder.Select(documentColumns...).
		From(documentsTable).
		OrderBy("document_date DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	for _, cond := range where {
		q = q.Where(cond)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.ListResult{}, fmt.Errorf("build query: %w", err)
	}

	var docs []*ledger.LedgerDocument
	if err := pgxscan.Select(ctx, querier, &docs, sql, args...); err != nil {
		return ledger.ListResult{}, fmt.Errorf("select %s: %w", documentsTable, err)
	}

	return ledger.ListResult{
		Items:      docs,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *DocumentRepo) listConditions(filter ledger.ListFilter) []squirrel.Sqlizer {
	conds := []squirrel.Sqlizer{
		squirrel.Eq{"party_type": filter.PartyType, "party_id": filter.PartyID},
	}
	if len(filter.Kinds) > 0 {
		conds = append(conds, squirrel.Eq{"kind": filter.Kinds})
	}
	if filter.Status != nil {
		conds = append(conds, squirrel.Eq{"status": *filter.Status})
	}
	if filter.DateFrom != nil {
		conds = append(conds, squirrel.GtOrEq{"document_date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		conds = append(conds, squirrel.LtOrEq{"document_date": *filter.DateTo})
	}
	if filter.PendingOnly {
		conds = append(conds, squirrel.Gt{"pending": 0})
	}
	return conds
}

// PendingByKind sums pending per kind over active documents for a party.
func (r *DocumentRepo) PendingByKind(ctx context.Context, partyType ledger.PartyType, partyID id.ID) (map[ledger.Kind]types.Money, error) {
	sql := `
		SELECT kind, COALESCE(SUM(pending), 0) AS pending
		FROM ledger_documents
		WHERE party_type = $1 AND party_id = $2 AND status = $3
		GROUP BY kind
	`

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, partyType, partyID, ledger.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("sum pending: %w", err)
	}
	defer rows.Close()

	result := make(map[ledger.Kind]types.Money)
	for rows.Next() {
		var kind ledger.Kind
		var pending types.Money
		if err := rows.Scan(&kind, &pending); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		result[kind] = pending
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending rows: %w", err)
	}
	return result, nil
}

// AvailableCredits lists active credit-kind documents with pending > 0,
// oldest document date first, ties broken by ascending id.
func (r *DocumentRepo) AvailableCredits(ctx context.Context, partyType ledger.PartyType, partyID id.ID, minAmount *types.Money) ([]*ledger.LedgerDocument, error) {
	q := r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(squirrel.Eq{
			"party_type": partyType,
			"party_id":   partyID,
			"status":     ledger.StatusActive,
			"kind":       []ledger.Kind{ledger.KindCreditNote, ledger.KindReceipt},
		}).
		Where(squirrel.Gt{"pending": 0}).
		OrderBy("document_date ASC", "id ASC")

	if minAmount != nil {
		q = q.Where(squirrel.GtOrEq{"pending": *minAmount})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var docs []*ledger.LedgerDocument
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &docs, sql, args...); err != nil {
		return nil, fmt.Errorf("select credits: %w", err)
	}
	return docs, nil
}

// Ensure interface compliance at compile time.
var _ ledger.Repository = (*DocumentRepo)(nil)

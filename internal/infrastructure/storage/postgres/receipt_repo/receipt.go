// Package receipt_repo provides the PostgreSQL implementation of the receipt
// repository, including the payment lines table part.
package receipt_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/domain/receipt"
	"cobranza/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable = "receipts"
	linesTable    = "receipt_lines"
)

var receiptColumns = []string{
	"id", "version", "created_at", "updated_at",
	"number", "party_type", "party_id", "date",
	"currency", "fx_rate", "total_original", "total_base",
	"notes", "voided", "voided_at",
}

var lineColumns = []string{
	"id", "receipt_id", "line_no", "method",
	"amount_original", "amount_base",
	"bank_account_id", "transaction_ref", "notes", "value_date",
	"check_bank_code", "check_number", "check_issuer", "check_third_party", "check_due_date",
}

// ReceiptRepo implements receipt.Repository.
type ReceiptRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewReceiptRepo creates a new receipt repository.
func NewReceiptRepo(txm *postgres.TxManager) *ReceiptRepo {
	return &ReceiptRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a receipt header. Lines are persisted via SaveLines.
func (r *ReceiptRepo) Create(ctx context.Context, rec *receipt.Receipt) error {
	q := r.builder.Insert(receiptsTable).
		Columns(receiptColumns...).
		Values(
			rec.ID, rec.Version, rec.CreatedAt, rec.UpdatedAt,
			rec.Number, rec.PartyType, rec.PartyID, rec.Date,
			rec.Currency, rec.FxRate, rec.TotalOriginal, rec.TotalBase,
			rec.Notes, rec.Voided, rec.VoidedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", receiptsTable, err)
	}
	return nil
}

// GetByID retrieves a receipt header by primary key.
func (r *ReceiptRepo) GetByID(ctx context.Context, recID id.ID) (*receipt.Receipt, error) {
	return r.getOne(ctx, squirrel.Eq{"id": recID}, recID.String())
}

// GetByNumber retrieves a receipt header by its assigned number.
func (r *ReceiptRepo) GetByNumber(ctx context.Context, number string) (*receipt.Receipt, error) {
	return r.getOne(ctx, squirrel.Eq{"number": number}, number)
}

func (r *ReceiptRepo) getOne(ctx context.Context, where squirrel.Eq, key string) (*receipt.Receipt, error) {
	q := r.builder.Select(receiptColumns...).
		From(receiptsTable).
		Where(where).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec receipt.Receipt
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", key)
		}
		return nil, fmt.Errorf("get %s: %w", receiptsTable, err)
	}
	return &rec, nil
}

// Update modifies a receipt with optimistic locking. The caller already
// advanced the version via Touch().
func (r *ReceiptRepo) Update(ctx context.Context, rec *receipt.Receipt) error {
	q := r.builder.Update(receiptsTable).
		Set("version", rec.Version).
		Set("updated_at", rec.UpdatedAt).
		Set("notes", rec.Notes).
		Set("voided", rec.Voided).
		Set("voided_at", rec.VoidedAt).
		Where(squirrel.Eq{"id": rec.ID}).
		Where(squirrel.Eq{"version": rec.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", receiptsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(receiptsTable, rec.ID)
	}
	return nil
}

// GetLines loads the payment lines of a receipt in entry order.
func (r *ReceiptRepo) GetLines(ctx context.Context, recID id.ID) ([]receipt.PaymentLine, error) {
	q := r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"receipt_id": recID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []receipt.PaymentLine
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", linesTable, err)
	}
	return lines, nil
}

// SaveLines replaces the payment lines of a receipt.
func (r *ReceiptRepo) SaveLines(ctx context.Context, recID id.ID, lines []receipt.PaymentLine) error {
	querier := r.txm.GetQuerier(ctx)

	delSql, delArgs, err := r.builder.Delete(linesTable).
		Where(squirrel.Eq{"receipt_id": recID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := querier.Exec(ctx, delSql, delArgs...); err != nil {
		return fmt.Errorf("delete %s: %w", linesTable, err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder.Insert(linesTable).Columns(lineColumns...)
	for _, line := range lines {
		q = q.Values(
			line.ID, recID, line.LineNo, line.Method,
			line.AmountOriginal, line.AmountBase,
			line.BankAccountID, line.TransactionRef, line.Notes, line.ValueDate,
			line.CheckBankCode, line.CheckNumber, line.CheckIssuer, line.CheckThirdParty, line.CheckDueDate,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", linesTable, err)
	}
	return nil
}

// List retrieves receipt headers with filtering and pagination.
func (r *ReceiptRepo) List(ctx context.Context, filter receipt.ListFilter) (receipt.ListResult, error) {
	conds := []squirrel.Sqlizer{
		squirrel.Eq{"party_type": filter.PartyType},
	}
	if filter.PartyID != nil {
		conds = append(conds, squirrel.Eq{"party_id": *filter.PartyID})
	}
	if !filter.IncludeVoided {
		conds = append(conds, squirrel.Eq{"voided": false})
	}
	if filter.DateFrom != nil {
		conds = append(conds, squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		conds = append(conds, squirrel.LtOrEq{"date": *filter.DateTo})
	}

	countQ := r.builder.Select("COUNT(*)").From(receiptsTable)
	for _, cond := range conds {
		countQ = countQ.Where(cond)
	}
	countSql, countArgs, err := countQ.ToSql()
	if err != nil {
		return receipt.ListResult{}, fmt.Errorf("build count: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var total int64
	if err := querier.QueryRow(ctx, countSql, countArgs...).Scan(&total); err != nil {
		return receipt.ListResult{}, fmt.Errorf("count %s: %w", receiptsTable, err)
	}

	q := r.builder.Select(receiptColumns...).
		From(receiptsTable).
		OrderBy("date DESC", "number DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	for _, cond := range conds {
		q = q.Where(cond)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return receipt.ListResult{}, fmt.Errorf("build query: %w", err)
	}

	var recs []*receipt.Receipt
	if err := pgxscan.Select(ctx, querier, &recs, sql, args...); err != nil {
		return receipt.ListResult{}, fmt.Errorf("select %s: %w", receiptsTable, err)
	}

	return receipt.ListResult{
		Items:      recs,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Ensure interface compliance at compile time.
var _ receipt.Repository = (*ReceiptRepo)(nil)

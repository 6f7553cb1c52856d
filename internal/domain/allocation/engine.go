// Package allocation provides the allocation engine service.
package allocation

import (
	"context"
	"fmt"
	"sort"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/entity"
	"cobranza/internal/core/id"
	"cobranza/internal/core/tx"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
	"cobranza/pkg/logger"
)

// Engine executes all balance-moving operations. Every operation runs inside
// a single database transaction, reading source and target rows with a row
// lock before mutating, so two concurrent calls against the same source can
// never jointly overdraw it.
type Engine struct {
	repo      Repository
	ledger    ledger.Repository
	txManager tx.Manager
}

// NewEngine creates a new allocation engine.
func NewEngine(repo Repository, ledgerRepo ledger.Repository, txManager tx.Manager) *Engine {
	return &Engine{
		repo:      repo,
		ledger:    ledgerRepo,
		txManager: txManager,
	}
}

// validateTransfer is the single validation gate for moving amount from a
// funding document to a debt document. Every engine operation - Allocate,
// CoverInvoice, manual preview/execute, ApplyCredits - routes each transfer
// through here, so they can never disagree.
func validateTransfer(source, target *ledger.LedgerDocument, amount types.Money) error {
	if !amount.IsPositive() {
		return apperror.NewValidation("allocation amount must be positive").
			WithDetail("amount", amount.String())
	}
	if source.IsVoided() {
		return apperror.NewInvalidState("source document is voided").
			WithDetail("document_id", source.ID.String())
	}
	if target.IsVoided() {
		return apperror.NewInvalidState("target document is voided").
			WithDetail("document_id", target.ID.String())
	}
	if !source.Kind.IsCredit() {
		return apperror.NewInvalidState("source document does not carry credit").
			WithDetail("document_id", source.ID.String()).
			WithDetail("kind", string(source.Kind))
	}
	if !target.Kind.IsDebt() {
		return apperror.NewInvalidState("target document does not carry debt").
			WithDetail("document_id", target.ID.String()).
			WithDetail("kind", string(target.Kind))
	}
	if amount.GreaterThan(source.Pending) {
		return apperror.NewInsufficientBalance(source.ID.String(), amount.String(), source.Pending.String())
	}
	if amount.GreaterThan(target.Pending) {
		return apperror.NewInsufficientBalance(target.ID.String(), amount.String(), target.Pending.String())
	}
	return nil
}

// Allocate moves amountBase from the source document to the target debt
// document: both pending balances drop by amountBase and one allocation row
// is written, all in one transaction.
func (e *Engine) Allocate(ctx context.Context, sourceKind SourceKind, sourceID, targetID id.ID, amountBase types.Money) (*Allocation, error) {
	if !sourceKind.Valid() {
		return nil, apperror.NewValidation("unknown source kind").
			WithDetail("field", "sourceKind")
	}
	if sourceID == targetID {
		return nil, apperror.NewValidation("source and target must differ")
	}

	var alloc *Allocation
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		source, target, err := e.ledger.GetPairForUpdate(ctx, sourceID, targetID)
		if err != nil {
			return err
		}

		if source.Kind != sourceKind.DocumentKind() {
			return apperror.NewInvalidState("source document kind does not match").
				WithDetail("document_id", source.ID.String()).
				WithDetail("expected", string(sourceKind.DocumentKind())).
				WithDetail("actual", string(source.Kind))
		}
		if err := validateTransfer(source, target, amountBase); err != nil {
			return err
		}

		if err := e.ledger.AdjustPending(ctx, source.ID, amountBase.Neg()); err != nil {
			return err
		}
		if err := e.ledger.AdjustPending(ctx, target.ID, amountBase.Neg()); err != nil {
			return err
		}

		alloc = NewAllocation(sourceKind, sourceID, targetID, amountBase)
		if err := e.repo.CreateAllocation(ctx, alloc); err != nil {
			return fmt.Errorf("create allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "allocation created",
		"id", alloc.ID,
		"source_id", sourceID,
		"target_id", targetID,
		"amount", amountBase)

	return alloc, nil
}

// Deallocate reverses an allocation: both pending balances rise by the
// allocation's amount and the row is deleted. The increments cannot overflow
// amount_base because they are exactly symmetric to the original decrements.
func (e *Engine) Deallocate(ctx context.Context, allocID id.ID) error {
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		alloc, err := e.repo.GetAllocation(ctx, allocID)
		if err != nil {
			return err
		}

		source, target, err := e.ledger.GetPairForUpdate(ctx, alloc.SourceDocumentID, alloc.TargetDocumentID)
		if err != nil {
			return err
		}

		if err := e.ledger.AdjustPending(ctx, source.ID, alloc.AmountBase); err != nil {
			return err
		}
		if err := e.ledger.AdjustPending(ctx, target.ID, alloc.AmountBase); err != nil {
			return err
		}
		if err := e.repo.DeleteAllocation(ctx, alloc.ID); err != nil {
			return fmt.Errorf("delete allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "allocation reversed", "id", allocID)
	return nil
}

// CoverInvoice applies pre-existing credit to a freshly issued debt document,
// writing one audited batch with one item per selection. All selections
// validate and commit together; any failing item rolls back the whole batch.
func (e *Engine) CoverInvoice(ctx context.Context, targetID id.ID, selections []Selection, reason string) (*AllocationBatch, error) {
	var batch *AllocationBatch
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		docs, err := e.lockDocuments(ctx, targetID, selections)
		if err != nil {
			return err
		}

		plan, err := buildPlan(docs[targetID], selections, docs)
		if err != nil {
			return err
		}

		for _, line := range plan.Lines {
			if err := e.ledger.AdjustPending(ctx, line.SourceDocumentID, line.AmountBase.Neg()); err != nil {
				return err
			}
		}
		if err := e.ledger.AdjustPending(ctx, targetID, plan.TotalApplied.Neg()); err != nil {
			return err
		}

		batch = newBatchFromPlan(targetID, reason, plan)
		if err := e.repo.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice covered",
		"batch_id", batch.ID,
		"target_id", targetID,
		"items", len(batch.Items))

	return batch, nil
}

// lockDocuments locks the target and every selected source in ascending-id
// order. Stable ordering prevents lock-ordering deadlocks between concurrent
// engine calls touching overlapping document sets.
func (e *Engine) lockDocuments(ctx context.Context, targetID id.ID, selections []Selection) (map[id.ID]*ledger.LedgerDocument, error) {
	seen := map[id.ID]bool{targetID: true}
	ids := []id.ID{targetID}
	for _, sel := range selections {
		if !seen[sel.DocumentID] {
			seen[sel.DocumentID] = true
			ids = append(ids, sel.DocumentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return id.Less(ids[i], ids[j]) })

	docs := make(map[id.ID]*ledger.LedgerDocument, len(ids))
	for _, docID := range ids {
		doc, err := e.ledger.GetForUpdate(ctx, docID)
		if err != nil {
			return nil, err
		}
		docs[doc.ID] = doc
	}
	return docs, nil
}

// buildPlan runs the shared validation pipeline over selections against one
// target, tracking cumulative consumption so a source selected twice cannot
// be overdrawn. It mutates nothing; callers apply the returned plan.
func buildPlan(target *ledger.LedgerDocument, selections []Selection, sources map[id.ID]*ledger.LedgerDocument) (*Plan, error) {
	if len(selections) == 0 {
		return nil, apperror.NewValidation("at least one selection is required").
			WithDetail("field", "selections")
	}

	plan := &Plan{
		TargetDocumentID:   target.ID,
		Lines:              make([]PlanLine, 0, len(selections)),
		TotalApplied:       types.Zero(),
		TargetPendingAfter: target.Pending,
	}

	consumed := make(map[id.ID]types.Money, len(selections))
	for _, sel := range selections {
		source, ok := sources[sel.DocumentID]
		if !ok || source == nil {
			return nil, apperror.NewNotFound("ledger document", sel.DocumentID.String())
		}
		sourceKind, ok := SourceKindOf(source.Kind)
		if !ok {
			return nil, apperror.NewInvalidState("source document does not carry credit").
				WithDetail("document_id", source.ID.String()).
				WithDetail("kind", string(source.Kind))
		}

		// Validate against the balances as earlier selections left them.
		already := consumed[source.ID]
		view := *source
		view.Pending = source.Pending.Sub(already)
		targetView := *target
		targetView.Pending = plan.TargetPendingAfter
		if err := validateTransfer(&view, &targetView, sel.AmountBase); err != nil {
			return nil, err
		}

		consumed[source.ID] = already.Add(sel.AmountBase)
		plan.Lines = append(plan.Lines, PlanLine{
			SourceDocumentID: source.ID,
			SourceKind:       sourceKind,
			AmountBase:       sel.AmountBase,
			PendingAfter:     view.Pending.Sub(sel.AmountBase),
		})
		plan.TotalApplied = plan.TotalApplied.Add(sel.AmountBase)
		plan.TargetPendingAfter = plan.TargetPendingAfter.Sub(sel.AmountBase)
	}

	return plan, nil
}

func newBatchFromPlan(targetID id.ID, reason string, plan *Plan) *AllocationBatch {
	batch := &AllocationBatch{
		BaseDocument:     entity.NewBaseDocument(),
		TargetDocumentID: targetID,
		Reason:           reason,
		Items:            make([]AllocationItem, 0, len(plan.Lines)),
	}
	for _, line := range plan.Lines {
		batch.Items = append(batch.Items, AllocationItem{
			ID:               id.New(),
			BatchID:          batch.ID,
			SourceKind:       line.SourceKind,
			SourceDocumentID: line.SourceDocumentID,
			AmountBase:       line.AmountBase,
		})
	}
	return batch
}

// GetBatch returns a batch header with its items.
func (e *Engine) GetBatch(ctx context.Context, batchID id.ID) (*AllocationBatch, error) {
	return e.repo.GetBatch(ctx, batchID)
}

// ListByDocument returns all allocations referencing a document as source or
// target, oldest first. Read-only; used by the ledger query surface.
func (e *Engine) ListByDocument(ctx context.Context, docID id.ID) ([]*Allocation, error) {
	asSource, err := e.repo.ListBySource(ctx, docID)
	if err != nil {
		return nil, err
	}
	asTarget, err := e.repo.ListByTarget(ctx, docID)
	if err != nil {
		return nil, err
	}
	all := append(asSource, asTarget...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all, nil
}

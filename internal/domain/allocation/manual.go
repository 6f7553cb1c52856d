// Package allocation provides the manual allocation preview/execute flow.
package allocation

import (
	"context"
	"fmt"

	"cobranza/internal/core/id"
	"cobranza/internal/domain/ledger"
	"cobranza/pkg/logger"
)

// PreviewManual runs the full validation pipeline over selections without
// committing anything, returning the balances as they would be. It reads
// unlocked snapshots; Execute revalidates under locks, so a preview that
// passed can still fail on execute if balances moved in between.
func (e *Engine) PreviewManual(ctx context.Context, targetID id.ID, selections []Selection) (*Plan, error) {
	target, err := e.ledger.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	docs := make(map[id.ID]*ledger.LedgerDocument, len(selections)+1)
	docs[target.ID] = target
	for _, sel := range selections {
		if _, ok := docs[sel.DocumentID]; ok {
			continue
		}
		source, err := e.ledger.GetByID(ctx, sel.DocumentID)
		if err != nil {
			return nil, err
		}
		docs[source.ID] = source
	}

	return buildPlan(target, selections, docs)
}

// ExecuteManual runs the identical pipeline under row locks and commits,
// writing one allocation row per selection.
func (e *Engine) ExecuteManual(ctx context.Context, targetID id.ID, selections []Selection) (*Plan, []*Allocation, error) {
	var (
		plan   *Plan
		allocs []*Allocation
	)
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		docs, err := e.lockDocuments(ctx, targetID, selections)
		if err != nil {
			return err
		}

		plan, err = buildPlan(docs[targetID], selections, docs)
		if err != nil {
			return err
		}

		allocs = make([]*Allocation, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			if err := e.ledger.AdjustPending(ctx, line.SourceDocumentID, line.AmountBase.Neg()); err != nil {
				return err
			}

			alloc := NewAllocation(line.SourceKind, line.SourceDocumentID, targetID, line.AmountBase)
			if err := e.repo.CreateAllocation(ctx, alloc); err != nil {
				return fmt.Errorf("create allocation: %w", err)
			}
			allocs = append(allocs, alloc)
		}
		return e.ledger.AdjustPending(ctx, targetID, plan.TotalApplied.Neg())
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "manual allocation executed",
		"target_id", targetID,
		"allocations", len(allocs),
		"total", plan.TotalApplied)

	return plan, allocs, nil
}

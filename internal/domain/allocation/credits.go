// Package allocation provides the automatic credit-application policy.
package allocation

import (
	"context"
	"fmt"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
	"cobranza/pkg/logger"
)

// ApplyCredits greedily covers a customer's debt document from their
// available credit-bearing documents, oldest document date first (ties broken
// by ascending id), until the debt's pending reaches zero or credit runs out.
func (e *Engine) ApplyCredits(ctx context.Context, customerID, targetID id.ID, strategy Strategy) (*ApplyCreditsResult, error) {
	if !strategy.Valid() {
		return nil, apperror.NewValidation("unknown credit-application strategy").
			WithDetail("strategy", string(strategy))
	}

	var result *ApplyCreditsResult
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		target, err := e.ledger.GetForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if target.IsVoided() {
			return apperror.NewInvalidState("target document is voided").
				WithDetail("document_id", target.ID.String())
		}
		if !target.Kind.IsDebt() {
			return apperror.NewInvalidState("target document does not carry debt").
				WithDetail("document_id", target.ID.String()).
				WithDetail("kind", string(target.Kind))
		}
		if target.PartyType != ledger.PartyCustomer || target.PartyID != customerID {
			return apperror.NewValidation("document does not belong to the customer").
				WithDetail("document_id", target.ID.String())
		}

		result = &ApplyCreditsResult{
			Allocations:      make([]*Allocation, 0),
			TotalApplied:     types.Zero(),
			RemainingPending: target.Pending,
		}
		if target.IsSettled() {
			return nil
		}

		credits, err := e.ledger.AvailableCredits(ctx, ledger.PartyCustomer, customerID, nil)
		if err != nil {
			return err
		}

		for _, credit := range credits {
			if result.RemainingPending.IsZero() {
				break
			}

			// Relock: the listing read an unlocked snapshot.
			source, err := e.ledger.GetForUpdate(ctx, credit.ID)
			if err != nil {
				return err
			}
			if source.IsVoided() || source.Pending.IsZero() {
				continue
			}

			amount := source.Pending
			if amount.GreaterThan(result.RemainingPending) {
				amount = result.RemainingPending
			}

			targetView := *target
			targetView.Pending = result.RemainingPending
			if err := validateTransfer(source, &targetView, amount); err != nil {
				return err
			}

			if err := e.ledger.AdjustPending(ctx, source.ID, amount.Neg()); err != nil {
				return err
			}
			if err := e.ledger.AdjustPending(ctx, target.ID, amount.Neg()); err != nil {
				return err
			}

			sourceKind, _ := SourceKindOf(source.Kind)
			alloc := NewAllocation(sourceKind, source.ID, target.ID, amount)
			if err := e.repo.CreateAllocation(ctx, alloc); err != nil {
				return fmt.Errorf("create allocation: %w", err)
			}

			result.Allocations = append(result.Allocations, alloc)
			result.TotalApplied = result.TotalApplied.Add(amount)
			result.RemainingPending = result.RemainingPending.Sub(amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "credits applied",
		"target_id", targetID,
		"allocations", len(result.Allocations),
		"total_applied", result.TotalApplied,
		"remaining", result.RemainingPending)

	return result, nil
}

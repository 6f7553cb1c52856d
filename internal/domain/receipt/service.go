// Package receipt provides the receipt document service.
package receipt

import (
	"context"
	"fmt"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/numerator"
	"cobranza/internal/core/tx"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/allocation"
	"cobranza/internal/domain/ledger"
	"cobranza/pkg/logger"
)

// Service provides business operations for receipts.
//
// A receipt and its mirror ledger document are created in one transaction;
// the mirror's pending tracks the receipt's unallocated funds from then on.
type Service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	engine     *allocation.Engine
	numerator  numerator.Generator
	txManager  tx.Manager
}

// NewService creates a new receipt service.
func NewService(
	repo Repository,
	ledgerRepo ledger.Repository,
	engine *allocation.Engine,
	gen numerator.Generator,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		engine:     engine,
		numerator:  gen,
		txManager:  txManager,
	}
}

// Create validates the receipt, assigns the next sequence number, and
// persists the receipt, its payment lines and its mirror ledger document
// atomically. The number is drawn inside the transaction, so only an aborted
// creation can leave a gap in the series.
func (s *Service) Create(ctx context.Context, rec *Receipt) error {
	if err := rec.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if rec.Number == "" {
			cfg := numerator.DefaultConfig(NumberPrefix)
			number, err := s.numerator.NextFormatted(ctx, cfg, rec.Date)
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			rec.Number = number
		}

		if err := s.repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		if err := s.repo.SaveLines(ctx, rec.ID, rec.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}

		mirror := ledger.NewMirror(rec.PartyType, rec.PartyID, ledger.KindReceipt,
			rec.ID, rec.Number, rec.Date, rec.TotalOriginal, rec.TotalBase, rec.FxRate, rec.Currency)
		if err := mirror.Validate(ctx); err != nil {
			return err
		}
		if err := s.ledgerRepo.Create(ctx, mirror); err != nil {
			return fmt.Errorf("create mirror: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt created",
		"id", rec.ID,
		"number", rec.Number,
		"total_base", rec.TotalBase)

	return nil
}

// Void voids the receipt and its mirror atomically. Rejected while any part
// of the receipt already funds an allocation: the mirror's pending must still
// equal the receipt total. Voiding an already-voided receipt is a no-op.
func (s *Service) Void(ctx context.Context, recID id.ID) (*Receipt, error) {
	var rec *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.GetByID(ctx, recID)
		if err != nil {
			return err
		}
		if rec.Voided {
			return nil
		}

		mirror, err := s.ledgerRepo.GetByRef(ctx, ledger.KindReceipt, rec.ID)
		if err != nil {
			return err
		}
		locked, err := s.ledgerRepo.GetForUpdate(ctx, mirror.ID)
		if err != nil {
			return err
		}

		if !locked.Untouched() {
			return apperror.NewInvalidState("receipt funds are already allocated").
				WithDetail("receipt_id", rec.ID.String()).
				WithDetail("pending", locked.Pending.String()).
				WithDetail("total", locked.AmountBase.String())
		}

		locked.MarkVoided()
		if err := s.ledgerRepo.Update(ctx, locked); err != nil {
			return fmt.Errorf("void mirror: %w", err)
		}

		rec.MarkVoided()
		if err := s.repo.Update(ctx, rec); err != nil {
			return fmt.Errorf("void receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt voided", "id", rec.ID, "number", rec.Number)
	return rec, nil
}

// GetByID retrieves a receipt with its lines and funded allocations.
func (s *Service) GetByID(ctx context.Context, recID id.ID) (*Receipt, error) {
	rec, err := s.repo.GetByID(ctx, recID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, recID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	rec.Lines = lines

	mirror, err := s.ledgerRepo.GetByRef(ctx, ledger.KindReceipt, rec.ID)
	if err != nil {
		return nil, err
	}
	allocs, err := s.engine.ListByDocument(ctx, mirror.ID)
	if err != nil {
		return nil, fmt.Errorf("get allocations: %w", err)
	}
	rec.Allocations = allocs

	return rec, nil
}

// Allocate applies part of the receipt's unallocated funds to a debt
// document. Thin pass-through into the allocation engine with the receipt's
// mirror as source.
func (s *Service) Allocate(ctx context.Context, recID, targetDocumentID id.ID, amountBase types.Money) (*allocation.Allocation, error) {
	mirror, err := s.ledgerRepo.GetByRef(ctx, ledger.KindReceipt, recID)
	if err != nil {
		return nil, err
	}
	return s.engine.Allocate(ctx, allocation.SourceReceipt, mirror.ID, targetDocumentID, amountBase)
}

// Deallocate reverses a previously created allocation.
func (s *Service) Deallocate(ctx context.Context, allocID id.ID) error {
	return s.engine.Deallocate(ctx, allocID)
}

// List retrieves receipts with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Package ledger provides the ledger document store service.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/tx"
	"cobranza/internal/core/types"
	"cobranza/pkg/logger"
)

// MirrorInput carries a fiscal-document event into the store.
type MirrorInput struct {
	PartyType      PartyType
	PartyID        id.ID
	Kind           Kind
	RefID          id.ID
	RefNumber      string
	DocumentDate   time.Time
	Currency       string
	FxRate         types.Money
	AmountOriginal types.Money
	AmountBase     types.Money
}

// Service maintains the mirror documents for external fiscal events.
// Receipt mirrors are managed by the receipt subsystem, not here.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new ledger store service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
	}
}

// UpsertFiscalMirror creates or refreshes the mirror for a fiscal document,
// idempotent on (kind, refID).
//
// A fresh mirror starts fully outstanding (pending = amountBase). On re-runs,
// display fields are updated but pending is never overwritten: it reflects
// allocation history. Re-running with a different amount after allocations
// exist is a configuration error the caller must resolve.
func (s *Service) UpsertFiscalMirror(ctx context.Context, in MirrorInput) (*LedgerDocument, error) {
	if in.Kind == KindReceipt {
		return nil, apperror.NewValidation("receipt mirrors are managed by the receipt subsystem").
			WithDetail("field", "kind")
	}

	var result *LedgerDocument
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByRef(ctx, in.Kind, in.RefID)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}

		if existing == nil {
			doc := NewMirror(in.PartyType, in.PartyID, in.Kind, in.RefID, in.RefNumber,
				in.DocumentDate, in.AmountOriginal, in.AmountBase, in.FxRate, in.Currency)
			if err := doc.Validate(ctx); err != nil {
				return err
			}
			if err := s.repo.Create(ctx, doc); err != nil {
				return fmt.Errorf("create mirror: %w", err)
			}
			result = doc
			return nil
		}

		if !existing.AmountBase.Equal(in.AmountBase) {
			if !existing.Untouched() {
				return apperror.NewConfiguration("mirror amount changed after allocations exist").
					WithDetail("document_id", existing.ID.String()).
					WithDetail("stored_amount", existing.AmountBase.String()).
					WithDetail("new_amount", in.AmountBase.String())
			}
			// No allocation has consumed anything yet: the whole document
			// moves to the new amount, still fully outstanding.
			existing.AmountBase = in.AmountBase
			existing.AmountOriginal = in.AmountOriginal
			existing.Pending = in.AmountBase
		}

		existing.RefNumber = in.RefNumber
		existing.DocumentDate = in.DocumentDate
		existing.Touch()

		if err := existing.Validate(ctx); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			return fmt.Errorf("update mirror: %w", err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "fiscal mirror upserted",
		"id", result.ID,
		"kind", result.Kind,
		"ref_id", result.RefID)

	return result, nil
}

// VoidMirror flips the mirror for (kind, refID) to Voided.
//
// Idempotent: voiding an already-voided document is a no-op. Debt kinds void
// unconditionally with pending frozen where it stands; a credit note can only
// be voided while untouched, since part of it may already fund allocations.
func (s *Service) VoidMirror(ctx context.Context, kind Kind, refID id.ID) (*LedgerDocument, error) {
	var result *LedgerDocument
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetByRef(ctx, kind, refID)
		if err != nil {
			return err
		}

		if doc.IsVoided() {
			result = doc
			return nil
		}

		locked, err := s.repo.GetForUpdate(ctx, doc.ID)
		if err != nil {
			return err
		}
		if locked.IsVoided() {
			result = locked
			return nil
		}

		if locked.Kind.IsCredit() && !locked.Untouched() {
			return apperror.NewInvalidState("credit document has allocated funds and cannot be voided").
				WithDetail("document_id", locked.ID.String()).
				WithDetail("pending", locked.Pending.String()).
				WithDetail("amount_base", locked.AmountBase.String())
		}

		locked.MarkVoided()
		if err := s.repo.Update(ctx, locked); err != nil {
			return fmt.Errorf("void mirror: %w", err)
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "mirror voided",
		"id", result.ID,
		"kind", result.Kind,
		"pending_frozen", result.Pending)

	return result, nil
}

// GetByID retrieves a single ledger document.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*LedgerDocument, error) {
	return s.repo.GetByID(ctx, docID)
}

// GetPending returns the live pending balance of a document.
func (s *Service) GetPending(ctx context.Context, docID id.ID) (types.Money, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return types.Zero(), err
	}
	return doc.Pending, nil
}

// Package ledger provides the read-side balance and ledger queries.
package ledger

import (
	"context"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
)

// PartyBalance is the running balance of a party's sub-ledger.
// Debt and Credit are sums of pending over active documents; Net is what the
// party still owes after netting available funds.
type PartyBalance struct {
	PartyType PartyType            `json:"partyType"`
	PartyID   id.ID                `json:"partyId"`
	ByKind    map[Kind]types.Money `json:"byKind"`
	Debt      types.Money          `json:"debt"`
	Credit    types.Money          `json:"credit"`
	Net       types.Money          `json:"net"`
}

// Selectables are the documents still carrying pending balance, split the way
// the receipt-creation wizard consumes them.
type Selectables struct {
	Debts   []*LedgerDocument `json:"debts"`
	Credits []*LedgerDocument `json:"credits"`
}

// QueryService provides pure read operations over ledger documents.
// No write side effects; balance-related errors never originate here.
type QueryService struct {
	repo Repository
}

// NewQueryService creates a new ledger query service.
func NewQueryService(repo Repository) *QueryService {
	return &QueryService{repo: repo}
}

// Balance returns the running balance per kind and the debt/credit/net totals.
func (s *QueryService) Balance(ctx context.Context, partyType PartyType, partyID id.ID) (*PartyBalance, error) {
	if !partyType.Valid() {
		return nil, apperror.NewValidation("unknown party type").WithDetail("field", "partyType")
	}
	if id.IsNil(partyID) {
		return nil, apperror.NewValidation("party is required").WithDetail("field", "partyId")
	}

	byKind, err := s.repo.PendingByKind(ctx, partyType, partyID)
	if err != nil {
		return nil, err
	}

	balance := &PartyBalance{
		PartyType: partyType,
		PartyID:   partyID,
		ByKind:    byKind,
		Debt:      types.Zero(),
		Credit:    types.Zero(),
	}
	for kind, pending := range byKind {
		if kind.IsDebt() {
			balance.Debt = balance.Debt.Add(pending)
		} else {
			balance.Credit = balance.Credit.Add(pending)
		}
	}
	balance.Net = balance.Debt.Sub(balance.Credit)

	return balance, nil
}

// Page returns one page of the party's ledger, filtered by date range, kind
// and status.
func (s *QueryService) Page(ctx context.Context, filter ListFilter) (ListResult, error) {
	if err := validateListFilter(&filter); err != nil {
		return ListResult{}, err
	}
	return s.repo.List(ctx, filter)
}

// Selectables returns active documents with pending > 0, split into debt-kind
// and credit-kind lists for the receipt-creation wizard.
func (s *QueryService) Selectables(ctx context.Context, partyType PartyType, partyID id.ID) (*Selectables, error) {
	if !partyType.Valid() {
		return nil, apperror.NewValidation("unknown party type").WithDetail("field", "partyType")
	}
	if id.IsNil(partyID) {
		return nil, apperror.NewValidation("party is required").WithDetail("field", "partyId")
	}

	status := StatusActive
	result, err := s.repo.List(ctx, ListFilter{
		PartyType:   partyType,
		PartyID:     partyID,
		Status:      &status,
		PendingOnly: true,
		Limit:       maxSelectables,
	})
	if err != nil {
		return nil, err
	}

	selectables := &Selectables{
		Debts:   make([]*LedgerDocument, 0, len(result.Items)),
		Credits: make([]*LedgerDocument, 0),
	}
	for _, doc := range result.Items {
		if doc.Kind.IsDebt() {
			selectables.Debts = append(selectables.Debts, doc)
		} else {
			selectables.Credits = append(selectables.Credits, doc)
		}
	}

	return selectables, nil
}

// AvailableCredits returns active credit-bearing documents with pending > 0,
// oldest first, optionally filtered by a minimum pending amount.
func (s *QueryService) AvailableCredits(ctx context.Context, partyType PartyType, partyID id.ID, minAmount *types.Money) ([]*LedgerDocument, error) {
	if !partyType.Valid() {
		return nil, apperror.NewValidation("unknown party type").WithDetail("field", "partyType")
	}
	if id.IsNil(partyID) {
		return nil, apperror.NewValidation("party is required").WithDetail("field", "partyId")
	}
	if minAmount != nil && minAmount.IsNegative() {
		return nil, apperror.NewValidation("minimum amount must not be negative").WithDetail("field", "minAmount")
	}

	return s.repo.AvailableCredits(ctx, partyType, partyID, minAmount)
}

// maxSelectables caps the wizard listing; the wizard has no pagination.
const maxSelectables = 500

func validateListFilter(filter *ListFilter) error {
	if !filter.PartyType.Valid() {
		return apperror.NewValidation("unknown party type").WithDetail("field", "partyType")
	}
	if id.IsNil(filter.PartyID) {
		return apperror.NewValidation("party is required").WithDetail("field", "partyId")
	}
	for _, k := range filter.Kinds {
		if !k.Valid() {
			return apperror.NewValidation("unknown document kind").WithDetail("kind", string(k))
		}
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return apperror.NewValidation("date range is inverted")
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return nil
}

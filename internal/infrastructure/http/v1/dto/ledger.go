package dto

import (
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
)

// --- Requests ---

// MirrorRequest carries a fiscal-document event into the ledger store.
type MirrorRequest struct {
	PartyType      string    `json:"partyType" binding:"required"`
	PartyID        string    `json:"partyId" binding:"required"`
	Kind           string    `json:"kind" binding:"required"`
	RefID          string    `json:"refId" binding:"required"`
	RefNumber      string    `json:"refNumber"`
	DocumentDate   time.Time `json:"documentDate" binding:"required"`
	Currency       string    `json:"currency" binding:"required"`
	FxRate         string    `json:"fxRate" binding:"required"`
	AmountOriginal string    `json:"amountOriginal" binding:"required"`
	AmountBase     string    `json:"amountBase" binding:"required"`
}

// ToInput converts the request to a service input.
func (r MirrorRequest) ToInput() (ledger.MirrorInput, error) {
	partyID, err := id.Parse(r.PartyID)
	if err != nil {
		return ledger.MirrorInput{}, apperror.NewValidation("invalid party id").WithDetail("field", "partyId")
	}
	refID, err := id.Parse(r.RefID)
	if err != nil {
		return ledger.MirrorInput{}, apperror.NewValidation("invalid ref id").WithDetail("field", "refId")
	}
	fxRate, err := types.NewMoneyFromString(r.FxRate)
	if err != nil {
		return ledger.MirrorInput{}, apperror.NewValidation("invalid exchange rate").WithDetail("field", "fxRate")
	}
	amountOriginal, err := types.NewMoneyFromString(r.AmountOriginal)
	if err != nil {
		return ledger.MirrorInput{}, apperror.NewValidation("invalid amount").WithDetail("field", "amountOriginal")
	}
	amountBase, err := types.NewMoneyFromString(r.AmountBase)
	if err != nil {
		return ledger.MirrorInput{}, apperror.NewValidation("invalid amount").WithDetail("field", "amountBase")
	}

	return ledger.MirrorInput{
		PartyType:      ledger.PartyType(r.PartyType),
		PartyID:        partyID,
		Kind:           ledger.Kind(r.Kind),
		RefID:          refID,
		RefNumber:      r.RefNumber,
		DocumentDate:   r.DocumentDate,
		Currency:       r.Currency,
		FxRate:         fxRate,
		AmountOriginal: amountOriginal,
		AmountBase:     amountBase,
	}, nil
}

// VoidMirrorRequest identifies a mirror by its idempotency key.
type VoidMirrorRequest struct {
	Kind  string `json:"kind" binding:"required"`
	RefID string `json:"refId" binding:"required"`
}

// LedgerListRequest filters the paged ledger listing.
type LedgerListRequest struct {
	PaginationRequest
	PartyType   string     `form:"partyType" binding:"required"`
	PartyID     string     `form:"partyId" binding:"required"`
	Kinds       []string   `form:"kind"`
	Status      string     `form:"status"`
	DateFrom    *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo      *time.Time `form:"dateTo" time_format:"2006-01-02"`
	PendingOnly bool       `form:"pendingOnly"`
}

// ToFilter converts the request to a repository filter.
func (r LedgerListRequest) ToFilter() (ledger.ListFilter, error) {
	partyID, err := id.Parse(r.PartyID)
	if err != nil {
		return ledger.ListFilter{}, apperror.NewValidation("invalid party id").WithDetail("field", "partyId")
	}

	filter := ledger.ListFilter{
		PartyType:   ledger.PartyType(r.PartyType),
		PartyID:     partyID,
		DateFrom:    r.DateFrom,
		DateTo:      r.DateTo,
		PendingOnly: r.PendingOnly,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
	for _, k := range r.Kinds {
		filter.Kinds = append(filter.Kinds, ledger.Kind(k))
	}
	if r.Status != "" {
		status := ledger.Status(r.Status)
		filter.Status = &status
	}
	return filter, nil
}

// --- Responses ---

// LedgerDocumentResponse is the wire form of a ledger document.
type LedgerDocumentResponse struct {
	ID             string     `json:"id"`
	Version        int        `json:"version"`
	PartyType      string     `json:"partyType"`
	PartyID        string     `json:"partyId"`
	Kind           string     `json:"kind"`
	RefID          string     `json:"refId"`
	RefNumber      string     `json:"refNumber,omitempty"`
	DocumentDate   time.Time  `json:"documentDate"`
	Currency       string     `json:"currency"`
	FxRate         string     `json:"fxRate"`
	AmountOriginal string     `json:"amountOriginal"`
	AmountBase     string     `json:"amountBase"`
	Pending        string     `json:"pending"`
	Status         string     `json:"status"`
	VoidedAt       *time.Time `json:"voidedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// FromLedgerDocument converts a domain document to its wire form.
func FromLedgerDocument(d *ledger.LedgerDocument) LedgerDocumentResponse {
	return LedgerDocumentResponse{
		ID:             d.ID.String(),
		Version:        d.Version,
		PartyType:      string(d.PartyType),
		PartyID:        d.PartyID.String(),
		Kind:           string(d.Kind),
		RefID:          d.RefID.String(),
		RefNumber:      d.RefNumber,
		DocumentDate:   d.DocumentDate,
		Currency:       d.Currency,
		FxRate:         d.FxRate.String(),
		AmountOriginal: d.AmountOriginal.String(),
		AmountBase:     d.AmountBase.String(),
		Pending:        d.Pending.String(),
		Status:         string(d.Status),
		VoidedAt:       d.VoidedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// FromLedgerDocuments converts a slice of documents.
func FromLedgerDocuments(docs []*ledger.LedgerDocument) []LedgerDocumentResponse {
	out := make([]LedgerDocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromLedgerDocument(d))
	}
	return out
}

// BalanceResponse is the wire form of a party balance.
type BalanceResponse struct {
	PartyType string            `json:"partyType"`
	PartyID   string            `json:"partyId"`
	ByKind    map[string]string `json:"byKind"`
	Debt      string            `json:"debt"`
	Credit    string            `json:"credit"`
	Net       string            `json:"net"`
}

// FromBalance converts a domain balance to its wire form.
func FromBalance(b *ledger.PartyBalance) BalanceResponse {
	byKind := make(map[string]string, len(b.ByKind))
	for kind, pending := range b.ByKind {
		byKind[string(kind)] = pending.String()
	}
	return BalanceResponse{
		PartyType: string(b.PartyType),
		PartyID:   b.PartyID.String(),
		ByKind:    byKind,
		Debt:      b.Debt.String(),
		Credit:    b.Credit.String(),
		Net:       b.Net.String(),
	}
}

// SelectablesResponse splits selectable documents for the allocation UI.
type SelectablesResponse struct {
	Debts   []LedgerDocumentResponse `json:"debts"`
	Credits []LedgerDocumentResponse `json:"credits"`
}

// FromSelectables converts domain selectables to their wire form.
func FromSelectables(s *ledger.Selectables) SelectablesResponse {
	return SelectablesResponse{
		Debts:   FromLedgerDocuments(s.Debts),
		Credits: FromLedgerDocuments(s.Credits),
	}
}

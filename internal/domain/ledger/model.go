// Package ledger provides the party sub-ledger document store.
// One LedgerDocument row exists per fiscal/receipt document affecting a
// party's account, carrying a live pending balance.
package ledger

import (
	"context"
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/entity"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
)

// PartyType identifies which side of the trade the sub-ledger tracks.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartySupplier PartyType = "supplier"
)

// Valid reports whether the party type is one of the known values.
func (p PartyType) Valid() bool {
	return p == PartyCustomer || p == PartySupplier
}

// Kind is the document kind within the sub-ledger.
type Kind string

const (
	KindInvoice    Kind = "invoice"
	KindDebitNote  Kind = "debit_note"
	KindCreditNote Kind = "credit_note"
	KindReceipt    Kind = "receipt"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	switch k {
	case KindInvoice, KindDebitNote, KindCreditNote, KindReceipt:
		return true
	}
	return false
}

// IsDebt reports whether pending means remaining debt.
func (k Kind) IsDebt() bool {
	return k == KindInvoice || k == KindDebitNote
}

// IsCredit reports whether pending means remaining available funds.
func (k Kind) IsCredit() bool {
	return k == KindCreditNote || k == KindReceipt
}

// Status of a ledger document.
type Status string

const (
	StatusActive Status = "active"
	StatusVoided Status = "voided"
)

// LedgerDocument mirrors, inside this subsystem, a document that physically
// lives elsewhere (fiscal document or receipt). The link back to the origin is
// by (Kind, RefID) lookup only - deliberately not a foreign key, which keeps
// the mirror idempotent and independently queryable.
//
// Invariant: 0 <= Pending <= AmountBase at all times. A voided document's
// pending is frozen at whatever it was at the moment of voiding.
type LedgerDocument struct {
	entity.BaseDocument

	PartyType PartyType `db:"party_type" json:"partyType"`
	PartyID   id.ID     `db:"party_id" json:"partyId"`

	Kind Kind `db:"kind" json:"kind"`

	// RefID identifies the originating document; (Kind, RefID) is the
	// idempotency key for mirror upserts.
	RefID     id.ID  `db:"ref_id" json:"refId"`
	RefNumber string `db:"ref_number" json:"refNumber,omitempty"`

	DocumentDate time.Time `db:"document_date" json:"documentDate"`

	// Currency and rate are frozen at creation and never recomputed.
	Currency string      `db:"currency" json:"currency"`
	FxRate   types.Money `db:"fx_rate" json:"fxRate"`

	AmountOriginal types.Money `db:"amount_original" json:"amountOriginal"`
	AmountBase     types.Money `db:"amount_base" json:"amountBase"`

	// Pending is remaining debt for debt kinds, remaining available funds
	// for credit kinds. Only the allocation engine moves it.
	Pending types.Money `db:"pending" json:"pending"`

	Status   Status     `db:"status" json:"status"`
	VoidedAt *time.Time `db:"voided_at" json:"voidedAt,omitempty"`
}

// NewMirror creates an Active mirror document with pending fully outstanding.
func NewMirror(partyType PartyType, partyID id.ID, kind Kind, refID id.ID, refNumber string,
	documentDate time.Time, amountOriginal, amountBase, fxRate types.Money, currency string) *LedgerDocument {
	return &LedgerDocument{
		BaseDocument:   entity.NewBaseDocument(),
		PartyType:      partyType,
		PartyID:        partyID,
		Kind:           kind,
		RefID:          refID,
		RefNumber:      refNumber,
		DocumentDate:   documentDate,
		Currency:       currency,
		FxRate:         fxRate,
		AmountOriginal: amountOriginal,
		AmountBase:     amountBase,
		Pending:        amountBase,
		Status:         StatusActive,
	}
}

// Validate implements entity self-validation.
func (d *LedgerDocument) Validate(ctx context.Context) error {
	if !d.PartyType.Valid() {
		return apperror.NewValidation("unknown party type").
			WithDetail("field", "partyType")
	}
	if id.IsNil(d.PartyID) {
		return apperror.NewValidation("party is required").
			WithDetail("field", "partyId")
	}
	if !d.Kind.Valid() {
		return apperror.NewValidation("unknown document kind").
			WithDetail("field", "kind")
	}
	if id.IsNil(d.RefID) {
		return apperror.NewValidation("external reference is required").
			WithDetail("field", "refId")
	}
	if d.DocumentDate.IsZero() {
		return apperror.NewValidation("document date is required").
			WithDetail("field", "documentDate")
	}
	if d.Currency == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	if !d.FxRate.IsPositive() {
		return apperror.NewValidation("exchange rate must be positive").
			WithDetail("field", "fxRate")
	}
	if d.AmountBase.IsNegative() {
		return apperror.NewValidation("base amount must not be negative").
			WithDetail("field", "amountBase")
	}
	if d.Pending.IsNegative() || d.Pending.GreaterThan(d.AmountBase) {
		return apperror.NewValidation("pending must stay between zero and the base amount").
			WithDetail("field", "pending")
	}
	return nil
}

// IsVoided reports whether the document has been voided.
func (d *LedgerDocument) IsVoided() bool {
	return d.Status == StatusVoided
}

// IsSettled reports whether pending reached zero.
func (d *LedgerDocument) IsSettled() bool {
	return d.Pending.IsZero()
}

// Untouched reports whether no allocation has consumed any part of the document.
func (d *LedgerDocument) Untouched() bool {
	return d.Pending.Equal(d.AmountBase)
}

// MarkVoided flips status to Voided, freezing pending where it stands.
func (d *LedgerDocument) MarkVoided() {
	now := time.Now().UTC()
	d.Status = StatusVoided
	d.VoidedAt = &now
	d.Touch()
}

// Ensure interface compliance at compile time.
var _ entity.Validatable = (*LedgerDocument)(nil)

// Package receipt provides the Receipt document (one collection event from a
// party, composed of payment lines) and its mirror into the sub-ledger.
package receipt

import (
	"context"
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/entity"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/allocation"
	"cobranza/internal/domain/ledger"
)

// PaymentMethod is the instrument of a payment line.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodDeposit  PaymentMethod = "deposit"
	MethodCheck    PaymentMethod = "check"
	MethodOther    PaymentMethod = "other"
)

// Valid reports whether the method is one of the known values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodDeposit, MethodCheck, MethodOther:
		return true
	}
	return false
}

// Receipt represents one collection event from a party.
//
// Every receipt has exactly one mirror LedgerDocument (kind=receipt,
// refID=receipt id) whose pending tracks the unallocated receipt funds. The
// receipt row itself is immutable after creation except for the voided flag.
type Receipt struct {
	entity.BaseDocument

	// Number is assigned by the numbering sequence on creation.
	Number string `db:"number" json:"number"`

	PartyType ledger.PartyType `db:"party_type" json:"partyType"`
	PartyID   id.ID            `db:"party_id" json:"partyId"`

	Date time.Time `db:"date" json:"date"`

	Currency string      `db:"currency" json:"currency"`
	FxRate   types.Money `db:"fx_rate" json:"fxRate"`

	TotalOriginal types.Money `db:"total_original" json:"totalOriginal"`
	TotalBase     types.Money `db:"total_base" json:"totalBase"`

	Notes string `db:"notes" json:"notes,omitempty"`

	Voided   bool       `db:"voided" json:"voided"`
	VoidedAt *time.Time `db:"voided_at" json:"voidedAt,omitempty"`

	// Table part: payment lines, in entry order.
	Lines []PaymentLine `db:"-" json:"lines"`

	// Allocations this receipt has funded, loaded on read. Not persisted
	// here; they live in the allocation subsystem keyed by the mirror.
	Allocations []*allocation.Allocation `db:"-" json:"allocations,omitempty"`
}

// PaymentLine is one payment instrument within a receipt.
type PaymentLine struct {
	ID        id.ID `db:"id" json:"id"`
	ReceiptID id.ID `db:"receipt_id" json:"receiptId"`
	LineNo    int   `db:"line_no" json:"lineNo"`

	Method PaymentMethod `db:"method" json:"method"`

	AmountOriginal types.Money `db:"amount_original" json:"amountOriginal"`
	AmountBase     types.Money `db:"amount_base" json:"amountBase"`

	BankAccountID  *id.ID     `db:"bank_account_id" json:"bankAccountId,omitempty"`
	TransactionRef string     `db:"transaction_ref" json:"transactionRef,omitempty"`
	Notes          string     `db:"notes" json:"notes,omitempty"`
	ValueDate      *time.Time `db:"value_date" json:"valueDate,omitempty"`

	// Check fields, set only when Method is check.
	CheckBankCode   string     `db:"check_bank_code" json:"checkBankCode,omitempty"`
	CheckNumber     string     `db:"check_number" json:"checkNumber,omitempty"`
	CheckIssuer     string     `db:"check_issuer" json:"checkIssuer,omitempty"`
	CheckThirdParty bool       `db:"check_third_party" json:"checkThirdParty,omitempty"`
	CheckDueDate    *time.Time `db:"check_due_date" json:"checkDueDate,omitempty"`
}

// NewReceipt creates a receipt without lines. Use AddLine to fill it.
func NewReceipt(partyType ledger.PartyType, partyID id.ID, date time.Time, currency string, fxRate types.Money, notes string) *Receipt {
	return &Receipt{
		BaseDocument:  entity.NewBaseDocument(),
		PartyType:     partyType,
		PartyID:       partyID,
		Date:          date,
		Currency:      currency,
		FxRate:        fxRate,
		TotalOriginal: types.Zero(),
		TotalBase:     types.Zero(),
		Notes:         notes,
		Lines:         make([]PaymentLine, 0),
	}
}

// AddLine appends a payment line and recalculates totals.
func (r *Receipt) AddLine(line PaymentLine) {
	line.ID = id.New()
	line.ReceiptID = r.ID
	line.LineNo = len(r.Lines) + 1
	r.Lines = append(r.Lines, line)
	r.recalculateTotals()
}

// recalculateTotals updates receipt totals from lines.
func (r *Receipt) recalculateTotals() {
	r.TotalOriginal = types.Zero()
	r.TotalBase = types.Zero()
	for _, line := range r.Lines {
		r.TotalOriginal = r.TotalOriginal.Add(line.AmountOriginal)
		r.TotalBase = r.TotalBase.Add(line.AmountBase)
	}
}

// Validate implements entity.Validatable.
func (r *Receipt) Validate(ctx context.Context) error {
	if !r.PartyType.Valid() {
		return apperror.NewValidation("unknown party type").
			WithDetail("field", "partyType")
	}
	if id.IsNil(r.PartyID) {
		return apperror.NewValidation("party is required").
			WithDetail("field", "partyId")
	}
	if r.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	if r.Currency == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	if !r.FxRate.IsPositive() {
		return apperror.NewValidation("exchange rate must be positive").
			WithDetail("field", "fxRate")
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one payment line is required").
			WithDetail("field", "lines")
	}

	sum := types.Zero()
	for i, line := range r.Lines {
		if !line.Method.Valid() {
			return apperror.NewValidation("unknown payment method").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.AmountBase.IsPositive() {
			return apperror.NewValidation("payment amount must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Method == MethodCheck {
			if line.CheckBankCode == "" || line.CheckNumber == "" {
				return apperror.NewValidation("check lines require bank code and check number").
					WithDetail("field", "lines").
					WithDetail("lineNo", i+1)
			}
			if line.CheckDueDate == nil {
				return apperror.NewValidation("check lines require a due date").
					WithDetail("field", "lines").
					WithDetail("lineNo", i+1)
			}
		}
		sum = sum.Add(line.AmountBase)
	}

	if !sum.Equal(r.TotalBase) {
		return apperror.NewValidation("payment lines do not sum to the receipt total").
			WithDetail("lines_total", sum.String()).
			WithDetail("receipt_total", r.TotalBase.String())
	}

	return nil
}

// MarkVoided flips the voided flag.
func (r *Receipt) MarkVoided() {
	now := time.Now().UTC()
	r.Voided = true
	r.VoidedAt = &now
	r.Touch()
}

// Ensure interface compliance at compile time.
var _ entity.Validatable = (*Receipt)(nil)

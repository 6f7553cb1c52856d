package dto

import (
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
	"cobranza/internal/domain/receipt"
)

// --- Requests ---

// PaymentLineRequest is one payment instrument within a receipt.
type PaymentLineRequest struct {
	Method         string `json:"method" binding:"required"`
	AmountOriginal string `json:"amountOriginal" binding:"required"`
	AmountBase     string `json:"amountBase" binding:"required"`

	BankAccountID  string     `json:"bankAccountId"`
	TransactionRef string     `json:"transactionRef"`
	Notes          string     `json:"notes"`
	ValueDate      *time.Time `json:"valueDate"`

	CheckBankCode   string     `json:"checkBankCode"`
	CheckNumber     string     `json:"checkNumber"`
	CheckIssuer     string     `json:"checkIssuer"`
	CheckThirdParty bool       `json:"checkThirdParty"`
	CheckDueDate    *time.Time `json:"checkDueDate"`
}

// CreateReceiptRequest creates a receipt with its payment lines.
type CreateReceiptRequest struct {
	PartyType string    `json:"partyType" binding:"required"`
	PartyID   string    `json:"partyId" binding:"required"`
	Date      time.Time `json:"date" binding:"required"`
	Currency  string    `json:"currency" binding:"required"`
	FxRate    string    `json:"fxRate" binding:"required"`
	Notes     string    `json:"notes"`

	Lines []PaymentLineRequest `json:"lines" binding:"required,min=1"`
}

// ToReceipt converts the request into an unnumbered domain receipt.
func (r CreateReceiptRequest) ToReceipt() (*receipt.Receipt, error) {
	partyID, err := id.Parse(r.PartyID)
	if err != nil {
		return nil, apperror.NewValidation("invalid party id").WithDetail("field", "partyId")
	}
	fxRate, err := types.NewMoneyFromString(r.FxRate)
	if err != nil {
		return nil, apperror.NewValidation("invalid exchange rate").WithDetail("field", "fxRate")
	}

	rec := receipt.NewReceipt(ledger.PartyType(r.PartyType), partyID, r.Date, r.Currency, fxRate, r.Notes)
	for i, lr := range r.Lines {
		line, err := lr.toLine()
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("lineNo", i+1)
			}
			return nil, err
		}
		rec.AddLine(line)
	}
	return rec, nil
}

func (r PaymentLineRequest) toLine() (receipt.PaymentLine, error) {
	amountOriginal, err := types.NewMoneyFromString(r.AmountOriginal)
	if err != nil {
		return receipt.PaymentLine{}, apperror.NewValidation("invalid amount").WithDetail("field", "amountOriginal")
	}
	amountBase, err := types.NewMoneyFromString(r.AmountBase)
	if err != nil {
		return receipt.PaymentLine{}, apperror.NewValidation("invalid amount").WithDetail("field", "amountBase")
	}

	line := receipt.PaymentLine{
		Method:          receipt.PaymentMethod(r.Method),
		AmountOriginal:  amountOriginal,
		AmountBase:      amountBase,
		TransactionRef:  r.TransactionRef,
		Notes:           r.Notes,
		ValueDate:       r.ValueDate,
		CheckBankCode:   r.CheckBankCode,
		CheckNumber:     r.CheckNumber,
		CheckIssuer:     r.CheckIssuer,
		CheckThirdParty: r.CheckThirdParty,
		CheckDueDate:    r.CheckDueDate,
	}
	if r.BankAccountID != "" {
		accountID, err := id.Parse(r.BankAccountID)
		if err != nil {
			return receipt.PaymentLine{}, apperror.NewValidation("invalid bank account id").
				WithDetail("field", "bankAccountId")
		}
		line.BankAccountID = &accountID
	}
	return line, nil
}

// ReceiptAllocateRequest applies receipt funds to a debt document.
type ReceiptAllocateRequest struct {
	TargetDocumentID string `json:"targetDocumentId" binding:"required"`
	AmountBase       string `json:"amountBase" binding:"required"`
}

// ReceiptListRequest filters the paged receipt listing.
type ReceiptListRequest struct {
	PaginationRequest
	PartyType     string     `form:"partyType" binding:"required"`
	PartyID       string     `form:"partyId"`
	IncludeVoided bool       `form:"includeVoided"`
	DateFrom      *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo        *time.Time `form:"dateTo" time_format:"2006-01-02"`
}

// ToFilter converts the request to a repository filter.
func (r ReceiptListRequest) ToFilter() (receipt.ListFilter, error) {
	filter := receipt.ListFilter{
		PartyType:     ledger.PartyType(r.PartyType),
		IncludeVoided: r.IncludeVoided,
		DateFrom:      r.DateFrom,
		DateTo:        r.DateTo,
		Limit:         r.Limit,
		Offset:        r.Offset,
	}
	if r.PartyID != "" {
		partyID, err := id.Parse(r.PartyID)
		if err != nil {
			return receipt.ListFilter{}, apperror.NewValidation("invalid party id").
				WithDetail("field", "partyId")
		}
		filter.PartyID = &partyID
	}
	return filter, nil
}

// --- Responses ---

// PaymentLineResponse is the wire form of a payment line.
type PaymentLineResponse struct {
	ID             string     `json:"id"`
	LineNo         int        `json:"lineNo"`
	Method         string     `json:"method"`
	AmountOriginal string     `json:"amountOriginal"`
	AmountBase     string     `json:"amountBase"`
	BankAccountID  string     `json:"bankAccountId,omitempty"`
	TransactionRef string     `json:"transactionRef,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	ValueDate      *time.Time `json:"valueDate,omitempty"`

	CheckBankCode   string     `json:"checkBankCode,omitempty"`
	CheckNumber     string     `json:"checkNumber,omitempty"`
	CheckIssuer     string     `json:"checkIssuer,omitempty"`
	CheckThirdParty bool       `json:"checkThirdParty,omitempty"`
	CheckDueDate    *time.Time `json:"checkDueDate,omitempty"`
}

// ReceiptResponse is the wire form of a receipt.
type ReceiptResponse struct {
	ID            string     `json:"id"`
	Version       int        `json:"version"`
	Number        string     `json:"number"`
	PartyType     string     `json:"partyType"`
	PartyID       string     `json:"partyId"`
	Date          time.Time  `json:"date"`
	Currency      string     `json:"currency"`
	FxRate        string     `json:"fxRate"`
	TotalOriginal string     `json:"totalOriginal"`
	TotalBase     string     `json:"totalBase"`
	Notes         string     `json:"notes,omitempty"`
	Voided        bool       `json:"voided"`
	VoidedAt      *time.Time `json:"voidedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Lines       []PaymentLineResponse `json:"lines,omitempty"`
	Allocations []AllocationResponse  `json:"allocations,omitempty"`
}

// FromReceipt converts a domain receipt to its wire form.
func FromReceipt(rec *receipt.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		ID:            rec.ID.String(),
		Version:       rec.Version,
		Number:        rec.Number,
		PartyType:     string(rec.PartyType),
		PartyID:       rec.PartyID.String(),
		Date:          rec.Date,
		Currency:      rec.Currency,
		FxRate:        rec.FxRate.String(),
		TotalOriginal: rec.TotalOriginal.String(),
		TotalBase:     rec.TotalBase.String(),
		Notes:         rec.Notes,
		Voided:        rec.Voided,
		VoidedAt:      rec.VoidedAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	for _, line := range rec.Lines {
		resp.Lines = append(resp.Lines, fromLine(line))
	}
	if len(rec.Allocations) > 0 {
		resp.Allocations = FromAllocations(rec.Allocations)
	}
	return resp
}

func fromLine(line receipt.PaymentLine) PaymentLineResponse {
	resp := PaymentLineResponse{
		ID:              line.ID.String(),
		LineNo:          line.LineNo,
		Method:          string(line.Method),
		AmountOriginal:  line.AmountOriginal.String(),
		AmountBase:      line.AmountBase.String(),
		TransactionRef:  line.TransactionRef,
		Notes:           line.Notes,
		ValueDate:       line.ValueDate,
		CheckBankCode:   line.CheckBankCode,
		CheckNumber:     line.CheckNumber,
		CheckIssuer:     line.CheckIssuer,
		CheckThirdParty: line.CheckThirdParty,
		CheckDueDate:    line.CheckDueDate,
	}
	if line.BankAccountID != nil {
		resp.BankAccountID = line.BankAccountID.String()
	}
	return resp
}

// FromReceipts converts receipt headers (no lines loaded).
func FromReceipts(recs []*receipt.Receipt) []ReceiptResponse {
	out := make([]ReceiptResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromReceipt(rec))
	}
	return out
}

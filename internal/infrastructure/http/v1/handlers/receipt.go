package handlers

import (
	"github.com/gin-gonic/gin"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/receipt"
	"cobranza/internal/infrastructure/http/v1/dto"
)

// ReceiptHandler serves receipt creation, voiding and allocation shortcuts.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(service *receipt.Service) *ReceiptHandler {
	return &ReceiptHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// Create records a new receipt with its payment lines and mirrors it into
// the ledger as fully available funds.
// POST /api/v1/receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req dto.CreateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := req.ToReceipt()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(c.Request.Context(), rec); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec.ID.String())
}

// Get returns a receipt with lines and allocations.
// GET /api/v1/receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	recID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.service.GetByID(c.Request.Context(), recID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReceipt(rec))
}

// List returns a filtered page of receipts.
// GET /api/v1/receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	var req dto.ReceiptListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromReceipts(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Void cancels a receipt whose funds are still fully unallocated.
// POST /api/v1/receipts/:id/void
func (h *ReceiptHandler) Void(c *gin.Context) {
	recID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.service.Void(c.Request.Context(), recID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReceipt(rec))
}

// Allocate applies receipt funds to one debt document.
// POST /api/v1/receipts/:id/allocations
func (h *ReceiptHandler) Allocate(c *gin.Context) {
	recID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReceiptAllocateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	targetID, err := id.Parse(req.TargetDocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id").WithDetail("field", "targetDocumentId"))
		return
	}
	amount, err := types.NewMoneyFromString(req.AmountBase)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid amount").WithDetail("field", "amountBase"))
		return
	}

	alloc, err := h.service.Allocate(c.Request.Context(), recID, targetID, amount)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAllocation(alloc))
}

// Deallocate reverses one allocation, releasing its amount on both sides.
// DELETE /api/v1/receipts/allocations/:allocId
func (h *ReceiptHandler) Deallocate(c *gin.Context) {
	allocID, ok := h.ParseIDParam(c, "allocId")
	if !ok {
		return
	}

	if err := h.service.Deallocate(c.Request.Context(), allocID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

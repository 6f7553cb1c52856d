package handlers

import (
	"github.com/gin-gonic/gin"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/allocation"
	"cobranza/internal/infrastructure/http/v1/dto"
)

// AllocationHandler serves the matching engine operations.
type AllocationHandler struct {
	*BaseHandler
	engine *allocation.Engine
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(engine *allocation.Engine) *AllocationHandler {
	return &AllocationHandler{
		BaseHandler: NewBaseHandler(),
		engine:      engine,
	}
}

// Allocate moves an amount from one credit document to one debt document.
// POST /api/v1/allocations
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sourceID, err := id.Parse(req.SourceDocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id").WithDetail("field", "sourceDocumentId"))
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

	alloc, err := h.engine.Allocate(c.Request.Context(), allocation.SourceKind(req.SourceKind), sourceID, targetID, amount)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAllocation(alloc))
}

// Deallocate reverses one allocation.
// DELETE /api/v1/allocations/:id
func (h *AllocationHandler) Deallocate(c *gin.Context) {
	allocID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Deallocate(c.Request.Context(), allocID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListByDocument returns all allocations touching a document, either side.
// GET /api/v1/allocations/document/:id
func (h *AllocationHandler) ListByDocument(c *gin.Context) {
	docID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	allocs, err := h.engine.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAllocations(allocs))
}

// Preview validates a manual allocation without committing it.
// POST /api/v1/allocations/preview
func (h *AllocationHandler) Preview(c *gin.Context) {
	targetID, selections, ok := h.bindManual(c)
	if !ok {
		return
	}

	plan, err := h.engine.PreviewManual(c.Request.Context(), targetID, selections)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPlan(plan))
}

// Execute commits a manual allocation: one allocation row per selection.
// POST /api/v1/allocations/execute
func (h *AllocationHandler) Execute(c *gin.Context) {
	targetID, selections, ok := h.bindManual(c)
	if !ok {
		return
	}

	plan, allocs, err := h.engine.ExecuteManual(c.Request.Context(), targetID, selections)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ExecuteResponse{
		Plan:        dto.FromPlan(plan),
		Allocations: dto.FromAllocations(allocs),
	})
}

func (h *AllocationHandler) bindManual(c *gin.Context) (id.ID, []allocation.Selection, bool) {
	var req dto.ManualAllocationRequest
	if !h.BindJSON(c, &req) {
		return id.Nil(), nil, false
	}

	targetID, err := id.Parse(req.TargetDocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id").WithDetail("field", "targetDocumentId"))
		return id.Nil(), nil, false
	}
	selections, err := dto.ToSelections(req.Selections)
	if err != nil {
		h.Error(c, err)
		return id.Nil(), nil, false
	}
	return targetID, selections, true
}

// Cover covers a freshly mirrored debt document with existing credit,
// all selections or none, recorded as an audited batch.
// POST /api/v1/allocations/cover
func (h *AllocationHandler) Cover(c *gin.Context) {
	var req dto.CoverRequest
	if !h.BindJSON(c, &req) {
		return
	}

	targetID, err := id.Parse(req.TargetDocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id").WithDetail("field", "targetDocumentId"))
		return
	}
	selections, err := dto.ToSelections(req.Selections)
	if err != nil {
		h.Error(c, err)
		return
	}

	batch, err := h.engine.CoverInvoice(c.Request.Context(), targetID, selections, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatch(batch))
}

// GetBatch returns a cover batch with its items.
// GET /api/v1/allocations/batches/:id
func (h *AllocationHandler) GetBatch(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	batch, err := h.engine.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatch(batch))
}

// ApplyCredits applies a customer's available credits to one debt document,
// oldest credit first.
// POST /api/v1/allocations/apply-credits
func (h *AllocationHandler) ApplyCredits(c *gin.Context) {
	var req dto.ApplyCreditsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	customerID, err := id.Parse(req.CustomerID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid customer id").WithDetail("field", "customerId"))
		return
	}
	targetID, err := id.Parse(req.TargetDocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id").WithDetail("field", "targetDocumentId"))
		return
	}

	result, err := h.engine.ApplyCredits(c.Request.Context(), customerID, targetID, allocation.Strategy(req.Strategy))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromApplyCreditsResult(result))
}

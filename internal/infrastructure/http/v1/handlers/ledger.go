package handlers

import (
	"github.com/gin-gonic/gin"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
	"cobranza/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves the ledger document store and its read side.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
	query   *ledger.QueryService
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(service *ledger.Service, query *ledger.QueryService) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
		query:       query,
	}
}

// UpsertMirror creates or refreshes a fiscal document mirror.
// PUT /api/v1/ledger/mirrors
func (h *LedgerHandler) UpsertMirror(c *gin.Context) {
	var req dto.MirrorRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.UpsertFiscalMirror(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLedgerDocument(doc))
}

// VoidMirror voids a mirror identified by (kind, refId).
// POST /api/v1/ledger/mirrors/void
func (h *LedgerHandler) VoidMirror(c *gin.Context) {
	var req dto.VoidMirrorRequest
	if !h.BindJSON(c, &req) {
		return
	}

	refID, err := id.Parse(req.RefID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid ref id").WithDetail("field", "refId"))
		return
	}

	doc, err := h.service.VoidMirror(c.Request.Context(), ledger.Kind(req.Kind), refID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLedgerDocument(doc))
}

// Get returns a single ledger document.
// GET /api/v1/ledger/documents/:id
func (h *LedgerHandler) Get(c *gin.Context) {
	docID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.service.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLedgerDocument(doc))
}

// List returns a filtered page of ledger documents.
// GET /api/v1/ledger/documents
func (h *LedgerHandler) List(c *gin.Context) {
	var req dto.LedgerListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.query.Page(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromLedgerDocuments(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Balance returns the running balance of a party.
// GET /api/v1/ledger/parties/:type/:id/balance
func (h *LedgerHandler) Balance(c *gin.Context) {
	partyID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	balance, err := h.query.Balance(c.Request.Context(), ledger.PartyType(c.Param("type")), partyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalance(balance))
}

// Selectables returns the documents still carrying pending balance,
// split into debts and credits.
// GET /api/v1/ledger/parties/:type/:id/selectables
func (h *LedgerHandler) Selectables(c *gin.Context) {
	partyID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	sel, err := h.query.Selectables(c.Request.Context(), ledger.PartyType(c.Param("type")), partyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSelectables(sel))
}

// AvailableCredits returns credit documents with pending balance, oldest first.
// GET /api/v1/ledger/parties/:type/:id/credits
func (h *LedgerHandler) AvailableCredits(c *gin.Context) {
	partyID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var minAmount *types.Money
	if raw := c.Query("minAmount"); raw != "" {
		amount, err := types.NewMoneyFromString(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid amount").WithDetail("field", "minAmount"))
			return
		}
		minAmount = &amount
	}

	credits, err := h.query.AvailableCredits(c.Request.Context(), ledger.PartyType(c.Param("type")), partyID, minAmount)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLedgerDocuments(credits))
}

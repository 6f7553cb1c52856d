package dto

import (
	"time"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/allocation"
)

// --- Requests ---

// AllocateRequest applies an amount from one source document to one target.
type AllocateRequest struct {
	SourceKind       string `json:"sourceKind" binding:"required"`
	SourceDocumentID string `json:"sourceDocumentId" binding:"required"`
	TargetDocumentID string `json:"targetDocumentId" binding:"required"`
	AmountBase       string `json:"amountBase" binding:"required"`
}

// SelectionRequest names a source document and the base amount to take from it.
type SelectionRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	AmountBase string `json:"amountBase" binding:"required"`
}

// ToSelection converts the request to a domain selection.
func (r SelectionRequest) ToSelection() (allocation.Selection, error) {
	docID, err := id.Parse(r.DocumentID)
	if err != nil {
		return allocation.Selection{}, apperror.NewValidation("invalid document id").
			WithDetail("field", "documentId")
	}
	amount, err := types.NewMoneyFromString(r.AmountBase)
	if err != nil {
		return allocation.Selection{}, apperror.NewValidation("invalid amount").
			WithDetail("field", "amountBase")
	}
	return allocation.Selection{DocumentID: docID, AmountBase: amount}, nil
}

// ToSelections converts a slice of selection requests.
func ToSelections(reqs []SelectionRequest) ([]allocation.Selection, error) {
	selections := make([]allocation.Selection, 0, len(reqs))
	for _, req := range reqs {
		sel, err := req.ToSelection()
		if err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}
	return selections, nil
}

// ManualAllocationRequest runs a set of selections against one target,
// either as a dry-run preview or for real.
type ManualAllocationRequest struct {
	TargetDocumentID string             `json:"targetDocumentId" binding:"required"`
	Selections       []SelectionRequest `json:"selections" binding:"required,min=1"`
}

// CoverRequest covers a freshly mirrored debt document with existing credit.
type CoverRequest struct {
	TargetDocumentID string             `json:"targetDocumentId" binding:"required"`
	Selections       []SelectionRequest `json:"selections" binding:"required,min=1"`
	Reason           string             `json:"reason"`
}

// ApplyCreditsRequest applies a customer's available credits to one target.
type ApplyCreditsRequest struct {
	CustomerID       string `json:"customerId" binding:"required"`
	TargetDocumentID string `json:"targetDocumentId" binding:"required"`
	Strategy         string `json:"strategy"`
}

// --- Responses ---

// AllocationResponse is the wire form of an allocation.
type AllocationResponse struct {
	ID               string    `json:"id"`
	SourceKind       string    `json:"sourceKind"`
	SourceDocumentID string    `json:"sourceDocumentId"`
	TargetDocumentID string    `json:"targetDocumentId"`
	AmountBase       string    `json:"amountBase"`
	CreatedAt        time.Time `json:"createdAt"`
}

// FromAllocation converts a domain allocation to its wire form.
func FromAllocation(a *allocation.Allocation) AllocationResponse {
	return AllocationResponse{
		ID:               a.ID.String(),
		SourceKind:       string(a.SourceKind),
		SourceDocumentID: a.SourceDocumentID.String(),
		TargetDocumentID: a.TargetDocumentID.String(),
		AmountBase:       a.AmountBase.String(),
		CreatedAt:        a.CreatedAt,
	}
}

// FromAllocations converts a slice of allocations.
func FromAllocations(allocs []*allocation.Allocation) []AllocationResponse {
	out := make([]AllocationResponse, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, FromAllocation(a))
	}
	return out
}

// PlanLineResponse is one source row of a validated plan.
type PlanLineResponse struct {
	SourceDocumentID string `json:"sourceDocumentId"`
	SourceKind       string `json:"sourceKind"`
	AmountBase       string `json:"amountBase"`
	PendingAfter     string `json:"pendingAfter"`
}

// PlanResponse is the wire form of an allocation plan.
type PlanResponse struct {
	TargetDocumentID   string             `json:"targetDocumentId"`
	Lines              []PlanLineResponse `json:"lines"`
	TotalApplied       string             `json:"totalApplied"`
	TargetPendingAfter string             `json:"targetPendingAfter"`
}

// FromPlan converts a domain plan to its wire form.
func FromPlan(p *allocation.Plan) PlanResponse {
	lines := make([]PlanLineResponse, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, PlanLineResponse{
			SourceDocumentID: l.SourceDocumentID.String(),
			SourceKind:       string(l.SourceKind),
			AmountBase:       l.AmountBase.String(),
			PendingAfter:     l.PendingAfter.String(),
		})
	}
	return PlanResponse{
		TargetDocumentID:   p.TargetDocumentID.String(),
		Lines:              lines,
		TotalApplied:       p.TotalApplied.String(),
		TargetPendingAfter: p.TargetPendingAfter.String(),
	}
}

// ExecuteResponse returns the committed plan with the created allocations.
type ExecuteResponse struct {
	Plan        PlanResponse         `json:"plan"`
	Allocations []AllocationResponse `json:"allocations"`
}

// BatchItemResponse is one source contribution within a batch.
type BatchItemResponse struct {
	ID               string `json:"id"`
	SourceKind       string `json:"sourceKind"`
	SourceDocumentID string `json:"sourceDocumentId"`
	AmountBase       string `json:"amountBase"`
}

// BatchResponse is the wire form of an allocation batch.
type BatchResponse struct {
	ID               string              `json:"id"`
	TargetDocumentID string              `json:"targetDocumentId"`
	Reason           string              `json:"reason,omitempty"`
	Items            []BatchItemResponse `json:"items"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// FromBatch converts a domain batch to its wire form.
func FromBatch(b *allocation.AllocationBatch) BatchResponse {
	items := make([]BatchItemResponse, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, BatchItemResponse{
			ID:               item.ID.String(),
			SourceKind:       string(item.SourceKind),
			SourceDocumentID: item.SourceDocumentID.String(),
			AmountBase:       item.AmountBase.String(),
		})
	}
	return BatchResponse{
		ID:               b.ID.String(),
		TargetDocumentID: b.TargetDocumentID.String(),
		Reason:           b.Reason,
		Items:            items,
		CreatedAt:        b.CreatedAt,
	}
}

// ApplyCreditsResponse lists what automatic credit application did.
type ApplyCreditsResponse struct {
	Allocations      []AllocationResponse `json:"allocations"`
	TotalApplied     string               `json:"totalApplied"`
	RemainingPending string               `json:"remainingPending"`
}

// FromApplyCreditsResult converts the domain result to its wire form.
func FromApplyCreditsResult(r *allocation.ApplyCreditsResult) ApplyCreditsResponse {
	return ApplyCreditsResponse{
		Allocations:      FromAllocations(r.Allocations),
		TotalApplied:     r.TotalApplied.String(),
		RemainingPending: r.RemainingPending.String(),
	}
}

// Package allocation provides the matching engine that moves monetary amount
// from funding documents (receipts, credit notes) to debt documents
// (invoices, debit notes), reversibly and transactionally.
package allocation

import (
	"cobranza/internal/core/entity"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
)

// SourceKind tags where an allocation's funds come from.
// Only credit-bearing documents can fund an allocation.
type SourceKind string

const (
	SourceReceipt    SourceKind = "receipt"
	SourceCreditNote SourceKind = "credit_note"
)

// Valid reports whether the source kind is one of the known values.
func (k SourceKind) Valid() bool {
	return k == SourceReceipt || k == SourceCreditNote
}

// DocumentKind returns the ledger kind a source document of this kind must have.
func (k SourceKind) DocumentKind() ledger.Kind {
	if k == SourceReceipt {
		return ledger.KindReceipt
	}
	return ledger.KindCreditNote
}

// SourceKindOf maps a credit-bearing ledger kind to its source tag.
// Returns false for debt kinds.
func SourceKindOf(kind ledger.Kind) (SourceKind, bool) {
	switch kind {
	case ledger.KindReceipt:
		return SourceReceipt, true
	case ledger.KindCreditNote:
		return SourceCreditNote, true
	}
	return "", false
}

// Allocation is an atomic funding event: AmountBase moved from exactly one
// credit-kind document to exactly one debt-kind document. Allocations are
// never mutated, only created or deleted.
type Allocation struct {
	entity.BaseDocument

	SourceKind       SourceKind  `db:"source_kind" json:"sourceKind"`
	SourceDocumentID id.ID       `db:"source_document_id" json:"sourceDocumentId"`
	TargetDocumentID id.ID       `db:"target_document_id" json:"targetDocumentId"`
	AmountBase       types.Money `db:"amount_base" json:"amountBase"`
}

// NewAllocation creates an allocation row.
func NewAllocation(sourceKind SourceKind, sourceID, targetID id.ID, amountBase types.Money) *Allocation {
	return &Allocation{
		BaseDocument:     entity.NewBaseDocument(),
		SourceKind:       sourceKind,
		SourceDocumentID: sourceID,
		TargetDocumentID: targetID,
		AmountBase:       amountBase,
	}
}

// AllocationBatch is a named, audited group of allocations created when a
// brand-new debt document is immediately covered by pre-existing credit.
// Items enforce the same balance invariants as plain allocations.
type AllocationBatch struct {
	entity.BaseDocument

	TargetDocumentID id.ID  `db:"target_document_id" json:"targetDocumentId"`
	Reason           string `db:"reason" json:"reason,omitempty"`

	Items []AllocationItem `db:"-" json:"items"`
}

// AllocationItem is one source contribution within a batch.
type AllocationItem struct {
	ID               id.ID       `db:"id" json:"id"`
	BatchID          id.ID       `db:"batch_id" json:"batchId"`
	SourceKind       SourceKind  `db:"source_kind" json:"sourceKind"`
	SourceDocumentID id.ID       `db:"source_document_id" json:"sourceDocumentId"`
	AmountBase       types.Money `db:"amount_base" json:"amountBase"`
}

// Selection names a source document and the base amount to apply from it.
type Selection struct {
	DocumentID id.ID       `json:"documentId"`
	AmountBase types.Money `json:"amountBase"`
}

// Strategy selects the automatic credit-application policy.
type Strategy string

// StrategyOldestFirst applies available credits oldest document date first,
// ties broken by ascending document id. This is the default policy.
const StrategyOldestFirst Strategy = "oldest_first"

// Valid reports whether the strategy is one of the known values.
func (s Strategy) Valid() bool {
	return s == StrategyOldestFirst || s == ""
}

// ApplyCreditsResult lists what ApplyCredits did.
type ApplyCreditsResult struct {
	Allocations      []*Allocation `json:"allocations"`
	TotalApplied     types.Money   `json:"totalApplied"`
	RemainingPending types.Money   `json:"remainingPending"`
}

// PlanLine is one source row of a validated allocation plan, with the pending
// balance the source would be left with.
type PlanLine struct {
	SourceDocumentID id.ID       `json:"sourceDocumentId"`
	SourceKind       SourceKind  `json:"sourceKind"`
	AmountBase       types.Money `json:"amountBase"`
	PendingAfter     types.Money `json:"pendingAfter"`
}

// Plan is the outcome of running the shared validation pipeline over a set of
// selections against one target: the balances as they would be after commit.
type Plan struct {
	TargetDocumentID   id.ID       `json:"targetDocumentId"`
	Lines              []PlanLine  `json:"lines"`
	TotalApplied       types.Money `json:"totalApplied"`
	TargetPendingAfter types.Money `json:"targetPendingAfter"`
}

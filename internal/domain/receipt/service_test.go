package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/numerator"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/allocation"
	"cobranza/internal/domain/ledger"
)

// --- In-memory fakes ---

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubLedger struct {
	docs map[id.ID]*ledger.LedgerDocument
}

func newStubLedger() *stubLedger {
	return &stubLedger{docs: make(map[id.ID]*ledger.LedgerDocument)}
}

func (r *stubLedger) Create(_ context.Context, doc *ledger.LedgerDocument) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *stubLedger) GetByID(_ context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("ledger document", docID.String())
	}
	cp := *doc
	return &cp, nil
}

func (r *stubLedger) GetByRef(_ context.Context, kind ledger.Kind, refID id.ID) (*ledger.LedgerDocument, error) {
	for _, doc := range r.docs {
		if doc.Kind == kind && doc.RefID == refID {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("ledger document", refID.String())
}

func (r *stubLedger) Update(_ context.Context, doc *ledger.LedgerDocument) error {
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *stubLedger) GetForUpdate(ctx context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	return r.GetByID(ctx, docID)
}

func (r *stubLedger) GetPairForUpdate(ctx context.Context, aID, bID id.ID) (*ledger.LedgerDocument, *ledger.LedgerDocument, error) {
	a, err := r.GetByID(ctx, aID)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.GetByID(ctx, bID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (r *stubLedger) AdjustPending(_ context.Context, docID id.ID, delta types.Money) error {
	doc, ok := r.docs[docID]
	if !ok {
		return apperror.NewNotFound("ledger document", docID.String())
	}
	next := doc.Pending.Add(delta)
	if next.IsNegative() || next.GreaterThan(doc.AmountBase) {
		return apperror.NewInsufficientBalance(docID.String(), delta.Abs().String(), doc.Pending.String())
	}
	doc.Pending = next
	return nil
}

func (r *stubLedger) List(_ context.Context, filter ledger.ListFilter) (ledger.ListResult, error) {
	return ledger.ListResult{}, nil
}

func (r *stubLedger) PendingByKind(_ context.Context, _ ledger.PartyType, _ id.ID) (map[ledger.Kind]types.Money, error) {
	return map[ledger.Kind]types.Money{}, nil
}

func (r *stubLedger) AvailableCredits(_ context.Context, _ ledger.PartyType, _ id.ID, _ *types.Money) ([]*ledger.LedgerDocument, error) {
	return nil, nil
}

var _ ledger.Repository = (*stubLedger)(nil)

type stubAllocations struct {
	allocs map[id.ID]*allocation.Allocation
}

func newStubAllocations() *stubAllocations {
	return &stubAllocations{allocs: make(map[id.ID]*allocation.Allocation)}
}

func (r *stubAllocations) CreateAllocation(_ context.Context, a *allocation.Allocation) error {
	r.allocs[a.ID] = a
	return nil
}

func (r *stubAllocations) GetAllocation(_ context.Context, allocID id.ID) (*allocation.Allocation, error) {
	a, ok := r.allocs[allocID]
	if !ok {
		return nil, apperror.NewNotFound("allocation", allocID.String())
	}
	return a, nil
}

func (r *stubAllocations) DeleteAllocation(_ context.Context, allocID id.ID) error {
	delete(r.allocs, allocID)
	return nil
}

func (r *stubAllocations) CreateBatch(_ context.Context, b *allocation.AllocationBatch) error {
	return nil
}

func (r *stubAllocations) GetBatch(_ context.Context, batchID id.ID) (*allocation.AllocationBatch, error) {
	return nil, apperror.NewNotFound("allocation batch", batchID.String())
}

func (r *stubAllocations) ListBySource(_ context.Context, sourceID id.ID) ([]*allocation.Allocation, error) {
	var out []*allocation.Allocation
	for _, a := range r.allocs {
		if a.SourceDocumentID == sourceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubAllocations) ListByTarget(_ context.Context, targetID id.ID) ([]*allocation.Allocation, error) {
	var out []*allocation.Allocation
	for _, a := range r.allocs {
		if a.TargetDocumentID == targetID {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ allocation.Repository = (*stubAllocations)(nil)

type stubReceipts struct {
	receipts map[id.ID]*Receipt
	lines    map[id.ID][]PaymentLine
}

func newStubReceipts() *stubReceipts {
	return &stubReceipts{
		receipts: make(map[id.ID]*Receipt),
		lines:    make(map[id.ID][]PaymentLine),
	}
}

func (r *stubReceipts) Create(_ context.Context, rec *Receipt) error {
	cp := *rec
	r.receipts[rec.ID] = &cp
	return nil
}

func (r *stubReceipts) GetByID(_ context.Context, recID id.ID) (*Receipt, error) {
	rec, ok := r.receipts[recID]
	if !ok {
		return nil, apperror.NewNotFound("receipt", recID.String())
	}
	cp := *rec
	return &cp, nil
}

func (r *stubReceipts) GetByNumber(_ context.Context, number string) (*Receipt, error) {
	for _, rec := range r.receipts {
		if rec.Number == number {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("receipt", number)
}

func (r *stubReceipts) Update(_ context.Context, rec *Receipt) error {
	cp := *rec
	r.receipts[rec.ID] = &cp
	return nil
}

func (r *stubReceipts) GetLines(_ context.Context, recID id.ID) ([]PaymentLine, error) {
	return r.lines[recID], nil
}

func (r *stubReceipts) SaveLines(_ context.Context, recID id.ID, lines []PaymentLine) error {
	r.lines[recID] = lines
	return nil
}

func (r *stubReceipts) List(_ context.Context, filter ListFilter) (ListResult, error) {
	var items []*Receipt
	for _, rec := range r.receipts {
		if !filter.IncludeVoided && rec.Voided {
			continue
		}
		cp := *rec
		items = append(items, &cp)
	}
	return ListResult{Items: items, TotalCount: int64(len(items)), Limit: filter.Limit}, nil
}

var _ Repository = (*stubReceipts)(nil)

// --- Helpers ---

type fixture struct {
	receipts *stubReceipts
	ledger   *stubLedger
	engine   *allocation.Engine
	svc      *Service
}

func newFixture() *fixture {
	receipts := newStubReceipts()
	ledgerRepo := newStubLedger()
	engine := allocation.NewEngine(newStubAllocations(), ledgerRepo, passthroughTx{})
	gen := &numerator.MockGenerator{
		NextFormattedFunc: func(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
			return "REC-2026-00001", nil
		},
	}
	svc := NewService(receipts, ledgerRepo, engine, gen, passthroughTx{})
	return &fixture{receipts: receipts, ledger: ledgerRepo, engine: engine, svc: svc}
}

func cashReceipt(amount string) *Receipt {
	rec := NewReceipt(ledger.PartyCustomer, id.New(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		"ARS", types.MustMoney("1"), "")
	rec.AddLine(PaymentLine{
		Method:         MethodCash,
		AmountOriginal: types.MustMoney(amount),
		AmountBase:     types.MustMoney(amount),
	})
	return rec
}

// --- Tests ---

func TestCreate_NumbersAndMirrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := cashReceipt("1000")
	require.NoError(t, f.svc.Create(ctx, rec))

	assert.Equal(t, "REC-2026-00001", rec.Number)
	require.Len(t, f.receipts.receipts, 1)

	// Mirror exists, fully available, keyed by the receipt id.
	mirror, err := f.ledger.GetByRef(ctx, ledger.KindReceipt, rec.ID)
	require.NoError(t, err)
	assert.True(t, mirror.Pending.Equal(types.MustMoney("1000")))
	assert.True(t, mirror.Untouched())
	assert.Equal(t, rec.Number, mirror.RefNumber)
}

func TestCreate_RejectsLineSumMismatch(t *testing.T) {
	f := newFixture()

	rec := cashReceipt("1000")
	rec.TotalBase = types.MustMoney("900")

	err := f.svc.Create(context.Background(), rec)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestCreate_RejectsCheckLineWithoutDetails(t *testing.T) {
	f := newFixture()

	rec := NewReceipt(ledger.PartyCustomer, id.New(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		"ARS", types.MustMoney("1"), "")
	rec.AddLine(PaymentLine{
		Method:         MethodCheck,
		AmountOriginal: types.MustMoney("500"),
		AmountBase:     types.MustMoney("500"),
	})

	err := f.svc.Create(context.Background(), rec)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestAllocate_ConsumesMirrorFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := cashReceipt("1000")
	require.NoError(t, f.svc.Create(ctx, rec))

	invoice := ledger.NewMirror(rec.PartyType, rec.PartyID, ledger.KindInvoice, id.New(), "",
		rec.Date, types.MustMoney("1500"), types.MustMoney("1500"), types.MustMoney("1"), "ARS")
	require.NoError(t, f.ledger.Create(ctx, invoice))

	alloc, err := f.svc.Allocate(ctx, rec.ID, invoice.ID, types.MustMoney("600"))
	require.NoError(t, err)
	assert.Equal(t, allocation.SourceReceipt, alloc.SourceKind)

	mirror, err := f.ledger.GetByRef(ctx, ledger.KindReceipt, rec.ID)
	require.NoError(t, err)
	assert.True(t, mirror.Pending.Equal(types.MustMoney("400")))

	target, err := f.ledger.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, target.Pending.Equal(types.MustMoney("900")))

	// Loading the receipt surfaces the allocation.
	loaded, err := f.svc.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Allocations, 1)
	assert.Equal(t, alloc.ID, loaded.Allocations[0].ID)
}

func TestVoid_UnallocatedReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := cashReceipt("1000")
	require.NoError(t, f.svc.Create(ctx, rec))

	voided, err := f.svc.Void(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	require.NotNil(t, voided.VoidedAt)

	mirror, err := f.ledger.GetByRef(ctx, ledger.KindReceipt, rec.ID)
	require.NoError(t, err)
	assert.True(t, mirror.IsVoided())

	// Idempotent no-op.
	_, err = f.svc.Void(ctx, rec.ID)
	require.NoError(t, err)
}

func TestVoid_RejectedWhenFundsAllocated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := cashReceipt("1000")
	require.NoError(t, f.svc.Create(ctx, rec))

	invoice := ledger.NewMirror(rec.PartyType, rec.PartyID, ledger.KindInvoice, id.New(), "",
		rec.Date, types.MustMoney("1500"), types.MustMoney("1500"), types.MustMoney("1"), "ARS")
	require.NoError(t, f.ledger.Create(ctx, invoice))

	alloc, err := f.svc.Allocate(ctx, rec.ID, invoice.ID, types.MustMoney("100"))
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))

	// After reversing the allocation the receipt voids normally.
	require.NoError(t, f.svc.Deallocate(ctx, alloc.ID))
	_, err = f.svc.Void(ctx, rec.ID)
	require.NoError(t, err)
}

func TestReceiptValidate_TotalsFollowLines(t *testing.T) {
	rec := cashReceipt("300")
	rec.AddLine(PaymentLine{
		Method:         MethodTransfer,
		AmountOriginal: types.MustMoney("700"),
		AmountBase:     types.MustMoney("700"),
	})

	assert.True(t, rec.TotalBase.Equal(types.MustMoney("1000")))
	assert.Equal(t, 2, rec.Lines[1].LineNo)
	require.NoError(t, rec.Validate(context.Background()))
}

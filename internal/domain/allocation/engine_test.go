package allocation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobranza/internal/core/apperror"
	"cobranza/internal/core/id"
	"cobranza/internal/core/types"
	"cobranza/internal/domain/ledger"
)

// --- In-memory fakes ---

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// lockingTx serializes whole transactions, the way the FOR UPDATE row locks
// serialize conflicting engine calls against the database.
type lockingTx struct {
	mu sync.Mutex
}

func (l *lockingTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type memLedger struct {
	docs map[id.ID]*ledger.LedgerDocument
}

func newMemLedger(docs ...*ledger.LedgerDocument) *memLedger {
	m := &memLedger{docs: make(map[id.ID]*ledger.LedgerDocument)}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memLedger) Create(_ context.Context, doc *ledger.LedgerDocument) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *memLedger) GetByID(_ context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("ledger document", docID.String())
	}
	cp := *doc
	return &cp, nil
}

func (m *memLedger) GetByRef(_ context.Context, kind ledger.Kind, refID id.ID) (*ledger.LedgerDocument, error) {
	for _, doc := range m.docs {
		if doc.Kind == kind && doc.RefID == refID {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("ledger document", refID.String())
}

func (m *memLedger) Update(_ context.Context, doc *ledger.LedgerDocument) error {
	if _, ok := m.docs[doc.ID]; !ok {
		return apperror.NewNotFound("ledger document", doc.ID.String())
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memLedger) GetForUpdate(ctx context.Context, docID id.ID) (*ledger.LedgerDocument, error) {
	return m.GetByID(ctx, docID)
}

func (m *memLedger) GetPairForUpdate(ctx context.Context, aID, bID id.ID) (*ledger.LedgerDocument, *ledger.LedgerDocument, error) {
	a, err := m.GetByID(ctx, aID)
	if err != nil {
		return nil, nil, err
	}
	b, err := m.GetByID(ctx, bID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (m *memLedger) AdjustPending(_ context.Context, docID id.ID, delta types.Money) error {
	doc, ok := m.docs[docID]
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

func (m *memLedger) List(_ context.Context, filter ledger.ListFilter) (ledger.ListResult, error) {
	var items []*ledger.LedgerDocument
	for _, doc := range m.docs {
		if doc.PartyType == filter.PartyType && doc.PartyID == filter.PartyID {
			cp := *doc
			items = append(items, &cp)
		}
	}
	return ledger.ListResult{Items: items, TotalCount: int64(len(items))}, nil
}

func (m *memLedger) PendingByKind(_ context.Context, partyType ledger.PartyType, partyID id.ID) (map[ledger.Kind]types.Money, error) {
	out := make(map[ledger.Kind]types.Money)
	for _, doc := range m.docs {
		if doc.PartyType == partyType && doc.PartyID == partyID && doc.Status == ledger.StatusActive {
			sum, ok := out[doc.Kind]
			if !ok {
				sum = types.Zero()
			}
			out[doc.Kind] = sum.Add(doc.Pending)
		}
	}
	return out, nil
}

func (m *memLedger) AvailableCredits(_ context.Context, partyType ledger.PartyType, partyID id.ID, minAmount *types.Money) ([]*ledger.LedgerDocument, error) {
	var out []*ledger.LedgerDocument
	for _, doc := range m.docs {
		if doc.PartyType != partyType || doc.PartyID != partyID {
			continue
		}
		if doc.Status != ledger.StatusActive || !doc.Kind.IsCredit() || !doc.Pending.IsPositive() {
			continue
		}
		if minAmount != nil && doc.Pending.LessThan(*minAmount) {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DocumentDate.Equal(out[j].DocumentDate) {
			return out[i].DocumentDate.Before(out[j].DocumentDate)
		}
		return id.Less(out[i].ID, out[j].ID)
	})
	return out, nil
}

type memAllocations struct {
	allocs  map[id.ID]*Allocation
	batches map[id.ID]*AllocationBatch
}

func newMemAllocations() *memAllocations {
	return &memAllocations{
		allocs:  make(map[id.ID]*Allocation),
		batches: make(map[id.ID]*AllocationBatch),
	}
}

func (m *memAllocations) CreateAllocation(_ context.Context, alloc *Allocation) error {
	m.allocs[alloc.ID] = alloc
	return nil
}

func (m *memAllocations) GetAllocation(_ context.Context, allocID id.ID) (*Allocation, error) {
	alloc, ok := m.allocs[allocID]
	if !ok {
		return nil, apperror.NewNotFound("allocation", allocID.String())
	}
	return alloc, nil
}

func (m *memAllocations) DeleteAllocation(_ context.Context, allocID id.ID) error {
	if _, ok := m.allocs[allocID]; !ok {
		return apperror.NewNotFound("allocation", allocID.String())
	}
	delete(m.allocs, allocID)
	return nil
}

func (m *memAllocations) CreateBatch(_ context.Context, batch *AllocationBatch) error {
	m.batches[batch.ID] = batch
	return nil
}

func (m *memAllocations) GetBatch(_ context.Context, batchID id.ID) (*AllocationBatch, error) {
	batch, ok := m.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("allocation batch", batchID.String())
	}
	return batch, nil
}

func (m *memAllocations) ListBySource(_ context.Context, sourceID id.ID) ([]*Allocation, error) {
	var out []*Allocation
	for _, a := range m.allocs {
		if a.SourceDocumentID == sourceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAllocations) ListByTarget(_ context.Context, targetID id.ID) ([]*Allocation, error) {
	var out []*Allocation
	for _, a := range m.allocs {
		if a.TargetDocumentID == targetID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- Helpers ---

var testCustomer = id.New()

func money(s string) types.Money {
	return types.MustMoney(s)
}

func testDoc(kind ledger.Kind, amount string, date time.Time) *ledger.LedgerDocument {
	return ledger.NewMirror(ledger.PartyCustomer, testCustomer, kind, id.New(), "",
		date, money(amount), money(amount), money("1"), "ARS")
}

func testEngine(docs ...*ledger.LedgerDocument) (*Engine, *memLedger, *memAllocations) {
	ledgerRepo := newMemLedger(docs...)
	allocRepo := newMemAllocations()
	return NewEngine(allocRepo, ledgerRepo, passthroughTx{}), ledgerRepo, allocRepo
}

// --- Tests ---

func TestAllocate_MovesPendingOnBothSides(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	inv := testDoc(ledger.KindInvoice, "1500", day)
	engine, ledgerRepo, allocRepo := testEngine(rec, inv)
	ctx := context.Background()

	alloc, err := engine.Allocate(ctx, SourceReceipt, rec.ID, inv.ID, money("1000"))
	require.NoError(t, err)
	require.NotNil(t, alloc)

	assert.True(t, ledgerRepo.docs[rec.ID].Pending.IsZero())
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.Equal(money("500")))
	assert.Len(t, allocRepo.allocs, 1)

	// Reversal restores both balances exactly.
	require.NoError(t, engine.Deallocate(ctx, alloc.ID))
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("1000")))
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.Equal(money("1500")))
	assert.Empty(t, allocRepo.allocs)
}

func TestAllocate_InsufficientSourceBalance(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	inv := testDoc(ledger.KindInvoice, "1500", day)
	engine, ledgerRepo, _ := testEngine(rec, inv)

	_, err := engine.Allocate(context.Background(), SourceReceipt, rec.ID, inv.ID, money("1200"))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientBalance(err))

	// Nothing moved.
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("1000")))
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.Equal(money("1500")))
}

func TestAllocate_InsufficientTargetBalance(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	inv := testDoc(ledger.KindInvoice, "300", day)
	engine, _, _ := testEngine(rec, inv)

	_, err := engine.Allocate(context.Background(), SourceReceipt, rec.ID, inv.ID, money("500"))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientBalance(err))
}

func TestAllocate_RejectsInvalidInputs(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	inv := testDoc(ledger.KindInvoice, "1500", day)
	note := testDoc(ledger.KindCreditNote, "100", day)
	voided := testDoc(ledger.KindReceipt, "100", day)
	voided.MarkVoided()
	engine, _, _ := testEngine(rec, inv, note, voided)
	ctx := context.Background()

	// Zero and negative amounts are validation errors, not balance errors.
	_, err := engine.Allocate(ctx, SourceReceipt, rec.ID, inv.ID, money("0"))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	// Source must match the declared kind.
	_, err = engine.Allocate(ctx, SourceReceipt, note.ID, inv.ID, money("50"))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))

	// Debt documents cannot fund allocations.
	_, err = engine.Allocate(ctx, SourceReceipt, inv.ID, rec.ID, money("50"))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))

	// Voided documents are out of play entirely.
	_, err = engine.Allocate(ctx, SourceReceipt, voided.ID, inv.ID, money("50"))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))

	// Source and target must differ.
	_, err = engine.Allocate(ctx, SourceReceipt, rec.ID, rec.ID, money("50"))
	require.Error(t, err)
}

func TestAllocate_ConcurrentCallsCannotOverdrawSource(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	invA := testDoc(ledger.KindInvoice, "600", day)
	invB := testDoc(ledger.KindInvoice, "600", day)
	ledgerRepo := newMemLedger(rec, invA, invB)
	allocRepo := newMemAllocations()
	engine := NewEngine(allocRepo, ledgerRepo, &lockingTx{})
	ctx := context.Background()

	// Two concurrent calls each want 600 of the source's 1000. Whichever
	// transaction runs second must see the reduced balance and fail.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, targetID := range []id.ID{invA.ID, invB.ID} {
		wg.Add(1)
		go func(targetID id.ID) {
			defer wg.Done()
			_, err := engine.Allocate(ctx, SourceReceipt, rec.ID, targetID, money("600"))
			errs <- err
		}(targetID)
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.IsInsufficientBalance(err):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	// Exactly one transfer landed: 400 left on the source, one row written.
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("400")))
	assert.Len(t, allocRepo.allocs, 1)
}

func TestCoverInvoice_CreatesAuditedBatch(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	note := testDoc(ledger.KindCreditNote, "200", day)
	rec := testDoc(ledger.KindReceipt, "500", day)
	inv := testDoc(ledger.KindInvoice, "600", day)
	engine, ledgerRepo, allocRepo := testEngine(note, rec, inv)

	batch, err := engine.CoverInvoice(context.Background(), inv.ID, []Selection{
		{DocumentID: note.ID, AmountBase: money("200")},
		{DocumentID: rec.ID, AmountBase: money("400")},
	}, "covered at issue")
	require.NoError(t, err)
	require.Len(t, batch.Items, 2)

	assert.Equal(t, SourceCreditNote, batch.Items[0].SourceKind)
	assert.Equal(t, SourceReceipt, batch.Items[1].SourceKind)
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.IsZero())
	assert.True(t, ledgerRepo.docs[note.ID].Pending.IsZero())
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("100")))
	assert.Len(t, allocRepo.batches, 1)
}

func TestCoverInvoice_AllOrNothing(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	note := testDoc(ledger.KindCreditNote, "200", day)
	rec := testDoc(ledger.KindReceipt, "100", day)
	inv := testDoc(ledger.KindInvoice, "600", day)
	engine, ledgerRepo, allocRepo := testEngine(note, rec, inv)

	// Second selection overdraws its source; the whole batch must fail.
	_, err := engine.CoverInvoice(context.Background(), inv.ID, []Selection{
		{DocumentID: note.ID, AmountBase: money("200")},
		{DocumentID: rec.ID, AmountBase: money("300")},
	}, "")
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientBalance(err))

	assert.True(t, ledgerRepo.docs[note.ID].Pending.Equal(money("200")))
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("100")))
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.Equal(money("600")))
	assert.Empty(t, allocRepo.batches)
}

func TestCoverInvoice_TracksRepeatedSource(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "500", day)
	inv := testDoc(ledger.KindInvoice, "900", day)
	engine, _, _ := testEngine(rec, inv)

	// 300 + 300 from a 500 source: the second line sees only 200 left.
	_, err := engine.CoverInvoice(context.Background(), inv.ID, []Selection{
		{DocumentID: rec.ID, AmountBase: money("300")},
		{DocumentID: rec.ID, AmountBase: money("300")},
	}, "")
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientBalance(err))
}

func TestPreviewMatchesExecute(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	note := testDoc(ledger.KindCreditNote, "250", day)
	rec := testDoc(ledger.KindReceipt, "400", day)
	inv := testDoc(ledger.KindInvoice, "1000", day)
	engine, ledgerRepo, _ := testEngine(note, rec, inv)
	ctx := context.Background()

	selections := []Selection{
		{DocumentID: note.ID, AmountBase: money("250")},
		{DocumentID: rec.ID, AmountBase: money("150")},
	}

	preview, err := engine.PreviewManual(ctx, inv.ID, selections)
	require.NoError(t, err)

	plan, allocs, err := engine.ExecuteManual(ctx, inv.ID, selections)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	// The committed plan is exactly what preview promised.
	assert.Equal(t, preview.TotalApplied.String(), plan.TotalApplied.String())
	assert.Equal(t, preview.TargetPendingAfter.String(), plan.TargetPendingAfter.String())
	require.Len(t, plan.Lines, len(preview.Lines))
	for i := range plan.Lines {
		assert.Equal(t, preview.Lines[i].PendingAfter.String(), plan.Lines[i].PendingAfter.String())
	}

	// And the store reflects it.
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.Equal(plan.TargetPendingAfter))
	assert.True(t, ledgerRepo.docs[note.ID].Pending.IsZero())
	assert.True(t, ledgerRepo.docs[rec.ID].Pending.Equal(money("250")))
}

func TestApplyCredits_OldestFirst(t *testing.T) {
	older := testDoc(ledger.KindCreditNote, "200", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	newer := testDoc(ledger.KindReceipt, "500", time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))
	inv := testDoc(ledger.KindInvoice, "300", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	engine, ledgerRepo, _ := testEngine(older, newer, inv)

	result, err := engine.ApplyCredits(context.Background(), testCustomer, inv.ID, StrategyOldestFirst)
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)

	// The older credit is consumed in full before the newer one is touched.
	assert.Equal(t, older.ID, result.Allocations[0].SourceDocumentID)
	assert.True(t, result.Allocations[0].AmountBase.Equal(money("200")))
	assert.Equal(t, newer.ID, result.Allocations[1].SourceDocumentID)
	assert.True(t, result.Allocations[1].AmountBase.Equal(money("100")))

	assert.True(t, result.TotalApplied.Equal(money("300")))
	assert.True(t, result.RemainingPending.IsZero())
	assert.True(t, ledgerRepo.docs[older.ID].Pending.IsZero())
	assert.True(t, ledgerRepo.docs[newer.ID].Pending.Equal(money("400")))
	assert.True(t, ledgerRepo.docs[inv.ID].Pending.IsZero())
}

func TestApplyCredits_StopsWhenCreditRunsOut(t *testing.T) {
	credit := testDoc(ledger.KindCreditNote, "150", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	inv := testDoc(ledger.KindInvoice, "1000", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	engine, _, _ := testEngine(credit, inv)

	result, err := engine.ApplyCredits(context.Background(), testCustomer, inv.ID, StrategyOldestFirst)
	require.NoError(t, err)
	assert.True(t, result.TotalApplied.Equal(money("150")))
	assert.True(t, result.RemainingPending.Equal(money("850")))
}

func TestApplyCredits_SettledTargetIsNoOp(t *testing.T) {
	credit := testDoc(ledger.KindCreditNote, "150", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	inv := testDoc(ledger.KindInvoice, "100", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	inv.Pending = money("0")
	engine, ledgerRepo, _ := testEngine(credit, inv)

	result, err := engine.ApplyCredits(context.Background(), testCustomer, inv.ID, StrategyOldestFirst)
	require.NoError(t, err)
	assert.Empty(t, result.Allocations)
	assert.True(t, ledgerRepo.docs[credit.ID].Pending.Equal(money("150")))
}

func TestApplyCredits_RejectsForeignDocument(t *testing.T) {
	inv := testDoc(ledger.KindInvoice, "100", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	engine, _, _ := testEngine(inv)

	_, err := engine.ApplyCredits(context.Background(), id.New(), inv.ID, StrategyOldestFirst)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestListByDocument_MergesBothSides(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := testDoc(ledger.KindReceipt, "1000", day)
	invA := testDoc(ledger.KindInvoice, "300", day)
	invB := testDoc(ledger.KindInvoice, "400", day)
	engine, _, _ := testEngine(rec, invA, invB)
	ctx := context.Background()

	_, err := engine.Allocate(ctx, SourceReceipt, rec.ID, invA.ID, money("300"))
	require.NoError(t, err)
	_, err = engine.Allocate(ctx, SourceReceipt, rec.ID, invB.ID, money("400"))
	require.NoError(t, err)

	allocs, err := engine.ListByDocument(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, allocs, 2)

	allocs, err = engine.ListByDocument(ctx, invA.ID)
	require.NoError(t, err)
	assert.Len(t, allocs, 1)
}

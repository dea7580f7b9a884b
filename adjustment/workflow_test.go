package adjustment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/ledger"
	"github.com/texfab/stock-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestWorkflow(t *testing.T) (*adjustment.Workflow, *ledger.LedgerStore) {
	t.Helper()
	store := memory.New()
	ls := ledger.New(store, store)
	return adjustment.NewWorkflow(store, store, ls), ls
}

func payload(qty string, refNo string) adjustment.Payload {
	return adjustment.Payload{
		Warehouse:  "WH1",
		Item:       "Cotton",
		LotShade:   "L1",
		UOM:        "kg",
		Qty:        decimal.RequireFromString(qty),
		ReasonCode: "count-variance",
		RefNo:      refNo,
	}
}

// finalize walks a draft through submit -> approve -> post.
func finalize(t *testing.T, wf *adjustment.Workflow, id string) *adjustment.Adjustment {
	t.Helper()
	ctx := context.Background()
	_, err := wf.Submit(ctx, id, "requester")
	require.NoError(t, err)
	_, err = wf.Approve(ctx, id, "supervisor")
	require.NoError(t, err)
	a, err := wf.PostAndLock(ctx, id, "supervisor")
	require.NoError(t, err)
	return a
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestWorkflow_FullLifecycle_PostsToLedger(t *testing.T) {
	// GIVEN: A -20 correction linked to variance VAR-1
	// WHEN: Draft -> Submitted -> Approved -> Posted/Locked
	// THEN: The stock balance decreases by 20 and the document is Locked

	wf, ls := newTestWorkflow(t)
	ctx := context.Background()
	key := ledger.StockKey{Item: "Cotton", LotShade: "L1", Warehouse: "WH1"}

	// Seed opening stock of 100.
	_, err := ls.RecordEntry(ctx, ledger.EntryDraft{
		Key: key, RefType: ledger.RefOpening,
		InQty: decimal.NewFromInt(100), OutQty: decimal.Zero, UOM: "kg", Actor: "seed",
	})
	require.NoError(t, err)

	a, err := wf.CreateDraft(ctx, payload("-20", "VAR-1"), "requester")
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusDraft, a.Status)
	assert.Equal(t, "ADJ-000001", a.ID)

	a = finalize(t, wf, a.ID)
	assert.Equal(t, adjustment.StatusLocked, a.Status)
	assert.NotEmpty(t, a.LedgerRef)
	assert.Equal(t, "supervisor", a.ApprovedBy)
	require.NotNil(t, a.ApprovedAt)

	snap, err := ls.Balance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "80", snap.Balance.String())

	// Created, Submitted, Approved, Posted, Locked: one record each.
	actions := make([]string, 0, len(a.Audit))
	for _, rec := range a.Audit {
		actions = append(actions, rec.Action)
	}
	assert.Equal(t, []string{
		adjustment.AuditCreated,
		adjustment.AuditSubmitted,
		adjustment.AuditApproved,
		adjustment.AuditPosted,
		adjustment.AuditLocked,
	}, actions)
}

func TestWorkflow_PositiveQtyPostsInQty(t *testing.T) {
	wf, ls := newTestWorkflow(t)
	ctx := context.Background()

	a, err := wf.CreateDraft(ctx, payload("15", ""), "requester")
	require.NoError(t, err)
	finalize(t, wf, a.ID)

	entries, err := ls.List(ctx, ledger.Filter{RefNo: a.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "15", entries[0].InQty.String())
	assert.True(t, entries[0].OutQty.IsZero())
	assert.Equal(t, ledger.RefAdjustment, entries[0].RefType)
}

// =============================================================================
// INVALID TRANSITIONS - Never backward, never skipped
// =============================================================================

func TestWorkflow_OutOfOrderTransitionsRejected(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	a, err := wf.CreateDraft(ctx, payload("5", ""), "requester")
	require.NoError(t, err)

	// Draft cannot be approved or posted directly.
	_, err = wf.Approve(ctx, a.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	_, err = wf.PostAndLock(ctx, a.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)

	// The rejected transitions changed nothing.
	got, err := wf.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusDraft, got.Status)
	assert.Len(t, got.Audit, 1)
}

func TestWorkflow_LockedIsTerminal(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	a, err := wf.CreateDraft(ctx, payload("5", ""), "requester")
	require.NoError(t, err)
	finalize(t, wf, a.ID)

	_, err = wf.Submit(ctx, a.ID, "requester")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	_, err = wf.PostAndLock(ctx, a.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	_, err = wf.Reverse(ctx, a.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

func TestWorkflow_UnknownIDIsNotFound(t *testing.T) {
	wf, _ := newTestWorkflow(t)

	_, err := wf.Submit(context.Background(), "ADJ-999999", "requester")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// DUPLICATE POSTING GUARD
// =============================================================================

func TestWorkflow_DuplicatePostingForSameRefNoRejected(t *testing.T) {
	// GIVEN: VAR-1 already finalized by one adjustment
	// WHEN: A second adjustment for VAR-1 reaches PostAndLock
	// THEN: It fails DuplicatePosting and the ledger is untouched

	wf, ls := newTestWorkflow(t)
	ctx := context.Background()

	first, err := wf.CreateDraft(ctx, payload("-20", "VAR-1"), "requester")
	require.NoError(t, err)
	finalize(t, wf, first.ID)

	second, err := wf.CreateDraft(ctx, payload("-20", "VAR-1"), "requester")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, second.ID, "requester")
	require.NoError(t, err)
	_, err = wf.Approve(ctx, second.ID, "supervisor")
	require.NoError(t, err)

	before, err := ls.List(ctx, ledger.Filter{})
	require.NoError(t, err)

	_, err = wf.PostAndLock(ctx, second.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrDuplicatePosting)
	var dup *adjustment.DuplicatePostingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "VAR-1", dup.RefNo)
	assert.Equal(t, first.ID, dup.ExistingID)

	after, err := ls.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, after, len(before), "rejected posting must not write the ledger")

	got, err := wf.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusApproved, got.Status)
}

func TestWorkflow_ReversedAdjustmentFreesRefNo(t *testing.T) {
	// A reversed adjustment no longer blocks its refNo.
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	first, err := wf.CreateDraft(ctx, payload("-20", "VAR-2"), "requester")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, first.ID, "requester")
	require.NoError(t, err)
	_, err = wf.Approve(ctx, first.ID, "supervisor")
	require.NoError(t, err)
	_, err = wf.Reverse(ctx, first.ID, "supervisor")
	require.NoError(t, err)

	second, err := wf.CreateDraft(ctx, payload("-20", "VAR-2"), "requester")
	require.NoError(t, err)
	a := finalize(t, wf, second.ID)
	assert.Equal(t, adjustment.StatusLocked, a.Status)
}

// saveFailer fails the finalizing save to drive the error path.
type saveFailer struct {
	adjustment.Store
	failOnLocked bool
}

func (s *saveFailer) SaveAdjustment(ctx context.Context, a *adjustment.Adjustment) error {
	if s.failOnLocked && a.Status == adjustment.StatusLocked {
		return errors.New("disk full")
	}
	return s.Store.SaveAdjustment(ctx, a)
}

func TestWorkflow_PostSaveFailureOffsetsLedger(t *testing.T) {
	// GIVEN: The store rejects the finalizing save after the entry posted
	// THEN: The movement is offset to net zero, the document stays Approved,
	//       and a later retry posts normally

	base := memory.New()
	store := &saveFailer{Store: base, failOnLocked: true}
	ls := ledger.New(base, base)
	wf := adjustment.NewWorkflow(store, base, ls)
	ctx := context.Background()
	key := ledger.StockKey{Item: "Cotton", LotShade: "L1", Warehouse: "WH1"}

	a, err := wf.CreateDraft(ctx, payload("-20", "VAR-5"), "requester")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, a.ID, "requester")
	require.NoError(t, err)
	_, err = wf.Approve(ctx, a.ID, "supervisor")
	require.NoError(t, err)

	_, err = wf.PostAndLock(ctx, a.ID, "supervisor")
	require.Error(t, err)

	snap, err := ls.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, snap.Balance.IsZero(), "failed posting must net to zero")

	got, err := wf.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusApproved, got.Status)

	store.failOnLocked = false
	posted, err := wf.PostAndLock(ctx, a.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusLocked, posted.Status)

	snap, err = ls.Balance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "-20", snap.Balance.String())
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestWorkflow_ReverseApproved_NoLedgerEffect(t *testing.T) {
	wf, ls := newTestWorkflow(t)
	ctx := context.Background()

	a, err := wf.CreateDraft(ctx, payload("-20", ""), "requester")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, a.ID, "requester")
	require.NoError(t, err)
	_, err = wf.Approve(ctx, a.ID, "supervisor")
	require.NoError(t, err)

	got, err := wf.Reverse(ctx, a.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatusReversed, got.Status)

	entries, err := ls.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "an unposted adjustment has no stock effect to offset")
}

func TestWorkflow_ReverseDraftRejected(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	a, err := wf.CreateDraft(ctx, payload("5", ""), "requester")
	require.NoError(t, err)
	_, err = wf.Reverse(ctx, a.ID, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

// =============================================================================
// READS
// =============================================================================

func TestWorkflow_FindByRef(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	a1, err := wf.CreateDraft(ctx, payload("5", "VAR-9"), "requester")
	require.NoError(t, err)
	_, err = wf.CreateDraft(ctx, payload("7", ""), "requester")
	require.NoError(t, err)
	a2, err := wf.CreateDraft(ctx, payload("-5", "VAR-9"), "requester")
	require.NoError(t, err)

	found, err := wf.FindByRef(ctx, "VAR-9")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a1.ID, found[0].ID)
	assert.Equal(t, a2.ID, found[1].ID)
}

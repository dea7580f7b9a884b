package jobwork_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
	"github.com/texfab/stock-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var day0 = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func newTestJobWork(t *testing.T) *jobwork.Ledger {
	t.Helper()
	store := memory.New()
	return jobwork.New(store, store).WithClock(func() time.Time { return day0 })
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sendCotton(t *testing.T, jw *jobwork.Ledger, vendor, amount string, expectedReturn time.Time) *jobwork.Outward {
	t.Helper()
	out, err := jw.CreateOutward(context.Background(), jobwork.OutwardHeader{
		Vendor:         vendor,
		ProcessType:    "dyeing",
		Date:           day0,
		ExpectedReturn: expectedReturn,
	}, []jobwork.OutwardItem{
		{Material: "Cotton", QtySent: qty(amount), Rate: qty("12.50")},
	}, "dispatcher")
	require.NoError(t, err)
	return out
}

// =============================================================================
// OUTWARD
// =============================================================================

func TestCreateOutward_SequentialChallanAndLiabilityRow(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))
	assert.Equal(t, "JWO-000001", out.ChallanNo)
	assert.Equal(t, jobwork.OutwardSent, out.Status)
	assert.Equal(t, "1250", out.Items[0].Amount.String())

	out2 := sendCotton(t, jw, "V1", "40", day0.AddDate(0, 0, 5))
	assert.Equal(t, "JWO-000002", out2.ChallanNo)

	rows, err := jw.Rows(ctx, "V1", "Cotton")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, jobwork.RowOutward, rows[0].RefType)
	assert.Equal(t, "100", rows[0].BalanceWithVendor.String())
	assert.Equal(t, "140", rows[1].BalanceWithVendor.String())

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "140", balance.String())
}

func TestCreateOutward_DuplicateMaterialLinesFoldSnapshots(t *testing.T) {
	// Two Cotton lines (different lots) on one challan: the second row's
	// snapshot must fold on top of the first, and re-folding the log
	// reproduces every stored snapshot.

	jw := newTestJobWork(t)
	ctx := context.Background()

	out, err := jw.CreateOutward(ctx, jobwork.OutwardHeader{
		Vendor: "V1",
		Date:   day0,
	}, []jobwork.OutwardItem{
		{Material: "Cotton", LotShade: "L1", QtySent: qty("100"), Rate: qty("10")},
		{Material: "Cotton", LotShade: "L2", QtySent: qty("40"), Rate: qty("10")},
	}, "dispatcher")
	require.NoError(t, err)
	require.Len(t, out.Items, 2)

	rows, err := jw.Rows(ctx, "V1", "Cotton")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100", rows[0].BalanceWithVendor.String())
	assert.Equal(t, "140", rows[1].BalanceWithVendor.String())

	fold := decimal.Zero
	for _, r := range rows {
		fold = r.Apply(fold)
		assert.Equal(t, fold.String(), r.BalanceWithVendor.String())
	}

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "140", balance.String())
}

func TestCreateOutward_RejectsNegativeQtySent(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	_, err := jw.CreateOutward(ctx, jobwork.OutwardHeader{
		Vendor: "V1",
		Date:   day0,
	}, []jobwork.OutwardItem{
		{Material: "Cotton", QtySent: qty("-10"), Rate: qty("1")},
	}, "dispatcher")
	require.Error(t, err)

	rows, err := jw.Rows(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// INWARD RECONCILIATION
// =============================================================================

func TestSubmitInward_PartialShortageScenario(t *testing.T) {
	// GIVEN: 100 Cotton sent to V1, expected back in 5 days
	// WHEN: 90 received and 5 damaged on day 3
	// THEN: balanceWithVendor = 100 - 90 - 5 = 5 and SLA is 100% on-time

	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	in, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0.AddDate(0, 0, 3),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("90"), DamageQty: qty("5")},
	}, "storekeeper")
	require.NoError(t, err)
	assert.Equal(t, "JWI-000001", in.InwardNo)
	assert.Equal(t, jobwork.InwardSubmitted, in.Status)

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "5", balance.String())

	sla, err := jw.ComputeSLA(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, 1, sla.Total)
	assert.Equal(t, 1, sla.OnTime)
	assert.Equal(t, 100, sla.OnTimePct)
}

func TestSubmitInward_ZeroReceiptLeavesBalanceUnchanged(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	_, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0.AddDate(0, 0, 1),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: decimal.Zero, DamageQty: decimal.Zero},
	}, "storekeeper")
	require.NoError(t, err)

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())
}

func TestSubmitInward_NoPendingOutwardIsValidWithZeroBalance(t *testing.T) {
	// A receipt that matches no outstanding outward is a valid state, not
	// an error: the row records balance 0.
	jw := newTestJobWork(t)
	ctx := context.Background()

	in, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor: "V9",
		Date:   day0,
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("30")},
	}, "storekeeper")
	require.NoError(t, err)

	rows, err := jw.Rows(ctx, "V9", "Cotton")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, in.InwardNo, rows[0].RefNo)
	assert.True(t, rows[0].BalanceWithVendor.IsZero())
}

func TestSubmitInward_RejectsNegativeQuantities(t *testing.T) {
	// A negative receipt would inflate the vendor balance through the fold.
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	for _, item := range []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("-5")},
		{Material: "Cotton", ReceivedQty: qty("5"), DamageQty: qty("-1")},
	} {
		_, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
			Vendor:    "V1",
			ChallanNo: out.ChallanNo,
			Date:      day0,
		}, []jobwork.InwardItem{item}, "storekeeper")
		require.Error(t, err)
	}

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())
}

func TestSubmitInward_UnknownChallanIsNotFound(t *testing.T) {
	jw := newTestJobWork(t)

	_, err := jw.SubmitInward(context.Background(), jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: "JWO-404404",
		Date:      day0,
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("10")},
	}, "storekeeper")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSubmitInward_FullReceiptCompletesChallan(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	_, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0.AddDate(0, 0, 4),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("100")},
	}, "storekeeper")
	require.NoError(t, err)

	got, err := jw.GetOutward(ctx, out.ChallanNo)
	require.NoError(t, err)
	assert.Equal(t, jobwork.OutwardCompleted, got.Status)
}

// rowAppendFailer fails AppendRows on demand to drive the error path.
type rowAppendFailer struct {
	*memory.Store
	fail bool
}

func (s *rowAppendFailer) AppendRows(ctx context.Context, rows []jobwork.LedgerRow) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.AppendRows(ctx, rows)
}

func TestSubmitInward_RowAppendFailureLeavesNoMovement(t *testing.T) {
	// GIVEN: The row log rejects the receipt's batch
	// THEN: The balance is untouched and the saved document is parked
	//       Reversed, so it can never be reversed into phantom stock

	store := &rowAppendFailer{Store: memory.New()}
	jw := jobwork.New(store, store)
	ctx := context.Background()

	out, err := jw.CreateOutward(ctx, jobwork.OutwardHeader{
		Vendor: "V1",
		Date:   day0,
	}, []jobwork.OutwardItem{
		{Material: "Cotton", QtySent: qty("100"), Rate: qty("10")},
	}, "dispatcher")
	require.NoError(t, err)

	store.fail = true
	_, err = jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0,
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("90")},
	}, "storekeeper")
	require.Error(t, err)
	store.fail = false

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	inwards, err := jw.ListInwards(ctx)
	require.NoError(t, err)
	require.Len(t, inwards, 1)
	assert.Equal(t, jobwork.InwardReversed, inwards[0].Status)
	_, err = jw.ReverseInward(ctx, inwards[0].InwardNo, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

// =============================================================================
// FIFO OUTSTANDING QUEUE
// =============================================================================

func TestOutstanding_ConsumesOldestChallanFirst(t *testing.T) {
	// GIVEN: Two open challans for (V1, Cotton): 100 then 40
	// WHEN: 110 comes back
	// THEN: The older challan is fully consumed, the newer keeps 30

	jw := newTestJobWork(t)
	ctx := context.Background()

	first := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))
	second := sendCotton(t, jw, "V1", "40", day0.AddDate(0, 0, 8))

	_, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: first.ChallanNo,
		Date:      day0.AddDate(0, 0, 2),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("110")},
	}, "storekeeper")
	require.NoError(t, err)

	queue, err := jw.Outstanding(ctx, "V1", "Cotton")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ChallanNo, queue[0].ChallanNo)
	assert.True(t, queue[0].Remaining.IsZero())
	assert.Equal(t, second.ChallanNo, queue[1].ChallanNo)
	assert.Equal(t, "30", queue[1].Remaining.String())
}

// =============================================================================
// SHORTAGE SETTLEMENT
// =============================================================================

func TestSettleShortage_RecordsFinancialRowOnly(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	_, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0.AddDate(0, 0, 3),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("95")},
	}, "storekeeper")
	require.NoError(t, err)

	row, err := jw.SettleShortage(ctx, "V1", out.ChallanNo, "Cotton",
		qty("5"), jobwork.SettleDebitVendor, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, jobwork.RowShortageSettlement, row.RefType)
	assert.Equal(t, "5", row.DamageQty.String())
	assert.True(t, row.BalanceWithVendor.IsZero())
	assert.Equal(t, jobwork.SettleDebitVendor, row.SettlementType)

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestSettleShortage_UnknownChallanOrMaterialIsNotFound(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	_, err := jw.SettleShortage(ctx, "V1", "JWO-404404", "Cotton",
		qty("5"), jobwork.SettleAcceptLoss, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = jw.SettleShortage(ctx, "V1", out.ChallanNo, "Silk",
		qty("5"), jobwork.SettleAcceptLoss, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// INWARD REVERSAL
// =============================================================================

func TestReverseInward_RestoresBalanceWithOffsettingRows(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	out := sendCotton(t, jw, "V1", "100", day0.AddDate(0, 0, 5))

	in, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0.AddDate(0, 0, 3),
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("90"), DamageQty: qty("5")},
	}, "storekeeper")
	require.NoError(t, err)

	reversed, err := jw.ReverseInward(ctx, in.InwardNo, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, jobwork.InwardReversed, reversed.Status)

	rows, err := jw.Rows(ctx, "V1", "Cotton")
	require.NoError(t, err)
	last := rows[len(rows)-1]
	assert.Equal(t, jobwork.RowInwardReversal, last.RefType)
	assert.Equal(t, "-90", last.QtyReceived.String())
	assert.Equal(t, "-5", last.DamageQty.String())

	balance, err := jw.VendorBalance(ctx, "V1", "Cotton")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	// The earlier rows were never mutated.
	assert.Equal(t, "100", rows[0].BalanceWithVendor.String())
	assert.Equal(t, "5", rows[1].BalanceWithVendor.String())
}

func TestReverseInward_UnknownIsNotFound_DoubleIsRejected(t *testing.T) {
	jw := newTestJobWork(t)
	ctx := context.Background()

	_, err := jw.ReverseInward(ctx, "JWI-404404", "supervisor")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	out := sendCotton(t, jw, "V1", "10", day0.AddDate(0, 0, 5))
	in, err := jw.SubmitInward(ctx, jobwork.InwardHeader{
		Vendor:    "V1",
		ChallanNo: out.ChallanNo,
		Date:      day0,
	}, []jobwork.InwardItem{
		{Material: "Cotton", ReceivedQty: qty("10")},
	}, "storekeeper")
	require.NoError(t, err)

	_, err = jw.ReverseInward(ctx, in.InwardNo, "supervisor")
	require.NoError(t, err)
	_, err = jw.ReverseInward(ctx, in.InwardNo, "supervisor")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

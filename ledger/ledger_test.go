package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texfab/stock-engine/ledger"
	"github.com/texfab/stock-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) *ledger.LedgerStore {
	t.Helper()
	store := memory.New()
	return ledger.New(store, store)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func draft(item, warehouse, in, out string) ledger.EntryDraft {
	return ledger.EntryDraft{
		Key:     ledger.StockKey{Item: item, LotShade: "L1", Warehouse: warehouse},
		RefType: ledger.RefGRN,
		InQty:   qty(in),
		OutQty:  qty(out),
		UOM:     "kg",
		Actor:   "tester",
	}
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestRecordEntry_BalanceEqualsSumOfDeltas(t *testing.T) {
	// GIVEN: A sequence of in/out movements on one stock key
	// THEN: The balance always equals sum(inQty - outQty), at every point

	ls := newTestLedger(t)
	ctx := context.Background()
	key := ledger.StockKey{Item: "Cotton", LotShade: "L1", Warehouse: "WH1"}

	steps := []struct {
		in, out, want string
	}{
		{"100", "0", "100"},
		{"0", "30", "70"},
		{"50", "0", "120"},
		{"0", "120", "0"},
		{"0", "10", "-10"}, // negative balances are representable
	}

	for _, step := range steps {
		entry, err := ls.RecordEntry(ctx, draft("Cotton", "WH1", step.in, step.out))
		require.NoError(t, err)
		assert.Equal(t, step.want, entry.BalanceAfter.String())

		snap, err := ls.Balance(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, step.want, snap.Balance.String())
	}

	// The balance snapshot on each stored entry replays from the log.
	entries, err := ls.List(ctx, ledger.Filter{Item: "Cotton"})
	require.NoError(t, err)
	require.Len(t, entries, len(steps))

	running := decimal.Zero
	for i := len(entries) - 1; i >= 0; i-- { // newest first -> replay oldest first
		running = running.Add(entries[i].InQty).Sub(entries[i].OutQty)
		assert.Equal(t, running.String(), entries[i].BalanceAfter.String())
	}
}

func TestBalance_UnseenKeyIsZero(t *testing.T) {
	ls := newTestLedger(t)

	snap, err := ls.Balance(context.Background(),
		ledger.StockKey{Item: "Never", LotShade: "X", Warehouse: "WH9"})
	require.NoError(t, err)
	assert.True(t, snap.Balance.IsZero())
}

func TestRecordEntry_KeysAreIndependent(t *testing.T) {
	// Two lots of the same item in the same warehouse are separate balances.
	ls := newTestLedger(t)
	ctx := context.Background()

	d1 := draft("Cotton", "WH1", "10", "0")
	d2 := draft("Cotton", "WH1", "25", "0")
	d2.Key.LotShade = "L2"

	_, err := ls.RecordEntry(ctx, d1)
	require.NoError(t, err)
	_, err = ls.RecordEntry(ctx, d2)
	require.NoError(t, err)

	s1, err := ls.Balance(ctx, d1.Key)
	require.NoError(t, err)
	s2, err := ls.Balance(ctx, d2.Key)
	require.NoError(t, err)
	assert.Equal(t, "10", s1.Balance.String())
	assert.Equal(t, "25", s2.Balance.String())
}

func TestRecordEntry_RejectsNegativeQuantities(t *testing.T) {
	ls := newTestLedger(t)

	d := draft("Cotton", "WH1", "10", "0")
	d.InQty = qty("-5")
	_, err := ls.RecordEntry(context.Background(), d)
	assert.Error(t, err)
}

// =============================================================================
// CONCURRENCY - Per-key serialization
// =============================================================================

func TestRecordEntry_ConcurrentPostingsNeverLoseUpdates(t *testing.T) {
	// GIVEN: Many concurrent postings of +1 against one key
	// THEN: No posting observes a stale prior balance; the final balance
	//       is exactly the number of postings.

	ls := newTestLedger(t)
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ls.RecordEntry(ctx, draft("Yarn", "WH1", "1", "0"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := ls.Balance(ctx, ledger.StockKey{Item: "Yarn", LotShade: "L1", Warehouse: "WH1"})
	require.NoError(t, err)
	assert.Equal(t, "50", snap.Balance.String())
}

// =============================================================================
// LISTING
// =============================================================================

func TestList_NewestFirstAndFiltered(t *testing.T) {
	ls := newTestLedger(t)
	ctx := context.Background()

	_, err := ls.RecordEntry(ctx, draft("Cotton", "WH1", "10", "0"))
	require.NoError(t, err)
	_, err = ls.RecordEntry(ctx, draft("Silk", "WH1", "20", "0"))
	require.NoError(t, err)
	_, err = ls.RecordEntry(ctx, draft("Cotton", "WH2", "30", "0"))
	require.NoError(t, err)

	all, err := ls.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "WH2", all[0].Key.Warehouse) // most recent first

	cotton, err := ls.List(ctx, ledger.Filter{Item: "Cotton"})
	require.NoError(t, err)
	assert.Len(t, cotton, 2)

	limited, err := ls.List(ctx, ledger.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFormatRef_ZeroPaddedAndNamespaced(t *testing.T) {
	assert.Equal(t, "JWO-000007", ledger.FormatRef(ledger.NSOutward, 7))
	assert.Equal(t, "ADJ-000123", ledger.FormatRef(ledger.NSAdjustment, 123))
}

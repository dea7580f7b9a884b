/*
ledger.go - Entry recording and balance derivation

PURPOSE:
  LedgerStore is the single writer to the stock ledger. It serializes
  balance recomputation per stock key so two concurrent postings can never
  both read the same stale prior balance, assigns ids and timestamps, and
  hands the finished entry to the Store as one atomic write.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No update, no delete. EVER.
  2. BALANCE: balance(key) == sum(inQty - outQty) over the key's entries,
     at every point in time.
  3. PER-KEY SERIALIZATION: Writes to the same key never interleave.

CORRECTIONS:
  A wrong entry is never edited. Record a new entry with in/out swapped
  (see adjustment.Workflow.Reverse); both remain in the log and the balance
  nets out.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// LEDGER STORE - Single logical writer over a Store
// =============================================================================

// LedgerStore records stock movements and exposes derived balances.
// Construct one per process (or per test) with New; there is no package
// level state.
type LedgerStore struct {
	store Store
	seq   Sequencer

	// now is injectable for tests.
	now func() time.Time

	// keyLocks serializes RecordEntry per stock key.
	mu       sync.Mutex
	keyLocks map[StockKey]*sync.Mutex
}

func New(store Store, seq Sequencer) *LedgerStore {
	return &LedgerStore{
		store:    store,
		seq:      seq,
		now:      time.Now,
		keyLocks: make(map[StockKey]*sync.Mutex),
	}
}

// WithClock overrides the timestamp source. Tests only.
func (l *LedgerStore) WithClock(now func() time.Time) *LedgerStore {
	l.now = now
	return l
}

func (l *LedgerStore) lockKey(key StockKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		l.keyLocks[key] = m
	}
	return m
}

// RecordEntry assigns an id and timestamp, computes the new balance for the
// draft's key and persists entry + balance as one atomic unit. It is the
// only way stock moves.
func (l *LedgerStore) RecordEntry(ctx context.Context, draft EntryDraft) (Entry, error) {
	if draft.Key.Item == "" || draft.Key.Warehouse == "" {
		return Entry{}, fmt.Errorf("record entry: item and warehouse are required")
	}
	if draft.InQty.IsNegative() || draft.OutQty.IsNegative() {
		return Entry{}, fmt.Errorf("record entry: in/out quantities must be non-negative")
	}

	// Serialize per key: the read of the prior balance and the write of the
	// new one must not interleave with another posting for the same key.
	km := l.lockKey(draft.Key)
	km.Lock()
	defer km.Unlock()

	prior, err := l.store.Balance(ctx, draft.Key)
	if err != nil {
		return Entry{}, fmt.Errorf("record entry: load balance: %w", err)
	}

	id, err := NextRef(ctx, l.seq, NSEntry)
	if err != nil {
		return Entry{}, fmt.Errorf("record entry: allocate id: %w", err)
	}

	entry := Entry{
		ID:           id,
		Timestamp:    l.now().UTC(),
		Key:          draft.Key,
		RefType:      draft.RefType,
		RefNo:        draft.RefNo,
		InQty:        draft.InQty,
		OutQty:       draft.OutQty,
		BalanceAfter: prior.Balance.Add(draft.Delta()),
		UOM:          draft.UOM,
		Actor:        draft.Actor,
	}

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("record entry: append: %w", err)
	}
	return entry, nil
}

// Balance returns the current balance for (item, lot/shade, warehouse).
// Unseen keys have balance zero.
func (l *LedgerStore) Balance(ctx context.Context, key StockKey) (BalanceSnapshot, error) {
	return l.store.Balance(ctx, key)
}

// Balances returns every tracked balance snapshot.
func (l *LedgerStore) Balances(ctx context.Context) ([]BalanceSnapshot, error) {
	return l.store.Balances(ctx)
}

// List returns matching entries, newest first. The log is re-queried on
// every call.
func (l *LedgerStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	return l.store.Entries(ctx, f)
}

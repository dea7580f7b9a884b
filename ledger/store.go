/*
store.go - Persistence interface for the stock ledger

PURPOSE:
  Defines the interface between the ledger engine and the database. The
  Store enforces append-only semantics for entries; the balance table is a
  derived projection updated only as part of entry insertion.

APPEND-ONLY CONTRACT:
  - AppendEntry(): The ONLY write. Inserts the entry and upserts the
    balance for its key in one atomic unit.
  - NO update or delete methods exist. Corrections are new entries.

SEQUENCES:
  Business identifiers (LED-000001, ADJ-000001, JWO-000007, ...) come from
  per-namespace counters owned by the store. Counters are monotonic and
  never reuse a value, even across process restarts for persistent stores.

IMPLEMENTATIONS:
  - store/memory:  In-memory, for tests and development
  - store/sqlite:  SQLite with WAL, for production

SEE ALSO:
  - ledger.go: Higher-level service using Store
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// STORE - Append-only entry persistence
// =============================================================================

// Store handles persistence of ledger entries and derived balances.
// IMPORTANT: Store is APPEND-ONLY for entries. No update, no delete. Ever.
type Store interface {
	// AppendEntry persists the entry and updates the balance for its key
	// to entry.BalanceAfter. Both effects are one atomic unit.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns matching entries, newest first. Each call re-queries
	// the log; the result is a point-in-time snapshot.
	Entries(ctx context.Context, f Filter) ([]Entry, error)

	// Balance returns the current balance for the key, zero if unseen.
	Balance(ctx context.Context, key StockKey) (BalanceSnapshot, error)

	// Balances returns every known balance snapshot.
	Balances(ctx context.Context) ([]BalanceSnapshot, error)
}

// Sequencer allocates monotonic per-namespace counters for business ids.
type Sequencer interface {
	// NextSeq returns the next value for the namespace, starting at 1.
	NextSeq(ctx context.Context, namespace string) (int64, error)
}

// =============================================================================
// REFERENCE FORMATTING
// =============================================================================

// Namespaces for generated business identifiers.
const (
	NSEntry      = "LED"
	NSAdjustment = "ADJ"
	NSOutward    = "JWO"
	NSInward     = "JWI"
	NSBill       = "BILL"
)

// FormatRef renders a namespaced sequential id, e.g. FormatRef("JWO", 7)
// returns "JWO-000007". Ids are unique within their namespace.
func FormatRef(namespace string, n int64) string {
	return fmt.Sprintf("%s-%06d", namespace, n)
}

// NextRef allocates and formats the next id in a namespace.
func NextRef(ctx context.Context, seq Sequencer, namespace string) (string, error) {
	n, err := seq.NextSeq(ctx, namespace)
	if err != nil {
		return "", err
	}
	return FormatRef(namespace, n), nil
}

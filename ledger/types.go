/*
Package ledger provides the authoritative stock ledger.

PURPOSE:
  This package maintains running stock balances per (item, lot/shade,
  warehouse), derived from an append-only log of movement entries. Every
  goods receipt, issue, transfer, job-work dispatch and manual adjustment
  becomes one immutable Entry; the balance is never stored independently of
  entry insertion.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockKey: The (item, lot/shade, warehouse) triple balances are keyed by
  - Entry: An immutable ledger row recording one stock movement
  - EntryDraft: What callers submit; the engine assigns id/timestamp/balance
  - BalanceSnapshot: Derived balance for one stock key

DESIGN PRINCIPLES:
  1. Immutability: Entries are never edited or deleted, only offset
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Derivability: balance == sum(inQty - outQty) over the key's entries
  4. Auditability: Every entry carries refType, refNo and actor

SEE ALSO:
  - ledger.go: Balance computation and entry recording
  - store.go: Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STOCK KEY - What balances are tracked against
// =============================================================================

// StockKey identifies one balance bucket. Two lots of the same item in the
// same warehouse are independent balances.
type StockKey struct {
	Item      string
	LotShade  string
	Warehouse string
}

// =============================================================================
// REFERENCE TYPES - What kind of movement an entry records
// =============================================================================

type RefType string

const (
	RefOpening    RefType = "opening"
	RefGRN        RefType = "grn"
	RefIssue      RefType = "issue"
	RefAdjustment RefType = "adjustment"
	RefTransfer   RefType = "transfer"
	RefJobWorkOut RefType = "jobwork_out"
	RefJobWorkIn  RefType = "jobwork_in"
)

// =============================================================================
// ENTRY - Immutable stock movement record
// =============================================================================

// Entry is one row of the stock ledger. Once recorded it is never edited or
// deleted; corrections are expressed as new offsetting entries.
type Entry struct {
	ID        string
	Timestamp time.Time
	Key       StockKey
	RefType   RefType
	RefNo     string
	InQty     decimal.Decimal
	OutQty    decimal.Decimal

	// BalanceAfter is the balance of Key immediately after this entry was
	// applied. It is a snapshot, not a source of truth: re-deriving from
	// the log always reproduces it.
	BalanceAfter decimal.Decimal

	UOM   string
	Actor string
}

// EntryDraft is what callers submit to RecordEntry. ID, Timestamp and
// BalanceAfter are assigned by the engine.
type EntryDraft struct {
	Key     StockKey
	RefType RefType
	RefNo   string
	InQty   decimal.Decimal
	OutQty  decimal.Decimal
	UOM     string
	Actor   string
}

// Delta is the signed effect of the draft on its key's balance.
func (d EntryDraft) Delta() decimal.Decimal {
	return d.InQty.Sub(d.OutQty)
}

// =============================================================================
// BALANCE SNAPSHOT
// =============================================================================

type BalanceSnapshot struct {
	Key     StockKey
	Balance decimal.Decimal
	UOM     string
}

// =============================================================================
// FILTER - Ledger listing criteria
// =============================================================================

// Filter narrows a ledger listing. Zero values match everything.
type Filter struct {
	Item      string
	LotShade  string
	Warehouse string
	RefType   RefType
	RefNo     string
	Limit     int
}

// Matches reports whether the entry satisfies every set criterion.
func (f Filter) Matches(e Entry) bool {
	if f.Item != "" && e.Key.Item != f.Item {
		return false
	}
	if f.LotShade != "" && e.Key.LotShade != f.LotShade {
		return false
	}
	if f.Warehouse != "" && e.Key.Warehouse != f.Warehouse {
		return false
	}
	if f.RefType != "" && e.RefType != f.RefType {
		return false
	}
	if f.RefNo != "" && e.RefNo != f.RefNo {
		return false
	}
	return true
}

/*
Package jobwork tracks the vendor consignment lifecycle.

PURPOSE:
  Material sent to a vendor for processing (dyeing, weaving, finishing)
  stays on our books until it comes back. This package tracks that
  liability through an append-only row log, independent of the stock
  ledger but following the same discipline:

      Outward challan -> Inward receipt -> Settlement

  The balance with a vendor for a material is always derived by scanning
  rows for the (vendor, material) pair; no row is ever edited.

ROW FOLD:
  Every row kind reduces to one formula over the running balance b:

      b = max(b + qtySent - qtyReceived - damageQty, 0)

  Outward rows carry only qtySent. Inward rows carry received and damage.
  Settlement rows carry damage = settled qty. Reversal rows carry the
  negated quantities of the inward they undo, restoring the balance.
  The clamp at zero makes receipts with no outstanding outward a valid
  state (balance 0), not an error.

SEE ALSO:
  - ledger.go: Operations and FIFO reconciliation
  - reports.go: SLA and aging
*/
package jobwork

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTWARD - Dispatch challan
// =============================================================================

type OutwardStatus string

const (
	OutwardDraft     OutwardStatus = "draft"
	OutwardSent      OutwardStatus = "sent"
	OutwardCompleted OutwardStatus = "completed"
)

type OutwardItem struct {
	Material string
	LotShade string
	QtySent  decimal.Decimal

	// ApprovedQty is the quantity accepted for billing after QC. Zero means
	// bill the full dispatched quantity.
	ApprovedQty decimal.Decimal

	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Outward is a dispatch challan. ChallanNo is the sequential business
// number (JWO-000001); ID is the document primary key.
type Outward struct {
	ID             string
	ChallanNo      string
	Vendor         string
	ProcessType    string
	Date           time.Time
	ExpectedReturn time.Time
	Items          []OutwardItem
	Status         OutwardStatus
	CreatedBy      string
}

func (o *Outward) Clone() *Outward {
	cp := *o
	cp.Items = append([]OutwardItem(nil), o.Items...)
	return &cp
}

// OutwardHeader is the submitter-provided part of a challan.
type OutwardHeader struct {
	Vendor         string
	ProcessType    string
	Date           time.Time
	ExpectedReturn time.Time
}

// =============================================================================
// INWARD - Receipt against a challan
// =============================================================================

type InwardStatus string

const (
	InwardDraft     InwardStatus = "draft"
	InwardSubmitted InwardStatus = "submitted"
	InwardCompleted InwardStatus = "completed"
	InwardReversed  InwardStatus = "reversed"
)

type InwardItem struct {
	Material    string
	ReceivedQty decimal.Decimal
	DamageQty   decimal.Decimal
}

type Inward struct {
	ID          string
	InwardNo    string
	Vendor      string
	ChallanNo   string
	ProcessType string
	Date        time.Time
	Items       []InwardItem
	Status      InwardStatus
	CreatedBy   string
}

func (i *Inward) Clone() *Inward {
	cp := *i
	cp.Items = append([]InwardItem(nil), i.Items...)
	return &cp
}

// InwardHeader is the submitter-provided part of a receipt.
type InwardHeader struct {
	Vendor      string
	ChallanNo   string
	ProcessType string
	Date        time.Time
}

// =============================================================================
// LEDGER ROW - One consignment movement
// =============================================================================

// RowType tags what a row records. Each constructor in ledger.go populates
// exactly the fields its kind requires.
type RowType string

const (
	RowOutward            RowType = "outward"
	RowInward             RowType = "inward"
	RowShortageSettlement RowType = "shortage_settlement"
	RowInwardReversal     RowType = "inward_reversal"
)

// SettlementType says how a shortage was resolved financially.
type SettlementType string

const (
	SettleDebitVendor SettlementType = "debit_vendor"
	SettleAcceptLoss  SettlementType = "accept_loss"
	SettleRecoverNext SettlementType = "recover_next"
)

// LedgerRow is one append-only consignment movement for (vendor, material).
// BalanceWithVendor snapshots the derived balance immediately after the row;
// re-folding the log always reproduces it.
type LedgerRow struct {
	Vendor   string
	Material string
	RefType  RowType
	RefNo    string

	QtySent     decimal.Decimal
	QtyReceived decimal.Decimal
	DamageQty   decimal.Decimal

	BalanceWithVendor decimal.Decimal

	// SettlementType is set only on shortage_settlement rows.
	SettlementType SettlementType

	At    time.Time
	Actor string
}

// Apply folds the row into a running balance.
func (r LedgerRow) Apply(balance decimal.Decimal) decimal.Decimal {
	b := balance.Add(r.QtySent).Sub(r.QtyReceived).Sub(r.DamageQty)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// =============================================================================
// OUTSTANDING - FIFO view of open liabilities
// =============================================================================

// ChallanOutstanding is one open liability in FIFO order.
type ChallanOutstanding struct {
	ChallanNo string
	Sent      decimal.Decimal
	Remaining decimal.Decimal
}

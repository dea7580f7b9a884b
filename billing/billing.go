/*
Package billing groups outward challans into vendor bills.

PURPOSE:
  A vendor bill is built from one or more of the vendor's outward challans.
  Per line, the rate resolves from the caller-supplied rate map first, then
  from the challan line itself. An unresolvable rate fails the whole bill
  with a MissingRate error - a silently zeroed invoice line is worse than a
  rejected bill.

QUANTITY:
  The billed quantity is the QC-approved quantity when set, otherwise the
  full dispatched quantity.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
)

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	BillDraft BillStatus = "draft"
	BillFinal BillStatus = "final"
)

type BillItem struct {
	Material      string
	Qty           decimal.Decimal
	Rate          decimal.Decimal
	Amount        decimal.Decimal
	SourceChallan string
}

type Bill struct {
	ID        string
	BillNo    string
	Vendor    string
	Items     []BillItem
	Total     decimal.Decimal
	Status    BillStatus
	CreatedAt time.Time
	CreatedBy string
}

func (b *Bill) Clone() *Bill {
	cp := *b
	cp.Items = append([]BillItem(nil), b.Items...)
	return &cp
}

// =============================================================================
// ERRORS
// =============================================================================

// MissingRateError reports a challan line whose rate could not be resolved.
// Unwraps to ledger.ErrMissingRate.
type MissingRateError struct {
	Material string
	Challan  string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no rate for %q on challan %s", e.Material, e.Challan)
}

func (e *MissingRateError) Unwrap() error { return ledger.ErrMissingRate }

// =============================================================================
// AGGREGATOR
// =============================================================================

// Store persists generated bills.
type Store interface {
	SaveBill(ctx context.Context, b *Bill) error
	ListBills(ctx context.Context) ([]*Bill, error)
}

// Aggregator builds vendor bills from outward challans.
type Aggregator struct {
	jobwork *jobwork.Ledger
	store   Store
	seq     ledger.Sequencer
	now     func() time.Time
}

func NewAggregator(jw *jobwork.Ledger, store Store, seq ledger.Sequencer) *Aggregator {
	return &Aggregator{jobwork: jw, store: store, seq: seq, now: time.Now}
}

// WithClock overrides the timestamp source. Tests only.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// CreateBill builds a Draft bill for the vendor from the given challans.
// Rates resolve from rateMap by material, then from the challan line. Fails
// NotFound for an unknown or foreign-vendor challan and MissingRate when a
// line has no resolvable rate; no bill is persisted on failure.
func (a *Aggregator) CreateBill(ctx context.Context, vendor string, challanNos []string, rateMap map[string]decimal.Decimal, actor string) (*Bill, error) {
	if len(challanNos) == 0 {
		return nil, fmt.Errorf("create bill: at least one challan is required")
	}

	var items []BillItem
	total := decimal.Zero
	for _, challanNo := range challanNos {
		out, err := a.jobwork.GetOutward(ctx, challanNo)
		if err != nil {
			return nil, err
		}
		if out.Vendor != vendor {
			return nil, &ledger.NotFoundError{Kind: "challan", Ref: challanNo}
		}

		for _, it := range out.Items {
			rate, ok := rateMap[it.Material]
			if !ok {
				rate = it.Rate
			}
			if rate.IsZero() {
				return nil, &MissingRateError{Material: it.Material, Challan: challanNo}
			}

			qty := it.QtySent
			if it.ApprovedQty.IsPositive() {
				qty = it.ApprovedQty
			}

			amount := qty.Mul(rate)
			total = total.Add(amount)
			items = append(items, BillItem{
				Material:      it.Material,
				Qty:           qty,
				Rate:          rate,
				Amount:        amount,
				SourceChallan: challanNo,
			})
		}
	}

	billNo, err := ledger.NextRef(ctx, a.seq, ledger.NSBill)
	if err != nil {
		return nil, fmt.Errorf("create bill: allocate billNo: %w", err)
	}

	bill := &Bill{
		ID:        uuid.NewString(),
		BillNo:    billNo,
		Vendor:    vendor,
		Items:     items,
		Total:     total,
		Status:    BillDraft,
		CreatedAt: a.now().UTC(),
		CreatedBy: actor,
	}
	if err := a.store.SaveBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("create bill: save: %w", err)
	}
	return bill, nil
}

// ListBills returns all bills, newest first.
func (a *Aggregator) ListBills(ctx context.Context) ([]*Bill, error) {
	return a.store.ListBills(ctx)
}

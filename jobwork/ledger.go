/*
ledger.go - Consignment operations and FIFO reconciliation

PURPOSE:
  The Ledger service owns the job-work document chain and its row log:
  1. CreateOutward:  allocate challanNo, emit Outward rows
  2. SubmitInward:   allocate inwardNo, reconcile against pending balance
  3. SettleShortage: record the financial resolution of a shortage
  4. ReverseInward:  negate a receipt with offsetting rows

RECONCILIATION:
  Outstanding liabilities per (vendor, material) form a deterministic FIFO
  queue in row-insertion order. Receipts and settlements consume from the
  oldest open challan first; reversals restore quantity to the challan the
  reversed inward was filed against. Source rows are never mutated - the
  queue is replayed from the log on every query.

ATOMICITY:
  Guards run before any write. Row batches go through AppendRows, which is
  atomic in both store implementations, so a failed operation never leaves a
  half-written batch. If the row append of a receipt fails after its document
  was saved, the inward is parked Reversed: it records no movement and can
  never be reversed into one.
*/
package jobwork

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/texfab/stock-engine/ledger"
)

// =============================================================================
// STORE - Document and row persistence
// =============================================================================

// Store persists job-work documents and the append-only row log.
// Implementations must return copies; the row log has no update or delete.
type Store interface {
	SaveOutward(ctx context.Context, o *Outward) error
	GetOutwardByChallan(ctx context.Context, challanNo string) (*Outward, error)
	ListOutwards(ctx context.Context) ([]*Outward, error)

	SaveInward(ctx context.Context, i *Inward) error
	GetInwardByNo(ctx context.Context, inwardNo string) (*Inward, error)
	ListInwards(ctx context.Context) ([]*Inward, error)

	// AppendRows appends the batch atomically, preserving order.
	AppendRows(ctx context.Context, rows []LedgerRow) error

	// Rows returns rows in insertion order (oldest first). Empty vendor or
	// material matches everything.
	Rows(ctx context.Context, vendor, material string) ([]LedgerRow, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// StateError reports an operation on a document in the wrong state, e.g.
// reversing an already-reversed inward.
type StateError struct {
	Kind string
	Ref  string
	From string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: invalid operation in state %s", e.Kind, e.Ref, e.From)
}

func (e *StateError) Unwrap() error { return ledger.ErrInvalidStateTransition }

// =============================================================================
// LEDGER - Consignment service
// =============================================================================

type Ledger struct {
	store Store
	seq   ledger.Sequencer

	now func() time.Time

	// mu serializes sequence allocation + row append so balances derived
	// mid-operation never observe a half-written batch.
	mu sync.Mutex
}

func New(store Store, seq ledger.Sequencer) *Ledger {
	return &Ledger{store: store, seq: seq, now: time.Now}
}

// WithClock overrides the timestamp source. Tests only.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// =============================================================================
// OUTWARD
// =============================================================================

// CreateOutward allocates a sequential challan number, marks the challan
// Sent and emits one Outward row per item, establishing the vendor's
// liability for each material.
func (l *Ledger) CreateOutward(ctx context.Context, h OutwardHeader, items []OutwardItem, actor string) (*Outward, error) {
	if h.Vendor == "" {
		return nil, fmt.Errorf("create outward: vendor is required")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("create outward: at least one item is required")
	}
	for _, it := range items {
		if it.QtySent.IsNegative() {
			return nil, fmt.Errorf("create outward: qtySent for %s must be non-negative", it.Material)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	challanNo, err := ledger.NextRef(ctx, l.seq, ledger.NSOutward)
	if err != nil {
		return nil, fmt.Errorf("create outward: allocate challanNo: %w", err)
	}

	date := h.Date
	if date.IsZero() {
		date = l.now().UTC()
	}

	out := &Outward{
		ID:             uuid.NewString(),
		ChallanNo:      challanNo,
		Vendor:         h.Vendor,
		ProcessType:    h.ProcessType,
		Date:           date,
		ExpectedReturn: h.ExpectedReturn,
		Status:         OutwardSent,
		CreatedBy:      actor,
	}

	rows := make([]LedgerRow, 0, len(items))
	balances := map[string]decimal.Decimal{}
	for _, it := range items {
		it.Amount = it.QtySent.Mul(it.Rate)
		out.Items = append(out.Items, it)

		balance, ok := balances[it.Material]
		if !ok {
			balance, err = l.balanceLocked(ctx, h.Vendor, it.Material)
			if err != nil {
				return nil, err
			}
		}
		row := LedgerRow{
			Vendor:   h.Vendor,
			Material: it.Material,
			RefType:  RowOutward,
			RefNo:    challanNo,
			QtySent:  it.QtySent,
			At:       l.now().UTC(),
			Actor:    actor,
		}
		row.BalanceWithVendor = row.Apply(balance)
		balances[it.Material] = row.BalanceWithVendor
		rows = append(rows, row)
	}

	if err := l.store.SaveOutward(ctx, out); err != nil {
		return nil, fmt.Errorf("create outward: save: %w", err)
	}
	if err := l.store.AppendRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("create outward: append rows: %w", err)
	}
	return out, nil
}

// =============================================================================
// INWARD
// =============================================================================

// SubmitInward allocates a sequential inward number and reconciles each
// received item against the pending balance for (vendor, material). A
// receipt with no outstanding outward is a valid state, not an error: the
// row records balance 0. Fails NotFound when the referenced challan is
// unknown.
func (l *Ledger) SubmitInward(ctx context.Context, h InwardHeader, items []InwardItem, actor string) (*Inward, error) {
	if h.Vendor == "" {
		return nil, fmt.Errorf("submit inward: vendor is required")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("submit inward: at least one item is required")
	}
	for _, it := range items {
		if it.ReceivedQty.IsNegative() || it.DamageQty.IsNegative() {
			return nil, fmt.Errorf("submit inward: quantities for %s must be non-negative", it.Material)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h.ChallanNo != "" {
		out, err := l.store.GetOutwardByChallan(ctx, h.ChallanNo)
		if err != nil {
			return nil, err
		}
		if out.Vendor != h.Vendor {
			return nil, &ledger.NotFoundError{Kind: "challan", Ref: h.ChallanNo}
		}
	}

	inwardNo, err := ledger.NextRef(ctx, l.seq, ledger.NSInward)
	if err != nil {
		return nil, fmt.Errorf("submit inward: allocate inwardNo: %w", err)
	}

	date := h.Date
	if date.IsZero() {
		date = l.now().UTC()
	}

	in := &Inward{
		ID:          uuid.NewString(),
		InwardNo:    inwardNo,
		Vendor:      h.Vendor,
		ChallanNo:   h.ChallanNo,
		ProcessType: h.ProcessType,
		Date:        date,
		Items:       append([]InwardItem(nil), items...),
		Status:      InwardSubmitted,
		CreatedBy:   actor,
	}

	rows := make([]LedgerRow, 0, len(items))
	balances := map[string]decimal.Decimal{}
	for _, it := range items {
		pending, ok := balances[it.Material]
		if !ok {
			pending, err = l.balanceLocked(ctx, h.Vendor, it.Material)
			if err != nil {
				return nil, err
			}
		}
		row := LedgerRow{
			Vendor:      h.Vendor,
			Material:    it.Material,
			RefType:     RowInward,
			RefNo:       inwardNo,
			QtyReceived: it.ReceivedQty,
			DamageQty:   it.DamageQty,
			At:          l.now().UTC(),
			Actor:       actor,
		}
		row.BalanceWithVendor = row.Apply(pending)
		balances[it.Material] = row.BalanceWithVendor
		rows = append(rows, row)
	}

	if err := l.store.SaveInward(ctx, in); err != nil {
		return nil, fmt.Errorf("submit inward: save: %w", err)
	}
	if err := l.store.AppendRows(ctx, rows); err != nil {
		// No rows were written, so the document must not stand as Submitted:
		// park it Reversed so it can never be reversed into phantom stock.
		in.Status = InwardReversed
		_ = l.store.SaveInward(ctx, in)
		return nil, fmt.Errorf("submit inward: append rows: %w", err)
	}

	if h.ChallanNo != "" {
		if err := l.completeIfReconciled(ctx, h.ChallanNo); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// completeIfReconciled flips a challan to Completed once the FIFO queue
// shows zero remaining for every material it dispatched.
func (l *Ledger) completeIfReconciled(ctx context.Context, challanNo string) error {
	out, err := l.store.GetOutwardByChallan(ctx, challanNo)
	if err != nil {
		return err
	}
	if out.Status == OutwardCompleted {
		return nil
	}
	for _, it := range out.Items {
		queue, err := l.outstandingLocked(ctx, out.Vendor, it.Material)
		if err != nil {
			return err
		}
		for _, open := range queue {
			if open.ChallanNo == challanNo && open.Remaining.IsPositive() {
				return nil
			}
		}
	}
	out.Status = OutwardCompleted
	return l.store.SaveOutward(ctx, out)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettleShortage records the financial resolution of a shortage on a
// challan. It is an accountability record only; physical stock is not
// adjusted. Fails NotFound when the challan is unknown or does not carry
// the material.
func (l *Ledger) SettleShortage(ctx context.Context, vendor, challanNo, material string, qty decimal.Decimal, st SettlementType, actor string) (LedgerRow, error) {
	if !qty.IsPositive() {
		return LedgerRow{}, fmt.Errorf("settle shortage: qty must be positive")
	}
	switch st {
	case SettleDebitVendor, SettleAcceptLoss, SettleRecoverNext:
	default:
		return LedgerRow{}, fmt.Errorf("settle shortage: unknown settlement type %q", st)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out, err := l.store.GetOutwardByChallan(ctx, challanNo)
	if err != nil {
		return LedgerRow{}, err
	}
	if out.Vendor != vendor {
		return LedgerRow{}, &ledger.NotFoundError{Kind: "challan", Ref: challanNo}
	}
	found := false
	for _, it := range out.Items {
		if it.Material == material {
			found = true
			break
		}
	}
	if !found {
		return LedgerRow{}, &ledger.NotFoundError{Kind: "challan item", Ref: challanNo + "/" + material}
	}

	balance, err := l.balanceLocked(ctx, vendor, material)
	if err != nil {
		return LedgerRow{}, err
	}
	row := LedgerRow{
		Vendor:         vendor,
		Material:       material,
		RefType:        RowShortageSettlement,
		RefNo:          challanNo,
		DamageQty:      qty,
		SettlementType: st,
		At:             l.now().UTC(),
		Actor:          actor,
	}
	row.BalanceWithVendor = row.Apply(balance)

	if err := l.store.AppendRows(ctx, []LedgerRow{row}); err != nil {
		return LedgerRow{}, fmt.Errorf("settle shortage: append row: %w", err)
	}
	return row, nil
}

// =============================================================================
// REVERSAL
// =============================================================================

// ReverseInward negates a receipt: one InwardReversal row per item with
// received/damage negated, restoring the vendor balance, and the inward
// moves to Reversed. Fails NotFound for an unknown inward number.
func (l *Ledger) ReverseInward(ctx context.Context, inwardNo, actor string) (*Inward, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	in, err := l.store.GetInwardByNo(ctx, inwardNo)
	if err != nil {
		return nil, err
	}
	if in.Status == InwardReversed {
		return nil, &StateError{Kind: "inward", Ref: inwardNo, From: string(in.Status)}
	}

	rows := make([]LedgerRow, 0, len(in.Items))
	balances := map[string]decimal.Decimal{}
	for _, it := range in.Items {
		balance, ok := balances[it.Material]
		if !ok {
			balance, err = l.balanceLocked(ctx, in.Vendor, it.Material)
			if err != nil {
				return nil, err
			}
		}
		row := LedgerRow{
			Vendor:      in.Vendor,
			Material:    it.Material,
			RefType:     RowInwardReversal,
			RefNo:       inwardNo,
			QtyReceived: it.ReceivedQty.Neg(),
			DamageQty:   it.DamageQty.Neg(),
			At:          l.now().UTC(),
			Actor:       actor,
		}
		row.BalanceWithVendor = row.Apply(balance)
		balances[it.Material] = row.BalanceWithVendor
		rows = append(rows, row)
	}

	in.Status = InwardReversed
	if err := l.store.SaveInward(ctx, in); err != nil {
		return nil, fmt.Errorf("reverse inward: save: %w", err)
	}
	if err := l.store.AppendRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("reverse inward: append rows: %w", err)
	}
	return in, nil
}

// =============================================================================
// BALANCES AND THE FIFO QUEUE
// =============================================================================

// VendorBalance returns the material quantity currently held by the vendor,
// derived by folding the row log.
func (l *Ledger) VendorBalance(ctx context.Context, vendor, material string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(ctx, vendor, material)
}

func (l *Ledger) balanceLocked(ctx context.Context, vendor, material string) (decimal.Decimal, error) {
	rows, err := l.store.Rows(ctx, vendor, material)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load rows for %s/%s: %w", vendor, material, err)
	}
	balance := decimal.Zero
	for _, r := range rows {
		balance = r.Apply(balance)
	}
	return balance, nil
}

// Outstanding returns the open liabilities for (vendor, material) as a FIFO
// queue in challan order. Receipts and settlements consume from the oldest
// open challan; reversals restore to the challan their inward was filed
// against. Fully consumed challans remain in the result with Remaining 0 so
// attribution is reproducible.
func (l *Ledger) Outstanding(ctx context.Context, vendor, material string) ([]ChallanOutstanding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstandingLocked(ctx, vendor, material)
}

func (l *Ledger) outstandingLocked(ctx context.Context, vendor, material string) ([]ChallanOutstanding, error) {
	rows, err := l.store.Rows(ctx, vendor, material)
	if err != nil {
		return nil, err
	}

	var queue []ChallanOutstanding
	index := map[string]int{}

	restore := func(challanNo string, amt decimal.Decimal) {
		if i, ok := index[challanNo]; ok {
			room := queue[i].Sent.Sub(queue[i].Remaining)
			queue[i].Remaining = queue[i].Remaining.Add(decimal.Min(amt, room))
		}
	}

	for _, r := range rows {
		switch r.RefType {
		case RowOutward:
			if i, ok := index[r.RefNo]; ok {
				queue[i].Sent = queue[i].Sent.Add(r.QtySent)
				queue[i].Remaining = queue[i].Remaining.Add(r.QtySent)
			} else {
				index[r.RefNo] = len(queue)
				queue = append(queue, ChallanOutstanding{
					ChallanNo: r.RefNo,
					Sent:      r.QtySent,
					Remaining: r.QtySent,
				})
			}

		case RowInward, RowShortageSettlement:
			amt := r.QtyReceived.Add(r.DamageQty)
			for i := range queue {
				if !amt.IsPositive() {
					break
				}
				take := decimal.Min(queue[i].Remaining, amt)
				queue[i].Remaining = queue[i].Remaining.Sub(take)
				amt = amt.Sub(take)
			}

		case RowInwardReversal:
			// Quantities are negated; restore them to the challan the
			// reversed inward was filed against, or the oldest challan
			// when the inward carried no challan reference.
			amt := r.QtyReceived.Add(r.DamageQty).Neg()
			if !amt.IsPositive() {
				continue
			}
			challanNo := ""
			if in, err := l.store.GetInwardByNo(ctx, r.RefNo); err == nil {
				challanNo = in.ChallanNo
			}
			if challanNo != "" {
				restore(challanNo, amt)
			} else if len(queue) > 0 {
				restore(queue[0].ChallanNo, amt)
			}
		}
	}
	return queue, nil
}

// =============================================================================
// READS
// =============================================================================

func (l *Ledger) GetOutward(ctx context.Context, challanNo string) (*Outward, error) {
	return l.store.GetOutwardByChallan(ctx, challanNo)
}

func (l *Ledger) GetInward(ctx context.Context, inwardNo string) (*Inward, error) {
	return l.store.GetInwardByNo(ctx, inwardNo)
}

func (l *Ledger) ListOutwards(ctx context.Context) ([]*Outward, error) {
	return l.store.ListOutwards(ctx)
}

func (l *Ledger) ListInwards(ctx context.Context) ([]*Inward, error) {
	return l.store.ListInwards(ctx)
}

// Rows returns the raw row log, oldest first.
func (l *Ledger) Rows(ctx context.Context, vendor, material string) ([]LedgerRow, error) {
	return l.store.Rows(ctx, vendor, material)
}

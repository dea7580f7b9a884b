/*
workflow.go - Adjustment approval state machine

PURPOSE:
  Orchestrates the full correction lifecycle:
  1. CreateDraft: Always succeeds, status=Draft
  2. Submit:      Draft -> Submitted
  3. Approve:     Submitted -> Approved (stamps approvedBy/At)
  4. PostAndLock: Approved -> Posted -> Locked, writes the stock ledger
  5. Reverse:     Approved|Posted -> Reversed (side entry point)

TRANSITION CONTRACT:
  - Every transition appends exactly one audit record (PostAndLock two).
  - A rejected transition performs no mutation: guards run on a copy and
    the store is only written on success.
  - No transition ever moves a document backward.

DUPLICATE-POSTING GUARD:
  For a given refNo at most one non-reversed adjustment may reach
  Posted/Locked. The check and the subsequent write happen under one mutex
  (check-and-set), so two concurrently approved adjustments for the same
  refNo cannot both pass.

SEE ALSO:
  - types.go: Document and status definitions
  - ledger/ledger.go: RecordEntry called on finalization
*/
package adjustment

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
// STORE - Adjustment persistence
// =============================================================================

// Store persists adjustment documents. Implementations must return copies:
// callers never share memory with stored state.
type Store interface {
	// SaveAdjustment inserts or replaces the document by id.
	SaveAdjustment(ctx context.Context, a *Adjustment) error

	// GetAdjustment returns the document or a NotFound error.
	GetAdjustment(ctx context.Context, id string) (*Adjustment, error)

	// FindAdjustmentsByRef returns every adjustment carrying refNo.
	FindAdjustmentsByRef(ctx context.Context, refNo string) ([]*Adjustment, error)

	// ListAdjustments returns all adjustments, newest first.
	ListAdjustments(ctx context.Context) ([]*Adjustment, error)
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Workflow drives adjustments through their lifecycle and posts finalized
// ones to the stock ledger.
type Workflow struct {
	store  Store
	seq    ledger.Sequencer
	ledger *ledger.LedgerStore

	now func() time.Time

	// mu makes the duplicate-posting check-and-set in PostAndLock atomic.
	mu sync.Mutex
}

func NewWorkflow(store Store, seq ledger.Sequencer, ls *ledger.LedgerStore) *Workflow {
	return &Workflow{store: store, seq: seq, ledger: ls, now: time.Now}
}

// WithClock overrides the timestamp source. Tests only.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

func (w *Workflow) audit(action, actor, note string) AuditRecord {
	return AuditRecord{
		ID:     uuid.NewString(),
		Action: action,
		Actor:  actor,
		At:     w.now().UTC(),
		Note:   note,
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// CreateDraft registers a new correction in Draft. It always succeeds for a
// well-formed payload.
func (w *Workflow) CreateDraft(ctx context.Context, p Payload, actor string) (*Adjustment, error) {
	if p.Item == "" || p.Warehouse == "" {
		return nil, fmt.Errorf("create draft: item and warehouse are required")
	}
	if p.Qty.IsZero() {
		return nil, fmt.Errorf("create draft: qty must be non-zero")
	}

	id, err := ledger.NextRef(ctx, w.seq, ledger.NSAdjustment)
	if err != nil {
		return nil, fmt.Errorf("create draft: allocate id: %w", err)
	}

	now := w.now().UTC()
	a := &Adjustment{
		ID:         id,
		Warehouse:  p.Warehouse,
		Item:       p.Item,
		LotShade:   p.LotShade,
		UOM:        p.UOM,
		Qty:        p.Qty,
		ReasonCode: p.ReasonCode,
		Remarks:    p.Remarks,
		RefNo:      p.RefNo,
		Status:     StatusDraft,
		Audit:      []AuditRecord{w.audit(AuditCreated, actor, p.Remarks)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.store.SaveAdjustment(ctx, a); err != nil {
		return nil, fmt.Errorf("create draft: save: %w", err)
	}
	return a, nil
}

// Submit moves Draft -> Submitted.
func (w *Workflow) Submit(ctx context.Context, id, actor string) (*Adjustment, error) {
	return w.transition(ctx, id, actor, StatusDraft, StatusSubmitted, AuditSubmitted, nil)
}

// Approve moves Submitted -> Approved and stamps the approver.
func (w *Workflow) Approve(ctx context.Context, id, actor string) (*Adjustment, error) {
	return w.transition(ctx, id, actor, StatusSubmitted, StatusApproved, AuditApproved,
		func(a *Adjustment) {
			at := w.now().UTC()
			a.ApprovedBy = actor
			a.ApprovedAt = &at
		})
}

// transition applies a single guarded forward step. The loaded document is
// a copy; nothing is stored unless every guard passes.
func (w *Workflow) transition(
	ctx context.Context,
	id, actor string,
	from, to Status,
	auditAction string,
	mutate func(*Adjustment),
) (*Adjustment, error) {
	a, err := w.store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, Requested: to}
	}

	a.Status = to
	a.UpdatedAt = w.now().UTC()
	if mutate != nil {
		mutate(a)
	}
	a.Audit = append(a.Audit, w.audit(auditAction, actor, ""))

	if err := w.store.SaveAdjustment(ctx, a); err != nil {
		return nil, fmt.Errorf("transition %s -> %s: save: %w", from, to, err)
	}
	return a, nil
}

// PostAndLock finalizes an Approved adjustment: writes the stock ledger
// entry, records the ledger reference, and locks the document. Locked is
// terminal; no further mutation is permitted.
func (w *Workflow) PostAndLock(ctx context.Context, id, actor string) (*Adjustment, error) {
	// The refNo guard and the write form one critical section.
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := w.store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusApproved {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, Requested: StatusPosted}
	}

	if a.RefNo != "" {
		siblings, err := w.store.FindAdjustmentsByRef(ctx, a.RefNo)
		if err != nil {
			return nil, fmt.Errorf("post: lookup refNo %q: %w", a.RefNo, err)
		}
		for _, s := range siblings {
			if s.ID == a.ID || s.Status == StatusReversed {
				continue
			}
			if s.Status == StatusPosted || s.Status == StatusLocked {
				return nil, &DuplicatePostingError{RefNo: a.RefNo, ExistingID: s.ID}
			}
		}
	}

	entry, err := w.ledger.RecordEntry(ctx, ledger.EntryDraft{
		Key:     ledger.StockKey{Item: a.Item, LotShade: a.LotShade, Warehouse: a.Warehouse},
		RefType: ledger.RefAdjustment,
		RefNo:   a.ID,
		InQty:   decimal.Max(a.Qty, decimal.Zero),
		OutQty:  decimal.Max(a.Qty.Neg(), decimal.Zero),
		UOM:     a.UOM,
		Actor:   actor,
	})
	if err != nil {
		return nil, fmt.Errorf("post: ledger entry: %w", err)
	}

	a.LedgerRef = entry.ID
	a.Status = StatusLocked
	a.UpdatedAt = w.now().UTC()
	a.Audit = append(a.Audit,
		w.audit(AuditPosted, actor, "ledger "+entry.ID),
		w.audit(AuditLocked, actor, ""))

	if err := w.store.SaveAdjustment(ctx, a); err != nil {
		// The document was not finalized, so the posted movement must not
		// stand: offset it so the ledger nets to zero and the adjustment
		// stays Approved and re-postable.
		_, _ = w.ledger.RecordEntry(ctx, ledger.EntryDraft{
			Key:     ledger.StockKey{Item: a.Item, LotShade: a.LotShade, Warehouse: a.Warehouse},
			RefType: ledger.RefAdjustment,
			RefNo:   a.ID,
			InQty:   decimal.Max(a.Qty.Neg(), decimal.Zero),
			OutQty:  decimal.Max(a.Qty, decimal.Zero),
			UOM:     a.UOM,
			Actor:   actor,
		})
		return nil, fmt.Errorf("post: save: %w", err)
	}
	return a, nil
}

// Reverse moves an Approved or Posted adjustment to Reversed. It is not
// reachable by forward transition, and never applies to Locked documents.
// A Posted adjustment reverses its stock effect with an offsetting entry.
func (w *Workflow) Reverse(ctx context.Context, id, actor string) (*Adjustment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := w.store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusApproved && a.Status != StatusPosted {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, Requested: StatusReversed}
	}

	note := ""
	if a.Status == StatusPosted && a.LedgerRef != "" {
		// Offset the posted movement: in/out swapped, same key.
		entry, err := w.ledger.RecordEntry(ctx, ledger.EntryDraft{
			Key:     ledger.StockKey{Item: a.Item, LotShade: a.LotShade, Warehouse: a.Warehouse},
			RefType: ledger.RefAdjustment,
			RefNo:   a.ID,
			InQty:   decimal.Max(a.Qty.Neg(), decimal.Zero),
			OutQty:  decimal.Max(a.Qty, decimal.Zero),
			UOM:     a.UOM,
			Actor:   actor,
		})
		if err != nil {
			return nil, fmt.Errorf("reverse: offsetting entry: %w", err)
		}
		note = "offset " + entry.ID
	}

	a.Status = StatusReversed
	a.UpdatedAt = w.now().UTC()
	a.Audit = append(a.Audit, w.audit(AuditReversed, actor, note))

	if err := w.store.SaveAdjustment(ctx, a); err != nil {
		return nil, fmt.Errorf("reverse: save: %w", err)
	}
	return a, nil
}

// =============================================================================
// READS
// =============================================================================

func (w *Workflow) Get(ctx context.Context, id string) (*Adjustment, error) {
	return w.store.GetAdjustment(ctx, id)
}

// FindByRef returns every adjustment linked to refNo, in creation order.
func (w *Workflow) FindByRef(ctx context.Context, refNo string) ([]*Adjustment, error) {
	return w.store.FindAdjustmentsByRef(ctx, refNo)
}

// List returns all adjustments, newest first.
func (w *Workflow) List(ctx context.Context) ([]*Adjustment, error) {
	return w.store.ListAdjustments(ctx)
}

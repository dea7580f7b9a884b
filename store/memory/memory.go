/*
Package memory provides the in-memory store (tests and development).

PURPOSE:
  Implements every store interface of the engine in process memory:
  ledger.Store + ledger.Sequencer, adjustment.Store, jobwork.Store and
  billing.Store. Append-only collections are plain slices in insertion
  order; documents are deep-copied on every read and write so callers
  never share memory with stored state.

CONCURRENCY:
  One RWMutex guards everything. Row/entry batches append under the write
  lock, so readers never observe a half-written batch.
*/
package memory

import (
	"context"
	"sync"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/billing"
	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
)

// Store implements all engine store interfaces in memory.
type Store struct {
	mu sync.RWMutex

	entries  []ledger.Entry
	balances map[ledger.StockKey]ledger.BalanceSnapshot

	adjustments      map[string]*adjustment.Adjustment
	adjustmentsOrder []string

	outwards      map[string]*jobwork.Outward // by challanNo
	outwardsOrder []string
	inwards       map[string]*jobwork.Inward // by inwardNo
	inwardsOrder  []string
	rows          []jobwork.LedgerRow

	bills []*billing.Bill

	seqs map[string]int64
}

func New() *Store {
	return &Store{
		balances:    make(map[ledger.StockKey]ledger.BalanceSnapshot),
		adjustments: make(map[string]*adjustment.Adjustment),
		outwards:    make(map[string]*jobwork.Outward),
		inwards:     make(map[string]*jobwork.Inward),
		seqs:        make(map[string]int64),
	}
}

// =============================================================================
// SEQUENCER
// =============================================================================

func (s *Store) NextSeq(_ context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[namespace]++
	return s.seqs[namespace], nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// AppendEntry inserts the entry and updates its key's balance in one unit.
func (s *Store) AppendEntry(_ context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.balances[e.Key] = ledger.BalanceSnapshot{Key: e.Key, Balance: e.BalanceAfter, UOM: e.UOM}
	return nil
}

// Entries returns matching entries, newest first.
func (s *Store) Entries(_ context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []ledger.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !f.Matches(s.entries[i]) {
			continue
		}
		result = append(result, s.entries[i])
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) Balance(_ context.Context, key ledger.StockKey) (ledger.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.balances[key]; ok {
		return snap, nil
	}
	return ledger.BalanceSnapshot{Key: key}, nil
}

func (s *Store) Balances(_ context.Context) ([]ledger.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]ledger.BalanceSnapshot, 0, len(s.balances))
	for _, snap := range s.balances {
		result = append(result, snap)
	}
	return result, nil
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

func (s *Store) SaveAdjustment(_ context.Context, a *adjustment.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.adjustments[a.ID]; !ok {
		s.adjustmentsOrder = append(s.adjustmentsOrder, a.ID)
	}
	s.adjustments[a.ID] = a.Clone()
	return nil
}

func (s *Store) GetAdjustment(_ context.Context, id string) (*adjustment.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adjustments[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "adjustment", Ref: id}
	}
	return a.Clone(), nil
}

func (s *Store) FindAdjustmentsByRef(_ context.Context, refNo string) ([]*adjustment.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*adjustment.Adjustment
	for _, id := range s.adjustmentsOrder {
		if a := s.adjustments[id]; a.RefNo == refNo {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *Store) ListAdjustments(_ context.Context) ([]*adjustment.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*adjustment.Adjustment, 0, len(s.adjustmentsOrder))
	for i := len(s.adjustmentsOrder) - 1; i >= 0; i-- {
		result = append(result, s.adjustments[s.adjustmentsOrder[i]].Clone())
	}
	return result, nil
}

// =============================================================================
// JOBWORK STORE
// =============================================================================

func (s *Store) SaveOutward(_ context.Context, o *jobwork.Outward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outwards[o.ChallanNo]; !ok {
		s.outwardsOrder = append(s.outwardsOrder, o.ChallanNo)
	}
	s.outwards[o.ChallanNo] = o.Clone()
	return nil
}

func (s *Store) GetOutwardByChallan(_ context.Context, challanNo string) (*jobwork.Outward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outwards[challanNo]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "challan", Ref: challanNo}
	}
	return o.Clone(), nil
}

func (s *Store) ListOutwards(_ context.Context) ([]*jobwork.Outward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*jobwork.Outward, 0, len(s.outwardsOrder))
	for i := len(s.outwardsOrder) - 1; i >= 0; i-- {
		result = append(result, s.outwards[s.outwardsOrder[i]].Clone())
	}
	return result, nil
}

func (s *Store) SaveInward(_ context.Context, in *jobwork.Inward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inwards[in.InwardNo]; !ok {
		s.inwardsOrder = append(s.inwardsOrder, in.InwardNo)
	}
	s.inwards[in.InwardNo] = in.Clone()
	return nil
}

func (s *Store) GetInwardByNo(_ context.Context, inwardNo string) (*jobwork.Inward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.inwards[inwardNo]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "inward", Ref: inwardNo}
	}
	return in.Clone(), nil
}

func (s *Store) ListInwards(_ context.Context) ([]*jobwork.Inward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*jobwork.Inward, 0, len(s.inwardsOrder))
	for i := len(s.inwardsOrder) - 1; i >= 0; i-- {
		result = append(result, s.inwards[s.inwardsOrder[i]].Clone())
	}
	return result, nil
}

// AppendRows appends the batch atomically, preserving order.
func (s *Store) AppendRows(_ context.Context, rows []jobwork.LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

// Rows returns rows in insertion order, oldest first.
func (s *Store) Rows(_ context.Context, vendor, material string) ([]jobwork.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []jobwork.LedgerRow
	for _, r := range s.rows {
		if vendor != "" && r.Vendor != vendor {
			continue
		}
		if material != "" && r.Material != material {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// =============================================================================
// BILLING STORE
// =============================================================================

func (s *Store) SaveBill(_ context.Context, b *billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills = append(s.bills, b.Clone())
	return nil
}

func (s *Store) ListBills(_ context.Context) ([]*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*billing.Bill, 0, len(s.bills))
	for i := len(s.bills) - 1; i >= 0; i-- {
		result = append(result, s.bills[i].Clone())
	}
	return result, nil
}

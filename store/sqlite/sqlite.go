/*
Package sqlite provides the SQLite-backed store.

PURPOSE:
  Implements every store interface of the engine (ledger.Store +
  ledger.Sequencer, adjustment.Store, jobwork.Store, billing.Store) on
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE ever touches ledger_entries or jobwork_rows.
  - The balances table is a projection updated only inside the same
    sql.Tx that inserts the entry.
  - Document tables (adjustments, outwards, inwards) are replaced whole on
    save; their history lives in the audit trail and the row logs.

SEQUENCES:
  One row per namespace in the sequences table, incremented inside a
  transaction, so business numbers are monotonic across restarts.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/stock.db")   // or ":memory:"

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/texfab/stock-engine/adjustment"
	"github.com/texfab/stock-engine/billing"
	"github.com/texfab/stock-engine/jobwork"
	"github.com/texfab/stock-engine/ledger"
)

// Store implements all engine storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer: sqlite serializes writes anyway, and a single conn keeps
	// the in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Stock ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		item TEXT NOT NULL,
		lot_shade TEXT NOT NULL,
		warehouse TEXT NOT NULL,
		ref_type TEXT NOT NULL,
		ref_no TEXT,
		in_qty TEXT NOT NULL,
		out_qty TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		uom TEXT,
		actor TEXT,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_entries_key
		ON ledger_entries(item, lot_shade, warehouse);
	CREATE INDEX IF NOT EXISTS idx_entries_ref
		ON ledger_entries(ref_no) WHERE ref_no IS NOT NULL;

	-- Derived balances (projection; written only with an entry)
	CREATE TABLE IF NOT EXISTS balances (
		item TEXT NOT NULL,
		lot_shade TEXT NOT NULL,
		warehouse TEXT NOT NULL,
		balance TEXT NOT NULL,
		uom TEXT,
		PRIMARY KEY (item, lot_shade, warehouse)
	);

	-- Adjustment documents
	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		warehouse TEXT NOT NULL,
		item TEXT NOT NULL,
		lot_shade TEXT,
		uom TEXT,
		qty TEXT NOT NULL,
		reason_code TEXT,
		remarks TEXT,
		ref_no TEXT,
		status TEXT NOT NULL,
		audit_json TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		ledger_ref TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_adjustments_ref ON adjustments(ref_no);

	-- Job-work documents
	CREATE TABLE IF NOT EXISTS jobwork_outwards (
		challan_no TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		vendor TEXT NOT NULL,
		process_type TEXT,
		date TEXT NOT NULL,
		expected_return TEXT,
		items_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_by TEXT,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_outwards_vendor ON jobwork_outwards(vendor);

	CREATE TABLE IF NOT EXISTS jobwork_inwards (
		inward_no TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		vendor TEXT NOT NULL,
		challan_no TEXT,
		process_type TEXT,
		date TEXT NOT NULL,
		items_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_by TEXT,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_inwards_vendor ON jobwork_inwards(vendor);

	-- Job-work row log (append-only)
	CREATE TABLE IF NOT EXISTS jobwork_rows (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor TEXT NOT NULL,
		material TEXT NOT NULL,
		ref_type TEXT NOT NULL,
		ref_no TEXT NOT NULL,
		qty_sent TEXT NOT NULL,
		qty_received TEXT NOT NULL,
		damage_qty TEXT NOT NULL,
		balance_with_vendor TEXT NOT NULL,
		settlement_type TEXT,
		at TEXT NOT NULL,
		actor TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rows_vendor_material
		ON jobwork_rows(vendor, material);

	-- Bills
	CREATE TABLE IF NOT EXISTS bills (
		bill_no TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		vendor TEXT NOT NULL,
		items_json TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT,
		seq INTEGER
	);

	-- Per-namespace business-number counters
	CREATE TABLE IF NOT EXISTS sequences (
		namespace TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SEQUENCER
// =============================================================================

func (s *Store) NextSeq(ctx context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (namespace, value) VALUES (?, 1)
		ON CONFLICT(namespace) DO UPDATE SET value = value + 1`, namespace); err != nil {
		return 0, err
	}
	var value int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM sequences WHERE namespace = ?`, namespace).Scan(&value); err != nil {
		return 0, err
	}
	return value, tx.Commit()
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// AppendEntry inserts the entry and updates its key's balance inside one
// sql.Tx: both effects commit or neither does.
func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, ts, item, lot_shade, warehouse, ref_type, ref_no, in_qty, out_qty, balance_after, uom, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Key.Item, e.Key.LotShade, e.Key.Warehouse,
		string(e.RefType), e.RefNo,
		e.InQty.String(), e.OutQty.String(), e.BalanceAfter.String(),
		e.UOM, e.Actor); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (item, lot_shade, warehouse, balance, uom)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item, lot_shade, warehouse) DO UPDATE SET balance = excluded.balance, uom = excluded.uom`,
		e.Key.Item, e.Key.LotShade, e.Key.Warehouse,
		e.BalanceAfter.String(), e.UOM); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Entries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	query := `
		SELECT id, ts, item, lot_shade, warehouse, ref_type, ref_no, in_qty, out_qty, balance_after, uom, actor
		FROM ledger_entries WHERE 1=1`
	var args []any
	if f.Item != "" {
		query += " AND item = ?"
		args = append(args, f.Item)
	}
	if f.LotShade != "" {
		query += " AND lot_shade = ?"
		args = append(args, f.LotShade)
	}
	if f.Warehouse != "" {
		query += " AND warehouse = ?"
		args = append(args, f.Warehouse)
	}
	if f.RefType != "" {
		query += " AND ref_type = ?"
		args = append(args, string(f.RefType))
	}
	if f.RefNo != "" {
		query += " AND ref_no = ?"
		args = append(args, f.RefNo)
	}
	query += " ORDER BY rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var ts, refType, inQty, outQty, balance string
		if err := rows.Scan(&e.ID, &ts, &e.Key.Item, &e.Key.LotShade, &e.Key.Warehouse,
			&refType, &e.RefNo, &inQty, &outQty, &balance, &e.UOM, &e.Actor); err != nil {
			return nil, err
		}
		e.RefType = ledger.RefType(refType)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		if e.InQty, err = decimal.NewFromString(inQty); err != nil {
			return nil, err
		}
		if e.OutQty, err = decimal.NewFromString(outQty); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) Balance(ctx context.Context, key ledger.StockKey) (ledger.BalanceSnapshot, error) {
	snap := ledger.BalanceSnapshot{Key: key, Balance: decimal.Zero}
	var balance, uom string
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, COALESCE(uom, '') FROM balances
		WHERE item = ? AND lot_shade = ? AND warehouse = ?`,
		key.Item, key.LotShade, key.Warehouse).Scan(&balance, &uom)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	if snap.Balance, err = decimal.NewFromString(balance); err != nil {
		return snap, err
	}
	snap.UOM = uom
	return snap, nil
}

func (s *Store) Balances(ctx context.Context) ([]ledger.BalanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item, lot_shade, warehouse, balance, COALESCE(uom, '') FROM balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.BalanceSnapshot
	for rows.Next() {
		var snap ledger.BalanceSnapshot
		var balance string
		if err := rows.Scan(&snap.Key.Item, &snap.Key.LotShade, &snap.Key.Warehouse, &balance, &snap.UOM); err != nil {
			return nil, err
		}
		if snap.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

func (s *Store) SaveAdjustment(ctx context.Context, a *adjustment.Adjustment) error {
	audit, err := json.Marshal(a.Audit)
	if err != nil {
		return err
	}
	var approvedAt any
	if a.ApprovedAt != nil {
		approvedAt = a.ApprovedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO adjustments
			(id, warehouse, item, lot_shade, uom, qty, reason_code, remarks, ref_no,
			 status, audit_json, approved_by, approved_at, ledger_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			audit_json = excluded.audit_json,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			ledger_ref = excluded.ledger_ref,
			updated_at = excluded.updated_at`,
		a.ID, a.Warehouse, a.Item, a.LotShade, a.UOM, a.Qty.String(),
		a.ReasonCode, a.Remarks, a.RefNo, string(a.Status), string(audit),
		a.ApprovedBy, approvedAt, a.LedgerRef,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
		a.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const adjustmentCols = `id, warehouse, item, lot_shade, uom, qty, reason_code, remarks, ref_no,
	status, audit_json, approved_by, COALESCE(approved_at, ''), COALESCE(ledger_ref, ''), created_at, updated_at`

func (s *Store) scanAdjustment(row interface{ Scan(...any) error }) (*adjustment.Adjustment, error) {
	var a adjustment.Adjustment
	var qty, status, audit, approvedAt, createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Warehouse, &a.Item, &a.LotShade, &a.UOM, &qty,
		&a.ReasonCode, &a.Remarks, &a.RefNo, &status, &audit,
		&a.ApprovedBy, &approvedAt, &a.LedgerRef, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Qty, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	a.Status = adjustment.Status(status)
	if err := json.Unmarshal([]byte(audit), &a.Audit); err != nil {
		return nil, err
	}
	if approvedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, approvedAt)
		if err != nil {
			return nil, err
		}
		a.ApprovedAt = &t
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAdjustment(ctx context.Context, id string) (*adjustment.Adjustment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+adjustmentCols+` FROM adjustments WHERE id = ?`, id)
	a, err := s.scanAdjustment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "adjustment", Ref: id}
	}
	return a, err
}

func (s *Store) queryAdjustments(ctx context.Context, query string, args ...any) ([]*adjustment.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*adjustment.Adjustment
	for rows.Next() {
		a, err := s.scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) FindAdjustmentsByRef(ctx context.Context, refNo string) ([]*adjustment.Adjustment, error) {
	return s.queryAdjustments(ctx,
		`SELECT `+adjustmentCols+` FROM adjustments WHERE ref_no = ? ORDER BY rowid ASC`, refNo)
}

func (s *Store) ListAdjustments(ctx context.Context) ([]*adjustment.Adjustment, error) {
	return s.queryAdjustments(ctx,
		`SELECT `+adjustmentCols+` FROM adjustments ORDER BY rowid DESC`)
}

// =============================================================================
// JOBWORK STORE
// =============================================================================

func (s *Store) SaveOutward(ctx context.Context, o *jobwork.Outward) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobwork_outwards
			(challan_no, id, vendor, process_type, date, expected_return, items_json, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(challan_no) DO UPDATE SET
			items_json = excluded.items_json,
			status = excluded.status`,
		o.ChallanNo, o.ID, o.Vendor, o.ProcessType,
		o.Date.UTC().Format(time.RFC3339Nano),
		o.ExpectedReturn.UTC().Format(time.RFC3339Nano),
		string(items), string(o.Status), o.CreatedBy)
	return err
}

func (s *Store) scanOutward(row interface{ Scan(...any) error }) (*jobwork.Outward, error) {
	var o jobwork.Outward
	var date, expected, items, status string
	if err := row.Scan(&o.ChallanNo, &o.ID, &o.Vendor, &o.ProcessType,
		&date, &expected, &items, &status, &o.CreatedBy); err != nil {
		return nil, err
	}
	var err error
	if o.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return nil, err
	}
	if o.ExpectedReturn, err = time.Parse(time.RFC3339Nano, expected); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, err
	}
	o.Status = jobwork.OutwardStatus(status)
	return &o, nil
}

const outwardCols = `challan_no, id, vendor, process_type, date, expected_return, items_json, status, created_by`

func (s *Store) GetOutwardByChallan(ctx context.Context, challanNo string) (*jobwork.Outward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outwardCols+` FROM jobwork_outwards WHERE challan_no = ?`, challanNo)
	o, err := s.scanOutward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "challan", Ref: challanNo}
	}
	return o, err
}

func (s *Store) ListOutwards(ctx context.Context) ([]*jobwork.Outward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outwardCols+` FROM jobwork_outwards ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*jobwork.Outward
	for rows.Next() {
		o, err := s.scanOutward(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (s *Store) SaveInward(ctx context.Context, in *jobwork.Inward) error {
	items, err := json.Marshal(in.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobwork_inwards
			(inward_no, id, vendor, challan_no, process_type, date, items_json, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(inward_no) DO UPDATE SET
			items_json = excluded.items_json,
			status = excluded.status`,
		in.InwardNo, in.ID, in.Vendor, in.ChallanNo, in.ProcessType,
		in.Date.UTC().Format(time.RFC3339Nano),
		string(items), string(in.Status), in.CreatedBy)
	return err
}

const inwardCols = `inward_no, id, vendor, challan_no, process_type, date, items_json, status, created_by`

func (s *Store) scanInward(row interface{ Scan(...any) error }) (*jobwork.Inward, error) {
	var in jobwork.Inward
	var date, items, status string
	if err := row.Scan(&in.InwardNo, &in.ID, &in.Vendor, &in.ChallanNo, &in.ProcessType,
		&date, &items, &status, &in.CreatedBy); err != nil {
		return nil, err
	}
	var err error
	if in.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &in.Items); err != nil {
		return nil, err
	}
	in.Status = jobwork.InwardStatus(status)
	return &in, nil
}

func (s *Store) GetInwardByNo(ctx context.Context, inwardNo string) (*jobwork.Inward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inwardCols+` FROM jobwork_inwards WHERE inward_no = ?`, inwardNo)
	in, err := s.scanInward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "inward", Ref: inwardNo}
	}
	return in, err
}

func (s *Store) ListInwards(ctx context.Context) ([]*jobwork.Inward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inwardCols+` FROM jobwork_inwards ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*jobwork.Inward
	for rows.Next() {
		in, err := s.scanInward(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, in)
	}
	return result, rows.Err()
}

// AppendRows appends the batch inside one sql.Tx, preserving order.
func (s *Store) AppendRows(ctx context.Context, batch []jobwork.LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range batch {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO jobwork_rows
				(vendor, material, ref_type, ref_no, qty_sent, qty_received, damage_qty,
				 balance_with_vendor, settlement_type, at, actor)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Vendor, r.Material, string(r.RefType), r.RefNo,
			r.QtySent.String(), r.QtyReceived.String(), r.DamageQty.String(),
			r.BalanceWithVendor.String(), string(r.SettlementType),
			r.At.UTC().Format(time.RFC3339Nano), r.Actor); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Rows returns rows in insertion order, oldest first.
func (s *Store) Rows(ctx context.Context, vendor, material string) ([]jobwork.LedgerRow, error) {
	query := `
		SELECT vendor, material, ref_type, ref_no, qty_sent, qty_received, damage_qty,
		       balance_with_vendor, settlement_type, at, actor
		FROM jobwork_rows WHERE 1=1`
	var args []any
	if vendor != "" {
		query += " AND vendor = ?"
		args = append(args, vendor)
	}
	if material != "" {
		query += " AND material = ?"
		args = append(args, material)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []jobwork.LedgerRow
	for rows.Next() {
		var r jobwork.LedgerRow
		var refType, sent, received, damage, balance, settlement, at string
		if err := rows.Scan(&r.Vendor, &r.Material, &refType, &r.RefNo,
			&sent, &received, &damage, &balance, &settlement, &at, &r.Actor); err != nil {
			return nil, err
		}
		r.RefType = jobwork.RowType(refType)
		r.SettlementType = jobwork.SettlementType(settlement)
		if r.QtySent, err = decimal.NewFromString(sent); err != nil {
			return nil, err
		}
		if r.QtyReceived, err = decimal.NewFromString(received); err != nil {
			return nil, err
		}
		if r.DamageQty, err = decimal.NewFromString(damage); err != nil {
			return nil, err
		}
		if r.BalanceWithVendor, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// BILLING STORE
// =============================================================================

func (s *Store) SaveBill(ctx context.Context, b *billing.Bill) error {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bills (bill_no, id, vendor, items_json, total, status, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bill_no) DO UPDATE SET
			items_json = excluded.items_json,
			total = excluded.total,
			status = excluded.status`,
		b.BillNo, b.ID, b.Vendor, string(items), b.Total.String(),
		string(b.Status), b.CreatedAt.UTC().Format(time.RFC3339Nano), b.CreatedBy)
	return err
}

func (s *Store) ListBills(ctx context.Context) ([]*billing.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bill_no, id, vendor, items_json, total, status, created_at, created_by
		FROM bills ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*billing.Bill
	for rows.Next() {
		var b billing.Bill
		var items, total, status, createdAt string
		if err := rows.Scan(&b.BillNo, &b.ID, &b.Vendor, &items, &total, &status, &createdAt, &b.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &b.Items); err != nil {
			return nil, err
		}
		if b.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		b.Status = billing.BillStatus(status)
		if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

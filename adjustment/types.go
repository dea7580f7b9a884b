/*
Package adjustment implements the manual stock correction workflow.

PURPOSE:
  A manual correction never touches the stock ledger directly. It travels
  through an approval state machine:

      Draft -> Submitted -> Approved -> Posted -> Locked (terminal)

  Only PostAndLock writes to the ledger, and only once: for a given source
  reference (refNo) at most one non-reversed adjustment may ever reach
  Posted/Locked. A separate Reverse entry point moves an Approved or Posted
  adjustment to Reversed; Locked is immutable forever.

KEY TYPES:
  Adjustment:  The correction document with status and audit trail
  AuditRecord: One line of the who-did-what-when trail
  Payload:     What an external submitter provides to CreateDraft

SEE ALSO:
  - workflow.go: Transition operations and the duplicate-posting guard
*/
package adjustment

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Workflow states
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusPosted    Status = "posted"
	StatusLocked    Status = "locked"
	StatusReversed  Status = "reversed"
)

// Final reports whether no further forward transition exists.
func (s Status) Final() bool {
	return s == StatusLocked || s == StatusReversed
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// Audit actions, one per transition.
const (
	AuditCreated   = "created"
	AuditSubmitted = "submitted"
	AuditApproved  = "approved"
	AuditPosted    = "posted"
	AuditLocked    = "locked"
	AuditReversed  = "reversed"
)

// AuditRecord is appended exactly once per transition (PostAndLock appends
// two: posted, then locked).
type AuditRecord struct {
	ID     string
	Action string
	Actor  string
	At     time.Time
	Note   string
}

// =============================================================================
// ADJUSTMENT - The correction document
// =============================================================================

// Adjustment is a signed stock correction. Qty > 0 increases stock,
// Qty < 0 decreases it. Once Locked the document is immutable.
type Adjustment struct {
	ID        string
	Warehouse string
	Item      string
	LotShade  string
	UOM       string
	Qty       decimal.Decimal

	ReasonCode string
	Remarks    string

	// RefNo links the adjustment to a source variance or count document.
	// The duplicate-posting guard is keyed on it.
	RefNo string

	Status Status
	Audit  []AuditRecord

	ApprovedBy string
	ApprovedAt *time.Time

	// LedgerRef is the id of the stock ledger entry written by PostAndLock.
	LedgerRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy. Transitions operate on copies so a rejected
// transition leaves the stored document untouched.
func (a *Adjustment) Clone() *Adjustment {
	cp := *a
	cp.Audit = append([]AuditRecord(nil), a.Audit...)
	if a.ApprovedAt != nil {
		t := *a.ApprovedAt
		cp.ApprovedAt = &t
	}
	return &cp
}

// Payload is what an external submitter posts to create a draft.
type Payload struct {
	Warehouse  string
	Item       string
	LotShade   string
	UOM        string
	Qty        decimal.Decimal
	ReasonCode string
	Remarks    string
	RefNo      string
}

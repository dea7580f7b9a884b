// errors.go - Structured workflow errors wrapping the engine sentinels.
package adjustment

import (
	"fmt"

	"github.com/texfab/stock-engine/ledger"
)

// InvalidTransitionError reports a transition requested from the wrong
// source state. Unwraps to ledger.ErrInvalidStateTransition.
type InvalidTransitionError struct {
	ID        string
	From      Status
	Requested Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("adjustment %s: cannot move %s -> %s", e.ID, e.From, e.Requested)
}

func (e *InvalidTransitionError) Unwrap() error { return ledger.ErrInvalidStateTransition }

// DuplicatePostingError reports that refNo was already finalized by another
// adjustment. Unwraps to ledger.ErrDuplicatePosting.
type DuplicatePostingError struct {
	RefNo      string
	ExistingID string
}

func (e *DuplicatePostingError) Error() string {
	return fmt.Sprintf("refNo %q already posted by adjustment %s", e.RefNo, e.ExistingID)
}

func (e *DuplicatePostingError) Unwrap() error { return ledger.ErrDuplicatePosting }

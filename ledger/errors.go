/*
errors.go - Centralized error types for the stock engine core

PURPOSE:
  Sentinel errors shared by the engine packages, plus structured variants
  that carry context. Domain packages (adjustment, jobwork, billing) wrap
  these with their own detail types.

USAGE:
  if errors.Is(err, ledger.ErrNotFound) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an id, challan or inward reference does
	// not resolve to a known document.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition is returned when a workflow transition is
	// requested from the wrong source state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDuplicatePosting is returned when a second finalized adjustment is
	// attempted for a refNo that already reached Posted/Locked.
	ErrDuplicatePosting = errors.New("duplicate posting")

	// ErrMissingRate is returned when billing cannot resolve a rate for a
	// challan line from either the rate map or the line itself.
	ErrMissingRate = errors.New("missing rate")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError identifies which document was missing.
type NotFoundError struct {
	Kind string // "adjustment", "challan", "inward", ...
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

/*
errors.go - Centralized error types for the loan accounting core

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Services wrap these with additional context; callers branch with
  errors.Is / errors.As.

ERROR CATEGORIES:
  1. Lookup errors   - a referenced loan/payment/batch/account is absent
  2. Validation      - non-positive ledger amounts, over-claimed shortages
  3. Defensive       - corrupt historical data detected (clamped, not fatal)

USAGE:
  if errors.Is(err, engine.ErrNotFound) { ... }

  var exceeds *engine.ExceedsRemainingError
  if errors.As(err, &exceeds) { ... exceeds.Remaining ... }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced loan, payment, batch,
	// account, employee or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned when a ledger entry or transfer is
	// requested with a non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrExceedsRemaining is returned when a shortage compensation claims
	// more than the still-uncompensated remainder.
	ErrExceedsRemaining = errors.New("compensation exceeds remaining shortage")

	// ErrInconsistentState flags corrupt historical data, e.g. a profit
	// ratio that implies profit greater than the payment itself. Arithmetic
	// clamps and reports rather than failing on it.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrDuplicateRenewal is returned when a predecessor loan already has an
	// active successor.
	ErrDuplicateRenewal = errors.New("loan already has an active renewal")

	// ErrUnaffectedPayments is returned when a cancellation would orphan
	// real collection history. The operation aborts and the caller receives
	// the report for manual reconciliation.
	ErrUnaffectedPayments = errors.New("loan has payments requiring manual reconciliation")

	// ErrEmptyBatch is returned when a collection batch is recorded with no
	// line items. A batch cannot exist without payments.
	ErrEmptyBatch = errors.New("batch has no payments")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports which kind of record was missing.
type NotFoundError struct {
	Kind string // "loan", "payment", "batch", "account", "employee", "entry"
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidAmountError reports the rejected amount.
type InvalidAmountError struct {
	Op     string
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s: amount must be positive, got %s", e.Op, e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// ExceedsRemainingError reports an over-claimed shortage compensation.
type ExceedsRemainingError struct {
	BatchID   uuid.UUID
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *ExceedsRemainingError) Error() string {
	return fmt.Sprintf("batch %s: compensation %s exceeds remaining shortage %s",
		e.BatchID, e.Requested, e.Remaining)
}

func (e *ExceedsRemainingError) Unwrap() error { return ErrExceedsRemaining }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err is caused by invalid caller input rather
// than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrExceedsRemaining) ||
		errors.Is(err, ErrDuplicateRenewal) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrUnaffectedPayments)
}

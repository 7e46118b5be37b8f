/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy mirrors how errors cross the API boundary:

  1. Validation errors - rejected before any write, surfaced verbatim
  2. Conflict errors   - duplicate period range under race; recovered
                         internally by re-reading, never surfaced
  3. Referential errors - missing service/period/invoice/income -> not found
  4. Inconsistency warnings - accepted operations that leave the invoice-side
                         and income-side ledgers divergent; flagged, not fatal

USAGE:
  if billing.IsValidation(err) { ... 400 }
  if billing.IsNotFound(err)   { ... 404 }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all pre-write input rejections.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateRange is returned by a store insert that lost the
	// materialization race. Callers recover by re-reading the existing row.
	ErrDuplicateRange = errors.New("duplicate period range")

	// ErrServiceNotFound, ErrPeriodNotFound, ErrInvoiceNotFound,
	// ErrIncomeNotFound and ErrPaymentNotFound surface as 404s.
	ErrServiceNotFound = errors.New("service not found")
	ErrPeriodNotFound  = errors.New("work period not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrLineNotFound    = errors.New("invoice line not found")
	ErrIncomeNotFound  = errors.New("income not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrProductNotFound = errors.New("product not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError carries the caller-facing message for a rejected input.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// InconsistencyWarning is not an error in the failure sense: the operation
// it describes succeeded. It flags that the invoice-side and income-side
// ledgers can no longer be assumed to agree for the affected periods.
type InconsistencyWarning struct {
	InvoiceID InvoiceID
	PaymentID PaymentID
	Message   string
}

func (w *InconsistencyWarning) Error() string {
	return fmt.Sprintf("inconsistency: %s (invoice %s, payment %s)", w.Message, w.InvoiceID, w.PaymentID)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict returns true for duplicate-range races. These are recovered
// inside the store and should never reach a caller; the helper exists for
// the store implementations themselves.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRange)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrLineNotFound) ||
		errors.Is(err, ErrIncomeNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrProductNotFound)
}

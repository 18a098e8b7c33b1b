/*
errors.go - Error types for the billing model

PURPOSE:
  All billing errors in one place. Callers match sentinels with errors.Is
  and pull context out of the structured types with errors.As.

ERROR CATEGORIES:
  1. State machine errors - transitions the invoice lifecycle forbids
  2. Validation errors - malformed invoices and payments
  3. Store errors - missing records, duplicates, lost updates

SEE ALSO:
  - status.go: Produces TransitionError
  - invoice.go: Produces MalformedInvoiceError
  - api/handlers.go: Maps these errors to HTTP status codes
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
	// ErrInvalidTransition is returned when an invoice status change is not
	// allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMalformedInvoice is returned when an invoice fails structural validation.
	ErrMalformedInvoice = errors.New("malformed invoice")

	// ErrInvalidPayment is returned when a payment cannot be recorded
	// (missing ID, non-positive amount).
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrDuplicatePayment is returned when a payment ID was already recorded.
	// Expected on client retries.
	ErrDuplicatePayment = errors.New("duplicate payment")

	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrClientNotFound  = errors.New("client not found")

	// ErrConcurrentModification is returned when the stored status changed
	// between loading an invoice and persisting its transition.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected status change.
type TransitionError struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	To        InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice %s: cannot move from %q to %q", e.InvoiceID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// MalformedInvoiceError names the invoice and the first rule it broke.
type MalformedInvoiceError struct {
	InvoiceID InvoiceID
	Reason    string
}

func (e *MalformedInvoiceError) Error() string {
	return fmt.Sprintf("malformed invoice %s: %s", e.InvoiceID, e.Reason)
}

func (e *MalformedInvoiceError) Unwrap() error {
	return ErrMalformedInvoice
}

func malformed(id InvoiceID, format string, args ...any) *MalformedInvoiceError {
	return &MalformedInvoiceError{InvoiceID: id, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedInvoice) ||
		errors.Is(err, ErrInvalidPayment)
}

// IsConflict returns true if the request clashes with the current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrClientNotFound)
}

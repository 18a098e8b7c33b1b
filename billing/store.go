/*
store.go - Persistence interface for invoices and payments

PURPOSE:
  Defines what the billing Service needs from a database. The billing core
  never opens a connection itself; it is handed a snapshot, applies one
  mutation, and asks the store to persist it.

WRITE CONTRACT:
  - SaveInvoice(): insert a new invoice with its line items
  - UpdateStatus(): compare-and-set on the current status
  - AppendPayment(): append-only, idempotent on payment ID
  - NO delete methods exist

COMPARE-AND-SET:
  UpdateStatus only succeeds if the stored status still equals From. Two
  operators approving or closing the same invoice at once cannot both win;
  the loser gets ErrConcurrentModification and reloads.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - billing/store/memory.go: In-memory for testing
*/
package billing

import (
	"context"
	"time"
)

// InvoiceStore persists invoices and their payments.
type InvoiceStore interface {
	// SaveInvoice inserts a new invoice with its line items.
	SaveInvoice(ctx context.Context, inv Invoice) error

	// GetInvoice returns the invoice with items and payments, or
	// ErrInvoiceNotFound.
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// ListInvoices returns invoices matching the filter, oldest first.
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// UpdateStatus applies a status change if the stored status is still
	// change.From. Otherwise ErrConcurrentModification.
	UpdateStatus(ctx context.Context, change StatusChange) error

	// AppendPayment adds a payment. ErrDuplicatePayment if the payment ID
	// already exists.
	AppendPayment(ctx context.Context, id InvoiceID, p Payment) error
}

// InvoiceFilter narrows ListInvoices. Zero values match everything.
type InvoiceFilter struct {
	ClientID ClientID
	Statuses []InvoiceStatus

	// PeriodEndBefore keeps invoices whose period ended strictly before it.
	PeriodEndBefore *time.Time
}

// Matches applies the filter to one invoice.
func (f InvoiceFilter) Matches(inv Invoice) bool {
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if inv.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PeriodEndBefore != nil {
		if inv.PeriodEnd == nil || !inv.PeriodEnd.Before(*f.PeriodEndBefore) {
			return false
		}
	}
	return true
}

// StatusChange is one persisted transition.
type StatusChange struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	To        InvoiceStatus
	At        time.Time
}

// Package store provides InvoiceStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/care-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	invoices map[billing.InvoiceID]billing.Invoice
	order    []billing.InvoiceID
	payments map[billing.PaymentID]billing.InvoiceID
}

func NewMemory() *Memory {
	return &Memory{
		invoices: make(map[billing.InvoiceID]billing.Invoice),
		payments: make(map[billing.PaymentID]billing.InvoiceID),
	}
}

// SaveInvoice inserts a new invoice. Saving an existing ID is a conflict.
func (m *Memory) SaveInvoice(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.invoices[inv.ID]; exists {
		return billing.ErrConcurrentModification
	}
	for _, p := range inv.Payments {
		if _, exists := m.payments[p.ID]; exists {
			return billing.ErrDuplicatePayment
		}
	}

	m.invoices[inv.ID] = clone(inv)
	m.order = append(m.order, inv.ID)
	for _, p := range inv.Payments {
		m.payments[p.ID] = inv.ID
	}
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	c := clone(inv)
	return &c, nil
}

func (m *Memory) ListInvoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Invoice
	for _, id := range m.order {
		inv := m.invoices[id]
		if filter.Matches(inv) {
			result = append(result, clone(inv))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateStatus applies the change only if the stored status is still From.
func (m *Memory) UpdateStatus(_ context.Context, change billing.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[change.InvoiceID]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if inv.Status != change.From {
		return billing.ErrConcurrentModification
	}

	inv.Status = change.To
	at := change.At
	switch change.To {
	case billing.StatusSent:
		inv.ApprovedAt = &at
	case billing.StatusOverdue:
		inv.OverdueAt = &at
	case billing.StatusPaid:
		inv.PaidAt = &at
	}
	m.invoices[change.InvoiceID] = inv
	return nil
}

// AppendPayment adds a payment. Append-only.
func (m *Memory) AppendPayment(_ context.Context, id billing.InvoiceID, p billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if _, exists := m.payments[p.ID]; exists {
		return billing.ErrDuplicatePayment
	}

	inv.Payments = append(append([]billing.Payment{}, inv.Payments...), p)
	m.invoices[id] = inv
	m.payments[p.ID] = id
	return nil
}

// clone copies the slices so callers cannot mutate stored state.
func clone(inv billing.Invoice) billing.Invoice {
	inv.Items = append([]billing.LineItem(nil), inv.Items...)
	inv.Payments = append([]billing.Payment(nil), inv.Payments...)
	for i, p := range inv.Payments {
		if p.PaidAt != nil {
			t := *p.PaidAt
			inv.Payments[i].PaidAt = &t
		}
	}
	inv.PeriodStart = copyTime(inv.PeriodStart)
	inv.PeriodEnd = copyTime(inv.PeriodEnd)
	return inv
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

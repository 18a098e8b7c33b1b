package billing

import (
	"context"
	"fmt"
	"time"
)

// Service applies one mutation to a freshly loaded invoice and persists it.
// It is the owning process the state machine expects: approvals, payment
// recording and explicit closes all go through here.
type Service struct {
	Store InvoiceStore
	Now   func() time.Time
}

func NewService(store InvoiceStore) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Approve moves a draft invoice to sent.
func (s *Service) Approve(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return s.Transition(ctx, id, StatusSent)
}

// MarkOverdue moves a sent invoice to overdue.
func (s *Service) MarkOverdue(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return s.Transition(ctx, id, StatusOverdue)
}

// MarkPaid closes a sent or overdue invoice.
func (s *Service) MarkPaid(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return s.Transition(ctx, id, StatusPaid)
}

// Transition loads the invoice, validates the move against the lifecycle
// and persists it with compare-and-set.
func (s *Service) Transition(ctx context.Context, id InvoiceID, to InvoiceStatus) (*Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inv.Status
	now := s.Now()
	if err := inv.Transition(to, now); err != nil {
		return nil, err
	}

	change := StatusChange{InvoiceID: id, From: from, To: to, At: now}
	if err := s.Store.UpdateStatus(ctx, change); err != nil {
		return nil, fmt.Errorf("persist %s -> %s: %w", from, to, err)
	}
	return inv, nil
}

// RecordPayment appends a payment and returns the invoice with its new
// balance. The status is not changed.
func (s *Service) RecordPayment(ctx context.Context, id InvoiceID, p Payment) (*Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.Now()
	}
	if err := inv.RecordPayment(p); err != nil {
		return nil, err
	}
	if err := s.Store.AppendPayment(ctx, id, p); err != nil {
		return nil, err
	}
	return inv, nil
}

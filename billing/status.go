package billing

import "time"

// =============================================================================
// INVOICE STATUS
// =============================================================================

// InvoiceStatus is the lifecycle state of an invoice. Unknown values read
// from storage are kept verbatim so that summaries can count them.
type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "draft"
	StatusSent    InvoiceStatus = "sent"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
)

// KnownStatuses lists the statuses of the lifecycle, in order.
var KnownStatuses = []InvoiceStatus{StatusDraft, StatusSent, StatusPaid, StatusOverdue}

func (s InvoiceStatus) Known() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// Outstanding reports whether an invoice in this status is still owed.
func (s InvoiceStatus) Outstanding() bool {
	return s == StatusSent || s == StatusOverdue
}

// Terminal reports whether no further transitions exist.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid
}

// =============================================================================
// TRANSITIONS
// =============================================================================
//
//   draft ──approve──▶ sent ──mark paid──▶ paid
//                       │                   ▲
//                       └──mark overdue──▶ overdue
//
// Nothing moves automatically. A zero balance does not close an invoice,
// and the overdue move is made by the scheduler, not by this package.

var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:   {StatusSent},
	StatusSent:    {StatusPaid, StatusOverdue},
	StatusOverdue: {StatusPaid},
}

// CanTransition reports whether from → to is part of the lifecycle.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (inv *Invoice) transition(to InvoiceStatus) error {
	if !CanTransition(inv.Status, to) {
		return &TransitionError{InvoiceID: inv.ID, From: inv.Status, To: to}
	}
	inv.Status = to
	return nil
}

// Approve moves a draft invoice to sent.
func (inv *Invoice) Approve(at time.Time) error {
	if err := inv.transition(StatusSent); err != nil {
		return err
	}
	inv.ApprovedAt = &at
	return nil
}

// MarkOverdue moves a sent invoice to overdue.
func (inv *Invoice) MarkOverdue(at time.Time) error {
	if err := inv.transition(StatusOverdue); err != nil {
		return err
	}
	inv.OverdueAt = &at
	return nil
}

// MarkPaid closes a sent or overdue invoice, whatever its balance.
func (inv *Invoice) MarkPaid(at time.Time) error {
	if err := inv.transition(StatusPaid); err != nil {
		return err
	}
	inv.PaidAt = &at
	return nil
}

// Transition applies the named operation for the target status.
func (inv *Invoice) Transition(to InvoiceStatus, at time.Time) error {
	switch to {
	case StatusSent:
		return inv.Approve(at)
	case StatusOverdue:
		return inv.MarkOverdue(at)
	case StatusPaid:
		return inv.MarkPaid(at)
	default:
		return &TransitionError{InvoiceID: inv.ID, From: inv.Status, To: to}
	}
}

/*
invoice.go - Invoices, line items and payments

PURPOSE:
  The invoice is the unit the aggregator summarizes. Its total is fixed at
  generation time; what changes afterwards is its status (status.go) and
  its payment list.

DERIVED AMOUNTS:
  PaidAmount       = Σ payment amounts with a PaidAt timestamp
  BalanceRemaining = TotalAmount - PaidAmount

  Neither is stored. A pending payment (PaidAt == nil) is recorded but does
  not reduce the balance. Overpayment is a valid real-world event and shows
  up as a negative balance; it is never clamped.

PAYMENTS:
  RecordPayment appends and nothing else. It does not touch Status: closing
  an invoice is an explicit MarkPaid by the caller, who may accept a
  partial settlement or wait for the rest.
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LINE ITEM
// =============================================================================

// LineItem is one billed row. Quantity is in hours.
type LineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	ActivityID  ActivityID
}

// NewLineItem builds a line item whose amount is quantity × unit price,
// rounded to cents.
func NewLineItem(description string, quantity, unitPrice decimal.Decimal) LineItem {
	return LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      Cents(quantity.Mul(unitPrice)),
	}
}

// ExpectedAmount is quantity × unit price, unrounded.
func (li LineItem) ExpectedAmount() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// =============================================================================
// PAYMENT
// =============================================================================

// Common payment methods. Method is free text; these are the values the
// console offers.
const (
	MethodCheck        = "check"
	MethodCash         = "cash"
	MethodACH          = "ach"
	MethodBankTransfer = "bank_transfer"
	MethodZelle        = "zelle"
	MethodStripe       = "stripe"
	MethodOther        = "other"
)

const PaymentSucceeded = "succeeded"

// Payment is money received against one invoice.
type Payment struct {
	ID        PaymentID
	Amount    decimal.Decimal
	Method    string
	Status    string
	PaidAt    *time.Time // nil = pending
	Reference string     // check number, wire reference
	CreatedAt time.Time
}

// Settled reports whether the payment counts toward the paid amount.
func (p Payment) Settled() bool {
	return p.PaidAt != nil
}

// Validate checks the payment on its own, independent of any invoice.
func (p Payment) Validate() error {
	if p.ID == "" {
		return &PaymentError{Reason: "payment id is required"}
	}
	if !p.Amount.IsPositive() {
		return &PaymentError{PaymentID: p.ID, Reason: "amount must be positive"}
	}
	return nil
}

// PaymentError explains why a payment was rejected.
type PaymentError struct {
	PaymentID PaymentID
	Reason    string
}

func (e *PaymentError) Error() string {
	if e.PaymentID == "" {
		return "invalid payment: " + e.Reason
	}
	return "invalid payment " + string(e.PaymentID) + ": " + e.Reason
}

func (e *PaymentError) Unwrap() error { return ErrInvalidPayment }

// =============================================================================
// INVOICE
// =============================================================================

type Invoice struct {
	ID          InvoiceID
	ClientID    ClientID
	ClientName  string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Items       []LineItem
	Payments    []Payment
	TotalAmount decimal.Decimal
	Status      InvoiceStatus

	CreatedAt  time.Time
	ApprovedAt *time.Time
	OverdueAt  *time.Time
	PaidAt     *time.Time
}

// PaidAmount sums settled payments.
func (inv Invoice) PaidAmount() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range inv.Payments {
		if p.Settled() {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}

// PendingAmount sums payments that have been recorded but not settled.
func (inv Invoice) PendingAmount() decimal.Decimal {
	pending := decimal.Zero
	for _, p := range inv.Payments {
		if !p.Settled() {
			pending = pending.Add(p.Amount)
		}
	}
	return pending
}

// BalanceRemaining is TotalAmount - PaidAmount. Negative on overpayment.
func (inv Invoice) BalanceRemaining() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount())
}

// Overpaid reports whether settled payments exceed the total.
func (inv Invoice) Overpaid() bool {
	return inv.BalanceRemaining().IsNegative()
}

// ItemsTotal sums line-item amounts.
func (inv Invoice) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range inv.Items {
		total = total.Add(li.Amount)
	}
	return total
}

// HasPayment reports whether a payment with this ID was already recorded.
func (inv Invoice) HasPayment(id PaymentID) bool {
	for _, p := range inv.Payments {
		if p.ID == id {
			return true
		}
	}
	return false
}

// RecordPayment appends a payment. Status is left unchanged.
func (inv *Invoice) RecordPayment(p Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if inv.HasPayment(p.ID) {
		return ErrDuplicatePayment
	}
	inv.Payments = append(inv.Payments, p)
	return nil
}

// Validate checks the structural invariants of an invoice. Overpayment is
// tolerated.
func (inv Invoice) Validate() error {
	if inv.TotalAmount.IsNegative() {
		return malformed(inv.ID, "total amount %s is negative", inv.TotalAmount)
	}
	for i, li := range inv.Items {
		if li.Quantity.IsNegative() {
			return malformed(inv.ID, "line item %d has negative quantity", i)
		}
		if li.UnitPrice.IsNegative() {
			return malformed(inv.ID, "line item %d has negative unit price", i)
		}
		if li.Amount.Sub(li.ExpectedAmount()).Abs().GreaterThan(AmountTolerance) {
			return malformed(inv.ID, "line item %d amount %s does not match %s x %s",
				i, li.Amount, li.Quantity, li.UnitPrice)
		}
	}
	if len(inv.Items) > 0 {
		if itemsTotal := inv.ItemsTotal(); itemsTotal.Sub(inv.TotalAmount).Abs().GreaterThan(AmountTolerance) {
			return malformed(inv.ID, "total %s does not match line items %s", inv.TotalAmount, itemsTotal)
		}
	}
	for _, p := range inv.Payments {
		if !p.Amount.IsPositive() {
			return malformed(inv.ID, "payment %s has non-positive amount %s", p.ID, p.Amount)
		}
	}
	if inv.PeriodStart != nil && inv.PeriodEnd != nil && inv.PeriodEnd.Before(*inv.PeriodStart) {
		return malformed(inv.ID, "period ends before it starts")
	}
	return nil
}

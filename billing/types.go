/*
Package billing provides the data model of the billing console.

PURPOSE:
  Clients, activities, invoices, line items and payments, plus the invoice
  status state machine and payment bookkeeping. Everything in this package
  is plain data and pure logic over a snapshot; persistence lives behind
  the InvoiceStore interface.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amounts, rounded to cents only when rendered
  - Identifiers: ClientID, InvoiceID, PaymentID, ActivityID
  - Client: a billable account with a soft lifecycle status
  - Activity: an immutable unit of billable work

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for money
  2. Status is authoritative: an invoice's status never follows its balance
  3. Append-only payments: a payment is added, never edited or removed

SEE ALSO:
  - invoice.go: Invoice, LineItem, Payment and derived amounts
  - status.go: Status transitions
  - service.go: Load / mutate / persist on a fresh snapshot
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// CentPlaces is the number of decimal places money is rendered with.
const CentPlaces = 2

// AmountTolerance is how far a stored line-item amount may drift from
// quantity × unit price before the line item is considered malformed.
var AmountTolerance = decimal.New(1, -2)

// Cents rounds an amount to two decimal places (half away from zero).
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// MustMoney parses a decimal literal. It panics on malformed input and is
// meant for constants and tests.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type InvoiceID string
type PaymentID string
type ActivityID string

// =============================================================================
// CLIENT
// =============================================================================

type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

func (s ClientStatus) Valid() bool {
	return s == ClientActive || s == ClientInactive
}

// Client is a billable account. Clients are never deleted; they are
// deactivated.
type Client struct {
	ID        ClientID
	Name      string
	Email     string
	Phone     string
	Status    ClientStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the name used on invoices and rankings.
func (c Client) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.ID)
}

// =============================================================================
// ACTIVITY
// =============================================================================

// Activity is a unit of billable work for one client.
type Activity struct {
	ID              ActivityID
	ClientID        ClientID
	StartedAt       time.Time
	DurationMinutes int
	Description     string
	CreatedAt       time.Time
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is an inclusive billing date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on or between the period's start and
// end days. The end day is included in full.
func (p Period) Contains(t time.Time) bool {
	endOfDay := startOfDay(p.End).AddDate(0, 0, 1)
	return !t.Before(startOfDay(p.Start)) && t.Before(endOfDay)
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.DateOnly) + ", " + p.End.Format(time.DateOnly) + "]"
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

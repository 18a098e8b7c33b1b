/*
Package ledger computes financial summaries over a collection of invoices.

PURPOSE:
  Answers "where does the practice stand?" for the dashboard: how much was
  billed, how much is still owed, how old the overdue debt is and who owes
  the most. Every summary is recomputed from scratch; there is no
  incremental state.

TOTALS:
  TotalBilled    = Σ TotalAmount                    (all valid invoices)
  Outstanding    = Σ TotalAmount  status ∈ {sent, overdue}
  TotalPaid      = Σ TotalAmount  status = paid
  CollectionRate = round(TotalPaid / TotalBilled × 100), 0 when nothing billed

  Paid totals follow the invoice status, not the payment list: an invoice
  an operator closed on a partial settlement counts as fully paid.

AGING (overdue invoices only):
  ageDays = (asOf - PeriodEnd) in fractional days
  ageDays > 90  -> Over90
  ageDays > 60  -> Over60
  ageDays > 30  -> Over30
  otherwise     -> no bucket

  An overdue invoice with no PeriodEnd is left out of aging and reported in
  AgingSkipped.

MALFORMED RECORDS:
  An invoice failing billing.Invoice.Validate is skipped, logged and listed
  in Skipped. One bad record never blanks the whole summary.

SEE ALSO:
  - billing/invoice.go: Validate and derived amounts
  - export.go: flat rows for CSV
*/
package ledger

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/billing"
)

// TopClientLimit is the number of entries in Summary.TopClients.
const TopClientLimit = 5

// UnknownClient labels outstanding invoices with neither a client ID nor a
// client name.
const UnknownClient = "Unknown client"

var hundred = decimal.NewFromInt(100)

// =============================================================================
// SUMMARY
// =============================================================================

type Summary struct {
	AsOf           time.Time
	TotalBilled    decimal.Decimal
	Outstanding    decimal.Decimal
	TotalPaid      decimal.Decimal
	CollectionRate int
	StatusCounts   map[string]int
	Aging          Aging
	TopClients     []ClientTotal

	// Skipped lists invoices excluded from every figure.
	Skipped []SkippedInvoice

	// AgingSkipped lists overdue invoices that are counted everywhere except
	// in Aging because they carry no period end.
	AgingSkipped []billing.InvoiceID
}

// Aging buckets are mutually exclusive.
type Aging struct {
	Over30 decimal.Decimal
	Over60 decimal.Decimal
	Over90 decimal.Decimal
}

// Total sums the three buckets.
func (a Aging) Total() decimal.Decimal {
	return a.Over30.Add(a.Over60).Add(a.Over90)
}

type ClientTotal struct {
	Key    string
	Name   string
	Amount decimal.Decimal
}

type SkippedInvoice struct {
	InvoiceID billing.InvoiceID
	Reason    string
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator summarizes invoices. The zero value is usable and silent.
type Aggregator struct {
	Logger zerolog.Logger
}

func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{Logger: logger}
}

// Summarize aggregates without logging.
func Summarize(invoices []billing.Invoice, asOf time.Time) Summary {
	return NewAggregator(zerolog.Nop()).Summarize(invoices, asOf)
}

// Summarize aggregates invoices as of the given instant. The input slice is
// not modified.
func (a *Aggregator) Summarize(invoices []billing.Invoice, asOf time.Time) Summary {
	s := Summary{
		AsOf:         asOf,
		TotalBilled:  decimal.Zero,
		Outstanding:  decimal.Zero,
		TotalPaid:    decimal.Zero,
		StatusCounts: make(map[string]int, len(billing.KnownStatuses)),
		Aging: Aging{
			Over30: decimal.Zero,
			Over60: decimal.Zero,
			Over90: decimal.Zero,
		},
		TopClients: []ClientTotal{},
	}
	for _, st := range billing.KnownStatuses {
		s.StatusCounts[string(st)] = 0
	}

	ranking := newClientRanking()

	for _, inv := range invoices {
		if err := inv.Validate(); err != nil {
			a.Logger.Warn().
				Str("invoice_id", string(inv.ID)).
				Err(err).
				Msg("skipping malformed invoice")
			s.Skipped = append(s.Skipped, SkippedInvoice{InvoiceID: inv.ID, Reason: err.Error()})
			continue
		}

		s.StatusCounts[string(inv.Status)]++
		s.TotalBilled = s.TotalBilled.Add(inv.TotalAmount)

		switch {
		case inv.Status == billing.StatusPaid:
			s.TotalPaid = s.TotalPaid.Add(inv.TotalAmount)
		case inv.Status.Outstanding():
			s.Outstanding = s.Outstanding.Add(inv.TotalAmount)
			ranking.add(inv)
		}

		if inv.Status != billing.StatusOverdue {
			continue
		}
		if inv.PeriodEnd == nil {
			a.Logger.Debug().
				Str("invoice_id", string(inv.ID)).
				Msg("overdue invoice has no period end, excluded from aging")
			s.AgingSkipped = append(s.AgingSkipped, inv.ID)
			continue
		}
		s.Aging.add(AgeDays(*inv.PeriodEnd, asOf), inv.TotalAmount)
	}

	s.CollectionRate = CollectionRate(s.TotalPaid, s.TotalBilled)
	s.TopClients = ranking.top(TopClientLimit)
	return s
}

// AgeDays is the elapsed time from periodEnd to asOf in fractional days.
func AgeDays(periodEnd, asOf time.Time) float64 {
	return asOf.Sub(periodEnd).Hours() / 24
}

func (a *Aging) add(ageDays float64, amount decimal.Decimal) {
	switch {
	case ageDays > 90:
		a.Over90 = a.Over90.Add(amount)
	case ageDays > 60:
		a.Over60 = a.Over60.Add(amount)
	case ageDays > 30:
		a.Over30 = a.Over30.Add(amount)
	}
}

// CollectionRate is paid/billed as a whole percentage, rounded half up.
func CollectionRate(paid, billed decimal.Decimal) int {
	if !billed.IsPositive() {
		return 0
	}
	return int(paid.Mul(hundred).Div(billed).Round(0).IntPart())
}

// =============================================================================
// TOP CLIENTS
// =============================================================================

type clientRanking struct {
	index  map[string]int
	totals []ClientTotal
}

func newClientRanking() *clientRanking {
	return &clientRanking{index: make(map[string]int)}
}

// GroupKey is the ranking key: client ID, then client name, then
// UnknownClient. Two clients without IDs that share a name merge.
func GroupKey(inv billing.Invoice) string {
	switch {
	case inv.ClientID != "":
		return string(inv.ClientID)
	case inv.ClientName != "":
		return inv.ClientName
	default:
		return UnknownClient
	}
}

func (r *clientRanking) add(inv billing.Invoice) {
	key := GroupKey(inv)
	i, ok := r.index[key]
	if !ok {
		name := inv.ClientName
		if name == "" {
			name = key
		}
		r.index[key] = len(r.totals)
		r.totals = append(r.totals, ClientTotal{Key: key, Name: name, Amount: decimal.Zero})
		i = len(r.totals) - 1
	} else if r.totals[i].Name == key && inv.ClientName != "" {
		r.totals[i].Name = inv.ClientName
	}
	r.totals[i].Amount = r.totals[i].Amount.Add(inv.TotalAmount)
}

// top sorts by amount, ties kept in order of first appearance.
func (r *clientRanking) top(n int) []ClientTotal {
	out := make([]ClientTotal, len(r.totals))
	copy(out, r.totals)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

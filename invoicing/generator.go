/*
Package invoicing turns a client's activities into a draft invoice.

PURPOSE:
  Generation is the one place where the rate resolver and the data model
  meet. The client's rules are resolved once, then every activity in the
  billing period becomes one line item:

    quantity   = billable hours   (after minimum and rounding)
    unit price = effective hourly rate
    amount     = quantity × unit price, rounded to cents
    total      = Σ line-item amounts

FAILURE:
  Resolution errors abort generation and nothing is produced. A period
  with no billable minutes fails with ErrNoBillableActivity rather than
  yielding a $0 invoice.

SEE ALSO:
  - rates/rules.go: rule resolution
  - billing/status.go: the draft invoice then follows the lifecycle
*/
package invoicing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/rates"
)

var (
	// ErrNoBillableActivity is returned when the period holds nothing to bill.
	ErrNoBillableActivity = errors.New("no billable activity in period")

	ErrInvalidPeriod = errors.New("invalid billing period")
)

// Request is everything needed to bill one client for one period.
type Request struct {
	Client     billing.Client
	Period     billing.Period
	OrgDefault rates.RuleSet
	Override   *rates.RuleSet

	// Activities may include other clients' or out-of-period entries; they
	// are filtered out.
	Activities []billing.Activity
}

// Generator builds draft invoices.
type Generator struct {
	Resolver *rates.Resolver
	NewID    func() billing.InvoiceID
	Now      func() time.Time
}

func NewGenerator(resolver *rates.Resolver) *Generator {
	if resolver == nil {
		resolver = rates.DefaultResolver()
	}
	return &Generator{
		Resolver: resolver,
		NewID:    func() billing.InvoiceID { return billing.InvoiceID(uuid.NewString()) },
		Now:      time.Now,
	}
}

// Generate produces a draft invoice. The returned EffectiveRuleSet is the
// one every line item was priced with.
func (g *Generator) Generate(req Request) (billing.Invoice, rates.EffectiveRuleSet, error) {
	if !req.Period.Valid() {
		return billing.Invoice{}, rates.EffectiveRuleSet{}, fmt.Errorf("%w: %s", ErrInvalidPeriod, req.Period)
	}

	eff, err := g.Resolver.Resolve(req.OrgDefault, req.Override)
	if err != nil {
		return billing.Invoice{}, rates.EffectiveRuleSet{}, fmt.Errorf("resolve rules for client %s: %w", req.Client.ID, err)
	}

	activities := Billable(req.Activities, req.Client.ID, req.Period)

	items := make([]billing.LineItem, 0, len(activities))
	for _, a := range activities {
		minutes := eff.BillableMinutes(a.DurationMinutes)
		if minutes == 0 {
			continue
		}
		li := billing.NewLineItem(describe(a, minutes), eff.BillableHours(a.DurationMinutes), eff.HourlyRate)
		li.ActivityID = a.ID
		items = append(items, li)
	}
	if len(items) == 0 {
		return billing.Invoice{}, eff, fmt.Errorf("%w: client %s %s", ErrNoBillableActivity, req.Client.ID, req.Period)
	}

	start, end := req.Period.Start, req.Period.End
	inv := billing.Invoice{
		ID:          g.NewID(),
		ClientID:    req.Client.ID,
		ClientName:  req.Client.DisplayName(),
		PeriodStart: &start,
		PeriodEnd:   &end,
		Items:       items,
		Status:      billing.StatusDraft,
		CreatedAt:   g.Now(),
	}
	inv.TotalAmount = inv.ItemsTotal()
	return inv, eff, nil
}

// Billable returns the client's activities inside the period, oldest first.
func Billable(activities []billing.Activity, client billing.ClientID, period billing.Period) []billing.Activity {
	var out []billing.Activity
	for _, a := range activities {
		if a.ClientID == client && period.Contains(a.StartedAt) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func describe(a billing.Activity, billedMinutes int) string {
	desc := a.Description
	if desc == "" {
		desc = "Care management"
	}
	day := a.StartedAt.Format(time.DateOnly)
	if billedMinutes != a.DurationMinutes {
		return fmt.Sprintf("%s %s (%d min, billed %d)", day, desc, a.DurationMinutes, billedMinutes)
	}
	return fmt.Sprintf("%s %s (%d min)", day, desc, a.DurationMinutes)
}

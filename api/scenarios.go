/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates clients, rules and
	activities, then drives invoices through the same generator and
	billing service the API uses.

AVAILABLE SCENARIOS:

	small-practice:  Three clients, one override, invoices in every status
	aging-report:    Overdue invoices 45, 75 and 100 days past period end
	rate-overrides:  Partial overrides inheriting from the org default
	collections:     Seven debtors, only the top five ranked

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the organization default and client overrides
 3. Create clients and activities
 4. Generate draft invoices per client and period
 5. Approve, record payments, mark overdue or paid

All dates are relative to the handler clock so aging stays meaningful.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-practice"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - invoicing/generator.go: Draft generation
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/invoicing"
	"github.com/warp/care-billing/rates"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-practice",
		Name:        "Small Practice",
		Description: "Three clients at $120/hr with 15-minute rounding, one at an override rate; invoices in every status and one overpayment",
		Category:    "billing",
	},
	{
		ID:          "aging-report",
		Name:        "Aging Report",
		Description: "Overdue invoices 45, 75 and 100 days past their period end",
		Category:    "reporting",
	},
	{
		ID:          "rate-overrides",
		Name:        "Rate Overrides",
		Description: "Clients overriding only the rate, only the rounding, or nothing",
		Category:    "billing",
	},
	{
		ID:          "collections",
		Name:        "Collections",
		Description: "Seven clients with outstanding balances; the summary ranks the top five",
		Category:    "reporting",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loaders := map[string]func(context.Context) error{
		"small-practice": h.loadSmallPracticeScenario,
		"aging-report":   h.loadAgingReportScenario,
		"rate-overrides": h.loadRateOverridesScenario,
		"collections":    h.loadCollectionsScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		h.writeDomainError(w, r, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := load(ctx); err != nil {
		h.writeDomainError(w, r, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallPracticeScenario(ctx context.Context) error {
	org := rates.RuleSet{
		HourlyRate:  rates.Rate("120"),
		MinDuration: rates.Minutes(15),
		Rounding:    rates.RoundingPtr(rates.Round15),
	}
	if err := h.Store.SaveOrgDefault(ctx, org); err != nil {
		return err
	}

	if err := h.seedClient(ctx, "client-alvarez", "Maria Alvarez", nil); err != nil {
		return err
	}
	if err := h.seedClient(ctx, "client-chen", "Wei Chen", &rates.RuleSet{HourlyRate: rates.Rate("95")}); err != nil {
		return err
	}
	if err := h.seedClient(ctx, "client-okafor", "Ada Okafor", nil); err != nil {
		return err
	}

	twoMonthsAgo := monthPeriod(h.Now(), -2)
	lastMonth := monthPeriod(h.Now(), -1)

	// Alvarez: paid in full two months ago, sent last month
	if err := h.seedActivities(ctx, "client-alvarez", twoMonthsAgo.Start, 60, 45, 7); err != nil {
		return err
	}
	if err := h.seedActivities(ctx, "client-alvarez", lastMonth.Start, 30, 90); err != nil {
		return err
	}
	paid, err := h.billPeriod(ctx, "client-alvarez", twoMonthsAgo)
	if err != nil {
		return err
	}
	if err := h.settle(ctx, paid, "pay-alvarez-1", paid.TotalAmount, billing.MethodCheck, twoMonthsAgo.End.AddDate(0, 0, 10)); err != nil {
		return err
	}
	if _, err := h.Billing.MarkPaid(ctx, paid.ID); err != nil {
		return err
	}
	sent, err := h.billPeriod(ctx, "client-alvarez", lastMonth)
	if err != nil {
		return err
	}
	if _, err := h.Billing.Approve(ctx, sent.ID); err != nil {
		return err
	}

	// Chen: overdue from two months ago with a partial payment
	if err := h.seedActivities(ctx, "client-chen", twoMonthsAgo.Start, 120, 60, 60); err != nil {
		return err
	}
	overdue, err := h.billPeriod(ctx, "client-chen", twoMonthsAgo)
	if err != nil {
		return err
	}
	if _, err := h.Billing.Approve(ctx, overdue.ID); err != nil {
		return err
	}
	if err := h.settle(ctx, overdue, "pay-chen-1", decimal.NewFromInt(100), billing.MethodZelle, twoMonthsAgo.End.AddDate(0, 0, 20)); err != nil {
		return err
	}
	if _, err := h.Billing.MarkOverdue(ctx, overdue.ID); err != nil {
		return err
	}

	// Okafor: last month still a draft, an earlier invoice overpaid
	if err := h.seedActivities(ctx, "client-okafor", twoMonthsAgo.Start, 50); err != nil {
		return err
	}
	if err := h.seedActivities(ctx, "client-okafor", lastMonth.Start, 20, 20); err != nil {
		return err
	}
	over, err := h.billPeriod(ctx, "client-okafor", twoMonthsAgo)
	if err != nil {
		return err
	}
	if _, err := h.Billing.Approve(ctx, over.ID); err != nil {
		return err
	}
	if err := h.settle(ctx, over, "pay-okafor-1", over.TotalAmount.Add(decimal.NewFromInt(20)), billing.MethodACH, twoMonthsAgo.End.AddDate(0, 0, 5)); err != nil {
		return err
	}
	if _, err := h.Billing.MarkPaid(ctx, over.ID); err != nil {
		return err
	}
	_, err = h.billPeriod(ctx, "client-okafor", lastMonth)
	return err
}

func (h *Handler) loadAgingReportScenario(ctx context.Context) error {
	if err := h.Store.SaveOrgDefault(ctx, rates.RuleSet{HourlyRate: rates.Rate("100")}); err != nil {
		return err
	}

	now := h.Now()
	ages := []struct {
		client  billing.ClientID
		name    string
		days    int
		minutes int
	}{
		// $100 over 30, $150 over 60, $200 over 90, $50 in no bucket
		{"client-recent", "Recent Debtor", 45, 60},
		{"client-slow", "Slow Payer", 75, 90},
		{"client-ancient", "Ancient History", 100, 120},
		{"client-fresh", "Fresh Invoice", 10, 30},
	}
	for _, a := range ages {
		if err := h.seedClient(ctx, a.client, a.name, nil); err != nil {
			return err
		}
		end := startOfDayUTC(now.AddDate(0, 0, -a.days))
		period := billing.Period{Start: end.AddDate(0, 0, -6), End: end}
		if err := h.seedActivities(ctx, a.client, period.Start, a.minutes); err != nil {
			return err
		}
		inv, err := h.billPeriod(ctx, a.client, period)
		if err != nil {
			return err
		}
		if _, err := h.Billing.Approve(ctx, inv.ID); err != nil {
			return err
		}
		if _, err := h.Billing.MarkOverdue(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRateOverridesScenario(ctx context.Context) error {
	org := rates.RuleSet{
		HourlyRate:  rates.Rate("140"),
		MinDuration: rates.Minutes(10),
		Rounding:    rates.RoundingPtr(rates.Round6),
	}
	if err := h.Store.SaveOrgDefault(ctx, org); err != nil {
		return err
	}

	clients := []struct {
		id       billing.ClientID
		name     string
		override *rates.RuleSet
	}{
		{"client-inherits", "Inherits Everything", nil},
		{"client-discount", "Sliding Scale", &rates.RuleSet{HourlyRate: rates.Rate("85.50")}},
		{"client-quarter", "Quarter Hours", &rates.RuleSet{Rounding: rates.RoundingPtr(rates.Round15), MinDuration: rates.Minutes(30)}},
		{"client-exact", "Exact Minutes", &rates.RuleSet{Rounding: rates.RoundingPtr(rates.RoundNone), MinDuration: rates.Minutes(0)}},
	}

	lastMonth := monthPeriod(h.Now(), -1)
	for _, c := range clients {
		if err := h.seedClient(ctx, c.id, c.name, c.override); err != nil {
			return err
		}
		// same work for everyone so the invoices differ only by rules
		if err := h.seedActivities(ctx, c.id, lastMonth.Start, 7, 22, 50, 0); err != nil {
			return err
		}
		if _, err := h.billPeriod(ctx, c.id, lastMonth); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadCollectionsScenario(ctx context.Context) error {
	if err := h.Store.SaveOrgDefault(ctx, rates.RuleSet{HourlyRate: rates.Rate("150")}); err != nil {
		return err
	}

	lastMonth := monthPeriod(h.Now(), -1)
	debtors := []struct {
		id    billing.ClientID
		name  string
		hours int
	}{
		{"client-a", "Abbott Family", 2},
		{"client-b", "Baker Household", 7},
		{"client-c", "Castillo Care", 4},
		{"client-d", "Dubois Trust", 1},
		{"client-e", "Eriksen Estate", 6},
		{"client-f", "Fitzgerald", 3},
		{"client-g", "Gupta Family", 5},
	}
	for i, d := range debtors {
		if err := h.seedClient(ctx, d.id, d.name, nil); err != nil {
			return err
		}
		minutes := make([]int, d.hours)
		for j := range minutes {
			minutes[j] = 60
		}
		if err := h.seedActivities(ctx, d.id, lastMonth.Start, minutes...); err != nil {
			return err
		}
		inv, err := h.billPeriod(ctx, d.id, lastMonth)
		if err != nil {
			return err
		}
		if _, err := h.Billing.Approve(ctx, inv.ID); err != nil {
			return err
		}
		if i%2 == 0 {
			if _, err := h.Billing.MarkOverdue(ctx, inv.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (h *Handler) seedClient(ctx context.Context, id billing.ClientID, name string, override *rates.RuleSet) error {
	client := billing.Client{
		ID:     id,
		Name:   name,
		Email:  string(id) + "@example.com",
		Status: billing.ClientActive,
	}
	if err := h.Store.SaveClient(ctx, client); err != nil {
		return err
	}
	if override != nil {
		return h.Store.SaveOverride(ctx, id, *override)
	}
	return nil
}

// seedActivities records one activity per day from start at 10:00 UTC.
func (h *Handler) seedActivities(ctx context.Context, client billing.ClientID, start time.Time, minutes ...int) error {
	for i, m := range minutes {
		day := startOfDayUTC(start).AddDate(0, 0, i)
		activity := billing.Activity{
			ID:              billing.ActivityID(fmt.Sprintf("%s-%s-%d", client, day.Format("20060102"), i)),
			ClientID:        client,
			StartedAt:       day.Add(10 * time.Hour),
			DurationMinutes: m,
			Description:     "Care coordination call",
		}
		if err := h.Store.SaveActivity(ctx, activity); err != nil {
			return fmt.Errorf("activity %s: %w", activity.ID, err)
		}
	}
	return nil
}

// billPeriod generates and saves a draft invoice the way the API does.
func (h *Handler) billPeriod(ctx context.Context, id billing.ClientID, period billing.Period) (billing.Invoice, error) {
	client, err := h.Store.GetClient(ctx, id)
	if err != nil {
		return billing.Invoice{}, err
	}
	org, err := h.Store.GetOrgDefault(ctx)
	if err != nil {
		return billing.Invoice{}, err
	}
	override, err := h.Store.GetOverride(ctx, id)
	if err != nil {
		return billing.Invoice{}, err
	}
	activities, err := h.Store.ListActivities(ctx, id, period)
	if err != nil {
		return billing.Invoice{}, err
	}

	inv, _, err := h.Generator.Generate(invoicing.Request{
		Client:     *client,
		Period:     period,
		OrgDefault: org,
		Override:   override,
		Activities: activities,
	})
	if err != nil {
		return billing.Invoice{}, err
	}
	return inv, h.Store.SaveInvoice(ctx, inv)
}

func (h *Handler) settle(ctx context.Context, inv billing.Invoice, id billing.PaymentID, amount decimal.Decimal, method string, paidAt time.Time) error {
	_, err := h.Billing.RecordPayment(ctx, inv.ID, billing.Payment{
		ID:        id,
		Amount:    amount,
		Method:    method,
		Status:    billing.PaymentSucceeded,
		PaidAt:    &paidAt,
		Reference: "demo",
	})
	return err
}

// monthPeriod returns the calendar month offset months from now's.
func monthPeriod(now time.Time, offset int) billing.Period {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
	return billing.Period{Start: start, End: start.AddDate(0, 1, -1)}
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/invoicing"
	"github.com/warp/care-billing/rates"
	"github.com/warp/care-billing/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march = billing.Period{
		Start: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	now = time.Date(2025, time.April, 2, 10, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedClient(t *testing.T, store *sqlite.Store, id billing.ClientID, name string) billing.Client {
	c := billing.Client{ID: id, Name: name, Email: name + "@example.com", Status: billing.ClientActive}
	require.NoError(t, store.SaveClient(context.Background(), c))
	return c
}

func sampleInvoice(id billing.InvoiceID, status billing.InvoiceStatus) billing.Invoice {
	start, end := march.Start, march.End
	li := billing.NewLineItem("Care call", billing.MustMoney("0.25"), billing.MustMoney("150"))
	li.ActivityID = "act-1"
	return billing.Invoice{
		ID:          id,
		ClientID:    "c1",
		ClientName:  "Margaret Hill",
		PeriodStart: &start,
		PeriodEnd:   &end,
		Items:       []billing.LineItem{li},
		TotalAmount: li.Amount,
		Status:      status,
		CreatedAt:   now,
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	version, err := store.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	status, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 1)
}

// =============================================================================
// CLIENTS AND RULES
// =============================================================================

func TestStore_Clients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "c2", "Zoe Park")
	c1 := seedClient(t, store, "c1", "Alan Reed")

	got, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Alan Reed", got.Name)
	assert.Equal(t, "Alan Reed@example.com", got.Email)
	assert.Empty(t, got.Phone)
	assert.Equal(t, billing.ClientActive, got.Status)

	// Deactivate instead of delete
	c1.Status = billing.ClientInactive
	require.NoError(t, store.SaveClient(ctx, c1))

	active, err := store.ListClients(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, billing.ClientID("c2"), active[0].ID)

	all, err := store.ListClients(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alan Reed", all[0].Name)

	_, err = store.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, billing.ErrClientNotFound)
}

func TestStore_RuleSets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedClient(t, store, "c1", "Alan Reed")

	// GIVEN: Nothing configured
	org, err := store.GetOrgDefault(ctx)
	require.NoError(t, err)
	assert.True(t, org.IsEmpty())
	override, err := store.GetOverride(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, override)

	// WHEN: Org default and a client override are saved
	require.NoError(t, store.SaveOrgDefault(ctx, rates.RuleSet{HourlyRate: rates.Rate("150")}))
	require.NoError(t, store.SaveOverride(ctx, "c1", rates.RuleSet{
		MinDuration: rates.Minutes(15),
		Rounding:    rates.RoundingPtr(rates.Round15),
	}))

	// THEN: They resolve to the expected effective rules
	org, err = store.GetOrgDefault(ctx)
	require.NoError(t, err)
	override, err = store.GetOverride(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Nil(t, override.HourlyRate)

	eff, err := rates.Resolve(org, override)
	require.NoError(t, err)
	assert.Equal(t, "37.5", eff.Charge(7).String())

	require.NoError(t, store.ClearOverride(ctx, "c1"))
	override, err = store.GetOverride(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, override)
}

func TestStore_RuleSets_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveOrgDefault(ctx, rates.RuleSet{HourlyRate: rates.Rate("0")})
	assert.ErrorIs(t, err, rates.ErrInvalidRate)

	err = store.SaveOverride(ctx, "nobody", rates.RuleSet{})
	assert.ErrorIs(t, err, billing.ErrClientNotFound)
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func TestStore_Activities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedClient(t, store, "c1", "Alan Reed")
	seedClient(t, store, "c2", "Zoe Park")

	at := func(m time.Month, d, h int) time.Time { return time.Date(2025, m, d, h, 0, 0, 0, time.UTC) }
	for _, a := range []billing.Activity{
		{ID: "a3", ClientID: "c1", StartedAt: at(time.March, 31, 23), DurationMinutes: 30},
		{ID: "a1", ClientID: "c1", StartedAt: at(time.March, 1, 0), DurationMinutes: 7, Description: "Intake"},
		{ID: "a2", ClientID: "c2", StartedAt: at(time.March, 5, 9), DurationMinutes: 60},
		{ID: "a4", ClientID: "c1", StartedAt: at(time.April, 1, 0), DurationMinutes: 60},
		{ID: "a0", ClientID: "c1", StartedAt: at(time.February, 28, 23), DurationMinutes: 60},
	} {
		require.NoError(t, store.SaveActivity(ctx, a))
	}

	got, err := store.ListActivities(ctx, "c1", march)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, billing.ActivityID("a1"), got[0].ID)
	assert.Equal(t, "Intake", got[0].Description)
	assert.Equal(t, billing.ActivityID("a3"), got[1].ID)

	err = store.SaveActivity(ctx, billing.Activity{ID: "x", ClientID: "ghost", StartedAt: at(time.March, 2, 0)})
	assert.ErrorIs(t, err, billing.ErrClientNotFound)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestStore_InvoiceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := sampleInvoice("inv-1", billing.StatusDraft)
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "37.5", got.TotalAmount.String())
	assert.Equal(t, billing.StatusDraft, got.Status)
	require.NotNil(t, got.PeriodEnd)
	assert.True(t, got.PeriodEnd.Equal(march.End))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "0.25", got.Items[0].Quantity.String())
	assert.Equal(t, billing.ActivityID("act-1"), got.Items[0].ActivityID)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.Nil(t, got.ApprovedAt)
	require.NoError(t, got.Validate())

	assert.ErrorIs(t, store.SaveInvoice(ctx, inv), billing.ErrConcurrentModification)

	_, err = store.GetInvoice(ctx, "nope")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestStore_InvoiceWithoutPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := billing.Invoice{ID: "imported", ClientName: "Walk-in", TotalAmount: billing.MustMoney("80"), Status: billing.StatusOverdue}
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, "imported")
	require.NoError(t, err)
	assert.Nil(t, got.PeriodEnd)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.ClientID)
}

func TestStore_UpdateStatus_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveInvoice(ctx, sampleInvoice("inv-1", billing.StatusDraft)))

	require.NoError(t, store.UpdateStatus(ctx, billing.StatusChange{
		InvoiceID: "inv-1", From: billing.StatusDraft, To: billing.StatusSent, At: now,
	}))

	// Stale writer
	err := store.UpdateStatus(ctx, billing.StatusChange{
		InvoiceID: "inv-1", From: billing.StatusDraft, To: billing.StatusSent, At: now,
	})
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	err = store.UpdateStatus(ctx, billing.StatusChange{
		InvoiceID: "ghost", From: billing.StatusDraft, To: billing.StatusSent, At: now,
	})
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)

	got, err := store.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSent, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(now))
}

func TestStore_Payments_AppendOnlyAndIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveInvoice(ctx, sampleInvoice("inv-1", billing.StatusSent)))

	paid := now
	p := billing.Payment{
		ID: "pay-1", Amount: billing.MustMoney("50"), Method: billing.MethodZelle,
		Status: billing.PaymentSucceeded, PaidAt: &paid, Reference: "ZL-1",
	}
	require.NoError(t, store.AppendPayment(ctx, "inv-1", p))
	assert.ErrorIs(t, store.AppendPayment(ctx, "inv-1", p), billing.ErrDuplicatePayment)

	pending := billing.Payment{ID: "pay-2", Amount: billing.MustMoney("10"), Method: billing.MethodCheck}
	require.NoError(t, store.AppendPayment(ctx, "inv-1", pending))

	assert.ErrorIs(t, store.AppendPayment(ctx, "ghost", billing.Payment{ID: "pay-3", Amount: billing.MustMoney("1")}),
		billing.ErrInvoiceNotFound)

	got, err := store.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, got.Payments, 2)
	assert.Equal(t, "ZL-1", got.Payments[0].Reference)
	assert.Nil(t, got.Payments[1].PaidAt)
	// Overpayment of 37.50 by 50; pending payment does not count
	assert.Equal(t, "-12.5", got.BalanceRemaining().String())
}

func TestStore_ListInvoices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleInvoice("a", billing.StatusSent)
	b := sampleInvoice("b", billing.StatusPaid)
	b.CreatedAt = now.Add(time.Hour)
	c := sampleInvoice("c", billing.StatusSent)
	c.ClientID = "c2"
	c.CreatedAt = now.Add(2 * time.Hour)
	later := march.End.AddDate(0, 1, 0)
	c.PeriodEnd = &later
	for _, inv := range []billing.Invoice{c, a, b} {
		require.NoError(t, store.SaveInvoice(ctx, inv))
	}

	all, err := store.ListInvoices(ctx, billing.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, billing.InvoiceID("a"), all[0].ID)
	assert.Equal(t, billing.InvoiceID("c"), all[2].ID)

	sent, err := store.ListInvoices(ctx, billing.InvoiceFilter{Statuses: []billing.InvoiceStatus{billing.StatusSent}})
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	mine, err := store.ListInvoices(ctx, billing.InvoiceFilter{ClientID: "c1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	cutoff := march.End.AddDate(0, 0, 1)
	ended, err := store.ListInvoices(ctx, billing.InvoiceFilter{
		Statuses:        []billing.InvoiceStatus{billing.StatusSent},
		PeriodEndBefore: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, billing.InvoiceID("a"), ended[0].ID)
}

func TestStore_ServiceIntegration(t *testing.T) {
	// GIVEN: A client with activities and rules in the database
	// WHEN: An invoice is generated, approved, paid and closed
	// THEN: Every step is persisted
	store := newTestStore(t)
	ctx := context.Background()
	client := seedClient(t, store, "c1", "Alan Reed")
	require.NoError(t, store.SaveOrgDefault(ctx, rates.RuleSet{HourlyRate: rates.Rate("120")}))
	require.NoError(t, store.SaveActivity(ctx, billing.Activity{
		ID: "a1", ClientID: "c1", StartedAt: march.Start.Add(10 * time.Hour), DurationMinutes: 90,
	}))

	org, err := store.GetOrgDefault(ctx)
	require.NoError(t, err)
	activities, err := store.ListActivities(ctx, "c1", march)
	require.NoError(t, err)

	gen := invoicing.NewGenerator(nil)
	inv, _, err := gen.Generate(invoicing.Request{Client: client, Period: march, OrgDefault: org, Activities: activities})
	require.NoError(t, err)
	require.NoError(t, store.SaveInvoice(ctx, inv))

	svc := billing.NewService(store)
	_, err = svc.Approve(ctx, inv.ID)
	require.NoError(t, err)
	paid := now
	_, err = svc.RecordPayment(ctx, inv.ID, billing.Payment{
		ID: "p1", Amount: billing.MustMoney("180"), Method: billing.MethodACH, PaidAt: &paid,
	})
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, inv.ID)
	require.NoError(t, err)

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, got.Status)
	assert.Equal(t, "180", got.TotalAmount.String())
	assert.True(t, got.BalanceRemaining().IsZero())
	assert.NotNil(t, got.PaidAt)
}

/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Client creation and validation
- Rule inheritance through the rules endpoints
- Invoice generation, lifecycle transitions and payments
- Summary, CSV export and the overdue sweep
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/invoicing"
	"github.com/warp/care-billing/rates"
	"github.com/warp/care-billing/store/sqlite"
)

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) *Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, Options{
		SystemRules:      rates.SystemDefault(),
		OverdueAfterDays: 30,
		Logger:           zerolog.Nop(),
	})
	clock := func() time.Time { return testNow }
	h.Now = clock
	h.Billing.Now = clock
	h.Generator.Now = clock
	h.Overdue.Now = clock
	return h
}

func setupTestRouter(t *testing.T) (*Handler, *chi.Mux) {
	h := setupTestHandler(t)
	return h, NewRouter(h, []string{"http://localhost:5173"})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// billedClient creates a client with one activity and generates its May
// invoice at the given org rate.
func billedClient(t *testing.T, router http.Handler, id string, rate string, minutes int) InvoiceDTO {
	t.Helper()

	rec := do(t, router, http.MethodPut, "/api/rules/default", map[string]any{"hourly_rate": rate})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: id, Name: "Client " + id})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/clients/"+id+"/activities", CreateActivityRequest{
		ID:              id + "-act",
		StartedAt:       "2025-05-10T10:00:00Z",
		DurationMinutes: minutes,
		Description:     "Care call",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/invoices", GenerateInvoiceRequest{
		ClientID:    id,
		PeriodStart: "2025-05-01",
		PeriodEnd:   "2025-05-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[GenerateInvoiceResponse](t, rec).Invoice
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClients_CreateGetAndDeactivate(t *testing.T) {
	_, router := setupTestRouter(t)

	// GIVEN: A new client
	rec := do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{
		ID: "c1", Name: "Margaret Hill", Email: "margaret@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[ClientDTO](t, rec)
	assert.Equal(t, "active", created.Status)

	// WHEN: Creating the same ID again
	rec = do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Name: "Someone Else"})
	// THEN: Conflict
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Deactivating
	rec = do(t, router, http.MethodPut, "/api/clients/c1/status", UpdateClientStatusRequest{Status: "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Hidden by default, still retrievable
	active := decodeBody[[]ClientDTO](t, do(t, router, http.MethodGet, "/api/clients", nil))
	assert.Empty(t, active)
	all := decodeBody[[]ClientDTO](t, do(t, router, http.MethodGet, "/api/clients?include_inactive=true", nil))
	require.Len(t, all, 1)
	assert.Equal(t, "inactive", all[0].Status)

	rec = do(t, router, http.MethodGet, "/api/clients/c1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClients_Validation(t *testing.T) {
	_, router := setupTestRouter(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing name", "/api/clients", CreateClientRequest{Email: "a@example.com"}, http.StatusBadRequest},
		{"bad email", "/api/clients", CreateClientRequest{Name: "A", Email: "not-an-email"}, http.StatusBadRequest},
		{"malformed json", "/api/clients", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}

	rec := do(t, router, http.MethodGet, "/api/clients/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/clients/nobody/status", UpdateClientStatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_Inheritance(t *testing.T) {
	_, router := setupTestRouter(t)

	// GIVEN: Nothing configured, the system default applies
	sys := decodeBody[RulesDTO](t, do(t, router, http.MethodGet, "/api/rules/default", nil))
	assert.Equal(t, "150.00", sys.Effective.HourlyRate)
	assert.Equal(t, "none", sys.Effective.Rounding)

	// AND: An org default of $120 with quarter-hour rounding
	rec := do(t, router, http.MethodPut, "/api/rules/default", `{"hourly_rate": 120, "rounding": "nearest-15-minutes"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Name: "Margaret Hill"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: The client overrides only the rate
	rec = do(t, router, http.MethodPut, "/api/clients/c1/rules", `{"hourly_rate": "95"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Rate comes from the override, rounding from the org, minimum from the system
	rules := decodeBody[RulesDTO](t, do(t, router, http.MethodGet, "/api/clients/c1/rules", nil))
	assert.Equal(t, "95.00", rules.Effective.HourlyRate)
	assert.Equal(t, "15m", rules.Effective.Rounding)
	assert.Equal(t, 0, rules.Effective.MinDuration)
	require.NotNil(t, rules.Override)

	// WHEN: The override is cleared
	rec = do(t, router, http.MethodDelete, "/api/clients/c1/rules", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: Everything inherits from the org default
	rules = decodeBody[RulesDTO](t, do(t, router, http.MethodGet, "/api/clients/c1/rules", nil))
	assert.Equal(t, "120.00", rules.Effective.HourlyRate)
	assert.Nil(t, rules.Override)
}

func TestRules_Rejected(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Name: "Margaret Hill"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"zero rate", "/api/rules/default", `{"hourly_rate": 0}`, http.StatusUnprocessableEntity},
		{"negative override", "/api/clients/c1/rules", `{"hourly_rate": "-10"}`, http.StatusUnprocessableEntity},
		{"unknown rounding", "/api/rules/default", `{"rounding": "hourly"}`, http.StatusUnprocessableEntity},
		{"negative minimum", "/api/clients/c1/rules", `{"min_duration": -5}`, http.StatusUnprocessableEntity},
		{"not json", "/api/rules/default", `rate=10`, http.StatusBadRequest},
		{"override for missing client", "/api/clients/ghost/rules", `{"hourly_rate": 90}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	// nothing was stored
	rules := decodeBody[RulesDTO](t, do(t, router, http.MethodGet, "/api/clients/c1/rules", nil))
	assert.Equal(t, "150.00", rules.Effective.HourlyRate)
	assert.Nil(t, rules.Override)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestGenerateInvoice_SevenMinutesAtQuarterHour(t *testing.T) {
	_, router := setupTestRouter(t)

	// GIVEN: $150/hr with 15-minute rounding
	rec := do(t, router, http.MethodPut, "/api/rules/default", `{"hourly_rate": "150", "rounding": "15m"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Name: "Margaret Hill"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// AND: A 7-minute call in March, plus one outside the period
	for _, a := range []CreateActivityRequest{
		{ID: "a1", StartedAt: "2025-03-04T09:00:00Z", DurationMinutes: 7},
		{ID: "a2", StartedAt: "2025-04-02T09:00:00Z", DurationMinutes: 60},
	} {
		rec = do(t, router, http.MethodPost, "/api/clients/c1/activities", a)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// WHEN: Generating March
	rec = do(t, router, http.MethodPost, "/api/invoices", GenerateInvoiceRequest{
		ClientID: "c1", PeriodStart: "2025-03-01", PeriodEnd: "2025-03-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[GenerateInvoiceResponse](t, rec)

	// THEN: One line billed as a quarter hour
	assert.Equal(t, "draft", resp.Invoice.Status)
	assert.Equal(t, "37.50", resp.Invoice.TotalAmount)
	assert.Equal(t, "37.50", resp.Invoice.BalanceRemaining)
	require.Len(t, resp.Invoice.Items, 1)
	assert.Equal(t, "0.25", resp.Invoice.Items[0].Quantity)
	assert.Equal(t, "a1", resp.Invoice.Items[0].ActivityID)
	assert.Equal(t, "15m", resp.EffectiveRules.Rounding)

	// AND: It is stored
	got := decodeBody[InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices/"+resp.Invoice.ID, nil))
	assert.Equal(t, resp.Invoice.TotalAmount, got.TotalAmount)
}

func TestGenerateInvoice_Errors(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/clients", CreateClientRequest{ID: "c1", Name: "Margaret Hill"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name string
		req  GenerateInvoiceRequest
		want int
	}{
		{"no activities", GenerateInvoiceRequest{ClientID: "c1", PeriodStart: "2025-03-01", PeriodEnd: "2025-03-31"}, http.StatusUnprocessableEntity},
		{"unknown client", GenerateInvoiceRequest{ClientID: "ghost", PeriodStart: "2025-03-01", PeriodEnd: "2025-03-31"}, http.StatusNotFound},
		{"inverted period", GenerateInvoiceRequest{ClientID: "c1", PeriodStart: "2025-03-31", PeriodEnd: "2025-03-01"}, http.StatusBadRequest},
		{"bad date", GenerateInvoiceRequest{ClientID: "c1", PeriodStart: "03/01/2025", PeriodEnd: "2025-03-31"}, http.StatusBadRequest},
		{"missing client", GenerateInvoiceRequest{PeriodStart: "2025-03-01", PeriodEnd: "2025-03-31"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/invoices", tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	invoices := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices", nil))
	assert.Empty(t, invoices)
}

func TestInvoiceLifecycle_PaymentsAndTransitions(t *testing.T) {
	_, router := setupTestRouter(t)

	// GIVEN: A $100 draft
	inv := billedClient(t, router, "c1", "100", 60)
	require.Equal(t, "100.00", inv.TotalAmount)
	base := "/api/invoices/" + inv.ID

	// WHEN: Approving twice
	rec := do(t, router, http.MethodPost, base+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sent", decodeBody[InvoiceDTO](t, rec).Status)

	// THEN: The second approval conflicts
	rec = do(t, router, http.MethodPost, base+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: $120 is received
	rec = do(t, router, http.MethodPost, base+"/payments", RecordPaymentRequest{
		ID: "p1", Amount: "120", Method: "Check", Reference: "1042",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decodeBody[InvoiceDTO](t, rec)

	// THEN: Overpayment shows as a negative balance, status untouched
	assert.Equal(t, "120.00", paid.PaidAmount)
	assert.Equal(t, "-20.00", paid.BalanceRemaining)
	assert.True(t, paid.Overpaid)
	assert.Equal(t, "sent", paid.Status)
	require.Len(t, paid.Payments, 1)
	assert.Equal(t, "check", paid.Payments[0].Method)
	assert.NotNil(t, paid.Payments[0].PaidAt)

	// AND: Retrying the same payment ID conflicts
	rec = do(t, router, http.MethodPost, base+"/payments", RecordPaymentRequest{ID: "p1", Amount: "120", Method: "check"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Closing the invoice
	rec = do(t, router, http.MethodPost, base+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[InvoiceDTO](t, rec)
	assert.Equal(t, "paid", closed.Status)
	assert.NotNil(t, closed.PaidAt)

	// THEN: Paid is terminal
	rec = do(t, router, http.MethodPost, base+"/mark-overdue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/invoices/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordPayment_Rejected(t *testing.T) {
	_, router := setupTestRouter(t)
	inv := billedClient(t, router, "c1", "100", 60)
	base := "/api/invoices/" + inv.ID + "/payments"

	tests := []struct {
		name string
		req  RecordPaymentRequest
		want int
	}{
		{"negative amount", RecordPaymentRequest{Amount: "-5", Method: "cash"}, http.StatusBadRequest},
		{"zero amount", RecordPaymentRequest{Amount: "0", Method: "cash"}, http.StatusBadRequest},
		{"not a number", RecordPaymentRequest{Amount: "ten", Method: "cash"}, http.StatusBadRequest},
		{"missing method", RecordPaymentRequest{Amount: "10"}, http.StatusBadRequest},
		{"bad paid_at", RecordPaymentRequest{Amount: "10", Method: "cash", PaidAt: "yesterday"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, base, tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	// Payments on a draft are accepted; a pending one does not count
	rec := do(t, router, http.MethodPost, base, RecordPaymentRequest{Amount: "40", Method: "ach", Pending: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decodeBody[InvoiceDTO](t, rec)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, "0.00", got.PaidAmount)
	assert.Equal(t, "100.00", got.BalanceRemaining)
}

func TestListInvoices_Filters(t *testing.T) {
	_, router := setupTestRouter(t)
	a := billedClient(t, router, "c1", "100", 60)
	billedClient(t, router, "c2", "100", 30)

	rec := do(t, router, http.MethodPost, "/api/invoices/"+a.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sent := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices?status=sent,overdue", nil))
	require.Len(t, sent, 1)
	assert.Equal(t, a.ID, sent[0].ID)

	byClient := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices?client_id=c2", nil))
	require.Len(t, byClient, 1)
	assert.Equal(t, "50.00", byClient[0].TotalAmount)

	rec = do(t, router, http.MethodGet, "/api/invoices?status=void", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REPORTING
// =============================================================================

func seedStatusInvoices(t *testing.T, h *Handler) {
	t.Helper()
	ctx := context.Background()
	asOf := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	invoices := []struct {
		id     billing.InvoiceID
		client billing.ClientID
		status billing.InvoiceStatus
		amount string
		age    int
	}{
		{"inv-draft", "c1", billing.StatusDraft, "50", 5},
		{"inv-sent", "c2", billing.StatusSent, "100", 10},
		{"inv-overdue", "c3", billing.StatusOverdue, "100", 45},
		{"inv-paid", "c1", billing.StatusPaid, "100", 60},
	}
	for _, s := range invoices {
		end := asOf.AddDate(0, 0, -s.age)
		require.NoError(t, h.Store.SaveInvoice(ctx, billing.Invoice{
			ID:          s.id,
			ClientID:    s.client,
			ClientName:  "Client " + string(s.client),
			PeriodEnd:   &end,
			TotalAmount: billing.MustMoney(s.amount),
			Status:      s.status,
			CreatedAt:   end,
		}))
	}
}

func TestGetSummary(t *testing.T) {
	h, router := setupTestRouter(t)
	seedStatusInvoices(t, h)

	rec := do(t, router, http.MethodGet, "/api/summary?as_of=2025-05-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeBody[SummaryDTO](t, rec)

	assert.Equal(t, "2025-05-01", s.AsOf)
	assert.Equal(t, "350.00", s.TotalBilled)
	assert.Equal(t, "200.00", s.Outstanding)
	assert.Equal(t, "100.00", s.TotalPaid)
	assert.Equal(t, 29, s.CollectionRate)
	assert.Equal(t, map[string]int{"draft": 1, "sent": 1, "paid": 1, "overdue": 1}, s.StatusCounts)
	assert.Equal(t, AgingDTO{Over30: "100.00", Over60: "0.00", Over90: "0.00"}, s.Aging)
	require.Len(t, s.TopClients, 2)
	assert.Equal(t, "100.00", s.TopClients[0].Amount)
	assert.Empty(t, s.Skipped)

	rec = do(t, router, http.MethodGet, "/api/summary?as_of=May", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummary_Empty(t *testing.T) {
	_, router := setupTestRouter(t)

	s := decodeBody[SummaryDTO](t, do(t, router, http.MethodGet, "/api/summary", nil))
	assert.Equal(t, "0.00", s.TotalBilled)
	assert.Equal(t, 0, s.CollectionRate)
	assert.Equal(t, testNow.Format(time.DateOnly), s.AsOf)
	assert.Empty(t, s.TopClients)
}

func TestExportInvoices_CSV(t *testing.T) {
	h, router := setupTestRouter(t)
	seedStatusInvoices(t, h)

	rec := do(t, router, http.MethodGet, "/api/invoices/export?status=overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "invoice_id,client,amount,paid,balance,status,period_end", lines[0])
	assert.Equal(t, "inv-overdue,Client c3,100.00,0.00,100.00,overdue,2025-03-17", lines[1])
}

func TestOverdueSweep(t *testing.T) {
	h, router := setupTestRouter(t)
	ctx := context.Background()

	// GIVEN: Two sent invoices, one ended 75 days ago, one 14 days ago,
	// and a sent invoice with no period end
	for id, days := range map[billing.InvoiceID]int{"inv-old": 75, "inv-new": 14} {
		end := testNow.AddDate(0, 0, -days)
		require.NoError(t, h.Store.SaveInvoice(ctx, billing.Invoice{
			ID: id, ClientID: "c1", PeriodEnd: &end,
			TotalAmount: billing.MustMoney("80"), Status: billing.StatusSent, CreatedAt: end,
		}))
	}
	require.NoError(t, h.Store.SaveInvoice(ctx, billing.Invoice{
		ID: "inv-undated", ClientID: "c1", TotalAmount: billing.MustMoney("80"),
		Status: billing.StatusSent, CreatedAt: testNow,
	}))

	// WHEN: Sweeping with a 30-day grace period
	rec := do(t, router, http.MethodPost, "/api/overdue/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[SweepDTO](t, rec)

	// THEN: Only the old one moved
	assert.Equal(t, []string{"inv-old"}, result.Marked)
	assert.Equal(t, 1, result.Checked)

	old, err := h.Store.GetInvoice(ctx, "inv-old")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusOverdue, old.Status)
	assert.NotNil(t, old.OverdueAt)

	fresh, err := h.Store.GetInvoice(ctx, "inv-new")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSent, fresh.Status)

	// AND: A second sweep finds nothing
	again, err := h.Overdue.Sweep(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, again.Checked)

	status := decodeBody[map[string]any](t, do(t, router, http.MethodGet, "/api/overdue/status", nil))
	assert.Equal(t, float64(30), status["after_days"])
	assert.Contains(t, status, "last_run")
}

func TestOverdueScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	end := testNow.AddDate(0, 0, -40)
	require.NoError(t, h.Store.SaveInvoice(ctx, billing.Invoice{
		ID: "inv-1", ClientID: "c1", PeriodEnd: &end,
		TotalAmount: billing.MustMoney("10"), Status: billing.StatusSent, CreatedAt: end,
	}))

	h.Overdue.CheckInterval = time.Hour
	h.Overdue.Start()
	h.Overdue.Stop()
	h.Overdue.Stop()

	// the first sweep runs on start
	last, ok := h.Overdue.LastRun()
	require.True(t, ok)
	assert.Len(t, last.Marked, 1)

	h.Overdue.Enabled = false
	h.Overdue.Start()
	h.Overdue.Stop()
}

func TestOverdueScheduler_ConcurrentStartStop(t *testing.T) {
	// GIVEN: A running scheduler
	// WHEN: Start and Stop race from several goroutines
	// THEN: Every call returns and a final Stop leaves it stopped

	h := setupTestHandler(t)
	h.Overdue.CheckInterval = time.Hour

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Overdue.Start()
		}()
		go func() {
			defer wg.Done()
			h.Overdue.Stop()
		}()
	}
	wg.Wait()
	h.Overdue.Stop()

	h.Overdue.mu.Lock()
	defer h.Overdue.mu.Unlock()
	assert.Nil(t, h.Overdue.ticker)
	assert.Nil(t, h.Overdue.stop)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{billing.ErrInvoiceNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", billing.ErrClientNotFound), http.StatusNotFound},
		{&billing.TransitionError{From: billing.StatusPaid, To: billing.StatusSent}, http.StatusConflict},
		{billing.ErrDuplicatePayment, http.StatusConflict},
		{billing.ErrConcurrentModification, http.StatusConflict},
		{&rates.InvalidRateError{Rate: "0"}, http.StatusUnprocessableEntity},
		{invoicing.ErrNoBillableActivity, http.StatusUnprocessableEntity},
		{&billing.PaymentError{Reason: "amount must be positive"}, http.StatusBadRequest},
		{invoicing.ErrInvalidPeriod, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

/*
handlers.go - HTTP API handlers for the billing console

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the rates, invoicing, billing and
  ledger packages.

ENDPOINTS:
  Clients:
    GET    /api/clients                       List clients (?include_inactive=true)
    POST   /api/clients                       Create client
    GET    /api/clients/{id}                  Get client
    PUT    /api/clients/{id}/status           Activate / deactivate

  Rules:
    GET    /api/rules/default                 Organization default
    PUT    /api/rules/default                 Replace organization default
    GET    /api/clients/{id}/rules            Default, override and effective rules
    PUT    /api/clients/{id}/rules            Replace client override
    DELETE /api/clients/{id}/rules            Clear client override

  Activities:
    GET    /api/clients/{id}/activities       List (?from=YYYY-MM-DD&to=YYYY-MM-DD)
    POST   /api/clients/{id}/activities       Record activity

  Invoices:
    GET    /api/invoices                      List (?client_id=&status=sent,overdue)
    POST   /api/invoices                      Generate draft from activities
    GET    /api/invoices/export               CSV export
    GET    /api/invoices/{id}                 Get invoice
    POST   /api/invoices/{id}/approve         draft -> sent
    POST   /api/invoices/{id}/mark-overdue    sent -> overdue
    POST   /api/invoices/{id}/mark-paid       sent/overdue -> paid
    POST   /api/invoices/{id}/payments        Record payment

  Reporting:
    GET    /api/summary                       Ledger summary (?as_of=YYYY-MM-DD)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Rules: JSON to RuleSet conversion
  - Generator: Activities to draft invoices
  - Billing: Load / transition / persist for status and payments
  - Ledger: Summary aggregation
  - Overdue: The overdue sweep, also run by the scheduler

REQUEST FLOW:
  1. Parse and validate the request (validator tags on *Request types)
  2. Load a fresh snapshot from the store
  3. Call domain logic
  4. Persist and serialize the response

ERROR HANDLING:
  Errors are returned as JSON {error, details} with an HTTP status picked
  by statusFor:
  - 400: Invalid input, malformed payment, bad period
  - 404: Client or invoice not found
  - 409: Invalid transition, duplicate payment, lost update
  - 422: Rule errors (non-positive rate, unknown rounding), nothing billable
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Overdue sweep
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/factory"
	"github.com/warp/care-billing/invoicing"
	"github.com/warp/care-billing/ledger"
	"github.com/warp/care-billing/rates"
	"github.com/warp/care-billing/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler.
type Options struct {
	// SystemRules is the final fallback below the organization default.
	SystemRules rates.EffectiveRuleSet

	// OverdueAfterDays is how long after its period end a sent invoice
	// becomes overdue.
	OverdueAfterDays int

	Logger zerolog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Rules     *factory.RuleSetFactory
	Resolver  *rates.Resolver
	Generator *invoicing.Generator
	Billing   *billing.Service
	Ledger    *ledger.Aggregator
	Overdue   *OverdueScheduler
	Logger    zerolog.Logger
	Now       func() time.Time

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the billing components around the store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	resolver := rates.NewResolver(opts.SystemRules)
	svc := billing.NewService(store)

	h := &Handler{
		Store:     store,
		Rules:     factory.NewRuleSetFactory(),
		Resolver:  resolver,
		Generator: invoicing.NewGenerator(resolver),
		Billing:   svc,
		Ledger:    ledger.NewAggregator(opts.Logger.With().Str("component", "ledger").Logger()),
		Logger:    opts.Logger,
		Now:       time.Now,
		validate:  validator.New(),
	}
	h.Overdue = NewOverdueScheduler(store, svc, opts.Logger.With().Str("component", "overdue").Logger())
	h.Overdue.AfterDays = opts.OverdueAfterDays
	return h
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns active clients, or all with ?include_inactive=true.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	clients, err := h.Store.ListClients(r.Context(), includeInactive)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	client, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// CreateClient creates a new active client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	client := billing.Client{
		ID:     billing.ClientID(req.ID),
		Name:   strings.TrimSpace(req.Name),
		Email:  req.Email,
		Phone:  req.Phone,
		Status: billing.ClientActive,
	}

	ctx := r.Context()
	if _, err := h.Store.GetClient(ctx, client.ID); err == nil {
		writeError(w, http.StatusConflict, "Client already exists", nil)
		return
	} else if !errors.Is(err, billing.ErrClientNotFound) {
		h.writeDomainError(w, r, "Failed to create client", err)
		return
	}

	if err := h.Store.SaveClient(ctx, client); err != nil {
		h.writeDomainError(w, r, "Failed to create client", err)
		return
	}

	saved, err := h.Store.GetClient(ctx, client.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*saved))
}

// UpdateClientStatus activates or deactivates a client. Clients are never
// deleted.
func (h *Handler) UpdateClientStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateClientStatusRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	client, err := h.Store.GetClient(ctx, billing.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}

	client.Status = billing.ClientStatus(req.Status)
	if err := h.Store.SaveClient(ctx, *client); err != nil {
		h.writeDomainError(w, r, "Failed to update client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// GetOrgDefault returns the organization default and what it resolves to
// on its own.
func (h *Handler) GetOrgDefault(w http.ResponseWriter, r *http.Request) {
	org, err := h.Store.GetOrgDefault(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to load organization default", err)
		return
	}

	eff, err := h.Resolver.Resolve(org, nil)
	if err != nil {
		h.writeDomainError(w, r, "Organization default does not resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, RulesDTO{
		OrgDefault: h.Rules.ToJSON(org),
		Effective:  h.Rules.ToEffectiveJSON(eff),
	})
}

// PutOrgDefault replaces the organization default. Omitted fields fall back
// to the system default.
func (h *Handler) PutOrgDefault(w http.ResponseWriter, r *http.Request) {
	rs, err := h.decodeRuleSet(r)
	if err != nil {
		h.writeDomainError(w, r, "Invalid rule set", err)
		return
	}

	// resolve before saving so a default that could never bill is rejected
	eff, err := h.Resolver.Resolve(rs, nil)
	if err != nil {
		h.writeDomainError(w, r, "Invalid rule set", err)
		return
	}
	if err := h.Store.SaveOrgDefault(r.Context(), rs); err != nil {
		h.writeDomainError(w, r, "Failed to save organization default", err)
		return
	}
	writeJSON(w, http.StatusOK, RulesDTO{
		OrgDefault: h.Rules.ToJSON(rs),
		Effective:  h.Rules.ToEffectiveJSON(eff),
	})
}

// GetClientRules returns every level of the hierarchy for one client.
func (h *Handler) GetClientRules(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetClient(ctx, id); err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}
	org, override, err := h.loadRules(r, id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load rules", err)
		return
	}

	eff, err := h.Resolver.Resolve(org, override)
	if err != nil {
		h.writeDomainError(w, r, "Rules do not resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, h.rulesDTO(id, org, override, eff))
}

// PutClientOverride replaces a client's override.
func (h *Handler) PutClientOverride(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	override, err := h.decodeRuleSet(r)
	if err != nil {
		h.writeDomainError(w, r, "Invalid rule set", err)
		return
	}
	org, err := h.Store.GetOrgDefault(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to load organization default", err)
		return
	}
	eff, err := h.Resolver.Resolve(org, &override)
	if err != nil {
		h.writeDomainError(w, r, "Invalid rule set", err)
		return
	}

	if err := h.Store.SaveOverride(r.Context(), id, override); err != nil {
		h.writeDomainError(w, r, "Failed to save override", err)
		return
	}
	writeJSON(w, http.StatusOK, h.rulesDTO(id, org, &override, eff))
}

// ClearClientOverride removes a client's override.
func (h *Handler) ClearClientOverride(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetClient(ctx, id); err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}
	if err := h.Store.ClearOverride(ctx, id); err != nil {
		h.writeDomainError(w, r, "Failed to clear override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadRules(r *http.Request, id billing.ClientID) (rates.RuleSet, *rates.RuleSet, error) {
	org, err := h.Store.GetOrgDefault(r.Context())
	if err != nil {
		return rates.RuleSet{}, nil, err
	}
	override, err := h.Store.GetOverride(r.Context(), id)
	if err != nil {
		return rates.RuleSet{}, nil, err
	}
	return org, override, nil
}

func (h *Handler) rulesDTO(id billing.ClientID, org rates.RuleSet, override *rates.RuleSet, eff rates.EffectiveRuleSet) RulesDTO {
	dto := RulesDTO{
		ClientID:   string(id),
		OrgDefault: h.Rules.ToJSON(org),
		Effective:  h.Rules.ToEffectiveJSON(eff),
	}
	if override != nil {
		o := h.Rules.ToJSON(*override)
		dto.Override = &o
	}
	return dto
}

func (h *Handler) decodeRuleSet(r *http.Request) (rates.RuleSet, error) {
	var rj factory.RuleSetJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		return rates.RuleSet{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return h.Rules.FromJSON(rj)
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

// CreateActivity records a billable activity for a client.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid started_at format (use RFC3339)", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	activity := billing.Activity{
		ID:              billing.ActivityID(req.ID),
		ClientID:        billing.ClientID(chi.URLParam(r, "id")),
		StartedAt:       startedAt,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
		CreatedAt:       h.Now(),
	}
	if err := h.Store.SaveActivity(r.Context(), activity); err != nil {
		h.writeDomainError(w, r, "Failed to save activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(activity))
}

// ListActivities returns a client's activities in [from, to]. The range
// defaults to the current month.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	now := h.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	period, err := parsePeriod(
		r.URL.Query().Get("from"), r.URL.Query().Get("to"),
		monthStart, monthStart.AddDate(0, 1, -1),
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	activities, err := h.Store.ListActivities(r.Context(), id, period)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list activities", err)
		return
	}

	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = toActivityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice bills a client's activities for a period as a draft.
// Nothing is persisted if the rules do not resolve.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd, time.Time{}, time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	client, err := h.Store.GetClient(ctx, billing.ClientID(req.ClientID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}
	org, override, err := h.loadRules(r, client.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load rules", err)
		return
	}
	activities, err := h.Store.ListActivities(ctx, client.ID, period)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list activities", err)
		return
	}

	inv, eff, err := h.Generator.Generate(invoicing.Request{
		Client:     *client,
		Period:     period,
		OrgDefault: org,
		Override:   override,
		Activities: activities,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to generate invoice", err)
		return
	}
	if err := h.Store.SaveInvoice(ctx, inv); err != nil {
		h.writeDomainError(w, r, "Failed to save invoice", err)
		return
	}

	h.Logger.Info().
		Str("invoice_id", string(inv.ID)).
		Str("client_id", string(client.ID)).
		Int("line_items", len(inv.Items)).
		Str("total", money(inv.TotalAmount)).
		Msg("invoice generated")

	writeJSON(w, http.StatusCreated, GenerateInvoiceResponse{
		Invoice:        toInvoiceDTO(inv),
		EffectiveRules: h.Rules.ToEffectiveJSON(eff),
	})
}

// ListInvoices returns invoices, optionally by client and status.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	invoices, err := h.Store.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns a single invoice with payments and balance.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Store.GetInvoice(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// ApproveInvoice moves a draft to sent.
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, billing.StatusSent)
}

// MarkInvoiceOverdue moves a sent invoice to overdue.
func (h *Handler) MarkInvoiceOverdue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, billing.StatusOverdue)
}

// MarkInvoicePaid closes a sent or overdue invoice. The balance is not
// checked: an operator may close on a partial settlement.
func (h *Handler) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, billing.StatusPaid)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to billing.InvoiceStatus) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, err := h.Billing.Transition(r.Context(), id, to)
	if err != nil {
		h.writeDomainError(w, r, fmt.Sprintf("Failed to move invoice to %s", to), err)
		return
	}

	h.Logger.Info().
		Str("invoice_id", string(id)).
		Str("status", string(inv.Status)).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("invoice status changed")
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// RecordPayment appends a payment. The invoice status is unchanged.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	payment := billing.Payment{
		ID:        billing.PaymentID(req.ID),
		Amount:    amount,
		Method:    strings.ToLower(req.Method),
		Status:    req.Status,
		Reference: req.Reference,
		CreatedAt: h.Now(),
	}
	if payment.ID == "" {
		payment.ID = billing.PaymentID(uuid.NewString())
	}
	if payment.Status == "" {
		payment.Status = billing.PaymentSucceeded
	}
	switch {
	case req.Pending:
	case req.PaidAt != "":
		paidAt, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at format (use RFC3339)", err)
			return
		}
		payment.PaidAt = &paidAt
	default:
		now := h.Now()
		payment.PaidAt = &now
	}

	inv, err := h.Billing.RecordPayment(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")), payment)
	if err != nil {
		h.writeDomainError(w, r, "Failed to record payment", err)
		return
	}

	if inv.Overpaid() {
		h.Logger.Warn().
			Str("invoice_id", string(inv.ID)).
			Str("balance", money(inv.BalanceRemaining())).
			Msg("invoice overpaid")
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// GetSummary aggregates every stored invoice as of a date (default today).
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	asOf := h.Now()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		asOf = d
	}

	invoices, err := h.Store.ListInvoices(r.Context(), billing.InvoiceFilter{})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, NewSummaryDTO(h.Ledger.Summarize(invoices, asOf)))
}

// ExportInvoices writes matching invoices as CSV, one row per invoice.
func (h *Handler) ExportInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	invoices, err := h.Store.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list invoices", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteCSV(w, ledger.ExportRows(invoices)); err != nil {
		h.Logger.Error().Err(err).Msg("csv export interrupted")
	}
}

// WriteCSV writes the export header and one record per row.
func WriteCSV(w io.Writer, rows []ledger.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.ExportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// OVERDUE HANDLERS
// =============================================================================

// RunOverdueSweep runs the overdue sweep now.
// POST /api/overdue/run
func (h *Handler) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Overdue.Sweep(r.Context(), h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(result))
}

// GetOverdueStatus reports the scheduler state and its last run.
// GET /api/overdue/status
func (h *Handler) GetOverdueStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"enabled":    h.Overdue.Enabled,
		"after_days": h.Overdue.AfterDays,
		"interval":   h.Overdue.CheckInterval.String(),
		"next_run":   h.Overdue.GetNextRunTime().UTC().Format(time.RFC3339),
	}
	if last, ok := h.Overdue.LastRun(); ok {
		resp["last_run"] = toSweepDTO(last)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, r, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into dst and runs its validator tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return h.validate.Struct(dst)
}

// parsePeriod parses two YYYY-MM-DD dates. Empty values take the defaults.
func parsePeriod(from, to string, defFrom, defTo time.Time) (billing.Period, error) {
	period := billing.Period{Start: defFrom, End: defTo}
	if from != "" {
		d, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return billing.Period{}, err
		}
		period.Start = d
	}
	if to != "" {
		d, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return billing.Period{}, err
		}
		period.End = d
	}
	if !period.Valid() {
		return billing.Period{}, fmt.Errorf("%w: %s", invoicing.ErrInvalidPeriod, period)
	}
	return period, nil
}

func invoiceFilter(r *http.Request) (billing.InvoiceFilter, error) {
	q := r.URL.Query()
	filter := billing.InvoiceFilter{ClientID: billing.ClientID(q.Get("client_id"))}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st := billing.InvoiceStatus(strings.TrimSpace(part))
			if !st.Known() {
				return billing.InvoiceFilter{}, fmt.Errorf("unknown status %q", part)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	return filter, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	case rates.IsRuleError(err), errors.Is(err, invoicing.ErrNoBillableActivity):
		return http.StatusUnprocessableEntity
	case billing.IsClientError(err), errors.Is(err, invoicing.ErrInvalidPeriod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError picks the status from the error and logs server faults.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

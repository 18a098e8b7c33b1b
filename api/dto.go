/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing model from the external API contract. Money always crosses
  the wire as a string fixed to cents so no client ever sees a float.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Clients:
    ClientDTO, CreateClientRequest, UpdateClientStatusRequest

  Rules:
    RulesDTO (wraps factory.RuleSetJSON / factory.EffectiveJSON)

  Activities:
    ActivityDTO, CreateActivityRequest

  Invoices:
    InvoiceDTO, LineItemDTO, PaymentDTO, GenerateInvoiceRequest,
    GenerateInvoiceResponse, RecordPaymentRequest

  Summary:
    SummaryDTO, AgingDTO, ClientTotalDTO, SkippedDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.decode, which rejects malformed JSON and failed tags with 400.
  Domain rules (positive rates, known rounding modes) stay in the domain
  packages and surface as 422.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: RuleSetJSON / EffectiveJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/billing"
	"github.com/warp/care-billing/factory"
	"github.com/warp/care-billing/ledger"
)

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateClientRequest creates a client. ID is generated when empty.
type CreateClientRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
}

type UpdateClientStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// =============================================================================
// RULES
// =============================================================================

// RulesDTO shows every level of the rule hierarchy for one client.
type RulesDTO struct {
	ClientID   string                `json:"client_id,omitempty"`
	OrgDefault factory.RuleSetJSON   `json:"org_default"`
	Override   *factory.RuleSetJSON  `json:"override"`
	Effective  factory.EffectiveJSON `json:"effective"`
}

// =============================================================================
// ACTIVITIES
// =============================================================================

type ActivityDTO struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id"`
	StartedAt       string `json:"started_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description,omitempty"`
}

// CreateActivityRequest records an activity. StartedAt is RFC3339.
type CreateActivityRequest struct {
	ID              string `json:"id"`
	StartedAt       string `json:"started_at" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Description     string `json:"description" validate:"max=500"`
}

// =============================================================================
// INVOICES
// =============================================================================

type LineItemDTO struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
	ActivityID  string `json:"activity_id,omitempty"`
}

type PaymentDTO struct {
	ID        string  `json:"id"`
	Amount    string  `json:"amount"`
	Method    string  `json:"method"`
	Status    string  `json:"status,omitempty"`
	PaidAt    *string `json:"paid_at"`
	Reference string  `json:"reference,omitempty"`
}

// InvoiceDTO represents an invoice with its derived amounts.
type InvoiceDTO struct {
	ID               string        `json:"id"`
	ClientID         string        `json:"client_id"`
	ClientName       string        `json:"client_name"`
	PeriodStart      *string       `json:"period_start"`
	PeriodEnd        *string       `json:"period_end"`
	Status           string        `json:"status"`
	TotalAmount      string        `json:"total_amount"`
	PaidAmount       string        `json:"paid_amount"`
	BalanceRemaining string        `json:"balance_remaining"`
	Overpaid         bool          `json:"overpaid"`
	Items            []LineItemDTO `json:"items"`
	Payments         []PaymentDTO  `json:"payments"`
	CreatedAt        string        `json:"created_at"`
	ApprovedAt       *string       `json:"approved_at,omitempty"`
	OverdueAt        *string       `json:"overdue_at,omitempty"`
	PaidAt           *string       `json:"paid_at,omitempty"`
}

// GenerateInvoiceRequest bills a client's activities for a period.
// Dates are YYYY-MM-DD and inclusive.
type GenerateInvoiceRequest struct {
	ClientID    string `json:"client_id" validate:"required"`
	PeriodStart string `json:"period_start" validate:"required"`
	PeriodEnd   string `json:"period_end" validate:"required"`
}

// GenerateInvoiceResponse returns the draft and the rules it was priced with.
type GenerateInvoiceResponse struct {
	Invoice        InvoiceDTO            `json:"invoice"`
	EffectiveRules factory.EffectiveJSON `json:"effective_rules"`
}

// RecordPaymentRequest appends a payment. ID is generated when empty, but
// clients that retry should send one: the payment ID is the idempotency key.
// PaidAt defaults to now unless Pending is set.
type RecordPaymentRequest struct {
	ID        string `json:"id"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Method    string `json:"method" validate:"required,max=40"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at"`
	Pending   bool   `json:"pending"`
	Reference string `json:"reference" validate:"max=100"`
}

// =============================================================================
// SUMMARY
// =============================================================================

type AgingDTO struct {
	Over30 string `json:"over_30"`
	Over60 string `json:"over_60"`
	Over90 string `json:"over_90"`
}

type ClientTotalDTO struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type SkippedDTO struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

// SummaryDTO is the dashboard payload.
type SummaryDTO struct {
	AsOf           string           `json:"as_of"`
	TotalBilled    string           `json:"total_billed"`
	Outstanding    string           `json:"outstanding"`
	TotalPaid      string           `json:"total_paid"`
	CollectionRate int              `json:"collection_rate"`
	StatusCounts   map[string]int   `json:"status_counts"`
	Aging          AgingDTO         `json:"aging"`
	TopClients     []ClientTotalDTO `json:"top_clients"`
	Skipped        []SkippedDTO     `json:"skipped"`
	AgingSkipped   []string         `json:"aging_skipped"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return billing.Cents(d).StringFixed(billing.CentPlaces)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toClientDTO(c billing.Client) ClientDTO {
	dto := ClientDTO{
		ID:     string(c.ID),
		Name:   c.Name,
		Email:  c.Email,
		Phone:  c.Phone,
		Status: string(c.Status),
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toActivityDTO(a billing.Activity) ActivityDTO {
	return ActivityDTO{
		ID:              string(a.ID),
		ClientID:        string(a.ClientID),
		StartedAt:       a.StartedAt.UTC().Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		Description:     a.Description,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	items := make([]LineItemDTO, len(inv.Items))
	for i, li := range inv.Items {
		items[i] = LineItemDTO{
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			UnitPrice:   money(li.UnitPrice),
			Amount:      money(li.Amount),
			ActivityID:  string(li.ActivityID),
		}
	}
	payments := make([]PaymentDTO, len(inv.Payments))
	for i, p := range inv.Payments {
		payments[i] = PaymentDTO{
			ID:        string(p.ID),
			Amount:    money(p.Amount),
			Method:    p.Method,
			Status:    p.Status,
			PaidAt:    formatTimestamp(p.PaidAt),
			Reference: p.Reference,
		}
	}

	return InvoiceDTO{
		ID:               string(inv.ID),
		ClientID:         string(inv.ClientID),
		ClientName:       inv.ClientName,
		PeriodStart:      formatDate(inv.PeriodStart),
		PeriodEnd:        formatDate(inv.PeriodEnd),
		Status:           string(inv.Status),
		TotalAmount:      money(inv.TotalAmount),
		PaidAmount:       money(inv.PaidAmount()),
		BalanceRemaining: money(inv.BalanceRemaining()),
		Overpaid:         inv.Overpaid(),
		Items:            items,
		Payments:         payments,
		CreatedAt:        inv.CreatedAt.UTC().Format(time.RFC3339),
		ApprovedAt:       formatTimestamp(inv.ApprovedAt),
		OverdueAt:        formatTimestamp(inv.OverdueAt),
		PaidAt:           formatTimestamp(inv.PaidAt),
	}
}

func NewSummaryDTO(s ledger.Summary) SummaryDTO {
	top := make([]ClientTotalDTO, len(s.TopClients))
	for i, c := range s.TopClients {
		top[i] = ClientTotalDTO{Name: c.Name, Amount: money(c.Amount)}
	}
	skipped := make([]SkippedDTO, len(s.Skipped))
	for i, sk := range s.Skipped {
		skipped[i] = SkippedDTO{InvoiceID: string(sk.InvoiceID), Reason: sk.Reason}
	}
	agingSkipped := make([]string, len(s.AgingSkipped))
	for i, id := range s.AgingSkipped {
		agingSkipped[i] = string(id)
	}

	return SummaryDTO{
		AsOf:           s.AsOf.Format(time.DateOnly),
		TotalBilled:    money(s.TotalBilled),
		Outstanding:    money(s.Outstanding),
		TotalPaid:      money(s.TotalPaid),
		CollectionRate: s.CollectionRate,
		StatusCounts:   s.StatusCounts,
		Aging: AgingDTO{
			Over30: money(s.Aging.Over30),
			Over60: money(s.Aging.Over60),
			Over90: money(s.Aging.Over90),
		},
		TopClients:   top,
		Skipped:      skipped,
		AgingSkipped: agingSkipped,
	}
}

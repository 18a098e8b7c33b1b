/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. hlog:       zerolog request logger + access log line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the console frontend

ROUTE GROUPS:
  /api/clients/*        Clients, their rules and activities
  /api/rules/*          Organization default rules
  /api/invoices/*       Generation, lifecycle, payments, export
  /api/summary          Ledger summary
  /api/overdue/*        Overdue sweep
  /api/scenarios/*      Demo scenarios
  /                     Endpoint index

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Put("/{id}/status", h.UpdateClientStatus)
			r.Get("/{id}/rules", h.GetClientRules)
			r.Put("/{id}/rules", h.PutClientOverride)
			r.Delete("/{id}/rules", h.ClearClientOverride)
			r.Get("/{id}/activities", h.ListActivities)
			r.Post("/{id}/activities", h.CreateActivity)
		})

		// Organization rules
		r.Route("/rules", func(r chi.Router) {
			r.Get("/default", h.GetOrgDefault)
			r.Put("/default", h.PutOrgDefault)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.GenerateInvoice)
			r.Get("/export", h.ExportInvoices)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/approve", h.ApproveInvoice)
			r.Post("/{id}/mark-overdue", h.MarkInvoiceOverdue)
			r.Post("/{id}/mark-paid", h.MarkInvoicePaid)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Get("/summary", h.GetSummary)

		// Overdue routes
		r.Route("/overdue", func(r chi.Router) {
			r.Get("/status", h.GetOverdueStatus)
			r.Post("/run", h.RunOverdueSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Care Billing</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Care Billing API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/clients">/api/clients</a> - List clients</li>
<li><a href="/api/invoices">/api/invoices</a> - List invoices</li>
<li><a href="/api/summary">/api/summary</a> - Ledger summary</li>
<li><a href="/api/invoices/export">/api/invoices/export</a> - CSV export</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}

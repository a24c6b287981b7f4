/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/loans/*      Loan lifecycle
  /api/payments/*   Standalone payments
  /api/batches/*    Collection runs, edits, falco compensations
  /api/accounts/*   Accounts, ledger entries, reconciliation

SECURITY NOTE:
  No authentication middleware. The service is expected to sit behind the
  back-office gateway, which owns auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoans)
			r.Get("/{id}", h.GetLoan)
			r.Get("/{id}/payments", h.GetLoanPayments)
			r.Post("/{id}/cancel", h.CancelLoan)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		// Collection batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.RecordBatch)
			r.Get("/{id}", h.GetBatch)
			r.Put("/{id}", h.EditBatch)
			r.Post("/{id}/falco-compensations", h.CompensateShortage)
		})

		// Account and reconciliation routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/reconcile", h.ReconcileAll)
			r.Get("/{id}/entries", h.GetAccountEntries)
			r.Get("/{id}/reconcile", h.ReconcileAccount)
			r.Post("/{id}/fix", h.FixBalance)
		})
	})

	return r
}

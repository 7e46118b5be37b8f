/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. requestLog: Structured request logging via zerolog
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/services/*    Service sale, edit, periods, reconciliation
  /api/periods/*     Period overrides, status, balance, report ref
  /api/invoices/*    Invoices, lines, payments
  /api/incomes/*     Income ledger
  /api/commission/*  Calculator
  /api/products/*    Rule-set CRUD
  /api/scenarios/*   Demo scenarios (dev)

SECURITY NOTE:
  No authentication middleware. Identity and access control live in the
  surrounding platform.

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

	"github.com/warp/billing-engine/logger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Service routes
		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Post("/", h.SellService)
			r.Get("/{id}", h.GetService)
			r.Put("/{id}", h.UpdateService)
			r.Delete("/{id}", h.DeleteService)
			r.Get("/{id}/periods", h.ListExpectedPeriods)
			r.Post("/{id}/periods", h.MaterializePeriod)
			r.Get("/{id}/reconciliation", h.GetReconciliationReport)
		})

		// Period routes
		r.Route("/periods", func(r chi.Router) {
			r.Put("/{id}", h.UpdatePeriod)
			r.Get("/{id}/status", h.GetPeriodStatus)
			r.Get("/{id}/balance", h.GetPeriodBalance)
			r.Post("/{id}/report", h.RecordPeriodReport)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Put("/{id}", h.UpdateInvoice)
			r.Post("/{id}/lines", h.AddInvoiceLine)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Patch("/lines/{id}", h.UpdateInvoiceLine)
		r.Delete("/payments/{id}", h.DeletePayment)

		// Income routes
		r.Route("/incomes", func(r chi.Router) {
			r.Post("/", h.RecordIncome)
			r.Put("/{id}", h.UpdateIncome)
			r.Delete("/{id}", h.DeleteIncome)
		})

		// Commission calculator
		r.Post("/commission/compute", h.ComputeCommission)

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLog logs one line per request with method, path, status and
// duration.
func requestLog(next http.Handler) http.Handler {
	log := logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

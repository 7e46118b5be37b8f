/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing period and revenue reconciliation engine via REST
  API. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Services:
    GET    /api/services                       List services
    POST   /api/services                       Sell a service (commission snapshot)
    GET    /api/services/{id}                  Get service
    PUT    /api/services/{id}                  Edit service (may re-snapshot)
    DELETE /api/services/{id}                  Delete service (cascade)
    GET    /api/services/{id}/periods          Expected periods (virtual+persisted)
    POST   /api/services/{id}/periods          Materialize a period (idempotent)
    GET    /api/services/{id}/reconciliation   Reconciliation report

  Periods:
    PUT    /api/periods/{id}                   Expected-amount override / flags
    GET    /api/periods/{id}/status            Derived status flags
    GET    /api/periods/{id}/balance           Remaining + suggested amount
    POST   /api/periods/{id}/report            Record report document reference

  Invoices:
    POST   /api/invoices                       Create invoice
    GET    /api/invoices/{id}                  Get invoice with lines
    PUT    /api/invoices/{id}                  Number / issue date
    POST   /api/invoices/{id}/lines            Add line
    PATCH  /api/lines/{id}                     Display overrides
    POST   /api/invoices/{id}/payments         Record payment
    DELETE /api/payments/{id}                  Delete payment (warning payload)

  Incomes:
    POST   /api/incomes                        Record income (auto-materialize)
    PUT    /api/incomes/{id}                   Edit income
    DELETE /api/incomes/{id}                   Delete income

  Commission:
    POST   /api/commission/compute             Run the calculator

  Products:
    GET    /api/products                       List rule sets
    POST   /api/products                       Create product + rule set
    GET    /api/products/{id}                  Get rule set

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: database access (billing.Store)
  - Generator/Matcher/Allocator/Projector/Reconciler: domain engines
  - Clock: injectable today() for deterministic tests

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Referenced entity not found
  - 409: Conflict (duplicate range outside get-or-create)
  - 500: Internal errors

SECURITY NOTE:
  Identity and access control are an upstream concern; created_by /
  updated_by are taken from the request body as opaque audit strings.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/commission"
	"github.com/warp/billing-engine/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      billing.Store
	Generator  *billing.Generator
	Matcher    *billing.Matcher
	Allocator  *billing.Allocator
	Projector  *billing.Projector
	Reconciler *billing.Reconciler
	Clock      billing.Clock

	log zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given store.
func NewHandler(store billing.Store, clock billing.Clock) *Handler {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Handler{
		Store:      store,
		Generator:  billing.NewGenerator(store, clock),
		Matcher:    billing.NewMatcher(store),
		Allocator:  billing.NewAllocator(store),
		Projector:  billing.NewProjector(store),
		Reconciler: billing.NewReconciler(store, clock),
		Clock:      clock,
		log:        logger.WithComponent("api"),
	}
}

// =============================================================================
// SERVICE HANDLERS
// =============================================================================

// ListServices returns all services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Store.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list services", err)
		return
	}

	dtos := make([]ServiceDTO, len(services))
	for i, s := range services {
		dtos[i] = toServiceDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetService returns a single service.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	svc, err := h.Store.GetService(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get service", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceDTO(*svc))
}

// SellService creates a service from a product and snapshots its
// commission. Later edits to the product's rule set never reprice it.
func (h *Handler) SellService(w http.ResponseWriter, r *http.Request) {
	var req SellServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startDate, err := billing.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	cadence := billing.Cadence(req.Cadence)
	if !cadence.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid cadence", nil)
		return
	}
	prepay := billing.PrepayMode(req.PrepayMode)
	if req.PrepayMode == "" {
		prepay = billing.Postpay
	} else if !prepay.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid prepay_mode", nil)
		return
	}

	now := time.Now().UTC()
	svc := billing.Service{
		ID:                  billing.ServiceID(uuid.NewString()),
		ProductID:           billing.ProductID(req.ProductID),
		Price:               toMoney(req.Price),
		Cadence:             cadence,
		PrepayMode:          prepay,
		StartDate:           startDate,
		Status:              billing.ServiceActive,
		PartnerLead:         req.PartnerLead,
		ResponsibleEmployee: billing.EmployeeID(req.Employee),
		Department:          req.Department,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := h.snapshotCommission(r, &svc, req.ExpenseOverrides); err != nil {
		h.writeDomainError(w, "Failed to compute commission", err)
		return
	}

	if err := h.Store.SaveService(r.Context(), svc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create service", err)
		return
	}

	h.log.Info().Str("service_id", string(svc.ID)).Str("product_id", req.ProductID).Msg("service sold")
	writeJSON(w, http.StatusCreated, toServiceDTO(svc))
}

// UpdateService edits a service; price, employee and department changes
// recompute the commission snapshot against the product's current rules.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	svc, err := h.Store.GetService(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get service", err)
		return
	}

	resnapshot := false
	if req.Price != nil {
		svc.Price = toMoney(req.Price)
		resnapshot = true
	}
	if req.Status != nil {
		svc.Status = billing.ServiceStatus(*req.Status)
	}
	if req.PrepayMode != nil {
		mode := billing.PrepayMode(*req.PrepayMode)
		if !mode.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid prepay_mode", nil)
			return
		}
		svc.PrepayMode = mode
	}
	if req.Employee != nil {
		svc.ResponsibleEmployee = billing.EmployeeID(*req.Employee)
		resnapshot = true
	}
	if req.Department != nil {
		svc.Department = *req.Department
		resnapshot = true
	}
	svc.UpdatedAt = time.Now().UTC()

	if resnapshot {
		if err := h.snapshotCommission(r, svc, nil); err != nil {
			h.writeDomainError(w, "Failed to compute commission", err)
			return
		}
	}

	if err := h.Store.SaveService(r.Context(), *svc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update service", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceDTO(*svc))
}

// DeleteService removes a service and cascades to its periods, their
// invoice lines, and its incomes.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteService(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete service", err)
		return
	}
	h.log.Info().Str("service_id", string(id)).Msg("service deleted")
	w.WriteHeader(http.StatusNoContent)
}

// snapshotCommission resolves the commission from the service's product
// rule set and writes the snapshot fields onto the service.
func (h *Handler) snapshotCommission(r *http.Request, svc *billing.Service, overrides []ExpenseOverrideDTO) error {
	product, err := h.Store.GetProduct(r.Context(), svc.ProductID)
	if err != nil {
		return err
	}

	ruleSet, err := commission.ParseRuleSet(product.RulesJSON)
	if err != nil {
		return err
	}

	ovr, err := toExpenseOverrides(overrides)
	if err != nil {
		return err
	}
	ruleSet.ExpenseItems = commission.MergeOverrides(ruleSet.ExpenseItems, ovr)

	result, err := commission.Compute(commission.Input{
		RuleSet:     ruleSet,
		Price:       svc.ExpectedAmount(),
		PartnerLead: svc.PartnerLead,
		Role:        commission.ResolveRole(svc.Department),
	})
	if err != nil {
		return err
	}

	svc.CommissionPercent = result.Percent.String()
	svc.CommissionAmount = result.Amount
	svc.AMFee = result.AMFee
	return nil
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListExpectedPeriods returns the service's billing buckets from its start
// date through today. Persisted periods carry their IDs; the rest are
// virtual.
func (h *Handler) ListExpectedPeriods(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	svc, err := h.Store.GetService(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get service", err)
		return
	}

	periods, err := h.Generator.ExpectedPeriods(r.Context(), *svc)
	if err != nil {
		h.writeDomainError(w, "Failed to derive periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MaterializePeriod get-or-creates the period for an exact date range.
// Calling it twice with the same range returns the same row.
func (h *Handler) MaterializePeriod(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	var req MaterializePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rng, err := parseRange(req.DateFrom, req.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	period, err := h.Generator.Materialize(r.Context(), id, rng)
	if err != nil {
		h.writeDomainError(w, "Failed to materialize period", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkPeriodDTO(period))
}

// UpdatePeriod sets the expected-amount override and/or the
// invoice-not-required flag.
func (h *Handler) UpdatePeriod(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkPeriodID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req UpdatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ExpectedAmount != nil {
		if err := h.Store.SetExpectedAmount(ctx, id, billing.Money(*req.ExpectedAmount)); err != nil {
			h.writeDomainError(w, "Failed to set expected amount", err)
			return
		}
	}
	if req.InvoiceNotRequired != nil {
		if err := h.Store.SetInvoiceNotRequired(ctx, id, *req.InvoiceNotRequired); err != nil {
			h.writeDomainError(w, "Failed to set invoice flag", err)
			return
		}
	}

	period, err := h.Store.Get(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get period", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkPeriodDTO(*period))
}

// GetPeriodStatus returns the derived completion flags for a period.
func (h *Handler) GetPeriodStatus(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkPeriodID(chi.URLParam(r, "id"))

	status, err := h.Projector.Status(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to project status", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodStatusDTO{
		PeriodID:    string(id),
		ReportDone:  status.ReportDone,
		PaymentDone: status.PaymentDone,
		IncomesDone: status.IncomesDone,
	})
}

// GetPeriodBalance returns expected vs collected with the remaining
// balance (floored at zero) and the suggested next payment amount.
func (h *Handler) GetPeriodBalance(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkPeriodID(chi.URLParam(r, "id"))
	ctx := r.Context()

	period, err := h.Store.Get(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get period", err)
		return
	}

	var expected billing.Money
	if period.ExpectedAmount != nil {
		expected = *period.ExpectedAmount
	} else {
		svc, err := h.Store.GetService(ctx, period.ServiceID)
		if err != nil {
			h.writeDomainError(w, "Failed to get service", err)
			return
		}
		expected = svc.ExpectedAmount()
	}

	collected, err := h.Matcher.Collected(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to sum incomes", err)
		return
	}
	remaining, err := h.Matcher.RemainingBalance(ctx, id, nil)
	if err != nil {
		h.writeDomainError(w, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodBalanceDTO{
		PeriodID:        string(id),
		Expected:        int64(expected),
		Collected:       int64(collected),
		Remaining:       int64(remaining),
		SuggestedAmount: int64(remaining),
	})
}

// RecordPeriodReport attaches a report document reference to a period.
// Upload mechanics live elsewhere; only the reference is stored.
func (h *Handler) RecordPeriodReport(w http.ResponseWriter, r *http.Request) {
	id := billing.WorkPeriodID(chi.URLParam(r, "id"))

	var req RecordReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ReportRef == "" {
		writeError(w, http.StatusBadRequest, "report_ref is required", nil)
		return
	}

	if err := h.Store.SetReportRef(r.Context(), id, req.ReportRef); err != nil {
		h.writeDomainError(w, "Failed to record report", err)
		return
	}

	period, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get period", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkPeriodDTO(*period))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// CreateInvoice creates an invoice. The total is fixed at creation and is
// never recomputed from lines.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Allocator.CreateInvoice(r.Context(),
		billing.LegalEntityID(req.LegalEntityID), billing.Money(req.Total))
	if err != nil {
		h.writeDomainError(w, "Failed to create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// GetInvoice returns an invoice with its lines and payments.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	ctx := r.Context()

	inv, err := h.Store.GetInvoice(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get invoice", err)
		return
	}

	lines, err := h.Store.ListLinesByInvoice(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lines", err)
		return
	}
	payments, err := h.Store.ListPaymentsByInvoice(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	lineDTOs := make([]InvoiceLineDTO, len(lines))
	for i, l := range lines {
		lineDTOs[i] = toLineDTO(l)
	}
	paymentDTOs := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		paymentDTOs[i] = toPaymentDTO(p)
	}

	writeJSON(w, http.StatusOK, struct {
		InvoiceDTO
		Lines    []InvoiceLineDTO `json:"lines"`
		Payments []PaymentDTO     `json:"payments"`
	}{toInvoiceDTO(*inv), lineDTOs, paymentDTOs})
}

// UpdateInvoice fills the administrative number and issue date.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req UpdateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var issuedOn *billing.Date
	if req.IssuedOn != nil {
		d, err := billing.ParseDate(*req.IssuedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid issued_on format (use YYYY-MM-DD)", err)
			return
		}
		issuedOn = &d
	}

	inv, err := h.Allocator.UpdateInvoice(r.Context(), id, req.Number, issuedOn)
	if err != nil {
		h.writeDomainError(w, "Failed to update invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// AddInvoiceLine attaches an amount to a work period under an invoice.
// Lines never touch the invoice total or the income ledger.
func (h *Handler) AddInvoiceLine(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req AddLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	line, err := h.Allocator.AddLine(r.Context(), id,
		billing.WorkPeriodID(req.WorkPeriodID), billing.Money(req.Amount))
	if err != nil {
		h.writeDomainError(w, "Failed to add line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTO(line))
}

// UpdateInvoiceLine overrides the printed service/site names on a line.
func (h *Handler) UpdateInvoiceLine(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceLineID(chi.URLParam(r, "id"))

	var req UpdateLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	line, err := h.Allocator.UpdateLineDisplay(r.Context(), id, req.ServiceName, req.SiteName)
	if err != nil {
		h.writeDomainError(w, "Failed to update line", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineDTO(line))
}

// RecordPayment records a payment against an invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at format (use RFC3339)", err)
			return
		}
		paidAt = t
	}

	payment, err := h.Allocator.RecordPayment(r.Context(), id, billing.Money(req.Amount), paidAt)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// DeletePayment removes a payment. The deletion succeeds but the response
// carries a warning: the income ledger is untouched, so invoice totals may
// diverge from collected revenue.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))

	warning, err := h.Allocator.DeletePayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to delete payment", err)
		return
	}

	resp := DeletePaymentResponse{Deleted: true}
	if warning != nil {
		resp.Warning = warning.Error()
		h.log.Warn().Str("payment_id", string(id)).Msg(warning.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// INCOME HANDLERS
// =============================================================================

// RecordIncome records collected revenue. Without an explicit period the
// income date is matched to a billing bucket, which is materialized on
// demand; dates outside every bucket leave the income unmatched.
func (h *Handler) RecordIncome(w http.ResponseWriter, r *http.Request) {
	var req RecordIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	incomeDate, err := billing.ParseDate(req.IncomeDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid income_date format (use YYYY-MM-DD)", err)
		return
	}

	in := billing.NewIncome{
		ServiceID:     billing.ServiceID(req.ServiceID),
		Amount:        billing.Money(req.Amount),
		LegalEntityID: billing.LegalEntityID(req.LegalEntityID),
		IncomeDate:    incomeDate,
		CreatedBy:     req.CreatedBy,
	}
	if req.WorkPeriodID != nil {
		pid := billing.WorkPeriodID(*req.WorkPeriodID)
		in.WorkPeriodID = &pid
	}

	income, err := h.Matcher.RecordIncome(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to record income", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncomeDTO(income))
}

// UpdateIncome edits an income's amount, date, entity or period anchor.
func (h *Handler) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	id := billing.IncomeID(chi.URLParam(r, "id"))

	var req UpdateIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	existing, err := h.Store.GetIncome(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get income", err)
		return
	}

	// The matcher replaces the financial fields wholesale; fill omitted
	// request fields from the current row.
	upd := billing.IncomeUpdate{
		Amount:        existing.Amount,
		LegalEntityID: existing.LegalEntityID,
		IncomeDate:    existing.IncomeDate,
		UpdatedBy:     req.UpdatedBy,
	}
	if req.WorkPeriodID != nil {
		pid := billing.WorkPeriodID(*req.WorkPeriodID)
		upd.WorkPeriodID = &pid
	}
	if req.Amount != nil {
		upd.Amount = billing.Money(*req.Amount)
	}
	if req.LegalEntityID != nil {
		upd.LegalEntityID = billing.LegalEntityID(*req.LegalEntityID)
	}
	if req.IncomeDate != nil {
		d, err := billing.ParseDate(*req.IncomeDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid income_date format (use YYYY-MM-DD)", err)
			return
		}
		upd.IncomeDate = d
	}

	income, err := h.Matcher.UpdateIncome(r.Context(), id, upd)
	if err != nil {
		h.writeDomainError(w, "Failed to update income", err)
		return
	}
	writeJSON(w, http.StatusOK, toIncomeDTO(income))
}

// DeleteIncome removes an income.
func (h *Handler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	id := billing.IncomeID(chi.URLParam(r, "id"))

	if err := h.Matcher.DeleteIncome(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete income", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMMISSION HANDLERS
// =============================================================================

// ComputeCommission runs the calculator against a product's rule set
// without selling anything. Used by the frontend to preview a deal.
func (h *Handler) ComputeCommission(w http.ResponseWriter, r *http.Request) {
	var req ComputeCommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	product, err := h.Store.GetProduct(r.Context(), billing.ProductID(req.ProductID))
	if err != nil {
		h.writeDomainError(w, "Failed to get product", err)
		return
	}

	ruleSet, err := commission.ParseRuleSet(product.RulesJSON)
	if err != nil {
		h.writeDomainError(w, "Invalid product rule set", err)
		return
	}

	ovr, err := toExpenseOverrides(req.ExpenseOverrides)
	if err != nil {
		h.writeDomainError(w, "Invalid expense overrides", err)
		return
	}
	ruleSet.ExpenseItems = commission.MergeOverrides(ruleSet.ExpenseItems, ovr)

	role := commission.ResolveRole(req.Department)
	result, err := commission.Compute(commission.Input{
		RuleSet:     ruleSet,
		Price:       billing.Money(req.Price),
		PartnerLead: req.PartnerLead,
		Role:        role,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to compute commission", err)
		return
	}

	writeJSON(w, http.StatusOK, CommissionResultDTO{
		Role:    string(role),
		Percent: result.Percent.String(),
		Amount:  int64(result.Amount),
		AMFee:   moneyPtr(result.AMFee),
	})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// CreateProduct creates a product with its commission rule set. The rule
// set is validated before storage.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	raw, err := json.Marshal(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule set", err)
		return
	}
	if _, err := commission.ParseRuleSet(string(raw)); err != nil {
		h.writeDomainError(w, "Invalid rule set", err)
		return
	}

	now := time.Now().UTC()
	product := billing.Product{
		ID:        billing.ProductID(uuid.NewString()),
		Name:      req.Name,
		RulesJSON: string(raw),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProductDTO(product))
}

// ListProducts returns all products with their rule sets.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = h.toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one product with its rule set.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := billing.ProductID(chi.URLParam(r, "id"))

	product, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductDTO(*product))
}

func (h *Handler) toProductDTO(p billing.Product) ProductDTO {
	dto := ProductDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	var rules commission.RuleSetJSON
	if err := json.Unmarshal([]byte(p.RulesJSON), &rules); err == nil {
		dto.Rules = &rules
	}
	return dto
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// GetReconciliationReport returns the per-period expected vs invoiced vs
// collected view for a service, including virtual (never-billed) periods.
func (h *Handler) GetReconciliationReport(w http.ResponseWriter, r *http.Request) {
	id := billing.ServiceID(chi.URLParam(r, "id"))

	report, err := h.Reconciler.Report(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to build report", err)
		return
	}

	rows := make([]ReconciliationRowDTO, len(report.Rows))
	for i, row := range report.Rows {
		rows[i] = ReconciliationRowDTO{
			Period:      toPeriodDTO(row.Period),
			Expected:    int64(row.Expected),
			Invoiced:    int64(row.Invoiced),
			Collected:   int64(row.Collected),
			Outstanding: int64(row.Outstanding),
			Diverged:    row.Diverged,
		}
	}

	writeJSON(w, http.StatusOK, ReconciliationReportDTO{
		ServiceID: string(report.ServiceID),
		AsOf:      report.AsOf.String(),
		Rows:      rows,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "validation", Details: err.Error()})
	case billing.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message, Code: "not_found", Details: err.Error()})
	case billing.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Code: "conflict", Details: err.Error()})
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseRange(from, to string) (billing.DateRange, error) {
	f, err := billing.ParseDate(from)
	if err != nil {
		return billing.DateRange{}, err
	}
	t, err := billing.ParseDate(to)
	if err != nil {
		return billing.DateRange{}, err
	}
	return billing.DateRange{From: f, To: t}, nil
}

func toMoney(v *int64) *billing.Money {
	if v == nil {
		return nil
	}
	m := billing.Money(*v)
	return &m
}

func toExpenseOverrides(dtos []ExpenseOverrideDTO) ([]commission.ExpenseOverride, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	overrides := make([]commission.ExpenseOverride, 0, len(dtos))
	for _, d := range dtos {
		ovr := commission.ExpenseOverride{TemplateID: d.TemplateID}
		if d.Type != nil {
			t := commission.ValueType(*d.Type)
			if !t.Valid() {
				return nil, billing.NewValidationError("expense override type must be percent or fixed")
			}
			ovr.Type = &t
		}
		if d.Value != nil {
			v, err := decimal.NewFromString(*d.Value)
			if err != nil {
				return nil, billing.NewValidationError("expense override value is not a valid decimal")
			}
			ovr.Value = &v
		}
		overrides = append(overrides, ovr)
	}
	return overrides, nil
}

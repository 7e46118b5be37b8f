/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates products, services,
	periods, invoices and incomes that demonstrate specific features.

AVAILABLE SCENARIOS:

	monthly-retainer:      Monthly service, one paid period, one partial
	partner-sale:          Partner-lead commission with an AM fee tier
	consolidated-billing:  One invoice covering periods of two services

HOW SCENARIOS WORK:
 1. Create the product with its commission rule set
 2. Sell the service (snapshots the commission)
 3. Materialize periods and record invoices/lines/incomes

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-retainer"}

NOTE:

	Scenarios write into the live store. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: shares the Handler dependencies
  - commission/codec.go: rule-set JSON encoding
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/commission"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-retainer",
		Name:        "Monthly Retainer",
		Description: "Monthly service with one fully paid period and one partial payment",
		Category:    "billing",
	},
	{
		ID:          "partner-sale",
		Name:        "Partner Sale",
		Description: "Partner-lead sale showing the elevated commission percent and AM fee tiers",
		Category:    "commission",
	},
	{
		ID:          "consolidated-billing",
		Name:        "Consolidated Billing",
		Description: "One invoice with lines against periods of two different services",
		Category:    "billing",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario populates the store with one of the demo scenarios.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "monthly-retainer":
		err = h.loadMonthlyRetainer(ctx)
	case "partner-sale":
		err = h.loadPartnerSale(ctx)
	case "consolidated-billing":
		err = h.loadConsolidatedBilling(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedProduct creates a product with a standard two-role rule set:
// 10% platform expense, seller at 20%/30% (standard/partner), AM at 5%,
// and two AM fee tiers.
func (h *Handler) seedProduct(ctx context.Context, name string) (billing.Product, error) {
	tier1Max := int64(100000)
	raw, err := commission.EncodeRuleSet(commission.RuleSet{
		ExpenseItems: []commission.ExpenseItem{
			{TemplateID: "platform", Type: commission.ValuePercent, Value: decimal.NewFromInt(10)},
		},
		Rules: []commission.Rule{
			{Role: commission.RoleSeller, StandardPercent: decimal.NewFromInt(20), PartnerPercent: decimal.NewFromInt(30)},
			{Role: commission.RoleAccountManager, StandardPercent: decimal.NewFromInt(5), PartnerPercent: decimal.NewFromInt(5)},
		},
		FeeTiers: []commission.FeeTier{
			{Max: moneyRef(tier1Max), Fee: 5000},
			{Min: moneyRef(tier1Max + 1), Fee: 10000},
		},
	})
	if err != nil {
		return billing.Product{}, err
	}

	now := time.Now().UTC()
	product := billing.Product{
		ID:        billing.ProductID(uuid.NewString()),
		Name:      name,
		RulesJSON: raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return product, h.Store.SaveProduct(ctx, product)
}

// seedService sells a service against a product and snapshots its
// commission the same way the SellService handler does.
func (h *Handler) seedService(ctx context.Context, product billing.Product, price billing.Money, cadence billing.Cadence, start billing.Date, partnerLead bool, department string) (billing.Service, error) {
	now := time.Now().UTC()
	svc := billing.Service{
		ID:                  billing.ServiceID(uuid.NewString()),
		ProductID:           product.ID,
		Price:               &price,
		Cadence:             cadence,
		PrepayMode:          billing.Postpay,
		StartDate:           start,
		Status:              billing.ServiceActive,
		PartnerLead:         partnerLead,
		ResponsibleEmployee: "emp-demo",
		Department:          department,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	ruleSet, err := commission.ParseRuleSet(product.RulesJSON)
	if err != nil {
		return billing.Service{}, err
	}
	result, err := commission.Compute(commission.Input{
		RuleSet:     ruleSet,
		Price:       price,
		PartnerLead: partnerLead,
		Role:        commission.ResolveRole(department),
	})
	if err != nil {
		return billing.Service{}, err
	}
	svc.CommissionPercent = result.Percent.String()
	svc.CommissionAmount = result.Amount
	svc.AMFee = result.AMFee

	return svc, h.Store.SaveService(ctx, svc)
}

func (h *Handler) loadMonthlyRetainer(ctx context.Context) error {
	product, err := h.seedProduct(ctx, "SEO Retainer")
	if err != nil {
		return err
	}

	today := h.Clock.Today()
	start := today.AddMonths(-2)
	svc, err := h.seedService(ctx, product, 60000, billing.CadenceMonthly, start, false, "Sales Department")
	if err != nil {
		return err
	}

	// First period: invoiced and fully collected.
	p1, err := h.Generator.Materialize(ctx, svc.ID, billing.DateRange{From: start, To: start.AddMonths(1)})
	if err != nil {
		return err
	}
	inv, err := h.Allocator.CreateInvoice(ctx, "entity-demo", 60000)
	if err != nil {
		return err
	}
	if _, err := h.Allocator.AddLine(ctx, inv.ID, p1.ID, 60000); err != nil {
		return err
	}
	if _, err := h.Matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		WorkPeriodID:  &p1.ID,
		Amount:        60000,
		LegalEntityID: "entity-demo",
		IncomeDate:    start.AddDays(3),
		CreatedBy:     "demo",
	}); err != nil {
		return err
	}
	if err := h.Store.SetReportRef(ctx, p1.ID, "report-demo-1"); err != nil {
		return err
	}

	// Second period: partial payment, auto-matched by income date.
	_, err = h.Matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		Amount:        40000,
		LegalEntityID: "entity-demo",
		IncomeDate:    start.AddMonths(1).AddDays(5),
		CreatedBy:     "demo",
	})
	return err
}

func (h *Handler) loadPartnerSale(ctx context.Context) error {
	product, err := h.seedProduct(ctx, "Context Ads")
	if err != nil {
		return err
	}

	today := h.Clock.Today()
	_, err = h.seedService(ctx, product, 150000, billing.CadenceMonthly, today.AddMonths(-1), true, "Отдел продаж")
	return err
}

func (h *Handler) loadConsolidatedBilling(ctx context.Context) error {
	product, err := h.seedProduct(ctx, "Site Support")
	if err != nil {
		return err
	}

	today := h.Clock.Today()
	start := today.AddMonths(-1)

	svcA, err := h.seedService(ctx, product, 30000, billing.CadenceMonthly, start, false, "Account Management")
	if err != nil {
		return err
	}
	svcB, err := h.seedService(ctx, product, 50000, billing.CadenceQuarterly, start, false, "Account Management")
	if err != nil {
		return err
	}

	pA, err := h.Generator.Materialize(ctx, svcA.ID, billing.DateRange{From: start, To: start.AddMonths(1)})
	if err != nil {
		return err
	}
	pB, err := h.Generator.Materialize(ctx, svcB.ID, billing.DateRange{From: start, To: start.AddMonths(3)})
	if err != nil {
		return err
	}

	// One invoice, lines against periods of both services.
	inv, err := h.Allocator.CreateInvoice(ctx, "entity-demo", 80000)
	if err != nil {
		return err
	}
	if _, err := h.Allocator.AddLine(ctx, inv.ID, pA.ID, 30000); err != nil {
		return err
	}
	if _, err := h.Allocator.AddLine(ctx, inv.ID, pB.ID, 50000); err != nil {
		return err
	}

	// Unmatched income: a payment dated before the service ever started.
	_, err = h.Matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svcA.ID,
		Amount:        10000,
		LegalEntityID: "entity-demo",
		IncomeDate:    start.AddMonths(-2),
		CreatedBy:     "demo",
	})
	return err
}

func moneyRef(v int64) *billing.Money {
	m := billing.Money(v)
	return &m
}

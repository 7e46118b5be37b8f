/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

CONVENTIONS:
  - Money is an integer in minor units (cents)
  - Period dates are "YYYY-MM-DD"
  - Event timestamps are RFC3339

SEE ALSO:
  - handlers.go: Uses these types
  - commission/codec.go: RuleSetJSON type embedded in ProductDTO
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/commission"
)

// =============================================================================
// SERVICE TYPES
// =============================================================================

// ServiceDTO represents a sold service in API responses, including the
// commission snapshot resolved at sale time.
type ServiceDTO struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	Price             *int64 `json:"price"`
	Cadence           string `json:"cadence"`
	PrepayMode        string `json:"prepay_mode"`
	StartDate         string `json:"start_date"`
	Status            string `json:"status"`
	PartnerLead       bool   `json:"partner_lead"`
	Employee          string `json:"responsible_employee,omitempty"`
	Department        string `json:"department,omitempty"`
	CommissionPercent string `json:"commission_percent"`
	CommissionAmount  int64  `json:"commission_amount"`
	AMFee             *int64 `json:"am_fee,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// SellServiceRequest is the request to sell a service (create it and
// snapshot the commission from the product's rule set).
type SellServiceRequest struct {
	ProductID   string `json:"product_id"`
	Price       *int64 `json:"price"`
	Cadence     string `json:"cadence"`
	PrepayMode  string `json:"prepay_mode"`
	StartDate   string `json:"start_date"`
	PartnerLead bool   `json:"partner_lead"`
	Employee    string `json:"responsible_employee"`
	Department  string `json:"department"`

	// Per-sale expense overrides applied on top of the product defaults
	// before the commission is computed.
	ExpenseOverrides []ExpenseOverrideDTO `json:"expense_overrides,omitempty"`
}

// UpdateServiceRequest edits a service. Nil fields are left unchanged.
// Price, employee and department changes recompute the commission snapshot.
type UpdateServiceRequest struct {
	Price      *int64  `json:"price"`
	Status     *string `json:"status"`
	PrepayMode *string `json:"prepay_mode"`
	Employee   *string `json:"responsible_employee"`
	Department *string `json:"department"`
}

// ExpenseOverrideDTO overrides one expense item by template ID.
type ExpenseOverrideDTO struct {
	TemplateID string  `json:"template_id"`
	Type       *string `json:"type,omitempty"`
	Value      *string `json:"value,omitempty"`
}

// =============================================================================
// PERIOD TYPES
// =============================================================================

// PeriodDTO represents one billing bucket, virtual or persisted.
// ID is empty for virtual periods (not yet materialized).
type PeriodDTO struct {
	ID       string `json:"id,omitempty"`
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
	Virtual  bool   `json:"virtual"`
}

// WorkPeriodDTO is a fully persisted period row.
type WorkPeriodDTO struct {
	ID                 string `json:"id"`
	ServiceID          string `json:"service_id"`
	DateFrom           string `json:"dateFrom"`
	DateTo             string `json:"dateTo"`
	Kind               string `json:"kind"`
	ExpectedAmount     *int64 `json:"expected_amount"`
	InvoiceNotRequired bool   `json:"invoice_not_required"`
	ReportRef          string `json:"report_ref,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// MaterializePeriodRequest asks for get-or-create of an exact range.
type MaterializePeriodRequest struct {
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

// UpdatePeriodRequest sets period-level overrides. Nil fields unchanged.
type UpdatePeriodRequest struct {
	ExpectedAmount     *int64 `json:"expected_amount"`
	InvoiceNotRequired *bool  `json:"invoice_not_required"`
}

// RecordReportRequest attaches a report document reference to a period.
type RecordReportRequest struct {
	ReportRef string `json:"report_ref"`
}

// PeriodStatusDTO is the derived per-period completion status.
type PeriodStatusDTO struct {
	PeriodID    string `json:"period_id"`
	ReportDone  bool   `json:"report_done"`
	PaymentDone bool   `json:"payment_done"`
	IncomesDone bool   `json:"incomes_done"`
}

// PeriodBalanceDTO carries the remaining-balance view of a period.
type PeriodBalanceDTO struct {
	PeriodID        string `json:"period_id"`
	Expected        int64  `json:"expected"`
	Collected       int64  `json:"collected"`
	Remaining       int64  `json:"remaining"`
	SuggestedAmount int64  `json:"suggested_amount"`
}

// =============================================================================
// INVOICE TYPES
// =============================================================================

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID            string  `json:"id"`
	LegalEntityID string  `json:"legal_entity_id"`
	Total         int64   `json:"total"`
	Number        string  `json:"number,omitempty"`
	IssuedOn      *string `json:"issued_on,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// CreateInvoiceRequest creates an invoice with a fixed total.
type CreateInvoiceRequest struct {
	LegalEntityID string `json:"legal_entity_id"`
	Total         int64  `json:"total"`
}

// UpdateInvoiceRequest fills administrative fields.
type UpdateInvoiceRequest struct {
	Number   string  `json:"number"`
	IssuedOn *string `json:"issued_on"`
}

// InvoiceLineDTO represents a line allocating an amount to a period.
type InvoiceLineDTO struct {
	ID           string `json:"id"`
	InvoiceID    string `json:"invoice_id"`
	WorkPeriodID string `json:"work_period_id"`
	Amount       int64  `json:"amount"`
	ServiceName  string `json:"service_name,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// AddLineRequest adds a line to an invoice.
type AddLineRequest struct {
	WorkPeriodID string `json:"work_period_id"`
	Amount       int64  `json:"amount"`
}

// UpdateLineRequest overrides display names on a line.
type UpdateLineRequest struct {
	ServiceName string `json:"service_name"`
	SiteName    string `json:"site_name"`
}

// PaymentDTO represents an invoice payment.
type PaymentDTO struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
	PaidAt    string `json:"paid_at"`
}

// RecordPaymentRequest records a payment against an invoice.
type RecordPaymentRequest struct {
	Amount int64  `json:"amount"`
	PaidAt string `json:"paid_at,omitempty"` // RFC3339, defaults to now
}

// DeletePaymentResponse reports the deletion and its consistency warning.
type DeletePaymentResponse struct {
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

// =============================================================================
// INCOME TYPES
// =============================================================================

// IncomeDTO represents a collected-revenue event.
type IncomeDTO struct {
	ID            string  `json:"id"`
	ServiceID     string  `json:"service_id"`
	WorkPeriodID  *string `json:"work_period_id"`
	Amount        int64   `json:"amount"`
	LegalEntityID string  `json:"legal_entity_id"`
	IncomeDate    string  `json:"income_date"`
	CreatedBy     string  `json:"created_by,omitempty"`
	UpdatedBy     string  `json:"updated_by,omitempty"`
}

// RecordIncomeRequest records an income. If work_period_id is omitted,
// the engine matches the income date to a billing bucket and materializes
// it; incomes outside every bucket stay unmatched.
type RecordIncomeRequest struct {
	ServiceID     string  `json:"service_id"`
	WorkPeriodID  *string `json:"work_period_id"`
	Amount        int64   `json:"amount"`
	LegalEntityID string  `json:"legal_entity_id"`
	IncomeDate    string  `json:"income_date"`
	CreatedBy     string  `json:"created_by"`
}

// UpdateIncomeRequest edits an income. Nil fields unchanged; period
// anchoring is kept unless a new period is given.
type UpdateIncomeRequest struct {
	WorkPeriodID  *string `json:"work_period_id"`
	Amount        *int64  `json:"amount"`
	LegalEntityID *string `json:"legal_entity_id"`
	IncomeDate    *string `json:"income_date"`
	UpdatedBy     string  `json:"updated_by"`
}

// =============================================================================
// COMMISSION TYPES
// =============================================================================

// ComputeCommissionRequest runs the calculator without selling anything.
type ComputeCommissionRequest struct {
	ProductID        string               `json:"product_id"`
	Price            int64                `json:"price"`
	PartnerLead      bool                 `json:"partner_lead"`
	Department       string               `json:"department"`
	ExpenseOverrides []ExpenseOverrideDTO `json:"expense_overrides,omitempty"`
}

// CommissionResultDTO is the calculator output.
type CommissionResultDTO struct {
	Role    string `json:"role"`
	Percent string `json:"percent"`
	Amount  int64  `json:"amount"`
	AMFee   *int64 `json:"am_fee,omitempty"`
}

// =============================================================================
// PRODUCT TYPES
// =============================================================================

// ProductDTO represents a product and its commission rule set.
type ProductDTO struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Rules     *commission.RuleSetJSON `json:"rules,omitempty"`
	CreatedAt string                  `json:"created_at,omitempty"`
}

// CreateProductRequest creates a product with its rule-set config.
type CreateProductRequest struct {
	Name  string                 `json:"name"`
	Rules commission.RuleSetJSON `json:"rules"`
}

// =============================================================================
// RECONCILIATION TYPES
// =============================================================================

// ReconciliationRowDTO is one period row in a service reconciliation report.
type ReconciliationRowDTO struct {
	Period      PeriodDTO `json:"period"`
	Expected    int64     `json:"expected"`
	Invoiced    int64     `json:"invoiced"`
	Collected   int64     `json:"collected"`
	Outstanding int64     `json:"outstanding"`
	Diverged    bool      `json:"diverged"`
}

// ReconciliationReportDTO is the full expected-vs-invoiced-vs-collected view.
type ReconciliationReportDTO struct {
	ServiceID string                 `json:"service_id"`
	AsOf      string                 `json:"as_of"`
	Rows      []ReconciliationRowDTO `json:"rows"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// LoadScenarioRequest loads a demo scenario by ID.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toServiceDTO(s billing.Service) ServiceDTO {
	return ServiceDTO{
		ID:                string(s.ID),
		ProductID:         string(s.ProductID),
		Price:             moneyPtr(s.Price),
		Cadence:           string(s.Cadence),
		PrepayMode:        string(s.PrepayMode),
		StartDate:         s.StartDate.String(),
		Status:            string(s.Status),
		PartnerLead:       s.PartnerLead,
		Employee:          string(s.ResponsibleEmployee),
		Department:        s.Department,
		CommissionPercent: s.CommissionPercent,
		CommissionAmount:  int64(s.CommissionAmount),
		AMFee:             moneyPtr(s.AMFee),
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         s.UpdatedAt.Format(time.RFC3339),
	}
}

func toWorkPeriodDTO(p billing.WorkPeriod) WorkPeriodDTO {
	return WorkPeriodDTO{
		ID:                 string(p.ID),
		ServiceID:          string(p.ServiceID),
		DateFrom:           p.Range.From.String(),
		DateTo:             p.Range.To.String(),
		Kind:               string(p.Kind),
		ExpectedAmount:     moneyPtr(p.ExpectedAmount),
		InvoiceNotRequired: p.InvoiceNotRequired,
		ReportRef:          p.ReportRef,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
}

func toPeriodDTO(p billing.Period) PeriodDTO {
	dto := PeriodDTO{
		DateFrom: p.Range.From.String(),
		DateTo:   p.Range.To.String(),
		Virtual:  !p.Persisted(),
	}
	if p.ID != nil {
		dto.ID = string(*p.ID)
	}
	return dto
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:            string(inv.ID),
		LegalEntityID: string(inv.LegalEntityID),
		Total:         int64(inv.Total),
		Number:        inv.Number,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.IssuedOn != nil {
		s := inv.IssuedOn.String()
		dto.IssuedOn = &s
	}
	return dto
}

func toLineDTO(l billing.InvoiceLine) InvoiceLineDTO {
	return InvoiceLineDTO{
		ID:           string(l.ID),
		InvoiceID:    string(l.InvoiceID),
		WorkPeriodID: string(l.WorkPeriodID),
		Amount:       int64(l.Amount),
		ServiceName:  l.ServiceName,
		SiteName:     l.SiteName,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:        string(p.ID),
		InvoiceID: string(p.InvoiceID),
		Amount:    int64(p.Amount),
		PaidAt:    p.PaidAt.Format(time.RFC3339),
	}
}

func toIncomeDTO(inc billing.Income) IncomeDTO {
	dto := IncomeDTO{
		ID:            string(inc.ID),
		ServiceID:     string(inc.ServiceID),
		Amount:        int64(inc.Amount),
		LegalEntityID: string(inc.LegalEntityID),
		IncomeDate:    inc.IncomeDate.String(),
		CreatedBy:     inc.CreatedBy,
		UpdatedBy:     inc.UpdatedBy,
	}
	if inc.WorkPeriodID != nil {
		s := string(*inc.WorkPeriodID)
		dto.WorkPeriodID = &s
	}
	return dto
}

func moneyPtr(m *billing.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

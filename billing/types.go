/*
Package billing provides the billing period and revenue reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for deriving
  recurring billing periods from a sold service, allocating invoices and
  invoice lines against those periods, matching incoming payments to them,
  and projecting per-period completion status.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integer minor-unit currency amount (no floats, single currency)
  - Service: a sold product instance with cadence, price and start date
  - WorkPeriod: a persisted billing-cycle bucket owned by one service
  - Invoice/InvoiceLine/Payment: billing-side documents
  - Income: the authoritative revenue-recognition event

DESIGN PRINCIPLES:
  1. Integer money: all amounts are int64 minor units (cents)
  2. Half-open periods: [dateFrom, dateTo), no overlap, no gaps
  3. Decoupled ledgers: invoices are a document concern; incomes are the
     source of truth for collected revenue
  4. Derived status: completion flags are recomputed on read, never stored

SEE ALSO:
  - date.go: Date, DateRange and Clock primitives
  - period.go: virtual/persisted period sum type and bucket calculus
  - generator.go: expected-period derivation
  - matcher.go: income matching and remaining balance
  - allocator.go: invoice and line allocation
  - status.go: per-period status projection
*/
package billing

import "time"

// =============================================================================
// MONEY - Integer minor units
// =============================================================================

// Money is a currency amount in integer minor units (e.g., cents).
// Single currency, no conversion, no floats.
type Money int64

func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsZero() bool     { return m == 0 }

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }

// ClampZero floors a balance at zero. Used wherever the engine must never
// report a negative remainder or pay a negative commission.
func (m Money) ClampZero() Money {
	if m < 0 {
		return 0
	}
	return m
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ServiceID     string
	WorkPeriodID  string
	InvoiceID     string
	InvoiceLineID string
	PaymentID     string
	IncomeID      string
	ProductID     string
	LegalEntityID string
	EmployeeID    string
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Cadence is the billing recurrence of a service.
type Cadence string

const (
	CadenceOneTime   Cadence = "one_time"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// Months returns the cadence unit length in months, 0 for one-time.
func (c Cadence) Months() int {
	switch c {
	case CadenceMonthly:
		return 1
	case CadenceQuarterly:
		return 3
	case CadenceYearly:
		return 12
	default:
		return 0
	}
}

func (c Cadence) Valid() bool {
	switch c {
	case CadenceOneTime, CadenceMonthly, CadenceQuarterly, CadenceYearly:
		return true
	}
	return false
}

// PrepayMode records how the client pays for the service.
type PrepayMode string

const (
	PrepayFull    PrepayMode = "full_prepay"
	PrepayPartial PrepayMode = "partial_prepay"
	Postpay       PrepayMode = "postpay"
)

func (p PrepayMode) Valid() bool {
	switch p {
	case PrepayFull, PrepayPartial, Postpay:
		return true
	}
	return false
}

// ServiceStatus is the lifecycle state of a sold service.
type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServicePaused   ServiceStatus = "paused"
	ServiceFinished ServiceStatus = "finished"
)

// =============================================================================
// SERVICE - A sold product instance
// =============================================================================

// Service is one sale of a product to a client. Periods, invoices and
// incomes all hang off a service. The commission fields are a snapshot
// resolved at sale time; later edits to the product's rule set never
// reprice an already-sold service.
type Service struct {
	ID          ServiceID
	ProductID   ProductID
	Price       *Money // nil = not priced yet; expected amounts fall back to this
	Cadence     Cadence
	PrepayMode  PrepayMode
	StartDate   Date
	Status      ServiceStatus
	PartnerLead bool // sale originated through a referral partner

	ResponsibleEmployee EmployeeID
	Department          string // resolved to a commission role by name

	// Commission snapshot, filled at sale/edit time.
	CommissionPercent string // decimal string, e.g. "20"
	CommissionAmount  Money
	AMFee             *Money

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpectedAmount is the service-level fallback for a period's expected
// amount when the period carries no override.
func (s *Service) ExpectedAmount() Money {
	if s.Price == nil {
		return 0
	}
	return *s.Price
}

// =============================================================================
// WORK PERIOD - Persisted billing-cycle bucket
// =============================================================================

// WorkPeriod is a persisted billing bucket for a service. At most one row
// exists per (service, range); creation is get-or-create keyed on the exact
// date range. Deleted only via service cascade.
type WorkPeriod struct {
	ID        WorkPeriodID
	ServiceID ServiceID
	Range     DateRange
	Kind      Cadence // derived from the service cadence at creation time

	// ExpectedAmount overrides the service price when set.
	ExpectedAmount *Money

	// InvoiceNotRequired marks periods whose paying legal entity does not
	// need closing documents; it gates the paymentDone status flag.
	InvoiceNotRequired bool

	// ReportRef is a reference to an uploaded period report document.
	// Upload mechanics are an external concern.
	ReportRef string

	CreatedAt time.Time
}

// =============================================================================
// INVOICE SIDE - Billing documents
// =============================================================================

// Invoice is issued against one legal entity. Its stored total is set at
// creation and is independent of the sum of its lines.
type Invoice struct {
	ID            InvoiceID
	LegalEntityID LegalEntityID
	Total         Money
	Number        string // filled administratively
	IssuedOn      *Date  // filled administratively
	CreatedAt     time.Time
}

// InvoiceLine attaches an amount to a work period. Lines on one invoice may
// reference periods of different services (consolidated billing); a period
// may be invoiced repeatedly, so the sum of its lines is advisory only.
type InvoiceLine struct {
	ID           InvoiceLineID
	InvoiceID    InvoiceID
	WorkPeriodID WorkPeriodID
	Amount       Money

	// Display overrides for printed documents only.
	ServiceName string
	SiteName    string

	CreatedAt time.Time
}

// Payment is invoice-side bookkeeping. It is separate from Income: deleting
// a payment never touches the income ledger.
type Payment struct {
	ID        PaymentID
	InvoiceID InvoiceID
	Amount    Money
	PaidAt    time.Time
	CreatedAt time.Time
}

// =============================================================================
// INCOME - Authoritative revenue-recognition event
// =============================================================================

// Income records money actually collected for a service. Many incomes may
// target the same period (partial payments); an income may be unmatched
// (nil period). The sum of a period's incomes is the collected figure.
type Income struct {
	ID            IncomeID
	ServiceID     ServiceID
	WorkPeriodID  *WorkPeriodID
	Amount        Money
	LegalEntityID LegalEntityID
	IncomeDate    Date

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PRODUCT - Rule-set owner
// =============================================================================

// Product owns the commission rule set (stored as JSON config, parsed by the
// commission package). Services reference products but snapshot the resolved
// commission at sale time.
type Product struct {
	ID        ProductID
	Name      string
	RulesJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

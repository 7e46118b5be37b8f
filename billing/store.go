/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the engine components only see these interfaces.

KEY INTERFACES:
  PeriodStore:  work-period rows with range-keyed get-or-create
  ServiceStore: sold services (cascade-deletes owned periods/incomes)
  InvoiceStore: invoices, lines and invoice-side payments
  IncomeStore:  authoritative revenue-recognition events
  ProductStore: products and their commission rule sets

GET-OR-CREATE CONTRACT:
  PeriodStore.GetOrCreate is the single materialization point for virtual
  periods. Implementations must back it with a uniqueness constraint on
  (service_id, date_from, date_to) and treat a constraint violation as
  "someone else already created it": re-read and return the existing row.
  Two concurrent calls with identical inputs yield the same row id.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - billing/store/memory.go: in-memory for testing

SEE ALSO:
  - generator.go: reads periods through PeriodStore
  - matcher.go, allocator.go, status.go: engine components over these stores
*/
package billing

import "context"

// =============================================================================
// PERIOD STORE
// =============================================================================

type PeriodStore interface {
	// GetOrCreate returns the period for the exact range, creating it if
	// absent. Idempotent and race-safe; rejects To <= From.
	GetOrCreate(ctx context.Context, serviceID ServiceID, r DateRange) (WorkPeriod, error)

	// Get returns a period by id, ErrPeriodNotFound if missing.
	Get(ctx context.Context, id WorkPeriodID) (*WorkPeriod, error)

	// FindByRange returns the period with the exact range, or nil.
	FindByRange(ctx context.Context, serviceID ServiceID, r DateRange) (*WorkPeriod, error)

	// ListByService returns a service's periods ordered by dateFrom.
	ListByService(ctx context.Context, serviceID ServiceID) ([]WorkPeriod, error)

	// SetExpectedAmount overrides the fallback-to-service-price computation.
	// Amount must be >= 0.
	SetExpectedAmount(ctx context.Context, id WorkPeriodID, amount Money) error

	// SetInvoiceNotRequired flags a period whose paying legal entity does
	// not need closing documents.
	SetInvoiceNotRequired(ctx context.Context, id WorkPeriodID, v bool) error

	// SetReportRef records the uploaded period-report document reference.
	SetReportRef(ctx context.Context, id WorkPeriodID, ref string) error
}

// =============================================================================
// SERVICE / PRODUCT STORES
// =============================================================================

type ServiceStore interface {
	SaveService(ctx context.Context, svc Service) error
	GetService(ctx context.Context, id ServiceID) (*Service, error)
	ListServices(ctx context.Context) ([]Service, error)

	// DeleteService cascade-deletes the service's periods and incomes.
	DeleteService(ctx context.Context, id ServiceID) error
}

type ProductStore interface {
	SaveProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// =============================================================================
// INVOICE STORE - invoices, lines, invoice-side payments
// =============================================================================

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// UpdateInvoice fills the administrative number/date. Never changes
	// financial totals.
	UpdateInvoice(ctx context.Context, id InvoiceID, number string, issuedOn *Date) error

	AddLine(ctx context.Context, line InvoiceLine) error
	GetLine(ctx context.Context, id InvoiceLineID) (*InvoiceLine, error)

	// UpdateLineDisplay sets the printed-document overrides only.
	UpdateLineDisplay(ctx context.Context, id InvoiceLineID, serviceName, siteName string) error

	ListLinesByInvoice(ctx context.Context, id InvoiceID) ([]InvoiceLine, error)
	ListLinesByPeriod(ctx context.Context, id WorkPeriodID) ([]InvoiceLine, error)

	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	DeletePayment(ctx context.Context, id PaymentID) error
	ListPaymentsByInvoice(ctx context.Context, id InvoiceID) ([]Payment, error)
}

// =============================================================================
// INCOME STORE
// =============================================================================

type IncomeStore interface {
	CreateIncome(ctx context.Context, inc Income) error
	GetIncome(ctx context.Context, id IncomeID) (*Income, error)
	UpdateIncome(ctx context.Context, inc Income) error
	DeleteIncome(ctx context.Context, id IncomeID) error
	ListIncomesByPeriod(ctx context.Context, id WorkPeriodID) ([]Income, error)
	ListIncomesByService(ctx context.Context, id ServiceID) ([]Income, error)
}

// =============================================================================
// COMPOSITE
// =============================================================================

// Store is the full persistence surface. The SQLite and memory stores both
// satisfy it; engine components depend on the narrow interfaces above.
type Store interface {
	PeriodStore
	ServiceStore
	ProductStore
	InvoiceStore
	IncomeStore
}

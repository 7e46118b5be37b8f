// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	services map[billing.ServiceID]billing.Service
	products map[billing.ProductID]billing.Product
	periods  map[billing.WorkPeriodID]billing.WorkPeriod
	invoices map[billing.InvoiceID]billing.Invoice
	lines    map[billing.InvoiceLineID]billing.InvoiceLine
	payments map[billing.PaymentID]billing.Payment
	incomes  map[billing.IncomeID]billing.Income
}

func NewMemory() *Memory {
	return &Memory{
		services: make(map[billing.ServiceID]billing.Service),
		products: make(map[billing.ProductID]billing.Product),
		periods:  make(map[billing.WorkPeriodID]billing.WorkPeriod),
		invoices: make(map[billing.InvoiceID]billing.Invoice),
		lines:    make(map[billing.InvoiceLineID]billing.InvoiceLine),
		payments: make(map[billing.PaymentID]billing.Payment),
		incomes:  make(map[billing.IncomeID]billing.Income),
	}
}

// =============================================================================
// PERIOD STORE
// =============================================================================

// GetOrCreate returns the period for the exact range, creating it if absent.
// The single lock makes the check-then-insert atomic, mirroring the unique
// index the SQLite store relies on.
func (m *Memory) GetOrCreate(_ context.Context, serviceID billing.ServiceID, r billing.DateRange) (billing.WorkPeriod, error) {
	if err := r.Validate(); err != nil {
		return billing.WorkPeriod{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.services[serviceID]
	if !ok {
		return billing.WorkPeriod{}, billing.ErrServiceNotFound
	}

	for _, p := range m.periods {
		if p.ServiceID == serviceID && p.Range.Equal(r) {
			return p, nil
		}
	}

	p := billing.WorkPeriod{
		ID:        billing.WorkPeriodID(uuid.NewString()),
		ServiceID: serviceID,
		Range:     r,
		Kind:      svc.Cadence,
		CreatedAt: time.Now().UTC(),
	}
	m.periods[p.ID] = p
	return p, nil
}

func (m *Memory) Get(_ context.Context, id billing.WorkPeriodID) (*billing.WorkPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, billing.ErrPeriodNotFound
	}
	return &p, nil
}

func (m *Memory) FindByRange(_ context.Context, serviceID billing.ServiceID, r billing.DateRange) (*billing.WorkPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.periods {
		if p.ServiceID == serviceID && p.Range.Equal(r) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListByService(_ context.Context, serviceID billing.ServiceID) ([]billing.WorkPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var periods []billing.WorkPeriod
	for _, p := range m.periods {
		if p.ServiceID == serviceID {
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Range.From.Before(periods[j].Range.From)
	})
	return periods, nil
}

func (m *Memory) SetExpectedAmount(_ context.Context, id billing.WorkPeriodID, amount billing.Money) error {
	if amount.IsNegative() {
		return billing.NewValidationError("expected amount must not be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return billing.ErrPeriodNotFound
	}
	p.ExpectedAmount = &amount
	m.periods[id] = p
	return nil
}

func (m *Memory) SetInvoiceNotRequired(_ context.Context, id billing.WorkPeriodID, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return billing.ErrPeriodNotFound
	}
	p.InvoiceNotRequired = v
	m.periods[id] = p
	return nil
}

func (m *Memory) SetReportRef(_ context.Context, id billing.WorkPeriodID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return billing.ErrPeriodNotFound
	}
	p.ReportRef = ref
	m.periods[id] = p
	return nil
}

// =============================================================================
// SERVICE STORE
// =============================================================================

func (m *Memory) SaveService(_ context.Context, svc billing.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.ID] = svc
	return nil
}

func (m *Memory) GetService(_ context.Context, id billing.ServiceID) (*billing.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, ok := m.services[id]
	if !ok {
		return nil, billing.ErrServiceNotFound
	}
	return &svc, nil
}

func (m *Memory) ListServices(_ context.Context) ([]billing.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	services := make([]billing.Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

// DeleteService cascades to the service's periods, their invoice lines, and
// its incomes - the same chain the SQLite foreign keys enforce.
func (m *Memory) DeleteService(_ context.Context, id billing.ServiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[id]; !ok {
		return billing.ErrServiceNotFound
	}
	delete(m.services, id)

	for pid, p := range m.periods {
		if p.ServiceID != id {
			continue
		}
		for lid, line := range m.lines {
			if line.WorkPeriodID == pid {
				delete(m.lines, lid)
			}
		}
		delete(m.periods, pid)
	}
	for iid, inc := range m.incomes {
		if inc.ServiceID == id {
			delete(m.incomes, iid)
		}
	}
	return nil
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

func (m *Memory) SaveProduct(_ context.Context, p billing.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id billing.ProductID) (*billing.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, billing.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]billing.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]billing.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (m *Memory) CreateInvoice(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (m *Memory) UpdateInvoice(_ context.Context, id billing.InvoiceID, number string, issuedOn *billing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	inv.Number = number
	inv.IssuedOn = issuedOn
	m.invoices[id] = inv
	return nil
}

func (m *Memory) AddLine(_ context.Context, line billing.InvoiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[line.InvoiceID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	if _, ok := m.periods[line.WorkPeriodID]; !ok {
		return billing.ErrPeriodNotFound
	}
	m.lines[line.ID] = line
	return nil
}

func (m *Memory) GetLine(_ context.Context, id billing.InvoiceLineID) (*billing.InvoiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	line, ok := m.lines[id]
	if !ok {
		return nil, billing.ErrLineNotFound
	}
	return &line, nil
}

func (m *Memory) UpdateLineDisplay(_ context.Context, id billing.InvoiceLineID, serviceName, siteName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.lines[id]
	if !ok {
		return billing.ErrLineNotFound
	}
	line.ServiceName = serviceName
	line.SiteName = siteName
	m.lines[id] = line
	return nil
}

func (m *Memory) ListLinesByInvoice(_ context.Context, id billing.InvoiceID) ([]billing.InvoiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines []billing.InvoiceLine
	for _, line := range m.lines {
		if line.InvoiceID == id {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CreatedAt.Before(lines[j].CreatedAt) })
	return lines, nil
}

func (m *Memory) ListLinesByPeriod(_ context.Context, id billing.WorkPeriodID) ([]billing.InvoiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lines []billing.InvoiceLine
	for _, line := range m.lines {
		if line.WorkPeriodID == id {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CreatedAt.Before(lines[j].CreatedAt) })
	return lines, nil
}

func (m *Memory) CreatePayment(_ context.Context, p billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[p.InvoiceID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id billing.PaymentID) (*billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *Memory) DeletePayment(_ context.Context, id billing.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[id]; !ok {
		return billing.ErrPaymentNotFound
	}
	delete(m.payments, id)
	return nil
}

func (m *Memory) ListPaymentsByInvoice(_ context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var payments []billing.Payment
	for _, p := range m.payments {
		if p.InvoiceID == id {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.Before(payments[j].PaidAt) })
	return payments, nil
}

// =============================================================================
// INCOME STORE
// =============================================================================

func (m *Memory) CreateIncome(_ context.Context, inc billing.Income) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[inc.ServiceID]; !ok {
		return billing.ErrServiceNotFound
	}
	if inc.WorkPeriodID != nil {
		if _, ok := m.periods[*inc.WorkPeriodID]; !ok {
			return billing.ErrPeriodNotFound
		}
	}
	m.incomes[inc.ID] = inc
	return nil
}

func (m *Memory) GetIncome(_ context.Context, id billing.IncomeID) (*billing.Income, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inc, ok := m.incomes[id]
	if !ok {
		return nil, billing.ErrIncomeNotFound
	}
	return &inc, nil
}

func (m *Memory) UpdateIncome(_ context.Context, inc billing.Income) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incomes[inc.ID]; !ok {
		return billing.ErrIncomeNotFound
	}
	m.incomes[inc.ID] = inc
	return nil
}

func (m *Memory) DeleteIncome(_ context.Context, id billing.IncomeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incomes[id]; !ok {
		return billing.ErrIncomeNotFound
	}
	delete(m.incomes, id)
	return nil
}

func (m *Memory) ListIncomesByPeriod(_ context.Context, id billing.WorkPeriodID) ([]billing.Income, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var incomes []billing.Income
	for _, inc := range m.incomes {
		if inc.WorkPeriodID != nil && *inc.WorkPeriodID == id {
			incomes = append(incomes, inc)
		}
	}
	sort.Slice(incomes, func(i, j int) bool {
		return incomes[i].IncomeDate.Before(incomes[j].IncomeDate)
	})
	return incomes, nil
}

func (m *Memory) ListIncomesByService(_ context.Context, id billing.ServiceID) ([]billing.Income, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var incomes []billing.Income
	for _, inc := range m.incomes {
		if inc.ServiceID == id {
			incomes = append(incomes, inc)
		}
	}
	sort.Slice(incomes, func(i, j int) bool {
		return incomes[i].IncomeDate.Before(incomes[j].IncomeDate)
	})
	return incomes, nil
}

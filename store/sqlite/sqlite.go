/*
Package sqlite provides a SQLite-backed implementation of the billing stores.

PURPOSE:
  Implements billing.Store (periods, services, products, invoices, incomes)
  using SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  products:      commission rule sets (JSON config)
  services:      sold product instances with the commission snapshot
  work_periods:  billing buckets, one row per (service, range)
  invoices:      billing documents per legal entity
  invoice_lines: period allocations under invoices
  payments:      invoice-side bookkeeping
  incomes:       authoritative revenue-recognition events

RACE MITIGATION:
  The only concurrency hazard in the engine is two requests materializing
  the same virtual period. The unique index on (service_id, date_from,
  date_to) resolves it: the losing INSERT hits the constraint, which
  GetOrCreate treats as "someone else already created it" and answers by
  re-reading the existing row. The violation is never surfaced.

REFERENTIAL INTEGRITY:
  Foreign keys are ON: deleting a service cascades to its periods and
  incomes; deleting a period (only ever via that cascade) takes its
  invoice lines with it; deleting an invoice removes its lines and
  payments. Incomes are otherwise independent single-row operations.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: interface definitions
  - billing/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/billing-engine/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Products (commission rule sets as JSON config)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rules_json TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Services (sold product instances, commission snapshot inline)
	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		price INTEGER,
		cadence TEXT NOT NULL,
		prepay_mode TEXT NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL,
		partner_lead BOOLEAN NOT NULL DEFAULT FALSE,
		employee_id TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		commission_percent TEXT NOT NULL DEFAULT '0',
		commission_amount INTEGER NOT NULL DEFAULT 0,
		am_fee INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_services_product
		ON services(product_id);

	-- Work periods (billing buckets)
	CREATE TABLE IF NOT EXISTS work_periods (
		id TEXT PRIMARY KEY,
		service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		kind TEXT NOT NULL,
		expected_amount INTEGER,
		invoice_not_required BOOLEAN NOT NULL DEFAULT FALSE,
		report_ref TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: resolves the virtual-period materialization race.
	-- Two concurrent get-or-create calls for the same range collide here;
	-- the loser re-reads and returns the winner's row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_work_periods_unique_range
		ON work_periods(service_id, date_from, date_to);

	CREATE INDEX IF NOT EXISTS idx_work_periods_service
		ON work_periods(service_id, date_from);

	-- Invoices
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		legal_entity_id TEXT NOT NULL,
		total INTEGER NOT NULL,
		number TEXT NOT NULL DEFAULT '',
		issued_on TEXT,
		created_at TEXT NOT NULL
	);

	-- Invoice lines (period allocations; cross-service lines allowed)
	CREATE TABLE IF NOT EXISTS invoice_lines (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		work_period_id TEXT NOT NULL REFERENCES work_periods(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL,
		service_name TEXT NOT NULL DEFAULT '',
		site_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice
		ON invoice_lines(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_invoice_lines_period
		ON invoice_lines(work_period_id);

	-- Payments (invoice-side bookkeeping, independent of incomes)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL,
		paid_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice
		ON payments(invoice_id);

	-- Incomes (authoritative collected revenue)
	CREATE TABLE IF NOT EXISTS incomes (
		id TEXT PRIMARY KEY,
		service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
		work_period_id TEXT REFERENCES work_periods(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL,
		legal_entity_id TEXT NOT NULL,
		income_date TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incomes_period
		ON incomes(work_period_id);
	CREATE INDEX IF NOT EXISTS idx_incomes_service
		ON incomes(service_id, income_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PERIOD STORE (billing.PeriodStore interface)
// =============================================================================

// GetOrCreate returns the period for the exact range, creating it if absent.
// A unique-constraint violation from a racing insert is recovered by
// re-reading the existing row.
func (s *Store) GetOrCreate(ctx context.Context, serviceID billing.ServiceID, r billing.DateRange) (billing.WorkPeriod, error) {
	if err := r.Validate(); err != nil {
		return billing.WorkPeriod{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.findByRange(ctx, serviceID, r)
	if err != nil {
		return billing.WorkPeriod{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	svc, err := s.queryService(ctx, serviceID)
	if err != nil {
		return billing.WorkPeriod{}, err
	}

	p := billing.WorkPeriod{
		ID:        billing.WorkPeriodID(uuid.NewString()),
		ServiceID: serviceID,
		Range:     r,
		Kind:      svc.Cadence,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO work_periods (id, service_id, date_from, date_to, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ServiceID, p.Range.From.String(), p.Range.To.String(), p.Kind,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Lost the race: the row exists now. Return it.
			winner, rerr := s.findByRange(ctx, serviceID, r)
			if rerr != nil {
				return billing.WorkPeriod{}, rerr
			}
			if winner != nil {
				return *winner, nil
			}
			return billing.WorkPeriod{}, billing.ErrDuplicateRange
		}
		return billing.WorkPeriod{}, fmt.Errorf("failed to create work period: %w", err)
	}

	return p, nil
}

func (s *Store) Get(ctx context.Context, id billing.WorkPeriodID) (*billing.WorkPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, periodSelect+" WHERE id = ?", id)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindByRange(ctx context.Context, serviceID billing.ServiceID, r billing.DateRange) (*billing.WorkPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByRange(ctx, serviceID, r)
}

func (s *Store) findByRange(ctx context.Context, serviceID billing.ServiceID, r billing.DateRange) (*billing.WorkPeriod, error) {
	row := s.db.QueryRowContext(ctx,
		periodSelect+" WHERE service_id = ? AND date_from = ? AND date_to = ?",
		serviceID, r.From.String(), r.To.String(),
	)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListByService(ctx context.Context, serviceID billing.ServiceID) ([]billing.WorkPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		periodSelect+" WHERE service_id = ? ORDER BY date_from ASC", serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []billing.WorkPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (s *Store) SetExpectedAmount(ctx context.Context, id billing.WorkPeriodID, amount billing.Money) error {
	if amount.IsNegative() {
		return billing.NewValidationError("expected amount must not be negative")
	}
	return s.updatePeriodField(ctx, id, "expected_amount", int64(amount))
}

func (s *Store) SetInvoiceNotRequired(ctx context.Context, id billing.WorkPeriodID, v bool) error {
	return s.updatePeriodField(ctx, id, "invoice_not_required", v)
}

func (s *Store) SetReportRef(ctx context.Context, id billing.WorkPeriodID, ref string) error {
	return s.updatePeriodField(ctx, id, "report_ref", ref)
}

func (s *Store) updatePeriodField(ctx context.Context, id billing.WorkPeriodID, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE work_periods SET "+column+" = ? WHERE id = ?", value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrPeriodNotFound
	}
	return nil
}

const periodSelect = `
	SELECT id, service_id, date_from, date_to, kind, expected_amount,
	       invoice_not_required, report_ref, created_at
	FROM work_periods`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (billing.WorkPeriod, error) {
	var (
		p              billing.WorkPeriod
		dateFrom       string
		dateTo         string
		expectedAmount sql.NullInt64
		createdAt      string
	)

	err := row.Scan(&p.ID, &p.ServiceID, &dateFrom, &dateTo, &p.Kind,
		&expectedAmount, &p.InvoiceNotRequired, &p.ReportRef, &createdAt)
	if err != nil {
		return p, err
	}

	p.Range.From, _ = billing.ParseDate(dateFrom)
	p.Range.To, _ = billing.ParseDate(dateTo)
	if expectedAmount.Valid {
		amount := billing.Money(expectedAmount.Int64)
		p.ExpectedAmount = &amount
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// =============================================================================
// SERVICE STORE (billing.ServiceStore interface)
// =============================================================================

// SaveService inserts or replaces a service row.
func (s *Store) SaveService(ctx context.Context, svc billing.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO services
		(id, product_id, price, cadence, prepay_mode, start_date, status,
		 partner_lead, employee_id, department, commission_percent,
		 commission_amount, am_fee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			price = excluded.price,
			cadence = excluded.cadence,
			prepay_mode = excluded.prepay_mode,
			start_date = excluded.start_date,
			status = excluded.status,
			partner_lead = excluded.partner_lead,
			employee_id = excluded.employee_id,
			department = excluded.department,
			commission_percent = excluded.commission_percent,
			commission_amount = excluded.commission_amount,
			am_fee = excluded.am_fee,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		svc.ID, svc.ProductID, nullMoney(svc.Price), svc.Cadence, svc.PrepayMode,
		svc.StartDate.String(), svc.Status, svc.PartnerLead,
		svc.ResponsibleEmployee, svc.Department, svc.CommissionPercent,
		int64(svc.CommissionAmount), nullMoney(svc.AMFee),
		svc.CreatedAt.Format(time.RFC3339), svc.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetService(ctx context.Context, id billing.ServiceID) (*billing.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryService(ctx, id)
}

func (s *Store) queryService(ctx context.Context, id billing.ServiceID) (*billing.Service, error) {
	row := s.db.QueryRowContext(ctx, serviceSelect+" WHERE id = ?", id)
	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) ListServices(ctx context.Context) ([]billing.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, serviceSelect+" ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []billing.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// DeleteService removes a service; foreign keys cascade to its periods,
// their invoice lines, and its incomes.
func (s *Store) DeleteService(ctx context.Context, id billing.ServiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM services WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrServiceNotFound
	}
	return nil
}

const serviceSelect = `
	SELECT id, product_id, price, cadence, prepay_mode, start_date, status,
	       partner_lead, employee_id, department, commission_percent,
	       commission_amount, am_fee, created_at, updated_at
	FROM services`

func scanService(row rowScanner) (billing.Service, error) {
	var (
		svc              billing.Service
		price            sql.NullInt64
		startDate        string
		commissionAmount int64
		amFee            sql.NullInt64
		createdAt        string
		updatedAt        string
	)

	err := row.Scan(&svc.ID, &svc.ProductID, &price, &svc.Cadence, &svc.PrepayMode,
		&startDate, &svc.Status, &svc.PartnerLead, &svc.ResponsibleEmployee,
		&svc.Department, &svc.CommissionPercent, &commissionAmount, &amFee,
		&createdAt, &updatedAt)
	if err != nil {
		return svc, err
	}

	if price.Valid {
		p := billing.Money(price.Int64)
		svc.Price = &p
	}
	svc.StartDate, _ = billing.ParseDate(startDate)
	svc.CommissionAmount = billing.Money(commissionAmount)
	if amFee.Valid {
		fee := billing.Money(amFee.Int64)
		svc.AMFee = &fee
	}
	svc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	svc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return svc, nil
}

// =============================================================================
// PRODUCT STORE (billing.ProductStore interface)
// =============================================================================

func (s *Store) SaveProduct(ctx context.Context, p billing.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO products (id, name, rules_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rules_json = excluded.rules_json,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.RulesJSON,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetProduct(ctx context.Context, id billing.ProductID) (*billing.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         billing.Product
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, rules_json, created_at, updated_at FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.RulesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, billing.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]billing.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, rules_json, created_at, updated_at FROM products ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []billing.Product
	for rows.Next() {
		var (
			p         billing.Product
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.RulesJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// INVOICE STORE (billing.InvoiceStore interface)
// =============================================================================

func (s *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, legal_entity_id, total, number, issued_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.LegalEntityID, int64(inv.Total), inv.Number,
		nullDate(inv.IssuedOn), inv.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		inv       billing.Invoice
		total     int64
		issuedOn  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, legal_entity_id, total, number, issued_on, created_at FROM invoices WHERE id = ?", id,
	).Scan(&inv.ID, &inv.LegalEntityID, &total, &inv.Number, &issuedOn, &createdAt)
	if err == sql.ErrNoRows {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	inv.Total = billing.Money(total)
	if issuedOn.Valid && issuedOn.String != "" {
		d, _ := billing.ParseDate(issuedOn.String)
		inv.IssuedOn = &d
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, id billing.InvoiceID, number string, issuedOn *billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET number = ?, issued_on = ? WHERE id = ?",
		number, nullDate(issuedOn), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) AddLine(ctx context.Context, line billing.InvoiceLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_lines (id, invoice_id, work_period_id, amount, service_name, site_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.InvoiceID, line.WorkPeriodID, int64(line.Amount),
		line.ServiceName, line.SiteName, line.CreatedAt.Format(time.RFC3339))
	if err != nil && isForeignKeyError(err) {
		return billing.ErrPeriodNotFound
	}
	return err
}

func (s *Store) GetLine(ctx context.Context, id billing.InvoiceLineID) (*billing.InvoiceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, lineSelect+" WHERE id = ?", id)
	line, err := scanLine(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *Store) UpdateLineDisplay(ctx context.Context, id billing.InvoiceLineID, serviceName, siteName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE invoice_lines SET service_name = ?, site_name = ? WHERE id = ?",
		serviceName, siteName, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrLineNotFound
	}
	return nil
}

func (s *Store) ListLinesByInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.InvoiceLine, error) {
	return s.queryLines(ctx, lineSelect+" WHERE invoice_id = ? ORDER BY created_at ASC", id)
}

func (s *Store) ListLinesByPeriod(ctx context.Context, id billing.WorkPeriodID) ([]billing.InvoiceLine, error) {
	return s.queryLines(ctx, lineSelect+" WHERE work_period_id = ? ORDER BY created_at ASC", id)
}

func (s *Store) queryLines(ctx context.Context, query string, args ...any) ([]billing.InvoiceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []billing.InvoiceLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const lineSelect = `
	SELECT id, invoice_id, work_period_id, amount, service_name, site_name, created_at
	FROM invoice_lines`

func scanLine(row rowScanner) (billing.InvoiceLine, error) {
	var (
		line      billing.InvoiceLine
		amount    int64
		createdAt string
	)
	err := row.Scan(&line.ID, &line.InvoiceID, &line.WorkPeriodID, &amount,
		&line.ServiceName, &line.SiteName, &createdAt)
	if err != nil {
		return line, err
	}
	line.Amount = billing.Money(amount)
	line.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return line, nil
}

func (s *Store) CreatePayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, amount, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.InvoiceID, int64(p.Amount),
		p.PaidAt.Format(time.RFC3339), p.CreatedAt.Format(time.RFC3339))
	if err != nil && isForeignKeyError(err) {
		return billing.ErrInvoiceNotFound
	}
	return err
}

func (s *Store) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         billing.Payment
		amount    int64
		paidAt    string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, invoice_id, amount, paid_at, created_at FROM payments WHERE id = ?", id,
	).Scan(&p.ID, &p.InvoiceID, &amount, &paidAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, billing.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Amount = billing.Money(amount)
	p.PaidAt, _ = time.Parse(time.RFC3339, paidAt)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (s *Store) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrPaymentNotFound
	}
	return nil
}

func (s *Store) ListPaymentsByInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, invoice_id, amount, paid_at, created_at FROM payments WHERE invoice_id = ? ORDER BY paid_at ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		var (
			p         billing.Payment
			amount    int64
			paidAt    string
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &paidAt, &createdAt); err != nil {
			return nil, err
		}
		p.Amount = billing.Money(amount)
		p.PaidAt, _ = time.Parse(time.RFC3339, paidAt)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// INCOME STORE (billing.IncomeStore interface)
// =============================================================================

func (s *Store) CreateIncome(ctx context.Context, inc billing.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incomes
		(id, service_id, work_period_id, amount, legal_entity_id, income_date,
		 created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.ServiceID, nullPeriodID(inc.WorkPeriodID), int64(inc.Amount),
		inc.LegalEntityID, inc.IncomeDate.String(), inc.CreatedBy, inc.UpdatedBy,
		inc.CreatedAt.Format(time.RFC3339), inc.UpdatedAt.Format(time.RFC3339))
	if err != nil && isForeignKeyError(err) {
		return billing.ErrServiceNotFound
	}
	return err
}

func (s *Store) GetIncome(ctx context.Context, id billing.IncomeID) (*billing.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, incomeSelect+" WHERE id = ?", id)
	inc, err := scanIncome(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrIncomeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (s *Store) UpdateIncome(ctx context.Context, inc billing.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE incomes SET work_period_id = ?, amount = ?, legal_entity_id = ?,
			income_date = ?, updated_by = ?, updated_at = ?
		WHERE id = ?`,
		nullPeriodID(inc.WorkPeriodID), int64(inc.Amount), inc.LegalEntityID,
		inc.IncomeDate.String(), inc.UpdatedBy, inc.UpdatedAt.Format(time.RFC3339),
		inc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrIncomeNotFound
	}
	return nil
}

func (s *Store) DeleteIncome(ctx context.Context, id billing.IncomeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM incomes WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrIncomeNotFound
	}
	return nil
}

func (s *Store) ListIncomesByPeriod(ctx context.Context, id billing.WorkPeriodID) ([]billing.Income, error) {
	return s.queryIncomes(ctx, incomeSelect+" WHERE work_period_id = ? ORDER BY income_date ASC", id)
}

func (s *Store) ListIncomesByService(ctx context.Context, id billing.ServiceID) ([]billing.Income, error) {
	return s.queryIncomes(ctx, incomeSelect+" WHERE service_id = ? ORDER BY income_date ASC", id)
}

func (s *Store) queryIncomes(ctx context.Context, query string, args ...any) ([]billing.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incomes []billing.Income
	for rows.Next() {
		inc, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, inc)
	}
	return incomes, rows.Err()
}

const incomeSelect = `
	SELECT id, service_id, work_period_id, amount, legal_entity_id, income_date,
	       created_by, updated_by, created_at, updated_at
	FROM incomes`

func scanIncome(row rowScanner) (billing.Income, error) {
	var (
		inc        billing.Income
		periodID   sql.NullString
		amount     int64
		incomeDate string
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&inc.ID, &inc.ServiceID, &periodID, &amount, &inc.LegalEntityID,
		&incomeDate, &inc.CreatedBy, &inc.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return inc, err
	}

	if periodID.Valid && periodID.String != "" {
		id := billing.WorkPeriodID(periodID.String)
		inc.WorkPeriodID = &id
	}
	inc.Amount = billing.Money(amount)
	inc.IncomeDate, _ = billing.ParseDate(incomeDate)
	inc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return inc, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullMoney(m *billing.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*m), Valid: true}
}

func nullDate(d *billing.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullPeriodID(id *billing.WorkPeriodID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

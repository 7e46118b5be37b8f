/*
allocator.go - Invoice and line allocation

PURPOSE:
  Creates invoices against legal entities and attaches line items to work
  periods. Invoicing is a billing/document concern, deliberately decoupled
  from revenue recognition: no validation ties a line amount to the period's
  remaining balance, a period may be invoiced repeatedly, and one invoice
  may carry lines from many periods and services of one legal entity.

INVOICE-SIDE PAYMENTS:
  Payments under an invoice are bookkeeping only. Deleting a payment is
  permitted and never touches the income ledger; the allocator returns an
  InconsistencyWarning so the operator knows the two ledgers may have
  diverged. Income totals remain the source of truth for collected revenue.

SEE ALSO:
  - matcher.go: the income side
  - reconcile.go: the report that makes the divergence visible
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Allocator creates invoices and allocates lines to periods.
type Allocator struct {
	Invoices InvoiceStore
	Periods  PeriodStore
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{Invoices: store, Periods: store}
}

// CreateInvoice opens an invoice against a legal entity. Lines are added
// afterward; the stored total is whatever the caller passes and stays
// independent of the line sum.
func (a *Allocator) CreateInvoice(ctx context.Context, legalEntity LegalEntityID, total Money) (Invoice, error) {
	if legalEntity == "" {
		return Invoice{}, NewValidationError("invoice requires a legal entity")
	}
	if total.IsNegative() {
		return Invoice{}, NewValidationError("invoice total must not be negative")
	}

	inv := Invoice{
		ID:            InvoiceID(uuid.NewString()),
		LegalEntityID: legalEntity,
		Total:         total,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.Invoices.CreateInvoice(ctx, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// UpdateInvoice fills the administrative number and issue date.
func (a *Allocator) UpdateInvoice(ctx context.Context, id InvoiceID, number string, issuedOn *Date) (Invoice, error) {
	if err := a.Invoices.UpdateInvoice(ctx, id, number, issuedOn); err != nil {
		return Invoice{}, err
	}
	inv, err := a.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return *inv, nil
}

// AddLine attaches an amount to a work period under an invoice. The period
// must exist; the amount is not checked against the period's balance.
func (a *Allocator) AddLine(ctx context.Context, invoiceID InvoiceID, periodID WorkPeriodID, amount Money) (InvoiceLine, error) {
	if amount.IsNegative() {
		return InvoiceLine{}, NewValidationError("line amount must not be negative")
	}
	if _, err := a.Invoices.GetInvoice(ctx, invoiceID); err != nil {
		return InvoiceLine{}, err
	}
	if _, err := a.Periods.Get(ctx, periodID); err != nil {
		return InvoiceLine{}, err
	}

	line := InvoiceLine{
		ID:           InvoiceLineID(uuid.NewString()),
		InvoiceID:    invoiceID,
		WorkPeriodID: periodID,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.Invoices.AddLine(ctx, line); err != nil {
		return InvoiceLine{}, err
	}
	return line, nil
}

// UpdateLineDisplay sets the per-line overrides used only on printed
// documents. Financial totals are untouched.
func (a *Allocator) UpdateLineDisplay(ctx context.Context, id InvoiceLineID, serviceName, siteName string) (InvoiceLine, error) {
	if err := a.Invoices.UpdateLineDisplay(ctx, id, serviceName, siteName); err != nil {
		return InvoiceLine{}, err
	}
	line, err := a.Invoices.GetLine(ctx, id)
	if err != nil {
		return InvoiceLine{}, err
	}
	return *line, nil
}

// RecordPayment books a payment under an invoice.
func (a *Allocator) RecordPayment(ctx context.Context, invoiceID InvoiceID, amount Money, paidAt time.Time) (Payment, error) {
	if amount.IsNegative() {
		return Payment{}, NewValidationError("payment amount must not be negative")
	}
	if _, err := a.Invoices.GetInvoice(ctx, invoiceID); err != nil {
		return Payment{}, err
	}

	p := Payment{
		ID:        PaymentID(uuid.NewString()),
		InvoiceID: invoiceID,
		Amount:    amount,
		PaidAt:    paidAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Invoices.CreatePayment(ctx, p); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// DeletePayment removes an invoice-side payment. The corresponding income,
// if any, stays: the returned warning tells the operator the invoice-side
// and income-side ledgers can no longer be assumed to agree.
func (a *Allocator) DeletePayment(ctx context.Context, id PaymentID) (*InconsistencyWarning, error) {
	p, err := a.Invoices.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Invoices.DeletePayment(ctx, id); err != nil {
		return nil, err
	}
	return &InconsistencyWarning{
		InvoiceID: p.InvoiceID,
		PaymentID: p.ID,
		Message:   "payment deleted without touching the income ledger; invoice totals may diverge from collected revenue",
	}, nil
}

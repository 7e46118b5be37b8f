/*
reconcile.go - Invoice-side vs income-side reconciliation report

PURPOSE:
  The invoice ledger and the income ledger are deliberately decoupled: a
  period can be over- or under-invoiced relative to what was collected, and
  payments can be deleted without touching incomes. This report makes the
  divergence visible per period instead of silently enforcing equality.

  For each expected period of a service:
    expected    - period override, else service price
    invoiced    - sum of the period's invoice lines across all invoices
    collected   - sum of the period's incomes
    outstanding - expected - collected (NOT clamped; negative = over-paid)
    diverged    - invoiced != collected

  Virtual periods appear with zero invoiced/collected figures so the report
  always covers the full expected sequence.
*/
package billing

import "context"

// PeriodReconciliation is one row of a service's reconciliation report.
type PeriodReconciliation struct {
	Period      Period
	Expected    Money
	Invoiced    Money
	Collected   Money
	Outstanding Money
	Diverged    bool
}

// ReconciliationReport covers every expected period of one service.
type ReconciliationReport struct {
	ServiceID ServiceID
	AsOf      Date
	Rows      []PeriodReconciliation
}

// Reconciler builds reconciliation reports.
type Reconciler struct {
	Generator *Generator
	Invoices  InvoiceStore
	Incomes   IncomeStore
	Periods   PeriodStore
	Services  ServiceStore
}

func NewReconciler(store Store, clock Clock) *Reconciler {
	return &Reconciler{
		Generator: NewGenerator(store, clock),
		Invoices:  store,
		Incomes:   store,
		Periods:   store,
		Services:  store,
	}
}

// Report builds the reconciliation view for one service.
func (r *Reconciler) Report(ctx context.Context, serviceID ServiceID) (ReconciliationReport, error) {
	svc, err := r.Services.GetService(ctx, serviceID)
	if err != nil {
		return ReconciliationReport{}, err
	}

	periods, err := r.Generator.ExpectedPeriods(ctx, *svc)
	if err != nil {
		return ReconciliationReport{}, err
	}

	report := ReconciliationReport{
		ServiceID: serviceID,
		AsOf:      r.Generator.Clock.Today(),
		Rows:      make([]PeriodReconciliation, 0, len(periods)),
	}

	for _, p := range periods {
		row := PeriodReconciliation{Period: p, Expected: svc.ExpectedAmount()}

		if p.Persisted() {
			period, err := r.Periods.Get(ctx, *p.ID)
			if err != nil {
				return ReconciliationReport{}, err
			}
			if period.ExpectedAmount != nil {
				row.Expected = *period.ExpectedAmount
			}

			lines, err := r.Invoices.ListLinesByPeriod(ctx, *p.ID)
			if err != nil {
				return ReconciliationReport{}, err
			}
			for _, line := range lines {
				row.Invoiced = row.Invoiced.Add(line.Amount)
			}

			incomes, err := r.Incomes.ListIncomesByPeriod(ctx, *p.ID)
			if err != nil {
				return ReconciliationReport{}, err
			}
			for _, inc := range incomes {
				row.Collected = row.Collected.Add(inc.Amount)
			}
		}

		row.Outstanding = row.Expected.Sub(row.Collected)
		row.Diverged = row.Invoiced != row.Collected
		report.Rows = append(report.Rows, row)
	}

	return report, nil
}

/*
status.go - Per-period completion status projection

PURPOSE:
  Derives the three-state completion view shown for every billing period.
  There is no state machine and nothing is stored: the three booleans are
  independent and recomputed on every read.

    reportDone  - a period report document reference exists
    paymentDone - the period does require closing documents AND at least
                  one invoice line is allocated to it (issuance, not
                  collection, flips this flag)
    incomesDone - expected <= 0 OR collected >= expected
*/
package billing

import "context"

// PeriodStatus is the derived completion view for one period.
type PeriodStatus struct {
	ReportDone  bool
	PaymentDone bool
	IncomesDone bool
}

// Projector computes PeriodStatus from the stores.
type Projector struct {
	Periods  PeriodStore
	Invoices InvoiceStore
	Incomes  IncomeStore
	Services ServiceStore
}

func NewProjector(store Store) *Projector {
	return &Projector{Periods: store, Invoices: store, Incomes: store, Services: store}
}

// Status derives the completion flags for a period.
func (p *Projector) Status(ctx context.Context, periodID WorkPeriodID) (PeriodStatus, error) {
	period, err := p.Periods.Get(ctx, periodID)
	if err != nil {
		return PeriodStatus{}, err
	}

	var status PeriodStatus
	status.ReportDone = period.ReportRef != ""

	if !period.InvoiceNotRequired {
		lines, err := p.Invoices.ListLinesByPeriod(ctx, periodID)
		if err != nil {
			return PeriodStatus{}, err
		}
		status.PaymentDone = len(lines) > 0
	}

	expected := Money(0)
	if period.ExpectedAmount != nil {
		expected = *period.ExpectedAmount
	} else {
		svc, err := p.Services.GetService(ctx, period.ServiceID)
		if err != nil {
			return PeriodStatus{}, err
		}
		expected = svc.ExpectedAmount()
	}

	if expected <= 0 {
		status.IncomesDone = true
	} else {
		incomes, err := p.Incomes.ListIncomesByPeriod(ctx, periodID)
		if err != nil {
			return PeriodStatus{}, err
		}
		var collected Money
		for _, inc := range incomes {
			collected = collected.Add(inc.Amount)
		}
		status.IncomesDone = collected >= expected
	}

	return status, nil
}

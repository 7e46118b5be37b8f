/*
matcher.go - Income matching and remaining balance

PURPOSE:
  Records incoming money against billing periods and answers "how much is
  still open on this period". The income ledger is the authoritative
  collected-revenue figure; invoices are a separate document concern.

BALANCE RULES:
  - expected = period override, else service price, else 0
  - remaining = max(0, expected - sum(incomes)), optionally excluding the
    income currently being edited
  - SuggestNextAmount returns the remaining balance as a convenience
    default. It is never enforced as a ceiling: over-payments are accepted.

AUTO-MATERIALIZATION:
  Recording an income without a period id anchors it to the cadence bucket
  containing the income date, materializing that bucket via get-or-create
  first. Dates outside every bucket produce an unmatched income (nil
  period), which is allowed.

SEE ALSO:
  - status.go: incomesDone derives from the same sums
  - reconcile.go: unclamped outstanding figures per period
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Matcher records and edits incomes against periods.
type Matcher struct {
	Periods  PeriodStore
	Incomes  IncomeStore
	Services ServiceStore
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{Periods: store, Incomes: store, Services: store}
}

// =============================================================================
// BALANCE QUERIES
// =============================================================================

// RemainingBalance returns the open amount on a period, floored at zero.
// excludeIncome removes one income from the sum - used while editing that
// income so its own previous amount does not distort the suggestion.
func (m *Matcher) RemainingBalance(ctx context.Context, periodID WorkPeriodID, excludeIncome *IncomeID) (Money, error) {
	expected, err := m.expectedAmount(ctx, periodID)
	if err != nil {
		return 0, err
	}

	incomes, err := m.Incomes.ListIncomesByPeriod(ctx, periodID)
	if err != nil {
		return 0, err
	}

	var collected Money
	for _, inc := range incomes {
		if excludeIncome != nil && inc.ID == *excludeIncome {
			continue
		}
		collected = collected.Add(inc.Amount)
	}
	return expected.Sub(collected).ClampZero(), nil
}

// SuggestNextAmount returns the default amount for the next income against
// a period. Advisory only; callers may record any non-negative amount.
func (m *Matcher) SuggestNextAmount(ctx context.Context, periodID WorkPeriodID) (Money, error) {
	return m.RemainingBalance(ctx, periodID, nil)
}

// Collected returns the sum of a period's incomes.
func (m *Matcher) Collected(ctx context.Context, periodID WorkPeriodID) (Money, error) {
	incomes, err := m.Incomes.ListIncomesByPeriod(ctx, periodID)
	if err != nil {
		return 0, err
	}
	var total Money
	for _, inc := range incomes {
		total = total.Add(inc.Amount)
	}
	return total, nil
}

func (m *Matcher) expectedAmount(ctx context.Context, periodID WorkPeriodID) (Money, error) {
	period, err := m.Periods.Get(ctx, periodID)
	if err != nil {
		return 0, err
	}
	if period.ExpectedAmount != nil {
		return *period.ExpectedAmount, nil
	}
	svc, err := m.Services.GetService(ctx, period.ServiceID)
	if err != nil {
		return 0, err
	}
	return svc.ExpectedAmount(), nil
}

// =============================================================================
// INCOME MUTATIONS
// =============================================================================

// NewIncome is the input for recording an income.
type NewIncome struct {
	ServiceID     ServiceID
	WorkPeriodID  *WorkPeriodID // nil = anchor by income date, or leave unmatched
	Amount        Money
	LegalEntityID LegalEntityID
	IncomeDate    Date
	CreatedBy     string
}

// RecordIncome validates and stores an income. With no explicit period, the
// cadence bucket containing the income date is materialized and the income
// attached to it; a date outside every bucket leaves the income unmatched.
func (m *Matcher) RecordIncome(ctx context.Context, in NewIncome) (Income, error) {
	if err := validateIncomeInput(in.Amount, in.LegalEntityID, in.IncomeDate); err != nil {
		return Income{}, err
	}

	svc, err := m.Services.GetService(ctx, in.ServiceID)
	if err != nil {
		return Income{}, err
	}

	periodID := in.WorkPeriodID
	if periodID != nil {
		period, err := m.Periods.Get(ctx, *periodID)
		if err != nil {
			return Income{}, err
		}
		if period.ServiceID != svc.ID {
			return Income{}, NewValidationError("work period belongs to a different service")
		}
	} else if bucket, ok := BucketContaining(svc.StartDate, svc.Cadence, in.IncomeDate); ok {
		period, err := m.Periods.GetOrCreate(ctx, svc.ID, bucket)
		if err != nil {
			return Income{}, err
		}
		id := period.ID
		periodID = &id
	}

	now := time.Now().UTC()
	inc := Income{
		ID:            IncomeID(uuid.NewString()),
		ServiceID:     svc.ID,
		WorkPeriodID:  periodID,
		Amount:        in.Amount,
		LegalEntityID: in.LegalEntityID,
		IncomeDate:    in.IncomeDate,
		CreatedBy:     in.CreatedBy,
		UpdatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.Incomes.CreateIncome(ctx, inc); err != nil {
		return Income{}, err
	}
	return inc, nil
}

// IncomeUpdate carries the editable fields of an income.
type IncomeUpdate struct {
	Amount        Money
	LegalEntityID LegalEntityID
	IncomeDate    Date
	WorkPeriodID  *WorkPeriodID // nil keeps the current anchoring
	UpdatedBy     string
}

// UpdateIncome replaces the financial fields of an existing income.
func (m *Matcher) UpdateIncome(ctx context.Context, id IncomeID, upd IncomeUpdate) (Income, error) {
	if err := validateIncomeInput(upd.Amount, upd.LegalEntityID, upd.IncomeDate); err != nil {
		return Income{}, err
	}

	inc, err := m.Incomes.GetIncome(ctx, id)
	if err != nil {
		return Income{}, err
	}

	if upd.WorkPeriodID != nil {
		period, err := m.Periods.Get(ctx, *upd.WorkPeriodID)
		if err != nil {
			return Income{}, err
		}
		if period.ServiceID != inc.ServiceID {
			return Income{}, NewValidationError("work period belongs to a different service")
		}
		inc.WorkPeriodID = upd.WorkPeriodID
	}

	inc.Amount = upd.Amount
	inc.LegalEntityID = upd.LegalEntityID
	inc.IncomeDate = upd.IncomeDate
	inc.UpdatedBy = upd.UpdatedBy
	inc.UpdatedAt = time.Now().UTC()

	if err := m.Incomes.UpdateIncome(ctx, *inc); err != nil {
		return Income{}, err
	}
	return *inc, nil
}

// DeleteIncome removes an income. The period's collected figure drops
// accordingly on the next read.
func (m *Matcher) DeleteIncome(ctx context.Context, id IncomeID) error {
	return m.Incomes.DeleteIncome(ctx, id)
}

func validateIncomeInput(amount Money, legalEntity LegalEntityID, date Date) error {
	if amount.IsNegative() {
		return NewValidationError("income amount must not be negative")
	}
	if legalEntity == "" {
		return NewValidationError("income requires a legal entity")
	}
	if date.IsZero() {
		return NewValidationError("income requires an income date")
	}
	return nil
}

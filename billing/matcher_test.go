package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newMatcherFixture(t *testing.T) (*billing.Matcher, *billing.Generator, billing.Store, billing.Service) {
	t.Helper()
	st := store.NewMemory()
	svc := seedService(t, st)
	gen := billing.NewGenerator(st, fixedToday(2024, time.March, 20))
	return billing.NewMatcher(st), gen, st, svc
}

func firstPeriod(t *testing.T, gen *billing.Generator, svc billing.Service) billing.WorkPeriod {
	t.Helper()
	p, err := gen.Materialize(context.Background(), svc.ID, billing.DateRange{
		From: billing.NewDate(2024, time.January, 15),
		To:   billing.NewDate(2024, time.February, 15),
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// REMAINING BALANCE TESTS
// =============================================================================

func TestRemainingBalance_PartialPayments(t *testing.T) {
	// GIVEN: Period expecting 60,000 with a 40,000 income recorded
	// WHEN: Asking for the remaining balance and the suggested next amount
	// THEN: Both are 20,000

	ctx := context.Background()
	matcher, gen, _, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		WorkPeriodID:  &period.ID,
		Amount:        40000,
		LegalEntityID: "entity-1",
		IncomeDate:    billing.NewDate(2024, time.January, 20),
		CreatedBy:     "ops",
	})
	require.NoError(t, err)

	remaining, err := matcher.RemainingBalance(ctx, period.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(20000), remaining)

	suggested, err := matcher.SuggestNextAmount(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(20000), suggested)
}

func TestRemainingBalance_OverPayment_ClampsToZero(t *testing.T) {
	// GIVEN: 100,000 collected against a 60,000 period
	// WHEN: Asking for the remaining balance
	// THEN: Zero, never negative

	ctx := context.Background()
	matcher, gen, _, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		WorkPeriodID:  &period.ID,
		Amount:        100000,
		LegalEntityID: "entity-1",
		IncomeDate:    billing.NewDate(2024, time.January, 20),
		CreatedBy:     "ops",
	})
	require.NoError(t, err)

	remaining, err := matcher.RemainingBalance(ctx, period.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), remaining)

	collected, err := matcher.Collected(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(100000), collected)
}

func TestRemainingBalance_PeriodOverrideBeatsServicePrice(t *testing.T) {
	// GIVEN: Period override of 75,000 on a 60,000 service
	// WHEN: Computing the balance
	// THEN: The override is the expected amount

	ctx := context.Background()
	matcher, gen, st, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	require.NoError(t, st.SetExpectedAmount(ctx, period.ID, 75000))

	remaining, err := matcher.RemainingBalance(ctx, period.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(75000), remaining)
}

func TestRemainingBalance_ExcludesIncomeBeingEdited(t *testing.T) {
	// GIVEN: Two incomes of 20,000 and 30,000
	// WHEN: Computing the balance while editing the 30,000 one
	// THEN: Only the other income counts (60,000 - 20,000 = 40,000)

	ctx := context.Background()
	matcher, gen, _, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 20000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 18), CreatedBy: "ops",
	})
	require.NoError(t, err)
	edited, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 30000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 25), CreatedBy: "ops",
	})
	require.NoError(t, err)

	remaining, err := matcher.RemainingBalance(ctx, period.ID, &edited.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(40000), remaining)
}

// =============================================================================
// INCOME RECORDING TESTS
// =============================================================================

func TestRecordIncome_AutoMaterializesBucketByDate(t *testing.T) {
	// GIVEN: No persisted periods
	// WHEN: Recording an income dated 2024-03-01 without a period id
	// THEN: The [02-15, 03-15) bucket is created and the income anchored

	ctx := context.Background()
	matcher, _, st, svc := newMatcherFixture(t)

	inc, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		Amount:        60000,
		LegalEntityID: "entity-1",
		IncomeDate:    billing.NewDate(2024, time.March, 1),
		CreatedBy:     "ops",
	})
	require.NoError(t, err)
	require.NotNil(t, inc.WorkPeriodID)

	period, err := st.Get(ctx, *inc.WorkPeriodID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-15", period.Range.From.String())
	assert.Equal(t, "2024-03-15", period.Range.To.String())
}

func TestRecordIncome_DateBeforeStart_StaysUnmatched(t *testing.T) {
	// GIVEN: An income dated before the service started
	// WHEN: Recording it without a period id
	// THEN: It is stored unmatched rather than rejected

	ctx := context.Background()
	matcher, _, st, svc := newMatcherFixture(t)

	inc, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     svc.ID,
		Amount:        5000,
		LegalEntityID: "entity-1",
		IncomeDate:    billing.NewDate(2023, time.December, 1),
		CreatedBy:     "ops",
	})
	require.NoError(t, err)
	assert.Nil(t, inc.WorkPeriodID)

	periods, err := st.ListByService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Empty(t, periods, "no bucket should be materialized")
}

func TestRecordIncome_ExplicitPeriodOfOtherService_Rejected(t *testing.T) {
	ctx := context.Background()
	matcher, gen, st, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	other := billing.Service{
		ID: "svc-2", Price: money(10000), Cadence: billing.CadenceMonthly,
		StartDate: billing.NewDate(2024, time.January, 1), Status: billing.ServiceActive,
	}
	require.NoError(t, st.SaveService(ctx, other))

	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID:     other.ID,
		WorkPeriodID:  &period.ID,
		Amount:        10000,
		LegalEntityID: "entity-1",
		IncomeDate:    billing.NewDate(2024, time.January, 20),
		CreatedBy:     "ops",
	})
	assert.True(t, billing.IsValidation(err))
}

func TestRecordIncome_Validation(t *testing.T) {
	ctx := context.Background()
	matcher, _, _, svc := newMatcherFixture(t)
	date := billing.NewDate(2024, time.January, 20)

	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, Amount: -1, LegalEntityID: "entity-1", IncomeDate: date,
	})
	assert.True(t, billing.IsValidation(err), "negative amount")

	_, err = matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, Amount: 100, IncomeDate: date,
	})
	assert.True(t, billing.IsValidation(err), "missing legal entity")

	_, err = matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, Amount: 100, LegalEntityID: "entity-1",
	})
	assert.True(t, billing.IsValidation(err), "missing income date")

	_, err = matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: "missing", Amount: 100, LegalEntityID: "entity-1", IncomeDate: date,
	})
	assert.True(t, billing.IsNotFound(err), "unknown service")
}

func TestUpdateIncome_KeepsAnchorUnlessNewPeriodGiven(t *testing.T) {
	// GIVEN: An income anchored to a period
	// WHEN: Editing the amount without specifying a period
	// THEN: The anchoring survives

	ctx := context.Background()
	matcher, gen, _, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	inc, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 20000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 20), CreatedBy: "ops",
	})
	require.NoError(t, err)

	updated, err := matcher.UpdateIncome(ctx, inc.ID, billing.IncomeUpdate{
		Amount:        35000,
		LegalEntityID: inc.LegalEntityID,
		IncomeDate:    inc.IncomeDate,
		UpdatedBy:     "audit",
	})
	require.NoError(t, err)

	require.NotNil(t, updated.WorkPeriodID)
	assert.Equal(t, period.ID, *updated.WorkPeriodID)
	assert.Equal(t, billing.Money(35000), updated.Amount)
	assert.Equal(t, "audit", updated.UpdatedBy)
	assert.Equal(t, "ops", updated.CreatedBy)
}

func TestDeleteIncome_BalanceRecovers(t *testing.T) {
	// GIVEN: A fully paid period
	// WHEN: Deleting the income
	// THEN: The remaining balance is the full expected amount again

	ctx := context.Background()
	matcher, gen, _, svc := newMatcherFixture(t)
	period := firstPeriod(t, gen, svc)

	inc, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 60000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 20), CreatedBy: "ops",
	})
	require.NoError(t, err)

	require.NoError(t, matcher.DeleteIncome(ctx, inc.ID))

	remaining, err := matcher.RemainingBalance(ctx, period.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(60000), remaining)
}

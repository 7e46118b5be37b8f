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

func TestReconciliationReport_CoversFullExpectedSequence(t *testing.T) {
	// GIVEN: Three expected periods; only the first is persisted, invoiced
	//        for 60,000 and partially collected (40,000)
	// WHEN: Building the report
	// THEN: Row 1 shows the divergence and the open 20,000; rows 2-3 are
	//       virtual with full expected outstanding

	ctx := context.Background()
	st := store.NewMemory()
	svc := seedService(t, st)
	clock := fixedToday(2024, time.March, 20)
	gen := billing.NewGenerator(st, clock)
	alloc := billing.NewAllocator(st)
	matcher := billing.NewMatcher(st)

	period := firstPeriod(t, gen, svc)
	inv, err := alloc.CreateInvoice(ctx, "entity-1", 60000)
	require.NoError(t, err)
	_, err = alloc.AddLine(ctx, inv.ID, period.ID, 60000)
	require.NoError(t, err)
	_, err = matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 40000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 20), CreatedBy: "ops",
	})
	require.NoError(t, err)

	report, err := billing.NewReconciler(st, clock).Report(ctx, svc.ID)
	require.NoError(t, err)

	assert.Equal(t, svc.ID, report.ServiceID)
	assert.Equal(t, "2024-03-20", report.AsOf.String())
	require.Len(t, report.Rows, 3)

	first := report.Rows[0]
	assert.True(t, first.Period.Persisted())
	assert.Equal(t, billing.Money(60000), first.Expected)
	assert.Equal(t, billing.Money(60000), first.Invoiced)
	assert.Equal(t, billing.Money(40000), first.Collected)
	assert.Equal(t, billing.Money(20000), first.Outstanding)
	assert.True(t, first.Diverged)

	for _, row := range report.Rows[1:] {
		assert.False(t, row.Period.Persisted())
		assert.Equal(t, billing.Money(60000), row.Expected)
		assert.Equal(t, billing.Money(0), row.Invoiced)
		assert.Equal(t, billing.Money(0), row.Collected)
		assert.Equal(t, billing.Money(60000), row.Outstanding)
		assert.False(t, row.Diverged)
	}
}

func TestReconciliationReport_OverPaid_NegativeOutstanding(t *testing.T) {
	// GIVEN: 80,000 collected against a 60,000 period
	// WHEN: Building the report
	// THEN: Outstanding is -20,000 - the report does NOT clamp

	ctx := context.Background()
	st := store.NewMemory()
	svc := seedService(t, st)
	clock := fixedToday(2024, time.February, 1)
	gen := billing.NewGenerator(st, clock)
	matcher := billing.NewMatcher(st)

	period := firstPeriod(t, gen, svc)
	_, err := matcher.RecordIncome(ctx, billing.NewIncome{
		ServiceID: svc.ID, WorkPeriodID: &period.ID, Amount: 80000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 20), CreatedBy: "ops",
	})
	require.NoError(t, err)

	report, err := billing.NewReconciler(st, clock).Report(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	assert.Equal(t, billing.Money(-20000), report.Rows[0].Outstanding)
	assert.True(t, report.Rows[0].Diverged, "nothing invoiced but 80,000 collected")
}

func TestReconciliationReport_PeriodOverrideUsedAsExpected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := seedService(t, st)
	clock := fixedToday(2024, time.February, 1)
	gen := billing.NewGenerator(st, clock)

	period := firstPeriod(t, gen, svc)
	require.NoError(t, st.SetExpectedAmount(ctx, period.ID, 75000))

	report, err := billing.NewReconciler(st, clock).Report(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, billing.Money(75000), report.Rows[0].Expected)
}

func TestReconciliationReport_UnknownService(t *testing.T) {
	st := store.NewMemory()
	_, err := billing.NewReconciler(st, fixedToday(2024, time.February, 1)).Report(context.Background(), "missing")
	assert.True(t, billing.IsNotFound(err))
}

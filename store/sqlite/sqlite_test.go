package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func money(v int64) *billing.Money {
	m := billing.Money(v)
	return &m
}

func saveTestService(t *testing.T, store *sqlite.Store, id billing.ServiceID) billing.Service {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	svc := billing.Service{
		ID:                  id,
		ProductID:           "prod-1",
		Price:               money(60000),
		Cadence:             billing.CadenceMonthly,
		PrepayMode:          billing.Postpay,
		StartDate:           billing.NewDate(2024, time.January, 15),
		Status:              billing.ServiceActive,
		PartnerLead:         true,
		ResponsibleEmployee: "emp-1",
		Department:          "Sales",
		CommissionPercent:   "20",
		CommissionAmount:    10800,
		AMFee:               money(5000),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, store.SaveService(context.Background(), svc))
	return svc
}

func janPeriod() billing.DateRange {
	return billing.DateRange{
		From: billing.NewDate(2024, time.January, 15),
		To:   billing.NewDate(2024, time.February, 15),
	}
}

// =============================================================================
// GET-OR-CREATE TESTS
// =============================================================================

func TestGetOrCreate_Idempotent(t *testing.T) {
	// GIVEN: A period materialized for an exact range
	// WHEN: Requesting the identical range again
	// THEN: The same row id comes back; exactly one row exists

	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	p1, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)
	assert.Equal(t, billing.CadenceMonthly, p1.Kind)

	p2, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)

	all, err := store.ListByService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetOrCreate_ConcurrentCalls_SingleRow(t *testing.T) {
	// GIVEN: Many goroutines racing to materialize the same range
	// WHEN: All complete
	// THEN: Every call succeeded and returned the same row

	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	const workers = 8
	ids := make([]billing.WorkPeriodID, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
			ids[i], errs[i] = p.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	all, err := store.ListByService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetOrCreate_RejectsInvalidRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	day := billing.NewDate(2024, time.January, 15)
	_, err := store.GetOrCreate(ctx, svc.ID, billing.DateRange{From: day, To: day})
	assert.True(t, billing.IsValidation(err))

	_, err = store.GetOrCreate(ctx, svc.ID, billing.DateRange{From: day, To: day.AddDays(-5)})
	assert.True(t, billing.IsValidation(err))
}

func TestGetOrCreate_UnknownService(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetOrCreate(ctx, "missing", janPeriod())
	assert.True(t, billing.IsNotFound(err))
}

func TestGetOrCreate_SameRangeDifferentServices_Independent(t *testing.T) {
	// GIVEN: Two services
	// WHEN: Materializing the same date range for each
	// THEN: Two distinct rows - uniqueness is per service

	ctx := context.Background()
	store := newTestStore(t)
	svcA := saveTestService(t, store, "svc-a")
	svcB := saveTestService(t, store, "svc-b")

	pA, err := store.GetOrCreate(ctx, svcA.ID, janPeriod())
	require.NoError(t, err)
	pB, err := store.GetOrCreate(ctx, svcB.ID, janPeriod())
	require.NoError(t, err)

	assert.NotEqual(t, pA.ID, pB.ID)
}

// =============================================================================
// PERIOD FIELD TESTS
// =============================================================================

func TestPeriodFields_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	p, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)

	require.NoError(t, store.SetExpectedAmount(ctx, p.ID, 75000))
	require.NoError(t, store.SetInvoiceNotRequired(ctx, p.ID, true))
	require.NoError(t, store.SetReportRef(ctx, p.ID, "doc-9"))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpectedAmount)
	assert.Equal(t, billing.Money(75000), *got.ExpectedAmount)
	assert.True(t, got.InvoiceNotRequired)
	assert.Equal(t, "doc-9", got.ReportRef)
	assert.Equal(t, "2024-01-15", got.Range.From.String())
	assert.Equal(t, "2024-02-15", got.Range.To.String())
}

func TestSetExpectedAmount_Negative_Rejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	p, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)

	assert.True(t, billing.IsValidation(store.SetExpectedAmount(ctx, p.ID, -1)))
}

// =============================================================================
// SERVICE TESTS
// =============================================================================

func TestService_RoundTripWithNullables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	got, err := store.GetService(ctx, svc.ID)
	require.NoError(t, err)

	assert.Equal(t, svc.ID, got.ID)
	require.NotNil(t, got.Price)
	assert.Equal(t, billing.Money(60000), *got.Price)
	assert.Equal(t, "20", got.CommissionPercent)
	assert.Equal(t, billing.Money(10800), got.CommissionAmount)
	require.NotNil(t, got.AMFee)
	assert.Equal(t, billing.Money(5000), *got.AMFee)
	assert.True(t, got.PartnerLead)
	assert.Equal(t, "2024-01-15", got.StartDate.String())

	// Unpriced service: nils survive the round trip
	unpriced := billing.Service{
		ID: "svc-2", Cadence: billing.CadenceOneTime, PrepayMode: billing.PrepayFull,
		StartDate: billing.NewDate(2024, time.June, 1), Status: billing.ServiceActive,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveService(ctx, unpriced))
	got, err = store.GetService(ctx, "svc-2")
	require.NoError(t, err)
	assert.Nil(t, got.Price)
	assert.Nil(t, got.AMFee)
}

func TestDeleteService_CascadesToPeriodsLinesIncomes(t *testing.T) {
	// GIVEN: A service with a period, an invoice line on it, and an income
	// WHEN: Deleting the service
	// THEN: The period, its line, and the income are gone; the invoice stays

	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	p, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)

	inv := billing.Invoice{ID: "inv-1", LegalEntityID: "entity-1", Total: 60000, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateInvoice(ctx, inv))
	line := billing.InvoiceLine{ID: "line-1", InvoiceID: inv.ID, WorkPeriodID: p.ID, Amount: 60000, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.AddLine(ctx, line))

	inc := billing.Income{
		ID: "inc-1", ServiceID: svc.ID, WorkPeriodID: &p.ID, Amount: 60000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2024, time.January, 20),
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateIncome(ctx, inc))

	require.NoError(t, store.DeleteService(ctx, svc.ID))

	_, err = store.Get(ctx, p.ID)
	assert.True(t, billing.IsNotFound(err))
	_, err = store.GetLine(ctx, line.ID)
	assert.True(t, billing.IsNotFound(err))
	_, err = store.GetIncome(ctx, inc.ID)
	assert.True(t, billing.IsNotFound(err))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(60000), got.Total)
}

// =============================================================================
// INVOICE / PAYMENT TESTS
// =============================================================================

func TestInvoice_RoundTripAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inv := billing.Invoice{ID: "inv-1", LegalEntityID: "entity-1", Total: 80000, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateInvoice(ctx, inv))

	issued := billing.NewDate(2024, time.February, 1)
	require.NoError(t, store.UpdateInvoice(ctx, inv.ID, "INV-001", &issued))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", got.Number)
	require.NotNil(t, got.IssuedOn)
	assert.Equal(t, "2024-02-01", got.IssuedOn.String())
}

func TestAddLine_MissingPeriod_ForeignKeyMapped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inv := billing.Invoice{ID: "inv-1", LegalEntityID: "entity-1", Total: 100, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateInvoice(ctx, inv))

	err := store.AddLine(ctx, billing.InvoiceLine{
		ID: "line-1", InvoiceID: inv.ID, WorkPeriodID: "missing", Amount: 100, CreatedAt: time.Now().UTC(),
	})
	assert.True(t, billing.IsNotFound(err))
}

func TestDeleteInvoice_PaymentMissing_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	assert.True(t, billing.IsNotFound(store.DeletePayment(ctx, "missing")))
}

// =============================================================================
// INCOME TESTS
// =============================================================================

func TestIncome_UnmatchedRoundTrip(t *testing.T) {
	// GIVEN: An income with no period anchor
	// WHEN: Storing and re-reading it
	// THEN: The nil anchor survives

	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	inc := billing.Income{
		ID: "inc-1", ServiceID: svc.ID, Amount: 5000,
		LegalEntityID: "entity-1", IncomeDate: billing.NewDate(2023, time.December, 1),
		CreatedBy: "ops", UpdatedBy: "ops",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateIncome(ctx, inc))

	got, err := store.GetIncome(ctx, inc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.WorkPeriodID)
	assert.Equal(t, "2023-12-01", got.IncomeDate.String())
	assert.Equal(t, "ops", got.CreatedBy)
}

func TestIncome_ListByPeriodAndService(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := saveTestService(t, store, "svc-1")

	p, err := store.GetOrCreate(ctx, svc.ID, janPeriod())
	require.NoError(t, err)

	for i, d := range []billing.Date{
		billing.NewDate(2024, time.January, 25),
		billing.NewDate(2024, time.January, 18),
	} {
		require.NoError(t, store.CreateIncome(ctx, billing.Income{
			ID: billing.IncomeID([]string{"inc-a", "inc-b"}[i]), ServiceID: svc.ID,
			WorkPeriodID: &p.ID, Amount: 10000, LegalEntityID: "entity-1", IncomeDate: d,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}))
	}

	byPeriod, err := store.ListIncomesByPeriod(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, byPeriod, 2)
	assert.Equal(t, "2024-01-18", byPeriod[0].IncomeDate.String(), "ordered by income date")

	byService, err := store.ListIncomesByService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, byService, 2)
}

// =============================================================================
// PRODUCT TESTS
// =============================================================================

func TestProduct_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	p := billing.Product{
		ID: "prod-1", Name: "SEO Retainer",
		RulesJSON: `{"commissions":[{"role":"seller","standard_percent":"20","partner_percent":"30"}]}`,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveProduct(ctx, p))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.RulesJSON, got.RulesJSON)

	// Upsert updates in place
	p.Name = "SEO Retainer v2"
	require.NoError(t, store.SaveProduct(ctx, p))
	all, err := store.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "SEO Retainer v2", all[0].Name)
}

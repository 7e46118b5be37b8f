package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// BUCKET CALCULUS TESTS
// =============================================================================

func TestBucketsThrough_Monthly_MidMonthStart(t *testing.T) {
	// GIVEN: Monthly service started 2024-01-15, today is 2024-03-20
	// WHEN: Deriving buckets
	// THEN: Three contiguous half-open periods flipping on the 15th

	start := billing.NewDate(2024, time.January, 15)
	today := billing.NewDate(2024, time.March, 20)

	buckets := billing.BucketsThrough(start, billing.CadenceMonthly, today)
	require.Len(t, buckets, 3)

	assert.Equal(t, "2024-01-15", buckets[0].From.String())
	assert.Equal(t, "2024-02-15", buckets[0].To.String())
	assert.Equal(t, "2024-02-15", buckets[1].From.String())
	assert.Equal(t, "2024-03-15", buckets[1].To.String())
	assert.Equal(t, "2024-03-15", buckets[2].From.String())
	assert.Equal(t, "2024-04-15", buckets[2].To.String())
}

func TestBucketsThrough_ContiguousNoGapsNoOverlap(t *testing.T) {
	// GIVEN: A year of monthly buckets
	// WHEN: Walking consecutive pairs
	// THEN: Each dateTo equals the next dateFrom exactly

	start := billing.NewDate(2024, time.January, 31)
	today := billing.NewDate(2024, time.December, 31)

	buckets := billing.BucketsThrough(start, billing.CadenceMonthly, today)
	require.NotEmpty(t, buckets)

	for i := 1; i < len(buckets); i++ {
		assert.True(t, buckets[i-1].To.Equal(buckets[i].From),
			"bucket %d must start where bucket %d ends", i, i-1)
	}
}

func TestBucketAt_AnchoredOnStart_NoMonthLengthDrift(t *testing.T) {
	// GIVEN: Service started Jan 31 (a day most months lack)
	// WHEN: Computing the bucket a year out
	// THEN: Boundaries are start + n months, not an accumulation of
	//       normalized month-ends

	start := billing.NewDate(2024, time.January, 31)

	b12 := billing.BucketAt(start, billing.CadenceMonthly, 12)
	assert.Equal(t, "2025-01-31", b12.From.String())

	// Feb bucket normalizes per time.AddDate but later buckets do not
	// inherit the shift.
	b1 := billing.BucketAt(start, billing.CadenceMonthly, 1)
	b2 := billing.BucketAt(start, billing.CadenceMonthly, 2)
	assert.True(t, b1.To.Equal(b2.From))
}

func TestBucketsThrough_Quarterly(t *testing.T) {
	start := billing.NewDate(2024, time.January, 1)
	today := billing.NewDate(2024, time.July, 2)

	buckets := billing.BucketsThrough(start, billing.CadenceQuarterly, today)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2024-04-01", buckets[1].From.String())
	assert.Equal(t, "2024-07-01", buckets[1].To.String())
}

func TestBucketsThrough_OneTime_SingleUnboundedBucket(t *testing.T) {
	// GIVEN: A one-time service
	// WHEN: Deriving buckets at any date, even before the start
	// THEN: Exactly one bucket, open-ended

	start := billing.NewDate(2024, time.June, 1)
	today := billing.NewDate(2020, time.January, 1)

	buckets := billing.BucketsThrough(start, billing.CadenceOneTime, today)
	require.Len(t, buckets, 1)
	assert.Equal(t, "2024-06-01", buckets[0].From.String())
	assert.True(t, buckets[0].To.Equal(billing.MaxDate()))
}

func TestBucketsThrough_FutureStart_Empty(t *testing.T) {
	start := billing.NewDate(2025, time.January, 1)
	today := billing.NewDate(2024, time.June, 1)

	buckets := billing.BucketsThrough(start, billing.CadenceMonthly, today)
	assert.Empty(t, buckets)
}

func TestBucketContaining_MatchesByMembership(t *testing.T) {
	start := billing.NewDate(2024, time.January, 15)

	// Inside the second bucket
	b, ok := billing.BucketContaining(start, billing.CadenceMonthly, billing.NewDate(2024, time.March, 1))
	require.True(t, ok)
	assert.Equal(t, "2024-02-15", b.From.String())

	// Before the service ever started
	_, ok = billing.BucketContaining(start, billing.CadenceMonthly, billing.NewDate(2024, time.January, 1))
	assert.False(t, ok)

	// Boundary day belongs to the later bucket (half-open)
	b, ok = billing.BucketContaining(start, billing.CadenceMonthly, billing.NewDate(2024, time.February, 15))
	require.True(t, ok)
	assert.Equal(t, "2024-02-15", b.From.String())
}

func TestBucketContaining_OneTime(t *testing.T) {
	start := billing.NewDate(2024, time.June, 1)

	b, ok := billing.BucketContaining(start, billing.CadenceOneTime, billing.NewDate(2030, time.January, 1))
	require.True(t, ok)
	assert.Equal(t, "2024-06-01", b.From.String())

	_, ok = billing.BucketContaining(start, billing.CadenceOneTime, billing.NewDate(2024, time.May, 31))
	assert.False(t, ok)
}

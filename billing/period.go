package billing

// =============================================================================
// PERIOD - Virtual or persisted billing bucket
// =============================================================================

// Period is the sum of the two states a billing bucket can be in:
//
//	Virtual:   computed from the service cadence, not yet persisted (ID nil)
//	Persisted: backed by a WorkPeriod row (ID set)
//
// Callers operate uniformly on the type; Materialize on the store turns a
// virtual period into a persisted one via get-or-create.
type Period struct {
	Range DateRange
	ID    *WorkPeriodID
}

// Persisted reports whether the period is backed by a store row.
func (p Period) Persisted() bool { return p.ID != nil }

// =============================================================================
// BUCKET CALCULUS - Pure cadence arithmetic
// =============================================================================

// BucketAt returns the nth cadence bucket for a start date. Boundaries are
// anchored on the original start (start + n*unit), so a service starting
// Jan 15 always flips on the 15th and month-length drift cannot accumulate.
func BucketAt(start Date, cadence Cadence, n int) DateRange {
	if cadence == CadenceOneTime {
		return DateRange{From: start, To: MaxDate()}
	}
	step := cadence.Months()
	return DateRange{
		From: start.AddMonths(n * step),
		To:   start.AddMonths((n + 1) * step),
	}
}

// BucketsThrough returns every cadence bucket from the start date up to and
// including the bucket containing today. One-time services yield exactly one
// unbounded bucket regardless of today. A start date in the future yields
// nothing.
func BucketsThrough(start Date, cadence Cadence, today Date) []DateRange {
	if cadence == CadenceOneTime {
		return []DateRange{BucketAt(start, cadence, 0)}
	}
	if today.Before(start) {
		return nil
	}

	var buckets []DateRange
	for n := 0; ; n++ {
		b := BucketAt(start, cadence, n)
		if b.From.After(today) {
			break
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// BucketContaining returns the cadence bucket whose half-open range contains
// the given date, or false if the date precedes the service start.
func BucketContaining(start Date, cadence Cadence, d Date) (DateRange, bool) {
	if cadence == CadenceOneTime {
		b := BucketAt(start, cadence, 0)
		return b, b.Contains(d)
	}
	if d.Before(start) {
		return DateRange{}, false
	}
	for n := 0; ; n++ {
		b := BucketAt(start, cadence, n)
		if b.Contains(d) {
			return b, true
		}
		if b.From.After(d) {
			return DateRange{}, false
		}
	}
}

/*
generator.go - Expected billing period derivation

PURPOSE:
  Derives the ordered sequence of billing periods a service should have
  accumulated between its start date and "today". The sequence mixes
  persisted periods (already in the store) with virtual ones (computed
  but not yet needed by any invoice or income).

CONTRACT:
  - ONE_TIME services yield exactly one unbounded period.
  - MONTHLY/QUARTERLY/YEARLY services yield one period per elapsed cadence
    unit, boundaries [start + n*unit, start + (n+1)*unit), up to and
    including the unit containing today.
  - Ranges are contiguous, non-overlapping, ordered by dateFrom ascending.
  - Read-only and idempotent: nothing is written until a caller materializes
    a bucket through PeriodStore.GetOrCreate.

"Today" comes from an injected Clock, never from the wall clock directly,
so generation is deterministic under test.

SEE ALSO:
  - period.go: bucket calculus
  - store.go: PeriodStore.GetOrCreate (the materialization point)
*/
package billing

import "context"

// Generator derives expected periods for services.
type Generator struct {
	Periods PeriodStore
	Clock   Clock
}

func NewGenerator(periods PeriodStore, clock Clock) *Generator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Generator{Periods: periods, Clock: clock}
}

// ExpectedPeriods returns the service's period sequence as of the injected
// clock. Buckets with a persisted row carry its id; the rest are virtual.
func (g *Generator) ExpectedPeriods(ctx context.Context, svc Service) ([]Period, error) {
	if !svc.Cadence.Valid() {
		return nil, NewValidationError("service has no billing cadence")
	}
	if svc.StartDate.IsZero() {
		return nil, NewValidationError("service has no start date")
	}

	buckets := BucketsThrough(svc.StartDate, svc.Cadence, g.Clock.Today())
	periods := make([]Period, 0, len(buckets))
	for _, b := range buckets {
		p := Period{Range: b}
		existing, err := g.Periods.FindByRange(ctx, svc.ID, b)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			id := existing.ID
			p.ID = &id
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// Materialize turns a bucket into a persisted period. Safe under repeated
// and concurrent calls: get-or-create keyed on the exact range.
func (g *Generator) Materialize(ctx context.Context, serviceID ServiceID, r DateRange) (WorkPeriod, error) {
	if err := r.Validate(); err != nil {
		return WorkPeriod{}, err
	}
	return g.Periods.GetOrCreate(ctx, serviceID, r)
}

package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (no time component) for period boundaries
// =============================================================================

// Date is a day-granularity calendar date, normalized to UTC midnight.
// Period boundaries are dates; income/payment events carry full timestamps.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MaxDate is the open-end sentinel for unbounded one-time periods.
func MaxDate() Date { return NewDate(9999, time.December, 31) }

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format(dateLayout) }

// JSON as "2006-01-02"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE RANGE - Half-open [From, To)
// =============================================================================

// DateRange is a half-open interval: From is included, To is excluded.
// A monthly period starting Jan 15 is [01-15, 02-15); Feb 15 belongs to
// the next period.
type DateRange struct {
	From Date `json:"dateFrom"`
	To   Date `json:"dateTo"`
}

// Validate rejects malformed ranges (To before or equal to From).
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return NewValidationError("date range requires both dateFrom and dateTo")
	}
	if r.To.BeforeOrEqual(r.From) {
		return NewValidationError(fmt.Sprintf("invalid date range: dateTo %s must be after dateFrom %s", r.To, r.From))
	}
	return nil
}

// Contains reports half-open membership: From <= d < To.
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.From) && d.Before(r.To)
}

func (r DateRange) Equal(other DateRange) bool {
	return r.From.Equal(other.From) && r.To.Equal(other.To)
}

func (r DateRange) String() string {
	return "[" + r.From.String() + ", " + r.To.String() + ")"
}

// =============================================================================
// CLOCK - Injected "today" so period generation is deterministic
// =============================================================================

type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Today() Date { return DateOf(time.Now().UTC()) }

// FixedClock pins "today" for tests and replays.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() Date { return c.Date }

package interest

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar-day abstraction (interest accrues per whole day)
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date is a calendar day. Time-of-day and location are normalized away:
// the wrapped time is always midnight UTC.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day of t, keeping the calendar day as seen in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }
func (d Date) String() string    { return d.t.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// CALENDAR MATH
// =============================================================================

// DaysBetween counts whole days from `from` to `to`. Returns 0 when to <= from.
func DaysBetween(from, to Date) int {
	if !to.After(from) {
		return 0
	}
	// Both sides are UTC midnights. Unix seconds avoid time.Duration's ~292 year limit.
	return int((to.t.Unix() - from.t.Unix()) / secondsPerDay)
}

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

// StartOfNextMonth returns the first day of the month after d.
func StartOfNextMonth(d Date) Date {
	return NewDate(d.Year(), d.Month()+1, 1)
}

// Segment is the part of a half-open date range [Start, End) that falls inside
// one calendar month.
type Segment struct {
	Start Date
	End   Date
}

func (s Segment) Days() int { return DaysBetween(s.Start, s.End) }

// DaysInMonth returns the length of the calendar month the segment lies in.
func (s Segment) DaysInMonth() int { return DaysInMonth(s.Start.Year(), s.Start.Month()) }

// MonthSegments walks [from, to) month by month. Empty when to <= from.
func MonthSegments(from, to Date) []Segment {
	var segments []Segment
	current := from
	for current.Before(to) {
		next := StartOfNextMonth(current)
		if next.After(to) {
			next = to
		}
		segments = append(segments, Segment{Start: current, End: next})
		current = next
	}
	return segments
}

// =============================================================================
// CLOCK - "today" is injected, never read inside the engine
// =============================================================================

// Clock supplies "today" at the application boundary.
type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock in the configured location (UTC if nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() Date {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return DateOf(now)
}

// FixedClock always returns the same day. Used for tests and what-if runs.
type FixedClock struct {
	Day Date
}

func (c FixedClock) Today() Date { return c.Day }

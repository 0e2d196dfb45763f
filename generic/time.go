package generic

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// =============================================================================
// DATE - Calendar day (leave dates are whole days, inclusive)
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day normalized to UTC midnight.
// The zero value means "not set".
type Date struct {
	Time time.Time
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
// 23:30 local on March 3 is March 3, whatever the UTC offset.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errors.Wrapf(err, "invalid date %q", s)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool { return !d.Before(other) }
func (d Date) IsZero() bool { return d.Time.IsZero() }
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) String() string { return d.Time.Format(DateLayout) }
func (d Date) Between(from, to Date) bool { return d.AfterOrEqual(from) && d.BeforeOrEqual(to) }

// Ptr returns a pointer to a copy of d, for the nullable date fields.
func (d Date) Ptr() *Date { return &d }

// DaysBetween returns to - from in whole days (negative if to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// RangesOverlap reports whether [aStart, aEnd] and [bStart, bEnd] share a day.
func RangesOverlap(aStart, aEnd, bStart, bEnd Date) bool {
	return aStart.BeforeOrEqual(bEnd) && bStart.BeforeOrEqual(aEnd)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts "now" so date-sensitive logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// ZonedClock reports Clock's time in Location, so every calendar day
// derived from it is a day in that zone.
type ZonedClock struct {
	Clock    Clock
	Location *time.Location
}

func (c ZonedClock) Now() time.Time {
	now := c.Clock.Now()
	if c.Location == nil {
		return now
	}
	return now.In(c.Location)
}

// Zone is the location of clock's readings.
func Zone(clock Clock) *time.Location {
	if clock == nil {
		return time.Local
	}
	return clock.Now().Location()
}

// Today is the calendar day of clock.Now().
func Today(clock Clock) Date {
	if clock == nil {
		clock = SystemClock{}
	}
	return DateOf(clock.Now())
}

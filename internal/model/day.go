package model

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// DayLayout is the ISO calendar date layout used on the wire and in the wide view.
const DayLayout = "2006-01-02"

// Day is a civil calendar date with no timezone attached. Day boundaries
// only become instants once a reporting timezone is applied via Start or Window.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDay returns the normalized Day for the given components (e.g. Jan 32 becomes Feb 1).
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DayOf returns the calendar date t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, eris.Wrapf(err, "model: parse day %q", s)
	}
	return DayOf(t, time.UTC), nil
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool {
	return d == Day{}
}

// AddDays returns d shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return NewDay(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	return d.civil().Before(o.civil())
}

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool {
	return d.civil().After(o.civil())
}

// Equal reports whether d and o are the same calendar date.
func (d Day) Equal(o Day) bool {
	return d == o
}

// Start returns local midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Window returns the UTC half-open interval [start, end) covered by the
// local calendar day d in loc.
func (d Day) Window(loc *time.Location) (start, end time.Time) {
	start = d.Start(loc)
	end = d.AddDays(1).Start(loc)
	return start.UTC(), end.UTC()
}

func (d Day) civil() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysInRange returns every calendar day from start to end inclusive.
// It returns nil when end is before start.
func DaysInRange(start, end Day) []Day {
	if end.Before(start) {
		return nil
	}
	var days []Day
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

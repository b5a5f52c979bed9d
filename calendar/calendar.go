/*
Package calendar computes business-day durations for leave requests.

PURPOSE:
  Pure functions over time.Time: which calendar dates a range touches,
  whether any of them fall on a weekend, and how many business days and
  hours a leave consumes.

DURATION RULES:
  Same calendar date:  days = max(0, endHour - startHour) / 8
  Different dates:     days = number of Monday-Friday dates in [start, end]
  Both cases:          hours = days * 8

  Dates are taken in the location of the timestamps passed in. Callers
  that accept input in mixed zones should convert to one location first.

EXAMPLE:
  d := calendar.BusinessDuration(
      time.Date(2025, 9, 15, 14, 0, 0, 0, time.UTC),
      time.Date(2025, 9, 15, 17, 0, 0, 0, time.UTC),
  )
  // d.Days = 0.375, d.Hours = 3

SEE ALSO:
  - leave/validate.go: weekend rule uses FirstWeekend
*/
package calendar

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoursPerDay is the length of a standard working day.
const HoursPerDay = 8

var hoursPerDay = decimal.NewFromInt(HoursPerDay)

// Duration is the business length of a leave.
type Duration struct {
	Days  decimal.Decimal
	Hours decimal.Decimal
}

// BusinessDuration returns the business days and hours between start and end.
// It never rejects a range; weekend dates are simply not counted.
func BusinessDuration(start, end time.Time) Duration {
	if SameDate(start, end) {
		diff := end.In(start.Location()).Hour() - start.Hour()
		if diff < 0 {
			diff = 0
		}
		days := decimal.NewFromInt(int64(diff)).Div(hoursPerDay)
		return Duration{Days: days, Hours: days.Mul(hoursPerDay)}
	}

	count := 0
	for _, d := range Dates(start, end) {
		if IsWorkday(d) {
			count++
		}
	}
	days := decimal.NewFromInt(int64(count))
	return Duration{Days: days, Hours: days.Mul(hoursPerDay)}
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b fall on the same calendar date.
// b is compared in a's location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// Dates returns every calendar date from start to end inclusive, at
// midnight in start's location. An end before start yields nil.
func Dates(start, end time.Time) []time.Time {
	first := DateOf(start)
	last := DateOf(end.In(start.Location()))
	if last.Before(first) {
		return nil
	}

	var dates []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func IsWorkday(t time.Time) bool { return !IsWeekend(t) }

// FirstWeekend returns the first Saturday or Sunday in [start, end].
func FirstWeekend(start, end time.Time) (time.Time, bool) {
	for _, d := range Dates(start, end) {
		if IsWeekend(d) {
			return d, true
		}
	}
	return time.Time{}, false
}

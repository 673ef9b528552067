package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// MaxAdvanceAttempts caps how many candidate dates NextOccurrence will
// generate before giving up. Termination is guaranteed by this ceiling, not
// proven per frequency; a rule whose candidates are all excluded for a year
// reads as end-of-series.
const MaxAdvanceAttempts = 365

// DateLayout is the ISO calendar-date form used for due dates and
// exception entries.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at midnight UTC. All engine
// comparisons happen at this granularity; time-of-day never matters.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date ("2006-01-02") at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NextOccurrence projects the next valid occurrence after current.
//
// current is the date of the occurrence just completed; exceptions is the
// series' excluded-date list (ISO date strings, matched by exact calendar
// date). The result is None when the series ends: the next candidate falls
// strictly after the rule's UNTIL bound, the frequency is unrecognized, or
// MaxAdvanceAttempts candidates were generated without finding one that is
// not excluded.
func NextOccurrence(rule Rule, current time.Time, exceptions []string) mo.Option[time.Time] {
	working := Day(current)

	// The original date anchors day-of-month (MONTHLY) and month/day
	// (YEARLY) so clamped candidates snap back when the target month
	// allows it: Jan 31 -> Feb 28 -> Mar 31, not Mar 28.
	anchorDay := working.Day()
	anchorMonth := working.Month()

	for attempt := 0; attempt < MaxAdvanceAttempts; attempt++ {
		candidate, ok := advance(rule, working, anchorDay, anchorMonth)
		if !ok {
			return mo.None[time.Time]()
		}
		if rule.Until != nil && candidate.After(*rule.Until) {
			return mo.None[time.Time]()
		}
		if !excluded(candidate, exceptions) {
			return mo.Some(candidate)
		}
		// Excluded: keep advancing from the candidate, consuming one
		// exception per step.
		working = candidate
	}
	return mo.None[time.Time]()
}

// advance produces the next candidate after from, or ok=false when the
// frequency is unrecognized or a bounded weekday scan finds no match.
func advance(rule Rule, from time.Time, anchorDay int, anchorMonth time.Month) (time.Time, bool) {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	switch rule.Freq {
	case Daily:
		return from.AddDate(0, 0, interval), true

	case Weekly:
		if len(rule.ByDay) == 0 {
			return from.AddDate(0, 0, 7*interval), true
		}
		day := from
		for i := 0; i < 7*interval; i++ {
			day = day.AddDate(0, 0, 1)
			if rule.onWeekday(day.Weekday()) {
				return day, true
			}
		}
		return time.Time{}, false

	case Monthly:
		return addMonthsClamped(from, interval, anchorDay), true

	case Yearly:
		return addYearsClamped(from, interval, anchorMonth, anchorDay), true

	default:
		return time.Time{}, false
	}
}

// addMonthsClamped advances by the given number of months, landing on
// anchor day-of-month clamped to the destination month's length. Using
// day 1 for the month arithmetic avoids time.AddDate's overflow
// normalization (Jan 31 + 1 month = Mar 2/3).
func addMonthsClamped(from time.Time, months, day int) time.Time {
	first := time.Date(from.Year(), from.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// addYearsClamped advances by the given number of years, landing on the
// anchor month/day with Feb 29 clamped to Feb 28 in non-leap years.
func addYearsClamped(from time.Time, years int, month time.Month, day int) time.Time {
	year := from.Year() + years
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// daysIn reports the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// excluded reports whether t's calendar date matches an exception entry.
func excluded(t time.Time, exceptions []string) bool {
	date := FormatDate(t)
	for _, ex := range exceptions {
		if ex == date {
			return true
		}
	}
	return false
}

// Package recurrence implements rule interpretation and next-occurrence
// projection for repeating tasks.
//
// Rules are stored as a compact RRULE-style string ("RRULE:FREQ=WEEKLY;..."),
// parsed once at the boundary into a Rule value and kept structured
// everywhere inside the service. Parsing is deliberately permissive: unknown
// keys are ignored and anything uninterpretable reads as "not recurring"
// rather than an error, so a bad rule ends a series instead of failing a
// completion request.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
)

// RulePrefix is the marker every stored rule string starts with.
const RulePrefix = "RRULE:"

// Frequency is the base unit a rule repeats on.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// Rule is the structured form of a recurrence rule string.
type Rule struct {
	Freq     Frequency
	Interval int

	// ByDay restricts WEEKLY rules to the given weekdays. Ignored for
	// other frequencies.
	ByDay []time.Weekday

	// Until, when set, ends the series: no occurrence may fall strictly
	// after it. Day granularity, midnight UTC.
	Until *time.Time

	// Count is parsed for round-trip fidelity but never consulted by the
	// calculator; rules with a finite count recur until UNTIL or the
	// exception list stops them. Existing data depends on this, so it is
	// kept as-is rather than enforced.
	Count int
}

const compactDateLayout = "20060102"

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var codeForWeekday = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// ParseRule interprets a stored rule string. It returns None for an empty
// string, a string without the RRULE: prefix, a missing or unrecognized
// FREQ, or anything else uninterpretable. A None result means the series
// has no further occurrences.
func ParseRule(s string) mo.Option[Rule] {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, RulePrefix) {
		return mo.None[Rule]()
	}

	rule := Rule{Interval: 1}
	for _, pair := range strings.Split(s[len(RulePrefix):], ";") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			rule.Freq = Frequency(strings.ToUpper(strings.TrimSpace(value)))
		case "INTERVAL":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
				rule.Interval = n
			}
		case "BYDAY":
			for _, code := range strings.Split(value, ",") {
				if wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
					rule.ByDay = append(rule.ByDay, wd)
				}
			}
		case "UNTIL":
			if t, err := time.ParseInLocation(compactDateLayout, strings.TrimSpace(value), time.UTC); err == nil {
				rule.Until = &t
			}
		case "COUNT":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
				rule.Count = n
			}
		default:
			// Unknown keys are ignored for forward compatibility.
		}
	}

	switch rule.Freq {
	case Daily, Weekly, Monthly, Yearly:
		return mo.Some(rule)
	default:
		return mo.None[Rule]()
	}
}

// String serializes the rule back to its stored form. Parsing the result
// yields a structurally equal rule.
func (r Rule) String() string {
	parts := []string{"FREQ=" + string(r.Freq)}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, 0, len(r.ByDay))
		for _, wd := range r.ByDay {
			codes = append(codes, codeForWeekday[wd])
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.Format(compactDateLayout))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	return RulePrefix + strings.Join(parts, ";")
}

func (r Rule) onWeekday(day time.Weekday) bool {
	for _, wd := range r.ByDay {
		if wd == day {
			return true
		}
	}
	return false
}

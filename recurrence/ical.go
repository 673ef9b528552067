package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleFrequencies = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ROption converts the rule to an rrule-go option set for calendar export.
func (r Rule) ROption() rrule.ROption {
	opt := rrule.ROption{
		Freq:     rruleFrequencies[r.Freq],
		Interval: r.Interval,
	}
	for _, wd := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
	}
	if r.Until != nil {
		opt.Until = *r.Until
	}
	if r.Count > 0 {
		opt.Count = r.Count
	}
	return opt
}

// RRuleString renders the rule as canonical RFC 5545 RRULE text for the
// iCalendar feed. The rule is validated through rrule-go first so exported
// calendars are parseable by standard clients.
func (r Rule) RRuleString() (string, error) {
	opt := r.ROption()
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

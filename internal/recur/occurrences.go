package recur

import (
	"errors"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
	rrule "github.com/teambition/rrule-go"
)

// ErrNoRecurrence is returned when an rrule is requested for a one-off rule.
var ErrNoRecurrence = errors.New("recur: rule does not repeat")

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Option translates the rule into an RFC 5545 recurrence starting at start.
// A forever rule has neither COUNT nor UNTIL.
func (r Rule) Option(start, now time.Time) (rrule.ROption, error) {
	if !r.Recurs() {
		return rrule.ROption{}, ErrNoRecurrence
	}

	opt := rrule.ROption{Dtstart: start, Interval: 1}
	switch r.Unit {
	case UnitDay:
		opt.Freq = rrule.DAILY
		opt.Interval = r.Period
	case UnitMonth:
		opt.Freq = rrule.MONTHLY
		opt.Interval = r.Period
	case UnitWeekday:
		opt.Freq = rrule.WEEKLY
		for _, d := range Days(r.Period) {
			opt.Byweekday = append(opt.Byweekday, rruleDays[d])
		}
	default:
		return rrule.ROption{}, ErrUnknownUnit
	}

	switch {
	case r.Number > 0:
		opt.Count = r.Number
	case IsForever(r.End, now):
	default:
		until, err := parseEnd(r.End)
		if err != nil {
			return rrule.ROption{}, err
		}
		opt.Until = until
	}
	return opt, nil
}

// RRule returns the RRULE value (without DTSTART) for the rule.
func (r Rule) RRule(start, now time.Time) (string, error) {
	opt, err := r.Option(start, now)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// Occurrences lists the delivery times of a prompt first due at start that
// fall inside [from, to], capped at limit when limit is positive. A one-off
// prompt yields start alone if it is in range.
func (r Rule) Occurrences(start, from, to, now time.Time, limit int) ([]time.Time, error) {
	if !r.Recurs() {
		if start.Before(from) || start.After(to) {
			return nil, nil
		}
		return []time.Time{start}, nil
	}

	opt, err := r.Option(start, now)
	if err != nil {
		return nil, err
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	times := rr.Between(from, to, true)
	if limit > 0 && len(times) > limit {
		times = times[:limit]
	}
	return times, nil
}

// End dates arrive either as full timestamps or as bare days.
func parseEnd(end string) (time.Time, error) {
	t, err := ktime.Parse(end, ktime.Template3339fk, ktime.UTC)
	if err == nil {
		return t, nil
	}
	day, dayErr := ktime.Parse(end, ktime.TemplateDay, ktime.UTC)
	if dayErr != nil {
		return time.Time{}, err
	}
	return day.Add(24*time.Hour - time.Second), nil
}

// Package recur validates repeat rules and packs them into the three
// persisted fields (unit, period, number/end) carried by a prompt.
package recur

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
)

// Unit is the repeat unit. The numeric values are part of the wire format.
type Unit int

const (
	Invalid     Unit = -1
	UnitDay     Unit = 4
	UnitMonth   Unit = 6
	UnitWeekday Unit = 100
)

func (u Unit) String() string {
	switch u {
	case UnitDay:
		return "day"
	case UnitMonth:
		return "month"
	case UnitWeekday:
		return "weekday"
	case Invalid:
		return "none"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Day-of-week flags OR-ed into the period of a weekday rule.
const (
	Sunday    = 1
	Monday    = 2
	Tuesday   = 4
	Wednesday = 8
	Thursday  = 16
	Friday    = 32
	Saturday  = 64
)

const (
	// DefaultCount seeds the occurrence count for new rules.
	DefaultCount = 3

	// ForeverYears is how far ahead a "forever" end date is placed.
	ForeverYears = 1000
	// ForeverThreshold is the remaining span, in ktime years, at or beyond
	// which an end date is shown as forever.
	ForeverThreshold = 500
)

// Validation failures, one per input that can be wrong.
var (
	ErrProblemDayWeek   = errors.New("problemDayWeek: select at least one day of the week")
	ErrProblemOccur     = errors.New("problemOccur: repeat interval must be a positive number")
	ErrProblemEndRepeat = errors.New("problemEndRepeat: occurrence count must be a positive number")
	ErrProblemEndDate   = errors.New("problemEndDate: end date is required")
	ErrUnknownUnit      = errors.New("recur: unknown unit")
)

// EndMode picks how a rule terminates.
type EndMode int

const (
	EndAfter EndMode = iota
	EndOnDate
	EndForever
)

// Draft is a rule as entered, before validation.
type Draft struct {
	Unit    Unit
	Period  string
	Days    []time.Weekday
	End     EndMode
	Count   string
	EndDate string
}

// Rule is the persisted form. Exactly one of Number and End is set when
// Unit is not Invalid.
type Rule struct {
	Unit   Unit
	Period int
	Number int
	End    string
}

// None is the rule of a prompt that does not repeat.
var None = Rule{Unit: Invalid}

// Recurs reports whether the rule repeats at all.
func (r Rule) Recurs() bool { return r.Unit != Invalid }

// Flag returns the bit for a weekday.
func Flag(d time.Weekday) int { return 1 << uint(d) }

// DayOfWeek builds the weekday mask for the selected days.
func DayOfWeek(days ...time.Weekday) int {
	mask := 0
	for _, d := range days {
		mask |= Flag(d)
	}
	return mask
}

// Days expands a weekday mask back into weekdays, Sunday first.
func Days(mask int) []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if mask&Flag(d) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks a draft and normalizes it into a Rule.
func Validate(d Draft, now time.Time) (Rule, error) {
	r := Rule{Unit: d.Unit}

	switch d.Unit {
	case Invalid:
		return None, nil
	case UnitWeekday:
		r.Period = DayOfWeek(d.Days...)
		if r.Period == 0 {
			return None, ErrProblemDayWeek
		}
	case UnitDay, UnitMonth:
		r.Period = atoi(d.Period)
		if r.Period <= 0 {
			return None, ErrProblemOccur
		}
	default:
		return None, fmt.Errorf("%w: %d", ErrUnknownUnit, int(d.Unit))
	}

	switch d.End {
	case EndAfter:
		r.Number = atoi(d.Count)
		if r.Number <= 0 {
			return None, ErrProblemEndRepeat
		}
	case EndOnDate:
		r.End = strings.TrimSpace(d.EndDate)
		if r.End == "" {
			return None, ErrProblemEndDate
		}
		if _, err := parseEnd(r.End); err != nil {
			return None, fmt.Errorf("%w: %q", ErrProblemEndDate, r.End)
		}
	case EndForever:
		r.End = ForeverEnd(now)
	}
	return r, nil
}

// ForeverEnd is the sentinel end date stored for rules that never stop.
func ForeverEnd(now time.Time) string {
	s, _ := ktime.Format(now.UTC().AddDate(ForeverYears, 0, 0), ktime.Template3339fk, ktime.UTC)
	return s
}

// IsForever reports whether an end date lies far enough ahead to mean
// "no end". Unparseable dates are concrete.
func IsForever(end string, now time.Time) bool {
	t, err := ktime.Parse(end, ktime.Template3339fk, ktime.UTC)
	if err != nil {
		return false
	}
	return ktime.Between(now, t, ktime.Years) >= ForeverThreshold
}

// Describe renders the termination of a rule for display.
func (r Rule) Describe(now time.Time) string {
	switch {
	case !r.Recurs():
		return "once"
	case r.Number > 0:
		return fmt.Sprintf("every %s, %d times", r.every(), r.Number)
	case IsForever(r.End, now):
		return fmt.Sprintf("every %s, forever", r.every())
	default:
		return fmt.Sprintf("every %s until %s", r.every(), r.End)
	}
}

func (r Rule) every() string {
	if r.Unit == UnitWeekday {
		names := make([]string, 0, 7)
		for _, d := range Days(r.Period) {
			names = append(names, d.String()[:3])
		}
		return strings.Join(names, ",")
	}
	if r.Period == 1 {
		return r.Unit.String()
	}
	return fmt.Sprintf("%d %ss", r.Period, r.Unit)
}

// Non-numeric input counts as zero.
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// Package ktime converts between the fixed date-time templates used on the
// wire and in the local cache and time.Time values.
//
// Every numeric field must be zero padded. Padded tokens are matched at their
// exact width, so an unpadded value fails to parse; single-letter tokens
// (d, M, h, m, s) accept either width and are the only lenient ones.
// Milliseconds are parsed but always render as 000.
package ktime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit selects the granularity of Difference.
type Unit int

const (
	Milliseconds Unit = iota
	Seconds
	Minutes
	Hours
	Days
	Weeks
	Years
)

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
	msPerWeek   = 7 * msPerDay

	// WeeksPerYear is the year length used by Difference. It is not a
	// calendar year; the forever threshold in package recur depends on it.
	WeeksPerYear = 52
)

// UTC is the zone name used for every stored timestamp.
const UTC = "UTC"

// ErrParse reports text that does not match its template.
var ErrParse = errors.New("ktime: parse failure")

// ParseError carries the text and template that failed to match.
type ParseError struct {
	Text     string
	Template string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ktime: cannot parse %q as %q", e.Text, e.Template)
	}
	return fmt.Sprintf("ktime: cannot parse %q as %q: %v", e.Text, e.Template, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

var offsetTail = regexp.MustCompile(`(?i)(Z|GMT|UTC|[+-]\d{2}(?::?\d{2})?)$`)

// Parse reads text laid out as template. Without an offset in the template
// the wall clock is interpreted in tz (the local zone when tz is empty). An
// offset in the text always wins over tz.
func Parse(text, template, tz string) (time.Time, error) {
	l, err := compile(template)
	if err != nil {
		return time.Time{}, err
	}

	body := strings.TrimRight(text, " ")
	var zone *time.Location
	if l.offset {
		loc := offsetTail.FindStringIndex(body)
		if loc == nil {
			return time.Time{}, &ParseError{Text: text, Template: template, Err: errors.New("missing offset")}
		}
		zone, err = parseOffset(body[loc[0]:])
		if err != nil {
			return time.Time{}, &ParseError{Text: text, Template: template, Err: err}
		}
		body = body[:loc[0]]
	}

	t, err := time.ParseInLocation(l.goLayout, body, Location(tz))
	if err != nil {
		return time.Time{}, &ParseError{Text: text, Template: template, Err: err}
	}
	if zone != nil {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
	}
	return t, nil
}

// Format renders t with template in tz, or in t's own zone when tz is empty.
func Format(t time.Time, template, tz string) (string, error) {
	l, err := compile(template)
	if err != nil {
		return "", err
	}
	if tz != "" {
		t = t.In(Location(tz))
	}
	t = t.Truncate(time.Second)

	s := t.Format(l.goLayout)
	if l.offset {
		s += formatOffset(t)
	}
	return s, nil
}

// Convert re-renders text from one template to another, moving it to tz.
func Convert(text, from, to, tz string) (string, error) {
	t, err := Parse(text, from, "")
	if err != nil {
		return "", err
	}
	return Format(t, to, tz)
}

// Now returns the current UTC time rendered with template.
func Now(template string) string {
	s, _ := Format(time.Now().UTC(), template, UTC)
	return s
}

// IsPast reports whether text, read as UTC, is before the current time.
func IsPast(text, template string) (bool, error) {
	return IsPastAt(text, template, time.Now())
}

// IsPastAt is IsPast against a supplied clock. Both sides are reduced to the
// template's resolution before comparing.
func IsPastAt(text, template string, now time.Time) (bool, error) {
	t, err := Parse(text, template, UTC)
	if err != nil {
		return false, err
	}
	nowText, err := Format(now.UTC(), template, UTC)
	if err != nil {
		return false, err
	}
	ref, err := Parse(nowText, template, UTC)
	if err != nil {
		return false, err
	}
	return t.Before(ref), nil
}

// Difference parses both values with template and returns the absolute
// distance between them in unit.
func Difference(t1, t2, template string, unit Unit) (int64, error) {
	a, err := Parse(t1, template, "")
	if err != nil {
		return 0, err
	}
	b, err := Parse(t2, template, "")
	if err != nil {
		return 0, err
	}
	return Between(a, b, unit), nil
}

// Between returns the absolute distance between a and b in unit, truncating.
func Between(a, b time.Time, unit Unit) int64 {
	// time.Duration saturates near 292 years; the forever sentinel is 1000.
	diff := b.UnixMilli() - a.UnixMilli()
	if diff < 0 {
		diff = -diff
	}
	switch unit {
	case Seconds:
		return diff / msPerSecond
	case Minutes:
		return diff / msPerMinute
	case Hours:
		return diff / msPerHour
	case Days:
		return diff / msPerDay
	case Weeks:
		return diff / msPerWeek
	case Years:
		return (diff / WeeksPerYear) / msPerWeek
	default:
		return diff
	}
}

// Location resolves a zone name. Empty means the local zone; names the
// zone database does not know resolve to UTC.
func Location(tz string) *time.Location {
	switch strings.ToUpper(tz) {
	case "":
		return time.Local
	case "UTC", "GMT", "Z":
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseOffset(s string) (*time.Location, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "Z", "GMT", "UTC":
		return time.UTC, nil
	}

	sign := 1
	if strings.HasPrefix(s, "-") {
		sign = -1
	}
	s = strings.TrimLeft(s, "+-")
	s = strings.ReplaceAll(s, ":", "")
	if len(s) < 2 {
		return nil, fmt.Errorf("bad offset %q", s)
	}

	hh, err := strconv.Atoi(s[:2])
	if err != nil {
		return nil, fmt.Errorf("bad offset hours %q", s)
	}
	mm := 0
	if len(s) > 2 {
		if mm, err = strconv.Atoi(s[2:]); err != nil {
			return nil, fmt.Errorf("bad offset minutes %q", s)
		}
	}
	if hh > 23 || mm > 59 {
		return nil, fmt.Errorf("offset out of range %q", s)
	}

	secs := sign * (hh*3600 + mm*60)
	if secs == 0 {
		return time.UTC, nil
	}
	return time.FixedZone("", secs), nil
}

func formatOffset(t time.Time) string {
	_, secs := t.Zone()
	if secs == 0 {
		return "Z"
	}
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("%c%02d%02d", sign, secs/3600, (secs%3600)/60)
}

package ktime_test

import (
	"errors"
	"testing"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		template string
		text     string
	}{
		{ktime.Template822k, "Tue, 05 Mar 2024 14:07:09 Z"},
		{ktime.Template822, "Tue, 05 Mar 2024 14:07:09 +0530"},
		{ktime.Template3339k, "2024-03-05T14:07:09Z"},
		{ktime.Template3339, "2024-03-05T14:07:09-0800"},
		{ktime.Template3339fk, "2024-03-05T14:07:09.000Z"},
		{ktime.Template3339f, "2024-12-31T23:59:59.000+0100"},
		{ktime.Template8601k, "2024-03-05 00:00:00.000Z"},
		{ktime.Template8601, "2024-03-05 14:07:09.000-0330"},
		{ktime.TemplateAlert, "2024-03-05 14:07:09 +0200"},
	}
	for _, tc := range cases {
		t.Run(tc.template, func(t *testing.T) {
			parsed, err := ktime.Parse(tc.text, tc.template, "")
			require.NoError(t, err)
			out, err := ktime.Format(parsed, tc.template, "")
			require.NoError(t, err)
			assert.Equal(t, tc.text, out)
		})
	}
}

func TestParseOffsets(t *testing.T) {
	want := time.Date(2024, 3, 5, 9, 7, 9, 0, time.UTC)
	for _, text := range []string{
		"2024-03-05T14:37:09+05:30",
		"2024-03-05T14:37:09+0530",
		"2024-03-05T09:07:09Z",
		"2024-03-05T09:07:09GMT",
		"2024-03-05T09:07:09utc",
		"2024-03-05T04:07:09-05",
	} {
		got, err := ktime.Parse(text, ktime.Template3339, "")
		require.NoError(t, err, text)
		assert.True(t, want.Equal(got), "%s parsed to %s", text, got)
	}
}

func TestParseKeepsMilliseconds(t *testing.T) {
	got, err := ktime.Parse("2024-03-05T14:07:09.123Z", ktime.Template3339fk, "")
	require.NoError(t, err)
	assert.Equal(t, 123*time.Millisecond, time.Duration(got.Nanosecond()))

	out, err := ktime.Format(got, ktime.Template3339fk, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T14:07:09.000Z", out)
}

func TestParseUsesZoneWithoutOffset(t *testing.T) {
	got, err := ktime.Parse("2024-03-05", ktime.TemplateDay, "America/New_York")
	require.NoError(t, err)
	_, secs := got.Zone()
	assert.Equal(t, -5*3600, secs)
}

func TestParseMonthName(t *testing.T) {
	got, err := ktime.Parse("Fri, 01 NOV 2024 08:00:00 Z", ktime.Template822k, "")
	require.NoError(t, err)
	assert.Equal(t, time.November, got.Month())
}

func TestParseTwelveHour(t *testing.T) {
	got, err := ktime.Parse("Tue, Mar 05 2:07PM", ktime.TemplateDisplay, "UTC")
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())
	assert.Equal(t, 7, got.Minute())
}

func TestParseFailures(t *testing.T) {
	cases := map[string]string{
		"unpadded month":  "2024-3-05T14:07:09Z",
		"missing offset":  "2024-03-05T14:07:09",
		"bad offset":      "2024-03-05T14:07:09+2500",
		"garbage":         "yesterday",
		"short millis":    "2024-03-05T14:07:09.1Z",
		"unknown month":   "Tue, 05 Foo 2024 14:07:09 Z",
		"trailing junk":   "2024-03-05T14:07:09Zjunk",
		"wrong separator": "2024/03/05T14:07:09Z",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			tmpl := ktime.Template3339
			if name == "short millis" {
				tmpl = ktime.Template3339fk
			}
			if name == "unknown month" {
				tmpl = ktime.Template822k
			}
			_, err := ktime.Parse(text, tmpl, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ktime.ErrParse), "error %v should match ErrParse", err)

			var pe *ktime.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, text, pe.Text)
		})
	}
}

func TestFormatInZone(t *testing.T) {
	instant := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	out, err := ktime.Format(instant, ktime.Template8601, "Europe/Paris")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01 14:00:00.000+0200", out)
}

func TestConvert(t *testing.T) {
	out, err := ktime.Convert("2024-03-05T14:07:09+0100", ktime.Template3339, ktime.Template3339fk, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T13:07:09.000Z", out)
}

func TestIsPastAt(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	past, err := ktime.IsPastAt("2024-03-05T11:59:59.000Z", ktime.Template3339fk, now)
	require.NoError(t, err)
	assert.True(t, past)

	past, err = ktime.IsPastAt("2024-03-05T12:00:00.000Z", ktime.Template3339fk, now)
	require.NoError(t, err)
	assert.False(t, past)

	_, err = ktime.IsPastAt("2024-03-05", ktime.Template3339fk, now)
	assert.ErrorIs(t, err, ktime.ErrParse)
}

func TestDifference(t *testing.T) {
	const a = "2024-01-01T00:00:00.000Z"
	cases := []struct {
		b    string
		unit ktime.Unit
		want int64
	}{
		{"2024-01-01T00:00:01.500Z", ktime.Milliseconds, 1500},
		{"2024-01-01T00:01:59.000Z", ktime.Minutes, 1},
		{"2024-01-01T23:59:59.000Z", ktime.Hours, 23},
		{"2024-01-08T00:00:00.000Z", ktime.Days, 7},
		{"2024-01-14T23:00:00.000Z", ktime.Weeks, 1},
		{"2023-12-31T00:00:00.000Z", ktime.Days, 1},
	}
	for _, tc := range cases {
		got, err := ktime.Difference(a, tc.b, ktime.Template3339fk, tc.unit)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s in unit %d", tc.b, tc.unit)
	}
}

func TestYearsUseFiftyTwoWeeks(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// 364 days is a full year under the 52 week rule.
	assert.Equal(t, int64(1), ktime.Between(start, start.AddDate(0, 0, 364), ktime.Years))
	assert.Equal(t, int64(0), ktime.Between(start, start.AddDate(0, 0, 363), ktime.Years))

	// A thousand calendar years drift past a thousand 52 week years.
	assert.Equal(t, int64(1003), ktime.Between(start, start.AddDate(1000, 0, 0), ktime.Years))
}

func TestBetweenBeyondDurationRange(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := start.AddDate(600, 0, 0)

	assert.Equal(t, int64(602), ktime.Between(start, far, ktime.Years))
	assert.Equal(t, int64(602), ktime.Between(far, start, ktime.Years))
	assert.Equal(t, far.UnixMilli()-start.UnixMilli(), ktime.Between(start, far, ktime.Milliseconds))
}

func TestBadTemplate(t *testing.T) {
	_, err := ktime.Format(time.Now(), "Z yyyy", "")
	assert.Error(t, err)
	_, err = ktime.Parse("x", "'unterminated", "")
	assert.Error(t, err)
}

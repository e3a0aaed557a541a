package recur_test

import (
	"testing"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func TestDayOfWeek(t *testing.T) {
	mask := recur.DayOfWeek(time.Monday, time.Wednesday, time.Friday)
	assert.Equal(t, recur.Monday|recur.Wednesday|recur.Friday, mask)
	assert.Equal(t, 42, mask)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, recur.Days(mask))

	assert.Equal(t, 127, recur.DayOfWeek(time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday))
	assert.Equal(t, 0, recur.DayOfWeek())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		draft recur.Draft
		want  recur.Rule
		err   error
	}{
		{
			name:  "daily after count",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "2", End: recur.EndAfter, Count: "5"},
			want:  recur.Rule{Unit: recur.UnitDay, Period: 2, Number: 5},
		},
		{
			name:  "monthly on date",
			draft: recur.Draft{Unit: recur.UnitMonth, Period: " 1 ", End: recur.EndOnDate, EndDate: "2024-12-31"},
			want:  recur.Rule{Unit: recur.UnitMonth, Period: 1, End: "2024-12-31"},
		},
		{
			name:  "weekdays",
			draft: recur.Draft{Unit: recur.UnitWeekday, Days: []time.Weekday{time.Tuesday, time.Thursday}, End: recur.EndAfter, Count: "3"},
			want:  recur.Rule{Unit: recur.UnitWeekday, Period: 20, Number: 3},
		},
		{
			name:  "no recurrence",
			draft: recur.Draft{Unit: recur.Invalid, Period: "junk"},
			want:  recur.None,
		},
		{
			name:  "zero period",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "0", End: recur.EndAfter, Count: "3"},
			err:   recur.ErrProblemOccur,
		},
		{
			name:  "non numeric period",
			draft: recur.Draft{Unit: recur.UnitMonth, Period: "often", End: recur.EndAfter, Count: "3"},
			err:   recur.ErrProblemOccur,
		},
		{
			name:  "no weekdays",
			draft: recur.Draft{Unit: recur.UnitWeekday, End: recur.EndAfter, Count: "3"},
			err:   recur.ErrProblemDayWeek,
		},
		{
			name:  "zero count",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "1", End: recur.EndAfter, Count: "0"},
			err:   recur.ErrProblemEndRepeat,
		},
		{
			name:  "empty end date",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "1", End: recur.EndOnDate, EndDate: "  "},
			err:   recur.ErrProblemEndDate,
		},
		{
			name:  "unreadable end date",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "1", End: recur.EndOnDate, EndDate: "next friday"},
			err:   recur.ErrProblemEndDate,
		},
		{
			name:  "end date with time",
			draft: recur.Draft{Unit: recur.UnitDay, Period: "1", End: recur.EndOnDate, EndDate: "2024-12-31T10:00:00.000Z"},
			want:  recur.Rule{Unit: recur.UnitDay, Period: 1, End: "2024-12-31T10:00:00.000Z"},
		},
		{
			name:  "unknown unit",
			draft: recur.Draft{Unit: 7, Period: "1"},
			err:   recur.ErrUnknownUnit,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := recur.Validate(tc.draft, now)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateForever(t *testing.T) {
	r, err := recur.Validate(recur.Draft{Unit: recur.UnitDay, Period: "1", End: recur.EndForever}, now)
	require.NoError(t, err)
	assert.Zero(t, r.Number)
	assert.Equal(t, "3024-03-05T12:00:00.000Z", r.End)
	assert.True(t, recur.IsForever(r.End, now))
}

func TestIsForever(t *testing.T) {
	twoYears, err := ktime.Format(now.AddDate(2, 0, 0), ktime.Template3339fk, "UTC")
	require.NoError(t, err)
	assert.False(t, recur.IsForever(twoYears, now))

	justUnder, err := ktime.Format(now.AddDate(0, 0, 499*364), ktime.Template3339fk, "UTC")
	require.NoError(t, err)
	assert.False(t, recur.IsForever(justUnder, now))

	atThreshold, err := ktime.Format(now.AddDate(0, 0, 500*364), ktime.Template3339fk, "UTC")
	require.NoError(t, err)
	assert.True(t, recur.IsForever(atThreshold, now))

	assert.False(t, recur.IsForever("not a date", now))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "once", recur.None.Describe(now))
	assert.Equal(t, "every day, 3 times", recur.Rule{Unit: recur.UnitDay, Period: 1, Number: 3}.Describe(now))
	assert.Equal(t, "every 2 months until 2024-12-31",
		recur.Rule{Unit: recur.UnitMonth, Period: 2, End: "2024-12-31"}.Describe(now))
	assert.Equal(t, "every Mon,Wed, forever",
		recur.Rule{Unit: recur.UnitWeekday, Period: 10, End: recur.ForeverEnd(now)}.Describe(now))
}

func TestOccurrencesDaily(t *testing.T) {
	r := recur.Rule{Unit: recur.UnitDay, Period: 2, Number: 3}
	got, err := r.Occurrences(now, now, now.AddDate(0, 1, 0), now, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now, now.AddDate(0, 0, 2), now.AddDate(0, 0, 4)}, got)
}

func TestOccurrencesWeekdays(t *testing.T) {
	// 2024-03-05 is a Tuesday.
	r := recur.Rule{Unit: recur.UnitWeekday, Period: recur.DayOfWeek(time.Tuesday, time.Friday), End: recur.ForeverEnd(now)}
	got, err := r.Occurrences(now, now, now.AddDate(0, 0, 14), now, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.Tuesday, got[0].Weekday())
	assert.Equal(t, time.Friday, got[1].Weekday())
	assert.Equal(t, time.Tuesday, got[2].Weekday())
}

func TestOccurrencesUntil(t *testing.T) {
	r := recur.Rule{Unit: recur.UnitMonth, Period: 1, End: "2024-05-05"}
	got, err := r.Occurrences(now, now, now.AddDate(1, 0, 0), now, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestOccurrencesOnce(t *testing.T) {
	got, err := recur.None.Occurrences(now, now.Add(-time.Hour), now.Add(time.Hour), now, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now}, got)

	got, err = recur.None.Occurrences(now, now.Add(time.Hour), now.Add(2*time.Hour), now, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRRule(t *testing.T) {
	s, err := recur.Rule{Unit: recur.UnitDay, Period: 3, Number: 4}.RRule(now, now)
	require.NoError(t, err)
	assert.Contains(t, s, "FREQ=DAILY")
	assert.Contains(t, s, "INTERVAL=3")
	assert.Contains(t, s, "COUNT=4")

	_, err = recur.None.RRule(now, now)
	assert.ErrorIs(t, err, recur.ErrNoRecurrence)
}

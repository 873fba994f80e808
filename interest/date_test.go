package interest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
)

func date(y int, m time.Month, d int) interest.Date {
	return interest.NewDate(y, m, d)
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to interest.Date
		want     int
	}{
		{"same day", date(2024, 1, 1), date(2024, 1, 1), 0},
		{"one month", date(2024, 1, 1), date(2024, 1, 31), 30},
		{"across leap day", date(2024, 2, 28), date(2024, 3, 1), 2},
		{"full year 2024", date(2024, 1, 1), date(2025, 1, 1), 366},
		{"reversed clamps to zero", date(2024, 3, 1), date(2024, 2, 1), 0},
		{"beyond time.Duration range", date(1, 1, 1), date(9999, 1, 1), 3651694},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interest.DaysBetween(tt.from, tt.to))
		})
	}
}

func TestDateOf_IgnoresTimeOfDay(t *testing.T) {
	morning := interest.DateOf(time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC))
	evening := interest.DateOf(time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC))

	assert.True(t, morning.Equal(evening))
	assert.Equal(t, 1, interest.DaysBetween(morning, interest.DateOf(time.Date(2024, 5, 11, 0, 30, 0, 0, time.UTC))))
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, interest.DaysInMonth(2024, time.February))
	assert.Equal(t, 28, interest.DaysInMonth(2023, time.February))
	assert.Equal(t, 29, interest.DaysInMonth(2000, time.February))
	assert.Equal(t, 28, interest.DaysInMonth(1900, time.February))
	assert.Equal(t, 30, interest.DaysInMonth(2024, time.April))
	assert.Equal(t, 31, interest.DaysInMonth(2024, time.December))
}

func TestMonthSegments(t *testing.T) {
	segs := interest.MonthSegments(date(2024, 1, 15), date(2024, 3, 10))
	require.Len(t, segs, 3)

	assert.Equal(t, "2024-01-15", segs[0].Start.String())
	assert.Equal(t, "2024-02-01", segs[0].End.String())
	assert.Equal(t, 17, segs[0].Days())
	assert.Equal(t, 31, segs[0].DaysInMonth())

	assert.Equal(t, 29, segs[1].Days())
	assert.Equal(t, 29, segs[1].DaysInMonth())

	assert.Equal(t, "2024-03-01", segs[2].Start.String())
	assert.Equal(t, 9, segs[2].Days())
}

func TestMonthSegments_YearBoundaryAndEmpty(t *testing.T) {
	segs := interest.MonthSegments(date(2024, 12, 20), date(2025, 1, 5))
	require.Len(t, segs, 2)
	assert.Equal(t, "2025-01-01", segs[0].End.String())

	assert.Empty(t, interest.MonthSegments(date(2024, 1, 1), date(2024, 1, 1)))
	assert.Empty(t, interest.MonthSegments(date(2024, 2, 1), date(2024, 1, 1)))
}

func TestParseDate_AndJSON(t *testing.T) {
	d, err := interest.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29), d)

	_, err = interest.ParseDate("29/02/2024")
	assert.Error(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-02-29"`, string(b))

	var back interest.Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d))
}

func TestFixedClock(t *testing.T) {
	clock := interest.FixedClock{Day: date(2024, 3, 1)}
	assert.Equal(t, "2024-03-01", clock.Today().String())
}

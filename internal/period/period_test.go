package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
)

func TestCustomWeeks(t *testing.T) {
	// 2025-06-01 是周日
	weeks := CustomWeeks(2025, time.June)
	require.Len(t, weeks, 6)
	assert.Equal(t, dates.Date(2025, 6, 1), weeks[0].Start)
	assert.Equal(t, dates.Date(2025, 6, 1), weeks[0].End)
	assert.Equal(t, dates.Date(2025, 6, 2), weeks[1].Start)
	assert.Equal(t, dates.Date(2025, 6, 8), weeks[1].End)
	assert.Equal(t, dates.Date(2025, 6, 30), weeks[5].Start)
	assert.Equal(t, dates.Date(2025, 6, 30), weeks[5].End)

	// 2025-01-01 是周三，第一周到 1 月 5 日
	weeks = CustomWeeks(2025, time.January)
	assert.Equal(t, dates.Date(2025, 1, 5), weeks[0].End)
	assert.Equal(t, "Week 5", weeks[4].Label)
	assert.Equal(t, dates.Date(2025, 1, 31), weeks[len(weeks)-1].End)
}

func TestResolve(t *testing.T) {
	today := dates.Date(2025, 3, 12)

	r, err := Resolve(Request{Mode: MonthToDate, Year: 2025, Month: time.March}, today)
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 3, 1), r.Start)
	assert.Equal(t, today, r.End)

	r, err = Resolve(Request{Mode: MonthToDate, Year: 2025, Month: time.February}, today)
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 2, 28), r.End)

	r, err = Resolve(Request{Mode: FullMonth, Year: 2024, Month: time.February}, today)
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2024, 2, 29), r.End)

	r, err = Resolve(Request{Mode: YearToDate, Year: 2025}, today)
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 1, 1), r.Start)
	assert.Equal(t, today, r.End)

	r, err = Resolve(Request{Mode: WeekOfMonth, Year: 2025, Month: time.January, Week: 2}, today)
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 1, 6), r.Start)
	assert.Equal(t, dates.Date(2025, 1, 12), r.End)

	_, err = Resolve(Request{Mode: WeekOfMonth, Year: 2025, Month: time.January, Week: 9}, today)
	assert.Error(t, err)

	_, err = Resolve(Request{Mode: Custom, Start: dates.Date(2025, 2, 1), End: dates.Date(2025, 1, 1)}, today)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Week of month")
	require.NoError(t, err)
	assert.Equal(t, WeekOfMonth, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, MonthToDate, m)

	_, err = ParseMode("fortnight")
	assert.Error(t, err)
}

func TestSingleMonthAndKeys(t *testing.T) {
	assert.NoError(t, ValidateSingleMonth(dates.NewRange(dates.Date(2025, 1, 1), dates.Date(2025, 1, 31))))
	assert.Error(t, ValidateSingleMonth(dates.NewRange(dates.Date(2025, 1, 30), dates.Date(2025, 2, 2))))

	assert.Equal(t, "2025-01", MonthKey(dates.Date(2025, 1, 9)))

	r, err := MonthRange("2025-02")
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, 2, 28), r.End)

	for _, bad := range []string{"2025-1", "2025/01", "2025-13", "Jan-2025"} {
		_, _, err := ParseMonthKey(bad)
		assert.Error(t, err, bad)
	}
}

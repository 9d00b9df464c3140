package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"January 15, 2025 at 3:00pm EST": "January 15 2025 3:00 pm",
		"01/15/2025  10:30AM":        "01/15/2025 10:30 AM",
		"  2025-01-15   ":                "2025-01-15",
		"Jan 5 2025 – 4pm pt":            "Jan 5 2025 - 4 pm",
		"":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), in)
	}
}

func TestParseFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2025-01-15 13:45:00", time.Date(2025, 1, 15, 13, 45, 0, 0, time.UTC)},
		{"2025-01-15T13:45:00Z", time.Date(2025, 1, 15, 13, 45, 0, 0, time.UTC)},
		{"1/5/2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"01/05/2025 03:30 PM", time.Date(2025, 1, 5, 15, 30, 0, 0, time.UTC)},
		{"01/05/2025 3:30pm", time.Date(2025, 1, 5, 15, 30, 0, 0, time.UTC)},
		{"January 15, 2025 at 3:00pm EST", time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC)},
		{"Wed Jan 15 2025", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"15 Jan 2025", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.in)
		require.True(t, ok, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %v want %v", tc.in, got, tc.want)
	}
}

func TestParseNeverMatchesGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "nan", "NaT", "tomorrow-ish", "13/45/2025", "0:00:00"} {
		_, ok := Parse(in)
		assert.False(t, ok, in)
	}
}

func TestRange(t *testing.T) {
	r := NewRange(Date(2025, 1, 1), Date(2025, 1, 31))
	require.True(t, r.Valid())

	assert.True(t, r.Contains(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(Date(2025, 2, 1)))
	assert.True(t, r.ContainsText("1/1/2025 9:00 AM"))
	assert.False(t, r.ContainsText("not a date"))

	assert.True(t, r.Overlaps(Date(2024, 12, 15), Date(2025, 1, 1)))
	assert.True(t, r.Overlaps(Date(2025, 1, 31), Date(2025, 2, 28)))
	assert.False(t, r.Overlaps(Date(2025, 2, 1), Date(2025, 2, 28)))

	assert.False(t, NewRange(Date(2025, 2, 1), Date(2025, 1, 1)).Valid())
}

func TestParseColumnMalformed(t *testing.T) {
	col := ParseColumn([]string{"soon", "later", ""})
	assert.Equal(t, 0, col.Parsed)
	assert.Equal(t, 2, col.NonBlank)
	assert.True(t, col.Malformed())

	col = ParseColumn([]string{"soon", "2025-01-02"})
	assert.Equal(t, 1, col.Parsed)
	assert.False(t, col.Malformed())
	assert.False(t, col.OK[0])
	assert.True(t, col.OK[1])

	assert.False(t, ParseColumn([]string{"", "nan"}).Malformed())
}

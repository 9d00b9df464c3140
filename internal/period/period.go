package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
)

// Mode 报表期间模式
type Mode string

const (
	MonthToDate Mode = "month_to_date"
	FullMonth   Mode = "full_month"
	YearToDate  Mode = "year_to_date"
	WeekOfMonth Mode = "week_of_month"
	Custom      Mode = "custom"
)

// ParseMode 解析期间模式，兼容界面上的文字标签
func ParseMode(s string) (Mode, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	switch v {
	case "", "month_to_date", "mtd":
		return MonthToDate, nil
	case "full_month", "month":
		return FullMonth, nil
	case "year_to_date", "ytd":
		return YearToDate, nil
	case "week_of_month", "week":
		return WeekOfMonth, nil
	case "custom", "custom_range":
		return Custom, nil
	}
	return "", fmt.Errorf("unknown period mode %q", s)
}

// Week 自定义周
type Week struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthBounds 月份首尾日
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := dates.Date(year, month, 1)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// ClampToToday 结束日不超过今天
func ClampToToday(end, today time.Time) time.Time {
	t := dates.Day(today)
	if dates.Day(end).After(t) {
		return t
	}
	return dates.Day(end)
}

// CustomWeeks 第一周截止到当月第一个周日，之后每 7 天一周，最后一周截止月末
func CustomWeeks(year int, month time.Month) []Week {
	start, end := MonthBounds(year, month)

	// Go 的 Weekday 以周日为 0
	daysToSunday := (7 - int(start.Weekday())) % 7
	w1End := start.AddDate(0, 0, daysToSunday)
	if w1End.After(end) {
		w1End = end
	}
	weeks := []Week{{Label: "Week 1", Start: start, End: w1End}}

	cur := w1End.AddDate(0, 0, 1)
	for n := 2; !cur.After(end); n++ {
		wEnd := cur.AddDate(0, 0, 6)
		if wEnd.After(end) {
			wEnd = end
		}
		weeks = append(weeks, Week{Label: fmt.Sprintf("Week %d", n), Start: cur, End: wEnd})
		cur = wEnd.AddDate(0, 0, 1)
	}
	return weeks
}

// Request 期间解析参数
type Request struct {
	Mode  Mode
	Year  int
	Month time.Month
	Week  int // 1-based，仅 WeekOfMonth
	Start time.Time
	End   time.Time
}

// Resolve 把期间选择解析为日期区间
func Resolve(req Request, today time.Time) (dates.Range, error) {
	today = dates.Day(today)
	year := req.Year
	if year == 0 {
		year = today.Year()
	}
	month := req.Month
	if month == 0 {
		month = today.Month()
	}
	if month < time.January || month > time.December {
		return dates.Range{}, fmt.Errorf("invalid month %d", month)
	}

	switch req.Mode {
	case MonthToDate, "":
		start, end := MonthBounds(year, month)
		if today.Year() == year && today.Month() == month {
			end = ClampToToday(end, today)
		}
		return dates.NewRange(start, end), nil
	case FullMonth:
		start, end := MonthBounds(year, month)
		return dates.NewRange(start, end), nil
	case YearToDate:
		start := dates.Date(year, time.January, 1)
		end := dates.Date(year, time.December, 31)
		if year == today.Year() {
			end = ClampToToday(end, today)
		}
		return dates.NewRange(start, end), nil
	case WeekOfMonth:
		weeks := CustomWeeks(year, month)
		if req.Week < 1 || req.Week > len(weeks) {
			return dates.Range{}, fmt.Errorf("week %d out of range (month has %d weeks)", req.Week, len(weeks))
		}
		w := weeks[req.Week-1]
		return dates.NewRange(w.Start, w.End), nil
	case Custom:
		r := dates.NewRange(req.Start, req.End)
		if !r.Valid() {
			return dates.Range{}, errors.New("custom range requires start <= end")
		}
		return r, nil
	}
	return dates.Range{}, fmt.Errorf("unknown period mode %q", req.Mode)
}

// ValidateSingleMonth 通话上传只允许单个自然月
func ValidateSingleMonth(r dates.Range) error {
	if !r.Valid() {
		return errors.New("start date must be on or before end date")
	}
	if r.Start.Year() != r.End.Year() || r.Start.Month() != r.End.Month() {
		return errors.New("calls uploads must cover a single calendar month")
	}
	return nil
}

// MonthKey YYYY-MM
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// ParseMonthKey 解析 YYYY-MM
func ParseMonthKey(key string) (int, time.Month, error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid period %q, want YYYY-MM", key)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid period %q: %w", key, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return 0, 0, fmt.Errorf("invalid period %q, month must be 01-12", key)
	}
	return y, time.Month(m), nil
}

// MonthRange YYYY-MM -> 整月区间
func MonthRange(key string) (dates.Range, error) {
	y, m, err := ParseMonthKey(key)
	if err != nil {
		return dates.Range{}, err
	}
	start, end := MonthBounds(y, m)
	return dates.NewRange(start, end), nil
}

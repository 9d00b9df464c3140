package dates

import (
	"regexp"
	"strings"
	"time"
)

var (
	reAt     = regexp.MustCompile(`(?i)\s+at\s+`)
	reTZ     = regexp.MustCompile(`(?i)\s+(ET|EDT|EST|CT|CDT|CST|MT|MDT|MST|PT|PDT)\b`)
	reAmPm   = regexp.MustCompile(`(?i)(\d)(am|pm)\b`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// Clean 规范化表格中的日期文本
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, ",", " ")
	s = reAt.ReplaceAllString(s, " ")
	s = reTZ.ReplaceAllString(s, "")
	s = reAmPm.ReplaceAllString(s, "$1 $2")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// flexibleLayouts 宽松解析的候选格式
var flexibleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 3:04 PM",
	"2006-01-02",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 3 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06 3:04 PM",
	"1/2/06",
	"1-2-2006",
	"Jan 2 2006 3:04 PM",
	"Jan 2 2006 15:04",
	"Jan 2 2006",
	"January 2 2006 3:04 PM",
	"January 2 2006 15:04",
	"January 2 2006",
	"Mon Jan 2 2006 3:04 PM",
	"Mon Jan 2 2006",
	"Monday January 2 2006 3:04 PM",
	"Monday January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ExplicitLayouts 宽松解析失败后依次重试的固定格式
var ExplicitLayouts = []string{
	"01/02/2006 03:04 PM",
	"01/02/2006 15:04",
	"2006-01-02 15:04",
	"01/02/2006",
}

// Parse 清洗并解析日期文本；无法解析返回 false，绝不 panic
func Parse(raw string) (time.Time, bool) {
	s := Clean(raw)
	if s == "" || isBlankToken(s) {
		return time.Time{}, false
	}
	// 月份名匹配不区分大小写，AM/PM 只认大写
	s = strings.ToUpper(s)
	if t, ok := tryLayouts(s, flexibleLayouts); ok {
		return t, true
	}
	return tryLayouts(s, ExplicitLayouts)
}

func tryLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return stripZone(t), true
		}
	}
	return time.Time{}, false
}

// stripZone 去掉时区，保留墙上时间
func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func isBlankToken(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "nat", "none", "null", "na":
		return true
	}
	return false
}

// ParsedColumn 整列解析结果
type ParsedColumn struct {
	Values   []time.Time
	OK       []bool
	Parsed   int // 成功解析的数量
	NonBlank int // 非空值数量
}

// ParseColumn 解析一整列
func ParseColumn(values []string) ParsedColumn {
	out := ParsedColumn{
		Values: make([]time.Time, len(values)),
		OK:     make([]bool, len(values)),
	}
	for i, v := range values {
		if v := strings.TrimSpace(v); v != "" && !isBlankToken(v) {
			out.NonBlank++
		}
		t, ok := Parse(v)
		out.Values[i] = t
		out.OK[i] = ok
		if ok {
			out.Parsed++
		}
	}
	return out
}

// Malformed 有值但一个都解析不了
func (p ParsedColumn) Malformed() bool {
	return p.NonBlank > 0 && p.Parsed == 0
}

// Day 取日历日期（UTC 零点）
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date 构造日历日期
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Format 输出 YYYY-MM-DD
func Format(t time.Time) string {
	return t.Format("2006-01-02")
}

// Range 闭区间日期范围（按日历日比较）
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewRange 构造区间，自动截断到日
func NewRange(start, end time.Time) Range {
	return Range{Start: Day(start), End: Day(end)}
}

// Valid 起止有序
func (r Range) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Contains 按日历日判断是否落在区间内
func (r Range) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

// Overlaps 与 [start, end] 是否有交集：start <= r.End && end >= r.Start
func (r Range) Overlaps(start, end time.Time) bool {
	return !Day(start).After(Day(r.End)) && !Day(end).Before(Day(r.Start))
}

// ContainsText 解析文本后判断，解析失败视为不在区间
func (r Range) ContainsText(raw string) bool {
	t, ok := Parse(raw)
	if !ok {
		return false
	}
	return r.Contains(t)
}

func (r Range) String() string {
	return Format(r.Start) + " to " + Format(r.End)
}

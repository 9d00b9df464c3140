package calculator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/parser"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// CallsFilter 通话报表筛选，空串表示全部
type CallsFilter struct {
	Year     string `form:"year" json:"year"`         // YYYY
	Month    string `form:"month" json:"month"`       // MM
	Category string `form:"category" json:"category"`
	Name     string `form:"name" json:"name"`
}

// CallsRow 按员工聚合后的一行
type CallsRow struct {
	Category      string `json:"category"`
	Name          string `json:"name"`
	TotalCalls    int    `json:"totalCalls"`
	Completed     int    `json:"completedCalls"`
	Outgoing      int    `json:"outgoing"`
	Received      int    `json:"received"`
	Voicemail     int    `json:"forwardedToVoicemail"`
	AnsweredOther int    `json:"answeredByOther"`
	Missed        int    `json:"missed"`
	AvgCallTime   string `json:"avgCallTime"`
	TotalCallTime string `json:"totalCallTime"`
	TotalHoldTime string `json:"totalHoldTime"`
	MonthYear     string `json:"monthYear"` // 多个月份时为首个出现的月份

	totalSec float64
	holdSec  float64
}

// CallsReport 通话报表
type CallsReport struct {
	Filter CallsFilter `json:"filter"`
	Rows   []CallsRow  `json:"rows"`
}

// Calls 读取 CALLS 表并生成报表
func (c *Calculator) Calls(ctx context.Context, f CallsFilter) (*CallsReport, error) {
	t, err := c.reader.Read(ctx, schema.Calls)
	if err != nil {
		return nil, fmt.Errorf("failed to load calls: %w", err)
	}
	r := CallsReportOf(t, f)
	return &r, nil
}

// AvailableMonths 读取 CALLS 表中出现过的 Month-Year
func (c *Calculator) AvailableMonths(ctx context.Context) ([]string, error) {
	t, err := c.reader.Read(ctx, schema.Calls)
	if err != nil {
		return nil, fmt.Errorf("failed to load calls: %w", err)
	}
	return MonthsOf(t), nil
}

// MonthsOf 去重排序后的 Month-Year 列表
func MonthsOf(t *model.Table) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range t.Column(schema.ColMonthYear) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// CallsReportOf 按年/月/分类/姓名筛选后按姓名重新聚合；平均时长 = 总通话秒数 / 接通数
func CallsReportOf(t *model.Table, f CallsFilter) CallsReport {
	report := CallsReport{Filter: f, Rows: []CallsRow{}}
	if !t.Has(schema.ColMonthYear) || !t.Has(schema.ColName) {
		return report
	}

	byName := map[string]*CallsRow{}
	var order []string
	for i := range t.Rows {
		period := strings.TrimSpace(t.Value(i, schema.ColMonthYear))
		if f.Year != "" && !strings.HasPrefix(period, f.Year) {
			continue
		}
		if f.Month != "" && !strings.HasSuffix(period, f.Month) {
			continue
		}
		if f.Category != "" && t.Value(i, schema.ColCategory) != f.Category {
			continue
		}
		name := t.Value(i, schema.ColName)
		if f.Name != "" && name != f.Name {
			continue
		}

		row, ok := byName[name]
		if !ok {
			row = &CallsRow{Name: name, Category: t.Value(i, schema.ColCategory), MonthYear: period}
			byName[name] = row
			order = append(order, name)
		}
		row.TotalCalls += parser.ParseCount(t.Value(i, schema.ColTotalCalls))
		row.Completed += parser.ParseCount(t.Value(i, schema.ColCompleted))
		row.Outgoing += parser.ParseCount(t.Value(i, schema.ColOutgoing))
		row.Received += parser.ParseCount(t.Value(i, schema.ColReceived))
		row.Voicemail += parser.ParseCount(t.Value(i, schema.ColVoicemail))
		row.AnsweredOther += parser.ParseCount(t.Value(i, schema.ColAnsweredOther))
		row.Missed += parser.ParseCount(t.Value(i, schema.ColMissed))
		row.totalSec += seconds(t, i, schema.ColTotalSec, schema.ColTotalCallTime)
		row.holdSec += seconds(t, i, schema.ColHoldSec, schema.ColTotalHoldTime)
	}

	sort.Strings(order)
	for _, name := range order {
		row := byName[name]
		avg := 0.0
		if row.Completed > 0 {
			avg = row.totalSec / float64(row.Completed)
		}
		row.AvgCallTime = parser.FormatHMS(avg)
		row.TotalCallTime = parser.FormatHMS(row.totalSec)
		row.TotalHoldTime = parser.FormatHMS(row.holdSec)
		report.Rows = append(report.Rows, *row)
	}
	return report
}

// seconds 优先用隐藏的秒数列，缺失时解析 HH:MM:SS
func seconds(t *model.Table, row int, secCol, hmsCol string) float64 {
	if v := strings.TrimSpace(t.Value(row, secCol)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return parser.DurationSeconds(t.Value(row, hmsCol))
}

// Table 转为展示列顺序的表
func (r CallsReport) Table() *model.Table {
	out := model.NewTable(schema.CallOutputColumns[:13]...)
	for _, row := range r.Rows {
		out.AppendRow(
			row.Category, row.Name,
			strconv.Itoa(row.TotalCalls), strconv.Itoa(row.Completed),
			strconv.Itoa(row.Outgoing), strconv.Itoa(row.Received),
			strconv.Itoa(row.Voicemail), strconv.Itoa(row.AnsweredOther), strconv.Itoa(row.Missed),
			row.AvgCallTime, row.TotalCallTime, row.TotalHoldTime, row.MonthYear,
		)
	}
	return out
}

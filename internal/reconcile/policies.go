package reconcile

import (
	"fmt"
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/parser"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// 组合键列候选（大小写不敏感）
var (
	EmailCandidates  = []string{"email", "e-mail"}
	MatterCandidates = []string{"matter id", "matterid", "matter"}
	StageCandidates  = []string{"stage", "status"}
	ICCandidates     = []string{strings.ToLower(schema.ColICDate), "initial consultation", "ic date"}
	DMCandidates     = []string{strings.ToLower(schema.ColDMDate), "discovery meeting", "dm date"}
)

// Append 追加；已有表为空时直接采用新表
func Append(existing, incoming *model.Table) *model.Table {
	if existing.Empty() {
		return incoming.Clone()
	}
	return existing.Concat(incoming)
}

// ReplacePeriod 删除 Month-Year 等于 period 的旧行后追加
func ReplacePeriod(existing, incoming *model.Table, period string) (*model.Table, int) {
	idx := existing.Col(schema.ColMonthYear)
	if idx < 0 {
		return Append(existing, incoming), 0
	}
	kept, removed := existing.Filter(func(_ int, row []string) bool {
		return strings.TrimSpace(cell(row, idx)) != period
	})
	return Append(kept, incoming), removed
}

// RangeColumn 区间替换所用的日期列：注册表声明的列优先，否则第一个日期样式列
func RangeColumn(t *model.Table, declared string) int {
	if declared != "" {
		if idx := t.ColFold(declared); idx >= 0 {
			return idx
		}
	}
	if cols := parser.DateLikeColumns(t); len(cols) > 0 {
		return cols[0]
	}
	return -1
}

// ReplaceRange 删除日期列落在 [start, end] 内的旧行后追加；无法解析的日期永不匹配
func ReplaceRange(existing, incoming *model.Table, declared string, rng dates.Range) (*model.Table, int, *MalformedDateWarning) {
	idx := RangeColumn(existing, declared)
	if idx < 0 {
		return Append(existing, incoming), 0, nil
	}
	col := dates.ParseColumn(columnAt(existing, idx))
	var warn *MalformedDateWarning
	if col.Malformed() {
		warn = &MalformedDateWarning{Column: existing.Headers[idx], Values: col.NonBlank}
	}
	kept, removed := existing.Filter(func(i int, _ []string) bool {
		return !(col.OK[i] && rng.Contains(col.Values[i]))
	})
	return Append(kept, incoming), removed, warn
}

// CompositeKey Email|Matter ID|Stage，任一列缺失返回 false
func CompositeKey(t *model.Table) (func(row int) string, bool) {
	e := t.ColFold(EmailCandidates...)
	m := t.ColFold(MatterCandidates...)
	s := t.ColFold(StageCandidates...)
	if e < 0 || m < 0 || s < 0 {
		return nil, false
	}
	return func(row int) string {
		return strings.Join([]string{t.Cell(row, e), t.Cell(row, m), t.Cell(row, s)}, "|")
	}, true
}

// ReplaceByKey 删除与新行组合键相同的旧行后追加；任一侧缺列则只追加
func ReplaceByKey(existing, incoming *model.Table) (*model.Table, int, *ReconciliationWarning) {
	oldKey, okOld := CompositeKey(existing)
	newKey, okNew := CompositeKey(incoming)
	if !okOld || !okNew {
		if existing.Empty() {
			return Append(existing, incoming), 0, nil
		}
		return Append(existing, incoming), 0, &ReconciliationWarning{
			Op:     "replace",
			Reason: "composite key columns (Email, Matter ID, Stage) missing; rows appended without replacement",
		}
	}

	keys := make(map[string]bool, incoming.Len())
	for i := range incoming.Rows {
		keys[newKey(i)] = true
	}
	kept, removed := existing.Filter(func(i int, _ []string) bool {
		return !keys[oldKey(i)]
	})
	return Append(kept, incoming), removed, nil
}

// DedupeKeyed 按 5 元组去重，保留最后一次出现
func DedupeKeyed(t *model.Table) (*model.Table, int, error) {
	key, ok := CompositeKey(t)
	if !ok {
		return t.Clone(), 0, fmt.Errorf("composite key columns (Email, Matter ID, Stage) not found")
	}
	ic := t.ColFold(ICCandidates...)
	dm := t.ColFold(DMCandidates...)

	full := func(i int) string {
		return key(i) + "|" + t.Cell(i, ic) + "|" + t.Cell(i, dm)
	}
	last := make(map[string]int, t.Len())
	for i := range t.Rows {
		last[full(i)] = i
	}
	out, removed := t.Filter(func(i int, _ []string) bool {
		return last[full(i)] == i
	})
	return out, removed, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func columnAt(t *model.Table, idx int) []string {
	out := make([]string, t.Len())
	for i := range t.Rows {
		out[i] = t.Cell(i, idx)
	}
	return out
}

package parser

import (
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
)

// DateLikeColumns 表头包含 "date" 或 "with pji law" 的列，按出现顺序
func DateLikeColumns(t *model.Table) []int {
	var out []int
	for i, h := range t.Headers {
		lh := strings.ToLower(h)
		if ContainsAny(lh, "date", "with pji law") {
			out = append(out, i)
		}
	}
	return out
}

// FilterToRange 用第一个能筛出数据的日期列把上传行限制在区间内
// 没有日期列或所有日期列都筛不出数据时原样保留，column 为空
func FilterToRange(t *model.Table, rng dates.Range) (out *model.Table, column string) {
	if t.Empty() {
		return t.Clone(), ""
	}
	for _, idx := range DateLikeColumns(t) {
		filtered, _ := t.Filter(func(_ int, row []string) bool {
			if idx >= len(row) {
				return false
			}
			return rng.ContainsText(row[idx])
		})
		if !filtered.Empty() {
			return filtered, t.Headers[idx]
		}
	}
	return t.Clone(), ""
}

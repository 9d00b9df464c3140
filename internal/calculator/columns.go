package calculator

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// ColumnRule 列定位规则：精确名 -> 关键词 -> 位置
type ColumnRule struct {
	Role     string
	Names    []string   // 大小写不敏感的精确列名
	Tokens   [][]string // 归一化表头同时包含的关键词组，按顺序尝试，取最短的表头
	Position int        // 历史导出的固定列位置，-1 表示没有
}

var (
	normSpace = regexp.MustCompile(`[\s_]+`)
	normJunk  = regexp.MustCompile(`[^a-z0-9 ]`)
)

// normHeader 小写、合并空白与下划线、去掉非字母数字
func normHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = normSpace.ReplaceAllString(s, " ")
	return normJunk.ReplaceAllString(s, "")
}

// 会议表（IC / DM）列规则
var (
	icDateRule = ColumnRule{
		Role:     "date",
		Names:    []string{schema.ColICDate},
		Tokens:   [][]string{{"initial", "consultation", "pji"}},
		Position: 12,
	}
	dmDateRule = ColumnRule{
		Role:     "date",
		Names:    []string{schema.ColDMDate},
		Tokens:   [][]string{{"discovery", "meeting", "pji"}},
		Position: 15,
	}
	subRule    = ColumnRule{Role: "sub status", Names: []string{schema.ColSubStatus}, Position: 6}
	reasonRule = ColumnRule{Role: "reason", Names: []string{schema.ColReason}, Position: 8}
	lawyerRule = ColumnRule{Role: "attorney", Names: []string{schema.ColLeadAttorney}, Position: 11}
	intakeRule = ColumnRule{Role: "intake specialist", Names: []string{schema.ColIntakeSpecialist}, Position: -1}
)

// NCL 列规则
var (
	nclDateRule = ColumnRule{
		Role:     "date",
		Names:    []string{schema.ColNCLDate},
		Tokens:   [][]string{{"date", "signed", "payment"}, {"date"}},
		Position: 6,
	}
	nclAttorneyRule = ColumnRule{
		Role:     "attorney",
		Names:    []string{"Responsible Attorney"},
		Tokens:   [][]string{{"responsible", "attorney"}, {"attorney"}},
		Position: 4,
	}
	nclFlagRule = ColumnRule{
		Role:     "retained flag",
		Names:    []string{schema.ColRetainedFlag},
		Tokens:   [][]string{{"retained", "consult"}, {"retained"}},
		Position: 5,
	}
	nclIntakeRule = ColumnRule{
		Role:     "primary intake",
		Names:    []string{schema.ColPrimaryIntake},
		Tokens:   [][]string{{"primary", "intake"}, {"intake"}},
		Position: 9,
	}
)

// Resolve 定位列，找不到返回 -1；使用位置兜底时记录告警
func (c *Calculator) Resolve(t *model.Table, key schema.Key, rule ColumnRule) int {
	if t == nil || len(t.Headers) == 0 {
		return -1
	}
	if idx := t.ColFold(rule.Names...); idx >= 0 {
		return idx
	}
	for _, group := range rule.Tokens {
		best := -1
		for i, h := range t.Headers {
			n := normHeader(h)
			if !containsAll(n, group) {
				continue
			}
			if best < 0 || len(n) < len(normHeader(t.Headers[best])) {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}
	if rule.Position >= 0 && rule.Position < len(t.Headers) {
		c.logger.Warn("column resolved by position",
			zap.String("table", string(key)),
			zap.String("role", rule.Role),
			zap.Int("position", rule.Position),
			zap.String("header", t.Headers[rule.Position]))
		return rule.Position
	}
	return -1
}

func containsAll(s string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(s, tok) {
			return false
		}
	}
	return true
}

// isBlankReason 空、纯空白或 nan/none/na/null
func isBlankReason(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "na", "null":
		return true
	}
	return false
}

func isFollowUp(s string) bool {
	return strings.ToLower(strings.TrimSpace(s)) == "follow up"
}

// isCanceledOrNoShow 原因中含 canceled meeting / no show
func isCanceledOrNoShow(reason string) bool {
	r := strings.ToLower(strings.TrimSpace(reason))
	return strings.Contains(r, "canceled meeting") || strings.Contains(r, "no show")
}

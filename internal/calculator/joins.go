package calculator

import (
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/roster"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Predicate 关联谓词
type Predicate int

const (
	MatchExact        Predicate = iota // 去空格后精确匹配名册
	MatchInitials                      // 缩写查表
	MatchDateInWindow                  // 行日期落在窗口内
	MatchBatchOverlap                  // 批次声明区间与窗口重叠
)

func (p Predicate) String() string {
	switch p {
	case MatchExact:
		return "exact"
	case MatchInitials:
		return "initials"
	case MatchDateInWindow:
		return "date_in_window"
	case MatchBatchOverlap:
		return "batch_overlap"
	default:
		return "unknown"
	}
}

// JoinSpec 表与表、表与名册之间的一次显式关联
type JoinSpec struct {
	Name      string
	Key       string // 关联所用的列
	Predicate Predicate
	Fallback  string // 未命中时的归桶；窗口类谓词为空

	lookup func(string) (string, bool)
}

// Bucket 名称/缩写类关联：返回命中的桶，否则 Fallback
func (j JoinSpec) Bucket(value string) string {
	if j.lookup != nil {
		if b, ok := j.lookup(strings.TrimSpace(value)); ok {
			return b
		}
	}
	return j.Fallback
}

// InWindow 窗口类关联：日期无法解析一律视为不在窗口
func (j JoinSpec) InWindow(w dates.Range, values ...string) bool {
	switch j.Predicate {
	case MatchDateInWindow:
		if len(values) < 1 {
			return false
		}
		return w.ContainsText(values[0])
	case MatchBatchOverlap:
		if len(values) < 2 {
			return false
		}
		start, ok1 := dates.Parse(values[0])
		end, ok2 := dates.Parse(values[1])
		if !ok1 || !ok2 {
			return false
		}
		return w.Overlaps(start, end)
	}
	return false
}

// Joins 计算所用的全部关联
type Joins struct {
	LeadsWindow          JoinSpec
	MeetingWindow        JoinSpec
	RetainedWindow       JoinSpec
	AttorneyByName       JoinSpec
	AttorneyByInitials   JoinSpec
	SpecialistByName     JoinSpec
	SpecialistByInitials JoinSpec
}

// NewJoins 基于名册构造关联
func NewJoins(rs *roster.Roster) Joins {
	return Joins{
		LeadsWindow: JoinSpec{
			Name:      "leads-batch-window",
			Key:       schema.ColBatchStart + ".." + schema.ColBatchEnd,
			Predicate: MatchBatchOverlap,
		},
		MeetingWindow: JoinSpec{
			Name:      "meeting-date-window",
			Key:       schema.ColICDate + " | " + schema.ColDMDate,
			Predicate: MatchDateInWindow,
		},
		RetainedWindow: JoinSpec{
			Name:      "retained-date-window",
			Key:       schema.ColNCLDate,
			Predicate: MatchDateInWindow,
		},
		AttorneyByName: JoinSpec{
			Name:      "meeting-attorney",
			Key:       schema.ColLeadAttorney,
			Predicate: MatchExact,
			Fallback:  roster.Other,
			lookup: func(v string) (string, bool) {
				if v == "" {
					return "", false
				}
				name := rs.CanonicalAttorney(v)
				return name, name != roster.Other
			},
		},
		AttorneyByInitials: JoinSpec{
			Name:      "retained-attorney",
			Key:       "Responsible Attorney",
			Predicate: MatchInitials,
			Fallback:  roster.Other,
			lookup: func(v string) (string, bool) {
				name := rs.CanonicalAttorney(rs.AttorneyFromInitials(v))
				return name, name != roster.Other
			},
		},
		SpecialistByName: JoinSpec{
			Name:      "intake-specialist",
			Key:       schema.ColIntakeSpecialist,
			Predicate: MatchExact,
			Fallback:  roster.EveryoneElse,
			lookup: func(v string) (string, bool) {
				name := rs.SpecialistFor(v)
				return name, name != roster.EveryoneElse
			},
		},
		SpecialistByInitials: JoinSpec{
			Name:      "retained-intake",
			Key:       schema.ColPrimaryIntake,
			Predicate: MatchInitials,
			Fallback:  roster.EveryoneElse,
			lookup: func(v string) (string, bool) {
				name := rs.SpecialistFromInitials(v)
				return name, name != roster.EveryoneElse
			},
		},
	}
}

package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/roster"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

type callKey struct {
	category string
	name     string
}

type callAgg struct {
	counts      map[string]int
	totalSec    float64
	holdSec     float64
	avgWeighted float64 // sum(avg_i * calls_i)
}

// NormalizeCalls 把原始通话导出归一化为按员工聚合的月度报表
// 缺少必需列时返回 *SchemaError，不产生任何输出
func NormalizeCalls(raw *model.Table, periodKey string, rs *roster.Roster) (*model.Table, error) {
	if rs == nil {
		rs = roster.Default()
	}
	headers := make([]string, len(raw.Headers))
	for i, h := range raw.Headers {
		headers[i] = strings.TrimSpace(h)
	}

	mapping := NewFieldMapper(CallSynonyms).Map(headers)
	incoming := splitColumns(headers, incomingSplit)
	outgoing := splitColumns(headers, outgoingSplit)

	var missing []string
	for _, col := range schema.RequiredCallColumns {
		if mapping.Index(col) >= 0 {
			continue
		}
		if col == schema.ColReceived && len(incoming) > 0 {
			continue
		}
		if col == schema.ColOutgoing && len(outgoing) > 0 {
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Table: "Calls", Missing: missing, Seen: headers}
	}

	// 拆分列求和：已被同义词占用的源列只算一次
	splitSum := func(row int, canonical string, cols []int) int {
		n := 0
		if idx := mapping.Index(canonical); idx >= 0 {
			n = ParseCount(raw.Cell(row, idx))
		}
		for _, c := range cols {
			if mapping.Consumed(c) {
				continue
			}
			n += ParseCount(raw.Cell(row, c))
		}
		return n
	}

	groups := map[callKey]*callAgg{}
	nameIdx := mapping.Index(schema.ColName)
	for i := range raw.Rows {
		name := strings.TrimSpace(raw.Cell(i, nameIdx))
		if !rs.AllowedCaller(name) {
			continue
		}
		name = rs.RenameCaller(name)
		key := callKey{category: rs.CallCategory(name), name: name}
		agg, ok := groups[key]
		if !ok {
			agg = &callAgg{counts: map[string]int{}}
			groups[key] = agg
		}

		for _, col := range schema.CallCountColumns {
			var n int
			switch col {
			case schema.ColReceived:
				n = splitSum(i, col, incoming)
			case schema.ColOutgoing:
				n = splitSum(i, col, outgoing)
			default:
				n = ParseCount(raw.Cell(i, mapping.Index(col)))
			}
			agg.counts[col] += n
		}

		calls := ParseCount(raw.Cell(i, mapping.Index(schema.ColTotalCalls)))
		agg.avgWeighted += DurationSeconds(raw.Cell(i, mapping.Index(schema.ColAvgCallTime))) * float64(calls)
		agg.totalSec += DurationSeconds(raw.Cell(i, mapping.Index(schema.ColTotalCallTime)))
		agg.holdSec += DurationSeconds(raw.Cell(i, mapping.Index(schema.ColTotalHoldTime)))
	}

	keys := make([]callKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].category != keys[b].category {
			return keys[a].category < keys[b].category
		}
		return keys[a].name < keys[b].name
	})

	out := model.NewTable(schema.CallOutputColumns...)
	for _, k := range keys {
		agg := groups[k]
		avg := 0.0
		if calls := agg.counts[schema.ColTotalCalls]; calls > 0 {
			avg = agg.avgWeighted / float64(calls)
		}
		out.AppendRow(
			k.category,
			k.name,
			strconv.Itoa(agg.counts[schema.ColTotalCalls]),
			strconv.Itoa(agg.counts[schema.ColCompleted]),
			strconv.Itoa(agg.counts[schema.ColOutgoing]),
			strconv.Itoa(agg.counts[schema.ColReceived]),
			strconv.Itoa(agg.counts[schema.ColVoicemail]),
			strconv.Itoa(agg.counts[schema.ColAnsweredOther]),
			strconv.Itoa(agg.counts[schema.ColMissed]),
			FormatHMS(avg),
			FormatHMS(agg.totalSec),
			FormatHMS(agg.holdSec),
			periodKey,
			FormatSeconds(avg),
			FormatSeconds(agg.holdSec),
			FormatSeconds(agg.totalSec),
		)
	}
	return out, nil
}

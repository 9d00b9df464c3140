package parser

import (
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Synonym 规范列及其可接受的归一化表头
type Synonym struct {
	Canonical string
	Alts      []string
}

// CallSynonyms 通话报表的表头同义词，按顺序匹配
var CallSynonyms = []Synonym{
	{schema.ColName, []string{"name", "user name", "username", "display name"}},
	{schema.ColTotalCalls, []string{"total calls", "calls total", "total number of calls", "total call count", "total"}},
	{schema.ColCompleted, []string{"completed calls", "completed", "answered calls", "handled calls", "calls answered"}},
	{schema.ColOutgoing, []string{"outgoing", "outgoing calls", "outbound", "outbound calls"}},
	{schema.ColReceived, []string{"received", "incoming", "incoming calls"}},
	{schema.ColVoicemail, []string{"forwarded to voicemail", "to voicemail", "voicemail forwarded", "voicemail"}},
	{schema.ColAnsweredOther, []string{"answered by other", "answered by others", "answered by other member", "answered by other user", "answered by other extension"}},
	{schema.ColMissed, []string{"missed", "missed calls", "abandoned", "ring no answer"}},
	{schema.ColAvgCallTime, []string{"avg call time", "average call time", "avg call duration", "average call duration", "avg talk time", "average talk time"}},
	{schema.ColTotalCallTime, []string{"total call time", "total call duration", "total talk time"}},
	{schema.ColTotalHoldTime, []string{"total hold time", "hold time total", "total on hold"}},
}

// 拆分列：内部/外部来电与去电分别汇总到 Received / Outgoing
var (
	incomingSplit = map[string]bool{"incoming internal": true, "incoming external": true, "incoming": true}
	outgoingSplit = map[string]bool{"outgoing internal": true, "outgoing external": true, "outgoing": true}
)

// FieldMapping 规范列 -> 源列索引
type FieldMapping struct {
	Columns map[string]int
	used    map[int]bool
}

// Index 规范列对应的源列，未映射返回 -1
func (m *FieldMapping) Index(canonical string) int {
	if idx, ok := m.Columns[canonical]; ok {
		return idx
	}
	return -1
}

// Consumed 源列是否已被同义词匹配占用
func (m *FieldMapping) Consumed(idx int) bool {
	return m.used[idx]
}

// FieldMapper 表头映射器
type FieldMapper struct {
	synonyms []Synonym
}

// NewFieldMapper 创建映射器
func NewFieldMapper(synonyms []Synonym) *FieldMapper {
	return &FieldMapper{synonyms: synonyms}
}

// Map 对每个规范列，第一个归一化后命中同义词且未被占用的源列胜出
func (m *FieldMapper) Map(headers []string) *FieldMapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	out := &FieldMapping{Columns: map[string]int{}, used: map[int]bool{}}
	for _, syn := range m.synonyms {
		alts := make(map[string]bool, len(syn.Alts))
		for _, a := range syn.Alts {
			alts[a] = true
		}
		for idx, n := range normalized {
			if out.used[idx] {
				continue
			}
			if alts[n] {
				out.Columns[syn.Canonical] = idx
				out.used[idx] = true
				break
			}
		}
	}
	return out
}

// splitColumns 归一化后属于 set 的源列
func splitColumns(headers []string, set map[string]bool) []int {
	var out []int
	for i, h := range headers {
		if set[NormalizeHeader(h)] {
			out = append(out, i)
		}
	}
	return out
}

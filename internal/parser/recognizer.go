package parser

import (
	"sort"
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Recognition 按表头识别出的上传类别
type Recognition struct {
	Kind       schema.Key `json:"kind"`
	Confidence float64    `json:"confidence"`
	Matched    []string   `json:"matched"`
}

// signature 某类导出文件的表头特征：required 全部命中且 excluded 都不出现才算候选，optional 用于打分
type signature struct {
	kind     schema.Key
	required [][]string
	optional [][]string
	excluded [][]string
}

var signatures = []signature{
	{
		kind:     schema.Calls,
		required: [][]string{{"name"}, {"total", "calls"}, {"call", "time"}},
		optional: [][]string{{"completed"}, {"outgoing"}, {"received"}, {"voicemail"}, {"missed"}, {"hold"}},
	},
	{
		kind:     schema.Leads,
		required: [][]string{{"stage"}, {"email"}},
		optional: [][]string{{"matter"}, {"intake", "specialist"}, {"refer", "out"}, {"follow", "up"}, {"practice", "area"}},
	},
	{
		kind:     schema.Init,
		required: [][]string{{"initial", "consultation"}},
		optional: [][]string{{"sub", "status"}, {"reason"}, {"lead", "attorney"}, {"intake", "specialist"}},
		excluded: [][]string{{"stage"}},
	},
	{
		kind:     schema.Disc,
		required: [][]string{{"discovery", "meeting"}},
		optional: [][]string{{"sub", "status"}, {"reason"}, {"lead", "attorney"}, {"intake", "specialist"}},
		excluded: [][]string{{"stage"}},
	},
	{
		kind:     schema.NCL,
		required: [][]string{{"signed"}, {"payment"}},
		optional: [][]string{{"responsible", "attorney"}, {"retained"}, {"primary", "intake"}, {"practice", "area"}},
	},
}

// SheetRecognizer 上传文件类别识别器
type SheetRecognizer struct{}

// NewSheetRecognizer 创建识别器
func NewSheetRecognizer() *SheetRecognizer {
	return &SheetRecognizer{}
}

// Recognize 按表头识别类别；无法识别时 Kind 为空
func (r *SheetRecognizer) Recognize(headers []string) Recognition {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	var candidates []Recognition
	for _, sig := range signatures {
		matched, ok := matchAll(normalized, sig.required)
		if !ok || matchAny(normalized, sig.excluded) {
			continue
		}
		hits := 0
		for _, tokens := range sig.optional {
			if h, ok := matchOne(normalized, tokens); ok {
				hits++
				matched = append(matched, h)
			}
		}
		conf := 0.5
		if len(sig.optional) > 0 {
			conf += 0.5 * float64(hits) / float64(len(sig.optional))
		}
		candidates = append(candidates, Recognition{Kind: sig.kind, Confidence: conf, Matched: matched})
	}
	if len(candidates) == 0 {
		return Recognition{}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates[0]
}

func matchAll(headers []string, groups [][]string) ([]string, bool) {
	var out []string
	for _, tokens := range groups {
		h, ok := matchOne(headers, tokens)
		if !ok {
			return nil, false
		}
		out = append(out, h)
	}
	return out, true
}

func matchAny(headers []string, groups [][]string) bool {
	for _, tokens := range groups {
		if _, ok := matchOne(headers, tokens); ok {
			return true
		}
	}
	return false
}

func matchOne(headers []string, tokens []string) (string, bool) {
	for _, h := range headers {
		all := true
		for _, tok := range tokens {
			if !strings.Contains(h, tok) {
				all = false
				break
			}
		}
		if all {
			return h, true
		}
	}
	return "", false
}

package roster

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed roster.yaml
var rosterYAML []byte

const (
	// Other 无法识别的律师/员工
	Other = "Other"
	// EveryoneElse 名册外的接待专员
	EveryoneElse = "Everyone Else"
)

// PracticeArea 业务领域
type PracticeArea struct {
	Name      string   `yaml:"name" json:"name"`
	Attorneys []string `yaml:"attorneys" json:"attorneys"`
}

// Specialist 接待专员
type Specialist struct {
	Name     string `yaml:"name" json:"name"`
	Initials string `yaml:"initials" json:"initials"`
}

// Roster 编译进二进制的业务名册
type Roster struct {
	Calls struct {
		Allowed    []string          `yaml:"allowed"`
		Rename     map[string]string `yaml:"rename"`
		Categories map[string]string `yaml:"categories"`
	} `yaml:"calls"`
	PracticeAreas     []PracticeArea    `yaml:"practice_areas"`
	OtherAttorneys    []string          `yaml:"other_attorneys"`
	DisplayNames      map[string]string `yaml:"display_names"`
	AttorneyInitials  map[string]string `yaml:"attorney_initials"`
	IntakeSpecialists []Specialist      `yaml:"intake_specialists"`
	Stages            struct {
		Spam            string   `yaml:"spam"`
		ExcludedFromPNC []string `yaml:"excluded_from_pnc"`
	} `yaml:"stages"`

	allowed     map[string]bool
	excluded    map[string]bool
	areaOf      map[string]string
	specialists map[string]bool
	intakeByIni map[string]string
	iniByIntake map[string]string
}

var (
	defaultOnce   sync.Once
	defaultRoster *Roster
)

// Default 返回内置名册（解析失败视为构建错误，直接 panic）
func Default() *Roster {
	defaultOnce.Do(func() {
		r, err := Parse(rosterYAML)
		if err != nil {
			panic(fmt.Sprintf("roster: embedded roster.yaml: %v", err))
		}
		defaultRoster = r
	})
	return defaultRoster
}

// Parse 解析名册 YAML
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	r.index()
	return &r, nil
}

func (r *Roster) index() {
	r.allowed = make(map[string]bool, len(r.Calls.Allowed))
	for _, n := range r.Calls.Allowed {
		r.allowed[n] = true
	}
	r.excluded = make(map[string]bool, len(r.Stages.ExcludedFromPNC))
	for _, s := range r.Stages.ExcludedFromPNC {
		r.excluded[s] = true
	}
	r.areaOf = make(map[string]string)
	for _, pa := range r.PracticeAreas {
		for _, a := range pa.Attorneys {
			r.areaOf[a] = pa.Name
		}
	}
	r.specialists = make(map[string]bool, len(r.IntakeSpecialists))
	r.intakeByIni = make(map[string]string, len(r.IntakeSpecialists))
	r.iniByIntake = make(map[string]string, len(r.IntakeSpecialists))
	for _, s := range r.IntakeSpecialists {
		r.specialists[s.Name] = true
		r.intakeByIni[s.Initials] = s.Name
		r.iniByIntake[s.Name] = s.Initials
	}
}

// AllowedCaller 是否在通话白名单内（按改名前的原始姓名）
func (r *Roster) AllowedCaller(name string) bool {
	return r.allowed[name]
}

// RenameCaller 处理员工改名
func (r *Roster) RenameCaller(name string) string {
	if to, ok := r.Calls.Rename[name]; ok {
		return to
	}
	return name
}

// CallCategory 员工分类，未知为 Other
func (r *Roster) CallCategory(name string) string {
	if c, ok := r.Calls.Categories[name]; ok {
		return c
	}
	return Other
}

// IsSpamStage 营销/垃圾线索
func (r *Roster) IsSpamStage(stage string) bool {
	return strings.TrimSpace(stage) == r.Stages.Spam
}

// IsExcludedStage 不计入 PNC 的阶段
func (r *Roster) IsExcludedStage(stage string) bool {
	return r.excluded[strings.TrimSpace(stage)]
}

// Attorneys 领域名册中的律师（按领域顺序）+ Other
func (r *Roster) Attorneys() []string {
	seen := map[string]bool{}
	var out []string
	for _, pa := range r.PracticeAreas {
		for _, a := range pa.Attorneys {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return append(out, Other)
}

// AreaNames 领域列表 + Other
func (r *Roster) AreaNames() []string {
	out := make([]string, 0, len(r.PracticeAreas)+1)
	for _, pa := range r.PracticeAreas {
		out = append(out, pa.Name)
	}
	return append(out, Other)
}

// PracticeAreaFor 律师所属领域，未知为 Other
func (r *Roster) PracticeAreaFor(attorney string) string {
	if pa, ok := r.areaOf[attorney]; ok {
		return pa
	}
	return Other
}

// CanonicalAttorney 名册内律师原样返回，其余归入 Other
func (r *Roster) CanonicalAttorney(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := r.areaOf[name]; ok {
		return name
	}
	return Other
}

// DisplayName 展示名
func (r *Roster) DisplayName(name string) string {
	if d, ok := r.DisplayNames[name]; ok {
		return d
	}
	return name
}

var nonUpper = regexp.MustCompile(`[^A-Z]`)

// AttorneyFromInitials 缩写 -> 律师，只保留大写字母后查表，未知为 Other
func (r *Roster) AttorneyFromInitials(raw string) string {
	token := nonUpper.ReplaceAllString(strings.ToUpper(raw), "")
	if token == "" {
		return Other
	}
	if name, ok := r.AttorneyInitials[token]; ok {
		return name
	}
	return Other
}

// SpecialistNames 名册内接待专员 + Everyone Else
func (r *Roster) SpecialistNames() []string {
	out := make([]string, 0, len(r.IntakeSpecialists)+1)
	for _, s := range r.IntakeSpecialists {
		out = append(out, s.Name)
	}
	return append(out, EveryoneElse)
}

// SpecialistFor 按全名归桶
func (r *Roster) SpecialistFor(name string) string {
	name = strings.TrimSpace(name)
	if r.specialists[name] {
		return name
	}
	return EveryoneElse
}

// SpecialistFromInitials 按缩写归桶（精确匹配去空格后的值）
func (r *Roster) SpecialistFromInitials(initials string) string {
	if name, ok := r.intakeByIni[strings.TrimSpace(initials)]; ok {
		return name
	}
	return EveryoneElse
}

// SpecialistInitials 专员缩写
func (r *Roster) SpecialistInitials(name string) (string, bool) {
	ini, ok := r.iniByIntake[name]
	return ini, ok
}

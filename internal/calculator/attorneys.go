package calculator

import (
	"math"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// AttorneyRow 单个律师
type AttorneyRow struct {
	Attorney     string  `json:"attorney"`
	Display      string  `json:"display"`
	PracticeArea string  `json:"practiceArea"`
	Met          int     `json:"met"`
	Retained     int     `json:"retained"`
	Pct          float64 `json:"pct"` // 两位小数
}

// PracticeAreaRow 业务领域汇总
type PracticeAreaRow struct {
	Name      string        `json:"name"`
	Met       int           `json:"met"`
	Retained  int           `json:"retained"`
	Pct       float64       `json:"pct"` // 取整
	Attorneys []AttorneyRow `json:"attorneys"`
}

// AttorneyReport 律师/业务领域拆分
type AttorneyReport struct {
	Window    dates.Range       `json:"window"`
	Attorneys []AttorneyRow     `json:"attorneys"`
	Areas     []PracticeAreaRow `json:"areas"`
}

// AttorneysOf 在快照上计算律师拆分：会面数按 Lead Attorney 归属，签约数按 NCL 缩写归属
func (c *Calculator) AttorneysOf(snap *Snapshot, window dates.Range) AttorneyReport {
	met := map[string]int{}
	for _, key := range []schema.Key{schema.Init, schema.Disc} {
		for _, m := range c.meetingRows(key, snap.Table(key), window) {
			if !m.strict || m.attorney == "" {
				continue
			}
			met[c.joins.AttorneyByName.Bucket(m.attorney)]++
		}
	}

	retained := map[string]int{}
	for _, r := range c.retainedRows(snap.NCL, window) {
		if r.withoutConsult {
			continue
		}
		retained[c.joins.AttorneyByInitials.Bucket(r.attorney)]++
	}

	report := AttorneyReport{Window: window}
	byArea := map[string]*PracticeAreaRow{}
	for _, name := range c.roster.AreaNames() {
		report.Areas = append(report.Areas, PracticeAreaRow{Name: name})
	}
	for i := range report.Areas {
		byArea[report.Areas[i].Name] = &report.Areas[i]
	}

	for _, a := range c.roster.Attorneys() {
		row := AttorneyRow{
			Attorney:     a,
			Display:      c.roster.DisplayName(a),
			PracticeArea: c.roster.PracticeAreaFor(a),
			Met:          met[a],
			Retained:     retained[a],
			Pct:          pct2(retained[a], met[a]),
		}
		report.Attorneys = append(report.Attorneys, row)

		area := byArea[row.PracticeArea]
		area.Met += row.Met
		area.Retained += row.Retained
		area.Attorneys = append(area.Attorneys, row)
	}
	for i := range report.Areas {
		a := &report.Areas[i]
		if a.Met > 0 {
			a.Pct = math.RoundToEven(float64(a.Retained) / float64(a.Met) * 100)
		}
	}
	return report
}

// Area 按名称查领域
func (r AttorneyReport) Area(name string) (PracticeAreaRow, bool) {
	for _, a := range r.Areas {
		if a.Name == name {
			return a, true
		}
	}
	return PracticeAreaRow{}, false
}

// Attorney 按名称查律师
func (r AttorneyReport) Attorney(name string) (AttorneyRow, bool) {
	for _, a := range r.Attorneys {
		if a.Attorney == name {
			return a, true
		}
	}
	return AttorneyRow{}, false
}

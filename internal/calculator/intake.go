package calculator

import (
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// AllSpecialists 汇总行名称
const AllSpecialists = "ALL"

// IntakeRow 单个接待专员的漏斗
type IntakeRow struct {
	Specialist             string `json:"specialist"`
	PNCs                   int    `json:"pncs"`
	PctOfTotalPNCs         int    `json:"pctOfTotalPncs"`
	RetainedWithoutConsult int    `json:"retainedWithoutConsult"`
	Scheduled              int    `json:"scheduled"`
	PctRemainingScheduled  int    `json:"pctRemainingScheduled"`
	Showed                 int    `json:"showed"`
	PctShowed              int    `json:"pctShowed"`
	RetainedAfterConsult   int    `json:"retainedAfterConsult"`
	PctRetainedAfter       int    `json:"pctRetainedAfter"`
	TotalRetained          int    `json:"totalRetained"`
	PctTotalRetained       int    `json:"pctTotalRetained"`
}

func (r *IntakeRow) derive(totalPNCs int) {
	r.TotalRetained = r.RetainedWithoutConsult + r.RetainedAfterConsult
	r.PctOfTotalPNCs = Pct(r.PNCs, totalPNCs)
	if remaining := r.PNCs - r.RetainedWithoutConsult; remaining > 0 {
		r.PctRemainingScheduled = Pct(r.Scheduled, remaining)
	} else {
		r.PctRemainingScheduled = 0
	}
	r.PctShowed = Pct(r.Showed, r.Scheduled)
	r.PctRetainedAfter = Pct(r.RetainedAfterConsult, r.Scheduled)
	r.PctTotalRetained = Pct(r.TotalRetained, r.PNCs)
}

// IntakeReport 接待专员拆分：名册内专员 + Everyone Else，外加 ALL 汇总
type IntakeReport struct {
	Window    dates.Range `json:"window"`
	TotalPNCs int         `json:"totalPncs"`
	Rows      []IntakeRow `json:"rows"`
	All       IntakeRow   `json:"all"`
}

// Row 按专员名查行，ALL 返回汇总
func (r IntakeReport) Row(name string) (IntakeRow, bool) {
	if name == AllSpecialists {
		return r.All, true
	}
	for _, row := range r.Rows {
		if row.Specialist == name {
			return row, true
		}
	}
	return IntakeRow{}, false
}

// IntakeOf 在快照上计算接待专员拆分
func (c *Calculator) IntakeOf(snap *Snapshot, window dates.Range) IntakeReport {
	names := c.roster.SpecialistNames()
	rows := make(map[string]*IntakeRow, len(names))
	report := IntakeReport{Window: window, Rows: make([]IntakeRow, len(names))}
	for i, n := range names {
		report.Rows[i].Specialist = n
		rows[n] = &report.Rows[i]
	}

	for _, l := range c.leadRows(snap.Leads, window) {
		if !l.pnc {
			continue
		}
		report.TotalPNCs++
		rows[c.joins.SpecialistByName.Bucket(l.specialist)].PNCs++
	}
	for _, key := range []schema.Key{schema.Init, schema.Disc} {
		for _, m := range c.meetingRows(key, snap.Table(key), window) {
			row := rows[c.joins.SpecialistByName.Bucket(m.specialist)]
			if m.scheduled {
				row.Scheduled++
			}
			if m.strict {
				row.Showed++
			}
		}
	}
	for _, r := range c.retainedRows(snap.NCL, window) {
		row := rows[c.joins.SpecialistByInitials.Bucket(r.intake)]
		if r.withoutConsult {
			row.RetainedWithoutConsult++
		} else {
			row.RetainedAfterConsult++
		}
	}

	report.All.Specialist = AllSpecialists
	for i := range report.Rows {
		row := &report.Rows[i]
		row.derive(report.TotalPNCs)
		report.All.PNCs += row.PNCs
		report.All.RetainedWithoutConsult += row.RetainedWithoutConsult
		report.All.Scheduled += row.Scheduled
		report.All.Showed += row.Showed
		report.All.RetainedAfterConsult += row.RetainedAfterConsult
	}
	report.All.derive(report.TotalPNCs)
	return report
}

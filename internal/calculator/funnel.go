package calculator

import (
	"strings"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Funnel 转化漏斗（11 行）
type Funnel struct {
	Window                  dates.Range `json:"window"`
	Leads                   int         `json:"leads"`
	PNCs                    int         `json:"pncs"`
	RetainedWithoutConsult  int         `json:"retainedWithoutConsult"`
	Scheduled               int         `json:"scheduled"`
	PctScheduledOfRemaining int         `json:"pctScheduledOfRemaining"`
	Met                     int         `json:"met"`
	PctMetOfScheduled       int         `json:"pctMetOfScheduled"`
	RetainedAfterConsult    int         `json:"retainedAfterConsult"`
	PctRetainedAfterConsult int         `json:"pctRetainedAfterConsult"`
	TotalRetained           int         `json:"totalRetained"`
	PctTotalRetained        int         `json:"pctTotalRetained"`
}

// Indicators 按报表顺序展开
func (f Funnel) Indicators() []Indicator {
	return []Indicator{
		{ID: "leads", Name: "# of Leads", Value: float64(f.Leads)},
		{ID: "pncs", Name: "# of PNCs", Value: float64(f.PNCs)},
		{ID: "retained_without_consult", Name: "PNCs who retained without consultation", Value: float64(f.RetainedWithoutConsult)},
		{ID: "scheduled", Name: "PNCs who scheduled consultation", Value: float64(f.Scheduled)},
		{ID: "pct_scheduled_of_remaining", Name: "% of remaining PNCs who scheduled consult", Value: float64(f.PctScheduledOfRemaining), Unit: "%"},
		{ID: "met", Name: "# of PNCs who showed up for consultation", Value: float64(f.Met)},
		{ID: "pct_met_of_scheduled", Name: "% of PNCs who scheduled consult showed up", Value: float64(f.PctMetOfScheduled), Unit: "%"},
		{ID: "retained_after_consult", Name: "PNCs who retained after scheduled consult", Value: float64(f.RetainedAfterConsult)},
		{ID: "pct_retained_after_consult", Name: "% of PNCs who retained after consult", Value: float64(f.PctRetainedAfterConsult), Unit: "%"},
		{ID: "total_retained", Name: "# of Total PNCs who retained", Value: float64(f.TotalRetained)},
		{ID: "pct_total_retained", Name: "% of total PNCs who retained", Value: float64(f.PctTotalRetained), Unit: "%"},
	}
}

// FunnelCounts 漏斗的原始计数
type FunnelCounts struct {
	Leads                  int
	PNCs                   int
	RetainedWithoutConsult int
	RetainedAfterConsult   int
	Scheduled              int
	Met                    int
}

// BuildFunnel 由计数推导全部 11 行
func BuildFunnel(window dates.Range, n FunnelCounts) Funnel {
	total := n.RetainedWithoutConsult + n.RetainedAfterConsult
	return Funnel{
		Window:                  window,
		Leads:                   n.Leads,
		PNCs:                    n.PNCs,
		RetainedWithoutConsult:  n.RetainedWithoutConsult,
		Scheduled:               n.Scheduled,
		PctScheduledOfRemaining: Pct(n.Scheduled, n.PNCs-n.RetainedWithoutConsult),
		Met:                     n.Met,
		PctMetOfScheduled:       Pct(n.Met, n.Scheduled),
		RetainedAfterConsult:    n.RetainedAfterConsult,
		PctRetainedAfterConsult: Pct(n.RetainedAfterConsult, n.Scheduled),
		TotalRetained:           total,
		PctTotalRetained:        Pct(total, n.PNCs),
	}
}

// FunnelOf 在快照上计算漏斗
func (c *Calculator) FunnelOf(snap *Snapshot, window dates.Range) Funnel {
	var n FunnelCounts
	for _, l := range c.leadRows(snap.Leads, window) {
		if l.lead {
			n.Leads++
		}
		if l.pnc {
			n.PNCs++
		}
	}
	for _, key := range []schema.Key{schema.Init, schema.Disc} {
		for _, m := range c.meetingRows(key, snap.Table(key), window) {
			if m.scheduled {
				n.Scheduled++
			}
			if m.met {
				n.Met++
			}
		}
	}
	for _, r := range c.retainedRows(snap.NCL, window) {
		if r.withoutConsult {
			n.RetainedWithoutConsult++
		} else {
			n.RetainedAfterConsult++
		}
	}
	return BuildFunnel(window, n)
}

type leadRow struct {
	lead       bool
	pnc        bool
	specialist string
}

// leadRows 批次区间与窗口重叠的线索；没有 Stage 列时为空
func (c *Calculator) leadRows(t *model.Table, window dates.Range) []leadRow {
	stage := t.ColFold(schema.ColStage)
	bs, be := t.Col(schema.ColBatchStart), t.Col(schema.ColBatchEnd)
	if stage < 0 || bs < 0 || be < 0 {
		return nil
	}
	spec := c.Resolve(t, schema.Leads, intakeRule)

	var out []leadRow
	for i := range t.Rows {
		if !c.joins.LeadsWindow.InWindow(window, t.Cell(i, bs), t.Cell(i, be)) {
			continue
		}
		s := t.Cell(i, stage)
		out = append(out, leadRow{
			lead:       !c.roster.IsSpamStage(s),
			pnc:        !c.roster.IsExcludedStage(s),
			specialist: t.Cell(i, spec),
		})
	}
	return out
}

// met 原因为空（漏斗口径）；strict 原因不含取消/未到场（律师与接待口径）
type meetingRow struct {
	scheduled  bool
	met        bool
	strict     bool
	attorney   string
	specialist string
}

// meetingRows 日期在窗口内的会议；没有日期列时为空
func (c *Calculator) meetingRows(key schema.Key, t *model.Table, window dates.Range) []meetingRow {
	dateRule := icDateRule
	if key == schema.Disc {
		dateRule = dmDateRule
	}
	date := c.Resolve(t, key, dateRule)
	if date < 0 {
		return nil
	}
	sub := c.Resolve(t, key, subRule)
	reason := c.Resolve(t, key, reasonRule)
	att := c.Resolve(t, key, lawyerRule)
	spec := c.Resolve(t, key, intakeRule)

	var out []meetingRow
	for i := range t.Rows {
		if !c.joins.MeetingWindow.InWindow(window, t.Cell(i, date)) {
			continue
		}
		m := meetingRow{
			attorney:   strings.TrimSpace(t.Cell(i, att)),
			specialist: t.Cell(i, spec),
		}
		if !isFollowUp(t.Cell(i, sub)) {
			m.scheduled = true
			r := t.Cell(i, reason)
			m.met = isBlankReason(r)
			m.strict = !isCanceledOrNoShow(r)
		}
		out = append(out, m)
	}
	return out
}

type retainedRow struct {
	withoutConsult bool
	attorney       string
	intake         string
}

// retainedRows 日期在窗口内的签约客户；没有标记列时全部算作咨询后签约
func (c *Calculator) retainedRows(t *model.Table, window dates.Range) []retainedRow {
	date := c.Resolve(t, schema.NCL, nclDateRule)
	if date < 0 {
		return nil
	}
	flag := c.Resolve(t, schema.NCL, nclFlagRule)
	att := c.Resolve(t, schema.NCL, nclAttorneyRule)
	intake := c.Resolve(t, schema.NCL, nclIntakeRule)

	var out []retainedRow
	for i := range t.Rows {
		if !c.joins.RetainedWindow.InWindow(window, t.Cell(i, date)) {
			continue
		}
		out = append(out, retainedRow{
			withoutConsult: flag >= 0 && strings.ToUpper(strings.TrimSpace(t.Cell(i, flag))) == "N",
			attorney:       t.Cell(i, att),
			intake:         t.Cell(i, intake),
		})
	}
	return out
}

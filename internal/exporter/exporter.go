package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
)

// 工作表名
const (
	SheetFunnel    = "Funnel"
	SheetAttorneys = "Attorneys"
	SheetAreas     = "Practice Areas"
	SheetIntake    = "Intake"
	SheetCalls     = "Calls"
)

// Exporter 报表导出器：一次加载快照，把漏斗、律师、接待与通话报表写入同一工作簿
type Exporter struct {
	calc *calculator.Calculator
}

// NewExporter 创建导出器
func NewExporter(calc *calculator.Calculator) *Exporter {
	return &Exporter{calc: calc}
}

// ExportOptions 导出选项
type ExportOptions struct {
	Window dates.Range
	Calls  calculator.CallsFilter
}

// Export 生成工作簿
func (e *Exporter) Export(ctx context.Context, opts ExportOptions, progress func(ProgressEvent)) (*excelize.File, error) {
	reportProgress(progress, 5, "loading tables")
	snap, err := e.calc.Load(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetFunnel); err != nil {
		_ = f.Close()
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &sheetWriter{f: f, header: header}

	reportProgress(progress, 20, "funnel")
	funnel := e.calc.FunnelOf(snap, opts.Window)
	rows := [][]any{{"Window", opts.Window.String()}}
	for _, it := range funnel.Indicators() {
		v := any(int(it.Value))
		if it.Unit == "%" {
			v = fmt.Sprintf("%d%%", int(it.Value))
		}
		rows = append(rows, []any{it.Name, v})
	}
	w.write(SheetFunnel, []string{"Metric", "Value"}, rows)

	reportProgress(progress, 40, "attorneys")
	att := e.calc.AttorneysOf(snap, opts.Window)
	rows = rows[:0]
	for _, r := range att.Attorneys {
		rows = append(rows, []any{r.Display, r.PracticeArea, r.Met, r.Retained, r.Pct})
	}
	w.write(SheetAttorneys, []string{"Attorney", "Practice Area", "PNCs who met", "PNCs who met and retained", "% retained"}, rows)

	rows = rows[:0]
	for _, a := range att.Areas {
		rows = append(rows, []any{a.Name, a.Met, a.Retained, a.Pct})
	}
	w.write(SheetAreas, []string{"Practice Area", "PNCs who met", "PNCs who met and retained", "% retained"}, rows)

	reportProgress(progress, 60, "intake")
	intake := e.calc.IntakeOf(snap, opts.Window)
	rows = rows[:0]
	for _, r := range append(intake.Rows, intake.All) {
		rows = append(rows, []any{r.Specialist, r.PNCs, r.PctOfTotalPNCs, r.RetainedWithoutConsult,
			r.Scheduled, r.PctRemainingScheduled, r.Showed, r.PctShowed,
			r.RetainedAfterConsult, r.PctRetainedAfter, r.TotalRetained, r.PctTotalRetained})
	}
	w.write(SheetIntake, []string{"Intake Specialist", "# of PNCs", "% of total PNCs",
		"Retained without consult", "Scheduled consult", "% of remaining scheduled",
		"Showed up", "% showed up", "Retained after consult", "% retained after consult",
		"Total retained", "% total retained"}, rows)

	reportProgress(progress, 80, "calls")
	calls := calculator.CallsReportOf(snap.Calls, opts.Calls).Table()
	w.write(SheetCalls, calls.Headers, tableRows(calls))

	if w.err != nil {
		_ = f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	reportProgress(progress, 100, "done")
	return f, nil
}

func tableRows(t *model.Table) [][]any {
	out := make([][]any, 0, t.Len())
	for _, row := range t.Rows {
		r := make([]any, len(row))
		for i, v := range row {
			r[i] = v
		}
		out = append(out, r)
	}
	return out
}

// sheetWriter 记录第一个错误，后续写入跳过
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) write(sheet string, headers []string, rows [][]any) {
	if w.err != nil {
		return
	}
	if idx, _ := w.f.GetSheetIndex(sheet); idx < 0 {
		if _, err := w.f.NewSheet(sheet); err != nil {
			w.err = fmt.Errorf("failed to create sheet %s: %w", sheet, err)
			return
		}
	}
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		w.err = err
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := w.f.SetCellStyle(sheet, "A1", last, w.header); err != nil {
		w.err = err
		return
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		r := row
		if err := w.f.SetSheetRow(sheet, cell, &r); err != nil {
			w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
			return
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = w.f.SetColWidth(sheet, "A", lastCol, 18)
}

// WriteCallsCSV 以展示列顺序输出通话报表 CSV
func WriteCallsCSV(out io.Writer, r calculator.CallsReport) error {
	t := r.Table()
	cw := csv.NewWriter(out)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write calls csv: %w", err)
	}
	return nil
}

package v3

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/exporter"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// ExportCallsReport 下载筛选后的通话报表
// GET /api/reports/calls/export
func (h *Handler) ExportCallsReport(c *gin.Context) {
	var f calculator.CallsFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, "invalid filter")
		return
	}
	r, err := h.calc.Calls(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	attachment(c, "calls-report.csv")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := exporter.WriteCallsCSV(c.Writer, *r); err != nil {
		_ = c.Error(err)
	}
}

// Export 下载包含全部报表的工作簿
// GET /api/export?mode=full_month&year=2025&month=1
func (h *Handler) Export(c *gin.Context) {
	rng, ok := h.window(c)
	if !ok {
		return
	}
	var calls calculator.CallsFilter
	if err := c.ShouldBindQuery(&calls); err != nil {
		badRequest(c, "invalid filter")
		return
	}
	// 通话筛选的 year/month 与期间参数同名，这里只保留分类与姓名
	calls.Year, calls.Month = "", ""

	f, err := h.exporter.Export(c.Request.Context(), exporter.ExportOptions{Window: rng, Calls: calls}, nil)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	defer f.Close()

	attachment(c, fmt.Sprintf("intake-report-%s.xlsx", rng.Start.Format("2006-01-02")))
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if _, err := f.WriteTo(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

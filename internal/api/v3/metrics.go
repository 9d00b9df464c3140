package v3

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/period"
)

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

// periodRequest 解析 mode/year/month/week/start/end 查询参数
func periodRequest(c *gin.Context) (period.Request, error) {
	var req period.Request
	mode, err := period.ParseMode(c.Query("mode"))
	if err != nil {
		return req, err
	}
	req.Mode = mode
	if req.Year, err = queryInt(c, "year"); err != nil {
		return req, err
	}
	month, err := queryInt(c, "month")
	if err != nil {
		return req, err
	}
	req.Month = time.Month(month)
	if req.Week, err = queryInt(c, "week"); err != nil {
		return req, err
	}
	if mode == period.Custom {
		start, ok := dates.Parse(c.Query("start"))
		if !ok {
			return req, fmt.Errorf("invalid start date %q", c.Query("start"))
		}
		end, ok := dates.Parse(c.Query("end"))
		if !ok {
			return req, fmt.Errorf("invalid end date %q", c.Query("end"))
		}
		req.Start, req.End = start, end
	}
	return req, nil
}

func (h *Handler) window(c *gin.Context) (dates.Range, bool) {
	req, err := periodRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return dates.Range{}, false
	}
	rng, err := period.Resolve(req, h.now())
	if err != nil {
		badRequest(c, err.Error())
		return dates.Range{}, false
	}
	return rng, true
}

// PeriodsResponse 期间解析结果
type PeriodsResponse struct {
	Range dates.Range   `json:"range"`
	Label string        `json:"label"`
	Weeks []period.Week `json:"weeks"`
	Month string        `json:"month"`
}

// GetPeriods 解析报表期间，并返回该月的自定义周
// GET /api/periods?mode=week_of_month&year=2025&month=1&week=2
func (h *Handler) GetPeriods(c *gin.Context) {
	req, err := periodRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	today := dates.Day(h.now())
	rng, err := period.Resolve(req, today)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	year, month := req.Year, req.Month
	if year == 0 {
		year = today.Year()
	}
	if month == 0 {
		month = today.Month()
	}
	success(c, PeriodsResponse{
		Range: rng,
		Label: rng.String(),
		Weeks: period.CustomWeeks(year, month),
		Month: period.MonthKey(dates.Date(year, month, 1)),
	})
}

// GetFunnel 转化漏斗
// GET /api/metrics/funnel
func (h *Handler) GetFunnel(c *gin.Context) {
	rng, ok := h.window(c)
	if !ok {
		return
	}
	f, err := h.calc.Funnel(c.Request.Context(), rng)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	success(c, gin.H{
		"funnel":     f,
		"indicators": calculator.IndicatorGroup{Name: "Conversion funnel", Indicators: f.Indicators()},
	})
}

// GetAttorneys 律师与业务领域明细
// GET /api/metrics/attorneys
func (h *Handler) GetAttorneys(c *gin.Context) {
	rng, ok := h.window(c)
	if !ok {
		return
	}
	r, err := h.calc.Attorneys(c.Request.Context(), rng)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	success(c, r)
}

// GetIntake 接案专员明细
// GET /api/metrics/intake
func (h *Handler) GetIntake(c *gin.Context) {
	rng, ok := h.window(c)
	if !ok {
		return
	}
	r, err := h.calc.Intake(c.Request.Context(), rng)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	success(c, r)
}

// GetCallsReport 通话报表
// GET /api/reports/calls?year=2025&month=01&category=Intake
func (h *Handler) GetCallsReport(c *gin.Context) {
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
	success(c, r)
}

// ListCallMonths 通话表中出现过的月份
// GET /api/reports/calls/months
func (h *Handler) ListCallMonths(c *gin.Context) {
	months, err := h.calc.AvailableMonths(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	success(c, months)
}

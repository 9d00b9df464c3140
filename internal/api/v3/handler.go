package v3

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/exporter"
	"github.com/PJI-Apps/Intake-Reports/internal/importer"
	"github.com/PJI-Apps/Intake-Reports/internal/parser"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/session"
	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

// SessionHeader 会话标识请求头
const SessionHeader = "X-Session-ID"

const sessionKey = "intake.session"

// Deps Handler 依赖
type Deps struct {
	Store       *store.Store
	Adapter     *store.Adapter
	Reconciler  *reconcile.Reconciler
	Calculator  *calculator.Calculator
	Coordinator *importer.Coordinator
	Sessions    *session.Manager
	Logger      *zap.Logger
	Now         func() time.Time
}

// Handler V3 API 处理器
type Handler struct {
	store      *store.Store
	adapter    *store.Adapter
	reconciler *reconcile.Reconciler
	calc       *calculator.Calculator
	exporter   *exporter.Exporter
	coord      *importer.Coordinator
	sessions   *session.Manager
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler 创建 V3 API 处理器
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sessions == nil {
		d.Sessions = session.NewManager(nil, d.Now)
	}
	return &Handler{
		store:      d.Store,
		adapter:    d.Adapter,
		reconciler: d.Reconciler,
		calc:       d.Calculator,
		exporter:   exporter.NewExporter(d.Calculator),
		coord:      d.Coordinator,
		sessions:   d.Sessions,
		logger:     d.Logger.Named("api"),
		now:        d.Now,
	}
}

// RegisterRoutes 注册 V3 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.Use(h.SessionMiddleware())

	// 系统状态
	router.GET("/status", h.GetStatus)

	// 上传
	router.POST("/upload", h.Upload)
	router.GET("/uploads", h.ListUploads)

	// 会话
	router.GET("/session", h.GetSession)
	router.POST("/session/allow-reupload", h.AllowReupload)
	router.POST("/session/batch", h.RotateBatch)

	// 表与批次
	router.GET("/tables/:key", h.GetTable)
	router.GET("/batches", h.ListBatches)
	router.DELETE("/batches/:id", h.DeleteBatch)

	// 维护
	router.POST("/maintenance/orphans", h.RepairOrphans)
	router.POST("/maintenance/wipe/:key", h.WipeTable)
	router.POST("/maintenance/wipe", h.WipeAll)
	router.POST("/maintenance/reset", h.MasterReset)
	router.POST("/maintenance/dedupe-leads", h.DedupeLeads)
	router.DELETE("/calls/months/:period", h.PurgeCallsMonth)

	// 期间与指标
	router.GET("/periods", h.GetPeriods)
	router.GET("/metrics/funnel", h.GetFunnel)
	router.GET("/metrics/attorneys", h.GetAttorneys)
	router.GET("/metrics/intake", h.GetIntake)

	// 通话报表
	router.GET("/reports/calls", h.GetCallsReport)
	router.GET("/reports/calls/months", h.ListCallMonths)
	router.GET("/reports/calls/export", h.ExportCallsReport)
	router.GET("/export", h.Export)
}

// Response 通用响应
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func errorResponse(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// StatusFor 错误到 HTTP 状态码
func StatusFor(err error) int {
	var se *parser.SchemaError
	switch {
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.Is(err, importer.ErrDuplicateUpload):
		return http.StatusConflict
	case errors.Is(err, importer.ErrInvalidRequest), errors.Is(err, store.ErrUnknownTable):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSheetNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error, data interface{}) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	errorResponse(c, status, err.Error(), data)
}

func badRequest(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, message, nil)
}

// SessionMiddleware 读取或签发 X-Session-ID，并回写到响应头
func (h *Handler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := h.sessions.Ensure(c.GetHeader(SessionHeader))
		c.Header(SessionHeader, sc.ID)
		c.Set(sessionKey, sc)
		c.Next()
	}
}

func (h *Handler) session(c *gin.Context) *session.Context {
	if v, ok := c.Get(sessionKey); ok {
		if sc, ok := v.(*session.Context); ok {
			return sc
		}
	}
	sc := h.sessions.Ensure(c.GetHeader(SessionHeader))
	c.Header(SessionHeader, sc.ID)
	return sc
}

// tableResults 多表维护操作的响应体
type tableResults struct {
	Removed int                     `json:"removed"`
	Updated int                     `json:"updated"`
	Failed  []string                `json:"failed,omitempty"`
	Results []reconcile.TableResult `json:"results"`
}

func respondResults(c *gin.Context, results []reconcile.TableResult) {
	removed, updated, failed := reconcile.Summary(results)
	body := tableResults{Removed: removed, Updated: updated, Results: results}
	for _, k := range failed {
		body.Failed = append(body.Failed, string(k))
	}
	if len(failed) > 0 && len(failed) == len(results) {
		errorResponse(c, http.StatusInternalServerError, "all tables failed", body)
		return
	}
	message := "success"
	if len(failed) > 0 {
		message = "completed with errors"
	}
	c.JSON(http.StatusOK, Response{Code: 0, Message: message, Data: body})
}

func respondResult(c *gin.Context, res reconcile.TableResult) {
	if !res.OK() {
		errorResponse(c, StatusFor(res.Err), res.Error, res)
		return
	}
	success(c, res)
}

package importer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/batch"
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/parser"
	"github.com/PJI-Apps/Intake-Reports/internal/period"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/roster"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
	"github.com/PJI-Apps/Intake-Reports/internal/session"
	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

var (
	// ErrDuplicateUpload 本会话已上传过同一文件且未勾选 replace
	ErrDuplicateUpload = errors.New("this file has already been uploaded in this session; enable replace to upload it again")
	// ErrInvalidRequest 上传参数不合法
	ErrInvalidRequest = errors.New("invalid upload request")
)

// UploadLogger 上传日志持久化
type UploadLogger interface {
	CreateUploadLog(ctx context.Context, l store.UploadLog) (string, error)
	FinishUploadLog(ctx context.Context, id, status string, importedRows int, errorMessage string) error
}

// Coordinator 上传协调器：读取 -> 归一化/区间过滤 -> 打批次标签 -> 合并
type Coordinator struct {
	reconciler *reconcile.Reconciler
	logs       UploadLogger
	roster     *roster.Roster
	logger     *zap.Logger
	now        func() time.Time
}

// Option 协调器可选项
type Option func(*Coordinator)

// WithUploadLogger 记录上传日志
func WithUploadLogger(l UploadLogger) Option {
	return func(c *Coordinator) { c.logs = l }
}

// WithRoster 替换内置名册
func WithRoster(rs *roster.Roster) Option {
	return func(c *Coordinator) { c.roster = rs }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator 创建上传协调器
func NewCoordinator(rec *reconcile.Reconciler, opts ...Option) *Coordinator {
	c := &Coordinator{
		reconciler: rec,
		roster:     roster.Default(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("importer")
	return c
}

// UploadRequest 一次上传
type UploadRequest struct {
	Session  *session.Context
	Kind     schema.Key
	Filename string
	Data     []byte
	// Period CALLS 上传的 YYYY-MM
	Period string
	// Range 转化类上传声明的日期区间
	Range   dates.Range
	Replace bool
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`    // start/info/table_done/done/error
	Message   string      `json:"message"` // 事件消息
	Data      interface{} `json:"data"`    // 附加数据
	Timestamp time.Time   `json:"timestamp"`

	Err error `json:"-"`
}

// uploadContext 单次上传的状态
type uploadContext struct {
	req       UploadRequest
	rng       dates.Range
	hashSet   session.HashSet
	logID     string
	startTime time.Time
	report    *parser.ImportReport
	progress  chan ProgressEvent
}

// Import 异步执行上传，返回进度通道；通道在 done 或 error 事件后关闭
func (c *Coordinator) Import(ctx context.Context, req UploadRequest) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		c.doImport(ctx, req, progressChan)
	}()

	return progressChan
}

// Run 同步执行上传
func (c *Coordinator) Run(ctx context.Context, req UploadRequest) (*parser.ImportReport, error) {
	var (
		report *parser.ImportReport
		err    error
	)
	for evt := range c.Import(ctx, req) {
		switch evt.Type {
		case "done":
			report, _ = evt.Data.(*parser.ImportReport)
		case "error":
			err = evt.Err
			report, _ = evt.Data.(*parser.ImportReport)
		}
	}
	if err == nil && report == nil {
		err = errors.New("upload finished without a report")
	}
	return report, err
}

// DetectKind 按表头识别上传类别
func DetectKind(filename string, data []byte) (schema.Key, error) {
	t, err := parser.ReadBytes(filename, data)
	if err != nil {
		return "", err
	}
	rec := parser.NewSheetRecognizer().Recognize(t.Headers)
	if rec.Kind == "" {
		return "", fmt.Errorf("%w: could not recognize %s from its headers", ErrInvalidRequest, filename)
	}
	return rec.Kind, nil
}

// FileHash 文件内容 MD5
func FileHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (c *Coordinator) doImport(ctx context.Context, req UploadRequest, progressChan chan ProgressEvent) {
	uc := &uploadContext{
		req:       req,
		startTime: c.now(),
		progress:  progressChan,
		report: &parser.ImportReport{
			Filename: filepath.Base(req.Filename),
			Kind:     string(req.Kind),
			Format:   parser.DetectFormat(req.Filename),
			FileHash: FileHash(req.Data),
			Tables:   []parser.ParseResult{},
		},
	}

	c.sendProgress(progressChan, ProgressEvent{
		Type:    "start",
		Message: fmt.Sprintf("Uploading %s", uc.report.Filename),
		Data: map[string]string{
			"filename": uc.report.Filename,
			"kind":     string(req.Kind),
		},
		Timestamp: c.now(),
	})

	if err := c.validate(uc); err != nil {
		c.fail(ctx, uc, err)
		return
	}

	if req.Session != nil && !req.Replace && req.Session.Seen(uc.hashSet, uc.report.FileHash) {
		c.fail(ctx, uc, ErrDuplicateUpload)
		return
	}

	if req.Session != nil {
		uc.report.BatchID = req.Session.BatchID()
	} else {
		uc.report.BatchID = batch.NewID()
	}
	c.openLog(ctx, uc)

	raw, err := parser.ReadBytes(req.Filename, req.Data)
	if err != nil {
		c.fail(ctx, uc, err)
		return
	}
	uc.report.TotalRows = raw.Len()
	c.sendProgress(progressChan, ProgressEvent{
		Type:    "info",
		Message: fmt.Sprintf("Read %d rows and %d columns", raw.Len(), len(raw.Headers)),
		Data: map[string]interface{}{
			"rows":    raw.Len(),
			"headers": raw.Headers,
		},
		Timestamp: c.now(),
	})

	incoming, err := c.prepare(uc, raw)
	if err != nil {
		c.fail(ctx, uc, err)
		return
	}

	spec := schema.MustLookup(req.Kind)
	result := parser.ParseResult{
		Table:       spec.Label,
		SourceRows:  raw.Len(),
		DroppedRows: raw.Len() - incoming.Len(),
	}
	if incoming.Empty() {
		result.Status = "skipped"
		result.Warnings = append(result.Warnings, "no rows left to import after filtering")
		c.finish(ctx, uc, result)
		return
	}

	tagged := batch.Tag(incoming, batch.Meta{
		ID:         uc.report.BatchID,
		UploadDate: c.now(),
		Range:      uc.rng,
		UploadedAt: c.now(),
	})
	res := c.reconciler.Merge(ctx, req.Kind, tagged, reconcile.MergeRequest{
		Replace: req.Replace,
		Period:  req.Period,
		Range:   uc.rng,
	})
	result.Warnings = append(result.Warnings, res.Warnings...)
	if !res.OK() {
		result.Status = "error"
		result.Errors = []string{res.Error}
		uc.report.Tables = append(uc.report.Tables, result)
		c.fail(ctx, uc, res.Err)
		return
	}

	result.Status = "imported"
	result.ImportedRows = res.Added
	if req.Session != nil {
		req.Session.Remember(uc.hashSet, uc.report.FileHash)
		req.Session.Logf("%s: imported %d rows into %s (batch %s)", uc.report.Filename, res.Added, spec.Label, uc.report.BatchID)
	}
	c.finish(ctx, uc, result)
}

// validate 校验类型与区间，计算批次区间
func (c *Coordinator) validate(uc *uploadContext) error {
	req := uc.req
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidRequest)
	}
	if _, ok := schema.Lookup(req.Kind); !ok {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidRequest, req.Kind)
	}
	if req.Kind == schema.Calls {
		rng, err := period.MonthRange(req.Period)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		uc.rng = rng
		uc.hashSet = session.CallHashes
		return nil
	}
	if !req.Range.Valid() {
		return fmt.Errorf("%w: a valid start and end date are required", ErrInvalidRequest)
	}
	uc.rng = req.Range
	uc.hashSet = session.ConversionHashes
	return nil
}

// prepare 通话表做归一化，转化类表按声明区间过滤
func (c *Coordinator) prepare(uc *uploadContext, raw *model.Table) (*model.Table, error) {
	if uc.req.Kind == schema.Calls {
		out, err := parser.NormalizeCalls(raw, uc.req.Period, c.roster)
		if err != nil {
			return nil, err
		}
		c.sendProgress(uc.progress, ProgressEvent{
			Type:      "info",
			Message:   fmt.Sprintf("Normalized calls for %s: %d staff rows", uc.req.Period, out.Len()),
			Data:      map[string]interface{}{"rows": out.Len(), "period": uc.req.Period},
			Timestamp: c.now(),
		})
		return out, nil
	}

	out, column := parser.FilterToRange(raw, uc.rng)
	msg := fmt.Sprintf("No date column narrowed the rows; keeping all %d", out.Len())
	if column != "" {
		msg = fmt.Sprintf("Kept %d of %d rows dated %s by %q", out.Len(), raw.Len(), uc.rng, column)
	}
	c.sendProgress(uc.progress, ProgressEvent{
		Type:      "info",
		Message:   msg,
		Data:      map[string]interface{}{"rows": out.Len(), "column": column},
		Timestamp: c.now(),
	})
	return out, nil
}

func (c *Coordinator) openLog(ctx context.Context, uc *uploadContext) {
	if c.logs == nil {
		return
	}
	l := store.UploadLog{
		Filename:   uc.report.Filename,
		FileHash:   uc.report.FileHash,
		FileSize:   int64(len(uc.req.Data)),
		Kind:       string(uc.req.Kind),
		BatchID:    uc.report.BatchID,
		RangeStart: dates.Format(uc.rng.Start),
		RangeEnd:   dates.Format(uc.rng.End),
		Replace:    uc.req.Replace,
	}
	if uc.req.Session != nil {
		l.SessionID = uc.req.Session.ID
	}
	id, err := c.logs.CreateUploadLog(ctx, l)
	if err != nil {
		c.logger.Warn("failed to create upload log", zap.Error(err))
		return
	}
	uc.logID = id
}

func (c *Coordinator) closeLog(ctx context.Context, uc *uploadContext, status string, msg string) {
	if c.logs == nil || uc.logID == "" {
		return
	}
	if err := c.logs.FinishUploadLog(ctx, uc.logID, status, uc.report.ImportedRows, msg); err != nil {
		c.logger.Warn("failed to finish upload log", zap.String("id", uc.logID), zap.Error(err))
	}
}

// finish 记录表结果并发送 done
func (c *Coordinator) finish(ctx context.Context, uc *uploadContext, result parser.ParseResult) {
	result.Duration = c.now().Sub(uc.startTime)
	uc.report.Tables = append(uc.report.Tables, result)
	uc.report.ImportedRows += result.ImportedRows
	uc.report.Duration = result.Duration

	c.closeLog(ctx, uc, result.Status, "")
	c.logger.Info("upload finished",
		zap.String("file", uc.report.Filename),
		zap.String("kind", uc.report.Kind),
		zap.String("batch", uc.report.BatchID),
		zap.String("status", result.Status),
		zap.Int("rows", result.ImportedRows))

	c.sendProgress(uc.progress, ProgressEvent{
		Type:      "done",
		Message:   fmt.Sprintf("Upload complete: %d rows imported", uc.report.ImportedRows),
		Data:      uc.report,
		Timestamp: c.now(),
	})
}

// fail 发送 error 事件；store 保持不变
func (c *Coordinator) fail(ctx context.Context, uc *uploadContext, err error) {
	uc.report.Duration = c.now().Sub(uc.startTime)
	c.closeLog(ctx, uc, "error", err.Error())
	c.logger.Warn("upload failed",
		zap.String("file", uc.report.Filename),
		zap.String("kind", uc.report.Kind),
		zap.Error(err))
	if uc.req.Session != nil {
		uc.req.Session.Logf("%s: %v", uc.report.Filename, err)
	}

	c.sendProgress(uc.progress, ProgressEvent{
		Type:      "error",
		Message:   err.Error(),
		Data:      uc.report,
		Timestamp: c.now(),
		Err:       err,
	})
}

// sendProgress 发送进度事件
func (c *Coordinator) sendProgress(ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	default:
		// 通道已满，丢弃事件
	}
}

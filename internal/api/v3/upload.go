package v3

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/importer"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// maxUploadBytes 单个上传文件上限
const maxUploadBytes = 32 << 20

func formBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.PostForm(key)))
	if err != nil {
		v, _ = strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	}
	return v
}

// uploadRequest 从 multipart 表单构造上传请求
func (h *Handler) uploadRequest(c *gin.Context) (importer.UploadRequest, error) {
	var req importer.UploadRequest

	fh, err := c.FormFile("file")
	if err != nil {
		return req, fmt.Errorf("%w: file is required", importer.ErrInvalidRequest)
	}
	if fh.Size > maxUploadBytes {
		return req, fmt.Errorf("%w: file exceeds %d MB", importer.ErrInvalidRequest, maxUploadBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return req, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return req, fmt.Errorf("failed to read upload: %w", err)
	}

	var kind schema.Key
	switch k := strings.TrimSpace(c.PostForm("kind")); strings.ToLower(k) {
	case "", "auto":
		if kind, err = importer.DetectKind(fh.Filename, data); err != nil {
			return req, err
		}
	default:
		if kind, err = schema.ParseKey(k); err != nil {
			return req, fmt.Errorf("%w: %v", importer.ErrInvalidRequest, err)
		}
	}

	req = importer.UploadRequest{
		Session:  h.session(c),
		Kind:     kind,
		Filename: fh.Filename,
		Data:     data,
		Period:   strings.TrimSpace(c.PostForm("period")),
		Replace:  formBool(c, "replace"),
	}
	if kind != schema.Calls {
		start, okStart := dates.Parse(c.PostForm("start"))
		end, okEnd := dates.Parse(c.PostForm("end"))
		if !okStart || !okEnd {
			return req, fmt.Errorf("%w: start and end dates are required", importer.ErrInvalidRequest)
		}
		req.Range = dates.NewRange(start, end)
	}
	return req, nil
}

// Upload 上传一个文件并合并到对应表
// POST /api/upload  (stream=true 时以 SSE 推送进度)
func (h *Handler) Upload(c *gin.Context) {
	req, err := h.uploadRequest(c)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	if !formBool(c, "stream") {
		report, err := h.coord.Run(c.Request.Context(), req)
		if err != nil {
			h.fail(c, err, report)
			return
		}
		success(c, report)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		errorResponse(c, http.StatusInternalServerError, "streaming is not supported", nil)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for event := range h.coord.Import(c.Request.Context(), req) {
		eventData, err := json.Marshal(event)
		if err != nil {
			h.logger.Warn("failed to encode progress event", zap.String("type", event.Type), zap.Error(err))
			continue
		}
		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// ListUploads 最近的上传日志
// GET /api/uploads?limit=50
func (h *Handler) ListUploads(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		badRequest(c, "limit must be a positive integer")
		return
	}
	logs, err := h.store.ListUploadLogs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	success(c, logs)
}

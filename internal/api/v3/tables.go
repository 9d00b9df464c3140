package v3

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PJI-Apps/Intake-Reports/internal/batch"
	"github.com/PJI-Apps/Intake-Reports/internal/period"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// GetTable 读取整表
// GET /api/tables/:key?format=records
func (h *Handler) GetTable(c *gin.Context) {
	key, err := schema.ParseKey(c.Param("key"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.adapter.Read(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	if c.Query("format") == "records" {
		success(c, gin.H{"key": key, "rows": t.Len(), "records": t.Records()})
		return
	}
	success(c, gin.H{"key": key, "rows": t.Len(), "table": t})
}

// BatchInfo 批次概要
type BatchInfo struct {
	ID     string             `json:"id"`
	Tables map[schema.Key]int `json:"tables"`
	Total  int                `json:"total"`
}

// ListBatches 列出所有批次及各表行数
// GET /api/batches
func (h *Handler) ListBatches(c *gin.Context) {
	all, err := h.reconciler.ListBatches(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	out := make([]BatchInfo, 0, len(all))
	for _, id := range reconcile.BatchIDs(all) {
		info := BatchInfo{ID: id, Tables: all[id]}
		for _, n := range all[id] {
			info.Total += n
		}
		out = append(out, info)
	}
	success(c, out)
}

// DeleteBatch 从所有表删除该批次
// DELETE /api/batches/:id
func (h *Handler) DeleteBatch(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if batch.IsOrphanID(id) {
		badRequest(c, "batch id is required")
		return
	}
	results := h.reconciler.DeleteBatch(c.Request.Context(), id)
	h.session(c).Logf("deleted batch %s", id)
	respondResults(c, results)
}

type repairRequest struct {
	BatchID string `json:"batchId"`
}

// RepairOrphans 给缺少批次号的行补批次号；未指定时生成新批次号
// POST /api/maintenance/orphans
func (h *Handler) RepairOrphans(c *gin.Context) {
	var req repairRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	id := strings.TrimSpace(req.BatchID)
	if id == "" {
		id = batch.NewID()
	}
	results := h.reconciler.RepairOrphans(c.Request.Context(), id)
	h.session(c).Logf("repaired orphan rows with batch %s", id)
	c.Header("X-Batch-ID", id)
	respondResults(c, results)
}

// WipeTable 清空一张表（保留表头）
// POST /api/maintenance/wipe/:key
func (h *Handler) WipeTable(c *gin.Context) {
	key, err := schema.ParseKey(c.Param("key"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res := h.reconciler.WipeTable(c.Request.Context(), key)
	h.session(c).Logf("wiped %s", key)
	respondResult(c, res)
}

// WipeAll 清空全部表
// POST /api/maintenance/wipe
func (h *Handler) WipeAll(c *gin.Context) {
	results := h.reconciler.WipeAll(c.Request.Context())
	h.session(c).Logf("wiped all tables")
	respondResults(c, results)
}

// MasterReset 重置为注册表表头
// POST /api/maintenance/reset
func (h *Handler) MasterReset(c *gin.Context) {
	results := h.reconciler.MasterReset(c.Request.Context())
	h.session(c).Logf("master reset")
	respondResults(c, results)
}

// DedupeLeads 线索表去重
// POST /api/maintenance/dedupe-leads
func (h *Handler) DedupeLeads(c *gin.Context) {
	respondResult(c, h.reconciler.DedupeLeads(c.Request.Context()))
}

// PurgeCallsMonth 删除某月的通话行
// DELETE /api/calls/months/:period
func (h *Handler) PurgeCallsMonth(c *gin.Context) {
	p := strings.TrimSpace(c.Param("period"))
	if _, _, err := period.ParseMonthKey(p); err != nil {
		badRequest(c, err.Error())
		return
	}
	res := h.reconciler.PurgeMonth(c.Request.Context(), p)
	h.session(c).Logf("purged calls for %s", p)
	respondResult(c, res)
}

// GetSession 当前会话
// GET /api/session
func (h *Handler) GetSession(c *gin.Context) {
	success(c, h.session(c).Info())
}

// AllowReupload 清空本会话的文件哈希
// POST /api/session/allow-reupload
func (h *Handler) AllowReupload(c *gin.Context) {
	sc := h.session(c)
	sc.AllowReupload()
	success(c, sc.Info())
}

// RotateBatch 为后续上传生成新的批次号
// POST /api/session/batch
func (h *Handler) RotateBatch(c *gin.Context) {
	sc := h.session(c)
	sc.RotateBatch()
	c.JSON(http.StatusOK, Response{Code: 0, Message: "new batch id issued", Data: sc.Info()})
}

package v3

import (
	"github.com/gin-gonic/gin"

	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// TableStatus 单表状态
type TableStatus struct {
	Key     schema.Key `json:"key"`
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Rows    int        `json:"rows"`
	Columns int        `json:"columns"`
	Batches int        `json:"batches"`
	Error   string     `json:"error,omitempty"`
}

// StatusResponse 系统状态响应
type StatusResponse struct {
	Healthy bool          `json:"healthy"`
	Version int64         `json:"version"`
	Session string        `json:"session"`
	BatchID string        `json:"batchId"`
	Tables  []TableStatus `json:"tables"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	sc := h.session(c)

	resp := StatusResponse{
		Healthy: h.store.Ping(ctx) == nil,
		Session: sc.ID,
		BatchID: sc.BatchID(),
	}

	batches := map[schema.Key]int{}
	if all, err := h.reconciler.ListBatches(ctx); err == nil {
		for _, perTable := range all {
			for key := range perTable {
				batches[key]++
			}
		}
	}

	for _, key := range schema.Keys() {
		spec := schema.MustLookup(key)
		st := TableStatus{Key: key, Name: spec.Name, Label: spec.Label, Batches: batches[key]}
		t, err := h.adapter.Read(ctx, key)
		if err != nil {
			st.Error = err.Error()
			resp.Healthy = false
		} else {
			st.Rows = t.Len()
			st.Columns = len(t.Headers)
		}
		resp.Tables = append(resp.Tables, st)
	}
	resp.Version = h.adapter.Version()

	success(c, resp)
}

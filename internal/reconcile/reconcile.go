package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/batch"
	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// TableStore 按逻辑 key 读写整表
type TableStore interface {
	Read(ctx context.Context, key schema.Key) (*model.Table, error)
	Write(ctx context.Context, key schema.Key, t *model.Table) error
}

// ReconciliationWarning 替换/删除没有匹配到任何行，或无法按策略执行
type ReconciliationWarning struct {
	Table  schema.Key `json:"table"`
	Op     string     `json:"op"`
	Reason string     `json:"reason"`
}

func (w *ReconciliationWarning) Error() string {
	return fmt.Sprintf("%s %s: %s", w.Table, w.Op, w.Reason)
}

// MalformedDateWarning 日期列有值但一个都无法解析
type MalformedDateWarning struct {
	Table  schema.Key `json:"table"`
	Column string     `json:"column"`
	Values int        `json:"values"`
}

func (w *MalformedDateWarning) Error() string {
	return fmt.Sprintf("%s: column %q has %d values but none could be parsed as dates", w.Table, w.Column, w.Values)
}

// TableResult 单表操作结果；一张表失败不影响其它表
type TableResult struct {
	Table    schema.Key `json:"table"`
	Added    int        `json:"added"`
	Removed  int        `json:"removed"`
	Updated  int        `json:"updated"`
	Total    int        `json:"total"`
	Warnings []string   `json:"warnings,omitempty"`
	Error    string     `json:"error,omitempty"`
	Err      error      `json:"-"`
}

// OK 是否成功
func (r TableResult) OK() bool {
	return r.Err == nil
}

func (r *TableResult) warn(w error) {
	r.Warnings = append(r.Warnings, w.Error())
}

func (r *TableResult) fail(err error) TableResult {
	r.Err = err
	r.Error = err.Error()
	return *r
}

// MergeRequest 一次合并的参数
type MergeRequest struct {
	Replace bool
	// Period CALLS 的 Month-Year
	Period string
	// Range 区间替换的日期范围
	Range dates.Range
}

// Reconciler 把新批次合并进已有表，并负责删除/清空等维护操作
type Reconciler struct {
	store  TableStore
	logger *zap.Logger
}

// New 创建 Reconciler
func New(store TableStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger.Named("reconcile")}
}

// Merge 按表的替换策略合并新行；未勾选 replace 时只追加
func (r *Reconciler) Merge(ctx context.Context, key schema.Key, incoming *model.Table, req MergeRequest) TableResult {
	res := TableResult{Table: key, Added: incoming.Len()}
	spec, ok := schema.Lookup(key)
	if !ok {
		return res.fail(fmt.Errorf("unknown table %q", key))
	}

	existing, err := r.store.Read(ctx, key)
	if err != nil {
		return res.fail(fmt.Errorf("failed to read %s: %w", spec.Label, err))
	}

	var merged *model.Table
	switch {
	case !req.Replace:
		merged = Append(existing, incoming)
	case spec.Policy == schema.PolicyPeriod:
		merged, res.Removed = ReplacePeriod(existing, incoming, req.Period)
	case spec.Policy == schema.PolicyRange:
		var malformed *MalformedDateWarning
		merged, res.Removed, malformed = ReplaceRange(existing, incoming, spec.DateColumn, req.Range)
		if malformed != nil {
			malformed.Table = key
			res.warn(malformed)
			r.logger.Warn("malformed dates in range column",
				zap.String("table", spec.Name), zap.String("column", malformed.Column), zap.Int("values", malformed.Values))
		}
	case spec.Policy == schema.PolicyCompositeKey:
		var w *ReconciliationWarning
		merged, res.Removed, w = ReplaceByKey(existing, incoming)
		if w != nil {
			w.Table = key
			res.warn(w)
			r.logger.Warn("composite key replace skipped", zap.String("table", spec.Name), zap.String("reason", w.Reason))
		}
	default:
		merged = Append(existing, incoming)
	}

	if req.Replace && res.Removed == 0 && !existing.Empty() && len(res.Warnings) == 0 {
		res.warn(&ReconciliationWarning{Table: key, Op: "replace", Reason: "no existing rows matched"})
	}

	if err := r.store.Write(ctx, key, merged); err != nil {
		return res.fail(fmt.Errorf("failed to write %s: %w", spec.Label, err))
	}
	res.Total = merged.Len()
	r.logger.Info("table merged",
		zap.String("table", spec.Name),
		zap.Bool("replace", req.Replace),
		zap.String("policy", spec.Policy.String()),
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Int("total", res.Total))
	return res
}

// DeleteBatch 从每张表删除该批次的行；不存在不算错误，重复删除返回 0
func (r *Reconciler) DeleteBatch(ctx context.Context, batchID string) []TableResult {
	batchID = strings.TrimSpace(batchID)
	results := r.eachTable(ctx, func(key schema.Key, t *model.Table, res *TableResult) (*model.Table, bool) {
		idx := t.Col(schema.ColBatchID)
		if idx < 0 || batchID == "" {
			return nil, false
		}
		kept, removed := t.Filter(func(_ int, row []string) bool {
			return strings.TrimSpace(cell(row, idx)) != batchID
		})
		res.Removed = removed
		return kept, removed > 0
	})
	removed, _, failed := Summary(results)
	r.logger.Info("batch deleted",
		zap.String("batch", batchID), zap.Int("removed", removed), zap.Int("failedTables", len(failed)))
	return results
}

// ListBatches 批次号 -> 表 -> 行数
func (r *Reconciler) ListBatches(ctx context.Context) (map[string]map[schema.Key]int, error) {
	out := map[string]map[schema.Key]int{}
	for _, key := range schema.Keys() {
		t, err := r.store.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		for id, n := range batch.Counts(t) {
			if out[id] == nil {
				out[id] = map[schema.Key]int{}
			}
			out[id][key] = n
		}
	}
	return out, nil
}

// BatchIDs 已排序的批次号
func BatchIDs(batches map[string]map[schema.Key]int) []string {
	ids := make([]string, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RepairOrphans 给所有表中缺少批次号的行补上 batchID，已有批次号的行不动
func (r *Reconciler) RepairOrphans(ctx context.Context, batchID string) []TableResult {
	return r.eachTable(ctx, func(key schema.Key, t *model.Table, res *TableResult) (*model.Table, bool) {
		if t.Empty() {
			return nil, false
		}
		out := t.Clone()
		idx := out.EnsureColumn(schema.ColBatchID)
		for i := range out.Rows {
			if batch.IsOrphanID(out.Cell(i, idx)) {
				out.Set(i, idx, batchID)
				res.Updated++
			}
		}
		return out, res.Updated > 0
	})
}

// WipeTable 清空数据、保留表头；从未有表头时写入注册表表头
func (r *Reconciler) WipeTable(ctx context.Context, key schema.Key) TableResult {
	res := TableResult{Table: key}
	spec, ok := schema.Lookup(key)
	if !ok {
		return res.fail(fmt.Errorf("unknown table %q", key))
	}
	t, err := r.store.Read(ctx, key)
	if err != nil {
		return res.fail(fmt.Errorf("failed to read %s: %w", spec.Label, err))
	}
	headers := t.Headers
	if len(headers) == 0 {
		headers = spec.EmptyHeaders()
	}
	if err := r.store.Write(ctx, key, model.NewTable(headers...)); err != nil {
		return res.fail(fmt.Errorf("failed to wipe %s: %w", spec.Label, err))
	}
	res.Removed = t.Len()
	r.logger.Info("table wiped", zap.String("table", spec.Name), zap.Int("removed", res.Removed))
	return res
}

// WipeAll 清空全部表
func (r *Reconciler) WipeAll(ctx context.Context) []TableResult {
	out := make([]TableResult, 0, len(schema.Keys()))
	for _, key := range schema.Keys() {
		out = append(out, r.WipeTable(ctx, key))
	}
	return out
}

// MasterReset 所有表重置为注册表表头
func (r *Reconciler) MasterReset(ctx context.Context) []TableResult {
	out := make([]TableResult, 0, len(schema.Keys()))
	for _, key := range schema.Keys() {
		spec := schema.MustLookup(key)
		res := TableResult{Table: key}
		if err := r.store.Write(ctx, key, model.NewTable(spec.EmptyHeaders()...)); err != nil {
			out = append(out, res.fail(fmt.Errorf("failed to reset %s: %w", spec.Label, err)))
			continue
		}
		out = append(out, res)
	}
	r.logger.Warn("master reset completed")
	return out
}

// DedupeLeads 按 (Email, Matter ID, Stage, IC 日期, DM 日期) 去重，保留最后一条
func (r *Reconciler) DedupeLeads(ctx context.Context) TableResult {
	res := TableResult{Table: schema.Leads}
	t, err := r.store.Read(ctx, schema.Leads)
	if err != nil {
		return res.fail(fmt.Errorf("failed to read leads: %w", err))
	}
	if t.Empty() {
		return res
	}
	out, removed, err := DedupeKeyed(t)
	if err != nil {
		return res.fail(err)
	}
	res.Removed = removed
	res.Total = out.Len()
	if removed == 0 {
		return res
	}
	if err := r.store.Write(ctx, schema.Leads, out); err != nil {
		return res.fail(fmt.Errorf("failed to write leads: %w", err))
	}
	r.logger.Info("leads deduplicated", zap.Int("removed", removed))
	return res
}

// PurgeMonth 删除 CALLS 中某个 Month-Year 的全部行
func (r *Reconciler) PurgeMonth(ctx context.Context, period string) TableResult {
	res := TableResult{Table: schema.Calls}
	t, err := r.store.Read(ctx, schema.Calls)
	if err != nil {
		return res.fail(fmt.Errorf("failed to read calls: %w", err))
	}
	idx := t.Col(schema.ColMonthYear)
	if idx < 0 {
		res.warn(&ReconciliationWarning{Table: schema.Calls, Op: "purge", Reason: "Month-Year column not found"})
		return res
	}
	kept, removed := t.Filter(func(_ int, row []string) bool {
		return strings.TrimSpace(cell(row, idx)) != period
	})
	res.Removed = removed
	res.Total = kept.Len()
	if removed == 0 {
		res.warn(&ReconciliationWarning{Table: schema.Calls, Op: "purge", Reason: "no rows for " + period})
		return res
	}
	if err := r.store.Write(ctx, schema.Calls, kept); err != nil {
		return res.fail(fmt.Errorf("failed to write calls: %w", err))
	}
	r.logger.Info("calls month purged", zap.String("period", period), zap.Int("removed", removed))
	return res
}

// eachTable 逐表读-改-写；fn 返回 false 表示无需写回
func (r *Reconciler) eachTable(ctx context.Context, fn func(key schema.Key, t *model.Table, res *TableResult) (*model.Table, bool)) []TableResult {
	out := make([]TableResult, 0, len(schema.Keys()))
	for _, key := range schema.Keys() {
		res := TableResult{Table: key}
		t, err := r.store.Read(ctx, key)
		if err != nil {
			out = append(out, res.fail(fmt.Errorf("failed to read %s: %w", key, err)))
			continue
		}
		updated, changed := fn(key, t, &res)
		if !changed {
			res.Total = t.Len()
			out = append(out, res)
			continue
		}
		if err := r.store.Write(ctx, key, updated); err != nil {
			res.Removed, res.Updated = 0, 0
			out = append(out, res.fail(fmt.Errorf("failed to write %s: %w", key, err)))
			continue
		}
		res.Total = updated.Len()
		out = append(out, res)
	}
	return out
}

// Summary 汇总多表结果中的删除/更新行数与失败表
func Summary(results []TableResult) (removed, updated int, failed []schema.Key) {
	for _, r := range results {
		removed += r.Removed
		updated += r.Updated
		if r.Err != nil {
			failed = append(failed, r.Table)
		}
	}
	return removed, updated, failed
}

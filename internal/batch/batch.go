package batch

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Generator 批次号生成器：batch_{unix}_{1000-9999}
type Generator struct {
	mu  sync.Mutex
	now func() time.Time
	rnd *rand.Rand
}

// NewGenerator 创建生成器；now/seed 可注入以便测试
func NewGenerator(now func() time.Time, seed int64) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now, rnd: rand.New(rand.NewSource(seed))}
}

var defaultGen = NewGenerator(time.Now, time.Now().UnixNano())

// NewID 使用默认生成器
func NewID() string {
	return defaultGen.Next()
}

// Next 生成下一个批次号
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("batch_%d_%d", g.now().Unix(), 1000+g.rnd.Intn(9000))
}

// Meta 批次元数据
type Meta struct {
	ID         string
	UploadDate time.Time
	Range      dates.Range
	UploadedAt time.Time
}

// Tag 返回带批次元数据列的新表，不修改入参
func Tag(t *model.Table, meta Meta) *model.Table {
	out := t.Clone()
	values := map[string]string{
		schema.ColBatchID:         meta.ID,
		schema.ColUploadDate:      dates.Format(meta.UploadDate),
		schema.ColBatchStart:      dates.Format(meta.Range.Start),
		schema.ColBatchEnd:        dates.Format(meta.Range.End),
		schema.ColUploadTimestamp: meta.UploadedAt.Format("2006-01-02T15:04:05.000000"),
	}
	for _, col := range schema.MetaColumns {
		idx := out.EnsureColumn(col)
		for i := range out.Rows {
			out.Set(i, idx, values[col])
		}
	}
	return out
}

// IsOrphanID 历史数据中缺失批次号的判定：空、nan、NaT 或被表格转成了时间串
func IsOrphanID(v string) bool {
	s := strings.TrimSpace(v)
	switch strings.ToLower(s) {
	case "", "nan", "nat", "none":
		return true
	}
	return strings.Contains(s, "0:00:00")
}

// Counts 统计表内每个批次号的行数（孤儿行不计）
func Counts(t *model.Table) map[string]int {
	out := map[string]int{}
	idx := t.Col(schema.ColBatchID)
	if idx < 0 {
		return out
	}
	for i := range t.Rows {
		id := strings.TrimSpace(t.Cell(i, idx))
		if IsOrphanID(id) {
			continue
		}
		out[id]++
	}
	return out
}

package calculator

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/roster"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Indicator 单个指标
type Indicator struct {
	ID    string  `json:"id"`    // 指标ID
	Name  string  `json:"name"`  // 指标名称
	Value float64 `json:"value"` // 指标值
	Unit  string  `json:"unit"`  // 单位 (如 %)
}

// IndicatorGroup 指标分组
type IndicatorGroup struct {
	Name       string      `json:"name"`       // 分组名称
	Indicators []Indicator `json:"indicators"` // 指标列表
}

// Reader 整表读取
type Reader interface {
	Read(ctx context.Context, key schema.Key) (*model.Table, error)
}

// Snapshot 一次计算所用的五张表
type Snapshot struct {
	Calls *model.Table
	Leads *model.Table
	Init  *model.Table
	Disc  *model.Table
	NCL   *model.Table
}

// Table 按 key 取表
func (s *Snapshot) Table(key schema.Key) *model.Table {
	switch key {
	case schema.Calls:
		return s.Calls
	case schema.Leads:
		return s.Leads
	case schema.Init:
		return s.Init
	case schema.Disc:
		return s.Disc
	case schema.NCL:
		return s.NCL
	}
	return nil
}

// Calculator 漏斗与各维度拆分的计算器
type Calculator struct {
	reader Reader
	roster *roster.Roster
	joins  Joins
	logger *zap.Logger
}

// NewCalculator 创建计算器
func NewCalculator(reader Reader, rs *roster.Roster, logger *zap.Logger) *Calculator {
	if rs == nil {
		rs = roster.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		reader: reader,
		roster: rs,
		joins:  NewJoins(rs),
		logger: logger.Named("calculator"),
	}
}

// Load 并发读取五张表
func (c *Calculator) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	targets := map[schema.Key]**model.Table{
		schema.Calls: &snap.Calls,
		schema.Leads: &snap.Leads,
		schema.Init:  &snap.Init,
		schema.Disc:  &snap.Disc,
		schema.NCL:   &snap.NCL,
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, dst := range targets {
		key, dst := key, dst
		g.Go(func() error {
			t, err := c.reader.Read(gctx, key)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", key, err)
			}
			*dst = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Funnel 读取数据并计算窗口内的转化漏斗
func (c *Calculator) Funnel(ctx context.Context, window dates.Range) (*Funnel, error) {
	snap, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	f := c.FunnelOf(snap, window)
	return &f, nil
}

// Attorneys 读取数据并计算律师/业务领域拆分
func (c *Calculator) Attorneys(ctx context.Context, window dates.Range) (*AttorneyReport, error) {
	snap, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	r := c.AttorneysOf(snap, window)
	return &r, nil
}

// Intake 读取数据并计算接待专员拆分
func (c *Calculator) Intake(ctx context.Context, window dates.Range) (*IntakeReport, error) {
	snap, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	r := c.IntakeOf(snap, window)
	return &r, nil
}

// Pct 百分比取整，.5 取偶；分母为 0 时为 0，分母为负时结果为负
func Pct(n, d int) int {
	if d == 0 {
		return 0
	}
	return int(math.RoundToEven(float64(n) / float64(d) * 100))
}

// pct2 保留两位小数的百分比
func pct2(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.RoundToEven(float64(n)/float64(d)*100*100) / 100
}

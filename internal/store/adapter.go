package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

// Backend 整表快照后端
type Backend interface {
	SheetExists(ctx context.Context, name string) (bool, error)
	CreateSheet(ctx context.Context, name string, headers []string) error
	ReadSheet(ctx context.Context, name string) (*model.Table, error)
	WriteSheet(ctx context.Context, name string, t *model.Table) (int64, error)
}

var (
	// DefaultResolveDelays 解析物理表名的重试间隔
	DefaultResolveDelays = []time.Duration{0, 600 * time.Millisecond, 1200 * time.Millisecond}
	// DefaultReadDelays 读写的重试间隔
	DefaultReadDelays = []time.Duration{0, time.Second, 2 * time.Second}
	// DefaultCacheTTL 读缓存有效期
	DefaultCacheTTL = 300 * time.Second
)

// Options 适配器参数，零值使用默认值
type Options struct {
	ResolveDelays []time.Duration
	ReadDelays    []time.Duration
	WriteDelays   []time.Duration
	CacheTTL      time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

type cacheEntry struct {
	table   *model.Table
	version int64
	loaded  time.Time
}

// Adapter 按逻辑 key 读写整表：解析物理表名、临时错误重试、带版本号的读缓存
type Adapter struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	mu      sync.RWMutex
	names   map[schema.Key]string
	cache   map[schema.Key]cacheEntry
	version int64
}

// NewAdapter 创建适配器
func NewAdapter(backend Backend, opts Options) *Adapter {
	if opts.ResolveDelays == nil {
		opts.ResolveDelays = DefaultResolveDelays
	}
	if opts.ReadDelays == nil {
		opts.ReadDelays = DefaultReadDelays
	}
	if opts.WriteDelays == nil {
		opts.WriteDelays = opts.ReadDelays
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		backend: backend,
		opts:    opts,
		logger:  logger.Named("store"),
		names:   map[schema.Key]string{},
		cache:   map[schema.Key]cacheEntry{},
	}
}

// Version 全局写版本号，每次成功写入后自增
func (a *Adapter) Version() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

// Resolve 依次尝试主表名与兼容名，都不存在则按注册表表头创建主表
func (a *Adapter) Resolve(ctx context.Context, key schema.Key) (string, error) {
	spec, ok := schema.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrUnknownTable)
	}

	a.mu.RLock()
	name, cached := a.names[key]
	a.mu.RUnlock()
	if cached {
		return name, nil
	}

	err := a.retry(ctx, spec.Name, "resolve", a.opts.ResolveDelays, func() error {
		for _, candidate := range spec.Names() {
			exists, err := a.backend.SheetExists(ctx, candidate)
			if err != nil {
				return err
			}
			if exists {
				name = candidate
				return nil
			}
		}
		if err := a.backend.CreateSheet(ctx, spec.Name, spec.EmptyHeaders()); err != nil {
			return err
		}
		a.logger.Info("created missing table", zap.String("table", spec.Name))
		name = spec.Name
		return nil
	})
	if err != nil {
		return "", err
	}

	if name != spec.Name {
		a.logger.Warn("using legacy table name", zap.String("key", string(key)), zap.String("table", name))
	}
	a.mu.Lock()
	a.names[key] = name
	a.mu.Unlock()
	return name, nil
}

// Read 读取整表（返回副本，调用方可随意修改）
func (a *Adapter) Read(ctx context.Context, key schema.Key) (*model.Table, error) {
	return a.read(ctx, key, true)
}

func (a *Adapter) read(ctx context.Context, key schema.Key, reresolve bool) (*model.Table, error) {
	name, err := a.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	entry, hit := a.cache[key]
	version := a.version
	a.mu.RUnlock()
	if hit && entry.version == version && a.opts.Now().Sub(entry.loaded) < a.opts.CacheTTL {
		return entry.table.Clone(), nil
	}

	var t *model.Table
	err = a.retry(ctx, name, "read", a.opts.ReadDelays, func() error {
		var rerr error
		t, rerr = a.backend.ReadSheet(ctx, name)
		return rerr
	})
	if errors.Is(err, ErrSheetNotFound) && reresolve {
		// 表在解析之后被外部删除：重新解析一次
		a.forget(key)
		return a.read(ctx, key, false)
	}
	if err != nil {
		return nil, err
	}
	t = Clean(t)

	a.mu.Lock()
	if a.version == version {
		a.cache[key] = cacheEntry{table: t, version: version, loaded: a.opts.Now()}
	}
	a.mu.Unlock()
	return t.Clone(), nil
}

// Write 整表覆盖写；成功后版本号自增，所有缓存随之失效
func (a *Adapter) Write(ctx context.Context, key schema.Key, t *model.Table) error {
	name, err := a.Resolve(ctx, key)
	if err != nil {
		return err
	}
	out := t.Clone()
	out.Normalize()

	var sheetVersion int64
	err = a.retry(ctx, name, "write", a.opts.WriteDelays, func() error {
		var werr error
		sheetVersion, werr = a.backend.WriteSheet(ctx, name, out)
		return werr
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.version++
	delete(a.cache, key)
	a.mu.Unlock()

	a.logger.Debug("table written",
		zap.String("table", name),
		zap.Int("rows", out.Len()),
		zap.Int64("sheetVersion", sheetVersion))
	return nil
}

// Invalidate 丢弃全部读缓存
func (a *Adapter) Invalidate() {
	a.mu.Lock()
	a.cache = map[schema.Key]cacheEntry{}
	a.version++
	a.mu.Unlock()
}

func (a *Adapter) forget(key schema.Key) {
	a.mu.Lock()
	delete(a.names, key)
	delete(a.cache, key)
	a.mu.Unlock()
}

// retry 按固定间隔重试临时错误；非临时错误立即返回
func (a *Adapter) retry(ctx context.Context, table, op string, delays []time.Duration, fn func() error) error {
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}
	var last error
	for i, d := range delays {
		if d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		last = fn()
		if last == nil {
			return nil
		}
		if !IsTransient(last) {
			return last
		}
		a.logger.Warn("transient store error",
			zap.String("table", table),
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(last))
	}
	return &TransientStoreError{Table: table, Op: op, Attempts: len(delays), Err: last}
}

// Clean 读取后清理：去掉 Unnamed 列、全空行，行宽对齐表头
func Clean(t *model.Table) *model.Table {
	var keep []int
	for i, h := range t.Headers {
		if strings.HasPrefix(strings.TrimSpace(h), "Unnamed") {
			continue
		}
		keep = append(keep, i)
	}

	headers := make([]string, len(keep))
	for j, i := range keep {
		headers[j] = t.Headers[i]
	}
	out := model.NewTable(headers...)
	for r := range t.Rows {
		row := make([]string, len(keep))
		blank := true
		for j, i := range keep {
			row[j] = t.Cell(r, i)
			if strings.TrimSpace(row[j]) != "" {
				blank = false
			}
		}
		if !blank {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

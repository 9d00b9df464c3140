package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PJI-Apps/Intake-Reports/internal/batch"
)

// HashSet 上传去重所用的哈希集合类别
type HashSet string

const (
	CallHashes       HashSet = "calls"
	ConversionHashes HashSet = "conversion"
)

// maxLogEntries 单个会话保留的活动日志条数
const maxLogEntries = 200

// LogEntry 会话活动日志
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Context 会话上下文：当前批次号、已上传文件哈希、活动日志
type Context struct {
	ID        string
	CreatedAt time.Time

	gen *batch.Generator
	now func() time.Time

	mu       sync.RWMutex
	batchID  string
	hashes   map[HashSet]map[string]struct{}
	log      []LogEntry
	lastSeen time.Time
}

func newContext(id string, gen *batch.Generator, now func() time.Time) *Context {
	t := now()
	return &Context{
		ID:        id,
		CreatedAt: t,
		gen:       gen,
		now:       now,
		batchID:   gen.Next(),
		hashes: map[HashSet]map[string]struct{}{
			CallHashes:       {},
			ConversionHashes: {},
		},
		lastSeen: t,
	}
}

// BatchID 当前批次号
func (c *Context) BatchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batchID
}

// RotateBatch 生成新的批次号
func (c *Context) RotateBatch() string {
	id := c.gen.Next()
	c.mu.Lock()
	c.batchID = id
	c.mu.Unlock()
	c.Logf("new batch id %s", id)
	return id
}

// Seen 文件哈希是否已在本会话上传过
func (c *Context) Seen(set HashSet, hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.hashes[set][hash]
	return ok
}

// Remember 记录已成功写入的文件哈希
func (c *Context) Remember(set HashSet, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[set] == nil {
		c.hashes[set] = map[string]struct{}{}
	}
	c.hashes[set][hash] = struct{}{}
}

// AllowReupload 清空全部哈希集合
func (c *Context) AllowReupload() {
	c.mu.Lock()
	for k := range c.hashes {
		c.hashes[k] = map[string]struct{}{}
	}
	c.mu.Unlock()
	c.Logf("re-upload enabled")
}

// Logf 追加活动日志
func (c *Context) Logf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, LogEntry{Time: c.now(), Message: fmt.Sprintf(format, args...)})
	if len(c.log) > maxLogEntries {
		c.log = c.log[len(c.log)-maxLogEntries:]
	}
}

// Log 活动日志副本
func (c *Context) Log() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogEntry, len(c.log))
	copy(out, c.log)
	return out
}

func (c *Context) touch() {
	c.mu.Lock()
	c.lastSeen = c.now()
	c.mu.Unlock()
}

func (c *Context) idleSince() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Info 会话概要
type Info struct {
	ID        string     `json:"id"`
	BatchID   string     `json:"batchId"`
	CreatedAt time.Time  `json:"createdAt"`
	Log       []LogEntry `json:"log"`
}

// Info 会话概要
func (c *Context) Info() Info {
	return Info{ID: c.ID, BatchID: c.BatchID(), CreatedAt: c.CreatedAt, Log: c.Log()}
}

// Manager 内存会话表
type Manager struct {
	gen *batch.Generator
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Context
}

// NewManager 创建会话管理器；gen 为空时使用随机种子的生成器
func NewManager(gen *batch.Generator, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if gen == nil {
		gen = batch.NewGenerator(now, now().UnixNano())
	}
	return &Manager{gen: gen, now: now, sessions: map[string]*Context{}}
}

// Get 按 id 查找会话
func (m *Manager) Get(id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	return c, ok
}

// Ensure 返回已有会话；id 为空或不是合法 uuid 时签发新的会话
func (m *Manager) Ensure(id string) *Context {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	if !ok {
		c = newContext(id, m.gen, m.now)
		m.sessions[id] = c
	}
	c.touch()
	return c
}

// Len 会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire 清理空闲超过 idle 的会话，返回清理数量
func (m *Manager) Expire(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.sessions {
		if c.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

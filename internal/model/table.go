package model

import "strings"

// Table 整表快照：一行表头 + 字符串单元格
// 所有行在写入前都会被补齐到表头宽度
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// NewTable 创建只有表头的空表
func NewTable(headers ...string) *Table {
	h := make([]string, len(headers))
	copy(h, headers)
	return &Table{Headers: h, Rows: [][]string{}}
}

// Len 行数
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty 没有数据行
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Clone 深拷贝
func (t *Table) Clone() *Table {
	if t == nil {
		return NewTable()
	}
	out := NewTable(t.Headers...)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]string, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// Col 精确匹配列名，未找到返回 -1
func (t *Table) Col(name string) int {
	if t == nil {
		return -1
	}
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// ColFold 按候选名顺序做大小写不敏感匹配（去首尾空格），返回第一个命中的列
func (t *Table) ColFold(candidates ...string) int {
	if t == nil {
		return -1
	}
	for _, cand := range candidates {
		k := strings.ToLower(strings.TrimSpace(cand))
		for i, h := range t.Headers {
			if strings.ToLower(strings.TrimSpace(h)) == k {
				return i
			}
		}
	}
	return -1
}

// Has 是否存在列
func (t *Table) Has(name string) bool {
	return t.Col(name) >= 0
}

// Cell 安全取值，越界返回空串
func (t *Table) Cell(row, col int) string {
	if t == nil || row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Value 按列名取值
func (t *Table) Value(row int, name string) string {
	return t.Cell(row, t.Col(name))
}

// Set 写入单元格，必要时补齐行宽
func (t *Table) Set(row, col int, v string) {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return
	}
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][col] = v
}

// EnsureColumn 确保列存在，返回列索引
func (t *Table) EnsureColumn(name string) int {
	if idx := t.Col(name); idx >= 0 {
		return idx
	}
	t.Headers = append(t.Headers, name)
	idx := len(t.Headers) - 1
	for i := range t.Rows {
		for len(t.Rows[i]) <= idx {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	return idx
}

// Column 取整列
func (t *Table) Column(name string) []string {
	idx := t.Col(name)
	out := make([]string, t.Len())
	if idx < 0 {
		return out
	}
	for i := range t.Rows {
		out[i] = t.Cell(i, idx)
	}
	return out
}

// AppendRow 追加一行（按表头宽度补齐/截断）
func (t *Table) AppendRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Filter 返回保留行组成的新表及被移除的行数，原表不变
func (t *Table) Filter(keep func(i int, row []string) bool) (*Table, int) {
	out := NewTable(t.Headers...)
	removed := 0
	for i, row := range t.Rows {
		if keep(i, row) {
			r := make([]string, len(row))
			copy(r, row)
			out.Rows = append(out.Rows, r)
		} else {
			removed++
		}
	}
	return out, removed
}

// Concat 按列名合并两张表：保留 t 的列顺序，新列追加在后，缺失单元格为空串
func (t *Table) Concat(other *Table) *Table {
	out := t.Clone()
	if other == nil {
		return out
	}
	for _, h := range other.Headers {
		out.EnsureColumn(h)
	}
	mapping := make([]int, len(other.Headers))
	for i, h := range other.Headers {
		mapping[i] = out.Col(h)
	}
	for _, src := range other.Rows {
		row := make([]string, len(out.Headers))
		for i, v := range src {
			if i < len(mapping) && mapping[i] >= 0 {
				row[mapping[i]] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Normalize 补齐或截断所有行到表头宽度
func (t *Table) Normalize() {
	w := len(t.Headers)
	for i, row := range t.Rows {
		switch {
		case len(row) < w:
			padded := make([]string, w)
			copy(padded, row)
			t.Rows[i] = padded
		case len(row) > w:
			t.Rows[i] = row[:w]
		}
	}
}

// Records 转为 header->value 的记录列表（用于 JSON 输出）
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, t.Len())
	for i := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			rec[h] = t.Cell(i, j)
		}
		out = append(out, rec)
	}
	return out
}

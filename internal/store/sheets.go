package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
)

// SheetInfo 物理表元信息
type SheetInfo struct {
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SheetExists 物理表是否存在
func (s *Store) SheetExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sheets WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check sheet %s: %w", name, err)
	}
	return n > 0, nil
}

// CreateSheet 创建只有表头的物理表，已存在时不做任何修改
func (s *Store) CreateSheet(ctx context.Context, name string, headers []string) error {
	b, err := json.Marshal(nonNil(headers))
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sheets (name, headers, version) VALUES (?, ?, 0)
		ON CONFLICT(name) DO NOTHING
	`, name, string(b))
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	return nil
}

// ReadSheet 读取整表快照
func (s *Store) ReadSheet(ctx context.Context, name string) (*model.Table, error) {
	var headersJSON string
	err := s.db.QueryRowContext(ctx, `SELECT headers FROM sheets WHERE name = ?`, name).Scan(&headersJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrSheetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}

	var headers []string
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers of %s: %w", name, err)
	}
	t := model.NewTable(headers...)

	rows, err := s.db.QueryContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY idx`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cellsJSON string
		if err := rows.Scan(&cellsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
			return nil, fmt.Errorf("failed to decode row of %s: %w", name, err)
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows of %s: %w", name, err)
	}
	return t, nil
}

// WriteSheet 整表覆盖写（先清空再写入），在一个事务内完成，返回新版本号
func (s *Store) WriteSheet(ctx context.Context, name string, t *model.Table) (int64, error) {
	headersJSON, err := json.Marshal(nonNil(t.Headers))
	if err != nil {
		return 0, fmt.Errorf("failed to encode headers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sheets (name, headers, version) VALUES (?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			headers = excluded.headers,
			version = sheets.version + 1,
			updated_at = CURRENT_TIMESTAMP
	`, name, string(headersJSON)); err != nil {
		return 0, fmt.Errorf("failed to upsert sheet %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?`, name); err != nil {
		return 0, fmt.Errorf("failed to clear sheet %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (sheet, idx, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	width := len(t.Headers)
	for i, row := range t.Rows {
		cells := make([]string, width)
		copy(cells, row)
		b, err := json.Marshal(cells)
		if err != nil {
			return 0, fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, name, i, string(b)); err != nil {
			return 0, fmt.Errorf("failed to insert row %d of %s: %w", i, name, err)
		}
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM sheets WHERE name = ?`, name).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sheet %s: %w", name, err)
	}
	return version, nil
}

// ListSheets 所有物理表的元信息
func (s *Store) ListSheets(ctx context.Context) ([]SheetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.version, s.headers, s.updated_at,
			(SELECT COUNT(1) FROM sheet_rows r WHERE r.sheet = s.name)
		FROM sheets s ORDER BY s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	defer rows.Close()

	var out []SheetInfo
	for rows.Next() {
		var (
			info        SheetInfo
			headersJSON string
			updated     sql.NullTime
		)
		if err := rows.Scan(&info.Name, &info.Version, &headersJSON, &updated, &info.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		var headers []string
		_ = json.Unmarshal([]byte(headersJSON), &headers)
		info.Columns = len(headers)
		if updated.Valid {
			info.UpdatedAt = updated.Time
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UploadLog 一次上传的记录
type UploadLog struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Filename     string     `json:"filename"`
	FileHash     string     `json:"fileHash"`
	FileSize     int64      `json:"fileSize"`
	Kind         string     `json:"kind"`
	BatchID      string     `json:"batchId"`
	RangeStart   string     `json:"rangeStart"`
	RangeEnd     string     `json:"rangeEnd"`
	Replace      bool       `json:"replace"`
	Status       string     `json:"status"`
	ImportedRows int        `json:"importedRows"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// CreateUploadLog 创建上传日志（status=processing），返回日志 id
func (s *Store) CreateUploadLog(ctx context.Context, l UploadLog) (string, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_logs (id, session_id, filename, file_hash, file_size, kind,
			batch_id, range_start, range_end, replace_flag, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'processing')
	`, l.ID, l.SessionID, l.Filename, l.FileHash, l.FileSize, l.Kind,
		l.BatchID, l.RangeStart, l.RangeEnd, l.Replace)
	if err != nil {
		return "", fmt.Errorf("failed to create upload log: %w", err)
	}
	return l.ID, nil
}

// FinishUploadLog 完成上传日志
func (s *Store) FinishUploadLog(ctx context.Context, id, status string, importedRows int, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_logs SET
			status = ?,
			imported_rows = ?,
			error_message = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, importedRows, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to update upload log: %w", err)
	}
	return nil
}

// ListUploadLogs 最近的上传日志，limit<=0 时默认 50
func (s *Store) ListUploadLogs(ctx context.Context, limit int) ([]UploadLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, filename, file_hash, file_size, kind, batch_id,
			range_start, range_end, replace_flag, status, imported_rows, error_message,
			created_at, completed_at
		FROM upload_logs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	defer rows.Close()

	var out []UploadLog
	for rows.Next() {
		var (
			l         UploadLog
			created   sql.NullTime
			completed sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Filename, &l.FileHash, &l.FileSize, &l.Kind,
			&l.BatchID, &l.RangeStart, &l.RangeEnd, &l.Replace, &l.Status, &l.ImportedRows,
			&l.ErrorMessage, &created, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan upload log: %w", err)
		}
		if created.Valid {
			l.CreatedAt = created.Time
		}
		if completed.Valid {
			t := completed.Time
			l.CompletedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUnknownTable 逻辑表 key 不在注册表中
	ErrUnknownTable = errors.New("unknown table")
	// ErrSheetNotFound 物理表不存在
	ErrSheetNotFound = errors.New("sheet not found")
)

// TransientStoreError 重试耗尽后仍失败的临时性存储错误
type TransientStoreError struct {
	Table    string
	Op       string
	Attempts int
	Err      error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s %s failed after %d attempts: %v", e.Op, e.Table, e.Attempts, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// IsTransient SQLite busy/locked 或已包装的临时错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientStoreError
	if errors.As(err, &te) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

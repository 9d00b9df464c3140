package parser

import (
	"fmt"
	"strings"
	"time"
)

// FileFormat 上传文件格式
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatXLSX    FileFormat = "xlsx"
	FormatXLS     FileFormat = "xls"
	FormatUnknown FileFormat = "unknown"
)

// ParseResult 单张表的处理结果
type ParseResult struct {
	Table        string        `json:"table"`
	Status       string        `json:"status"` // imported/skipped/error
	SourceRows   int           `json:"sourceRows"`
	ImportedRows int           `json:"importedRows"`
	DroppedRows  int           `json:"droppedRows"`
	Errors       []string      `json:"errors,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ImportReport 一次上传的汇总报告
type ImportReport struct {
	Filename     string        `json:"filename"`
	Kind         string        `json:"kind"`
	BatchID      string        `json:"batchId"`
	FileHash     string        `json:"fileHash"`
	Format       FileFormat    `json:"format"`
	TotalRows    int           `json:"totalRows"`
	ImportedRows int           `json:"importedRows"`
	Duration     time.Duration `json:"duration"`
	Tables       []ParseResult `json:"tables"`
}

// SchemaError 表头归一化后仍缺少必需列；不可重试，上传中止
type SchemaError struct {
	Table   string   `json:"table"`
	Missing []string `json:"missing"`
	Seen    []string `json:"seen"`
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s file is missing columns after normalization: %s (headers detected: %s)",
		e.Table, strings.Join(e.Missing, ", "), strings.Join(e.Seen, ", "))
}

package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
)

// maxXLSRows 旧版 xls 单表读取上限
const maxXLSRows = 100000

// DetectFormat 按扩展名判断文件格式
func DetectFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	default:
		return FormatUnknown
	}
}

// ReadTable 读取上传文件的第一个工作表，首行为表头
func ReadTable(filename string, r io.Reader) (*model.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return ReadBytes(filename, data)
}

// ReadBytes 同 ReadTable，输入为内存中的文件内容
func ReadBytes(filename string, data []byte) (*model.Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch DetectFormat(filename) {
	case FormatCSV:
		rows, err = readCSV(data)
	case FormatXLS:
		rows, err = readXLS(data)
	case FormatXLSX:
		rows, err = readXLSX(data)
	default:
		// 未知扩展名：先按 Excel 尝试，失败再按 CSV
		rows, err = readXLSX(data)
		if err != nil {
			rows, err = readCSV(data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return rowsToTable(rows)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("no worksheet found")
	}
	return f.GetRows(sheet)
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("no worksheet found")
	}
	return wb.ReadAllCells(maxXLSRows), nil
}

// rowsToTable 首行作表头：去首尾空格，空表头记为 "Unnamed: i"，重名追加 .1/.2
// 数据行补齐到表头宽度，全空行丢弃
func rowsToTable(rows [][]string) (*model.Table, error) {
	if len(rows) == 0 {
		return nil, errors.New("worksheet is empty")
	}
	headers := make([]string, len(rows[0]))
	seen := map[string]int{}
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n+1)
		} else {
			seen[h] = 0
		}
		headers[i] = h
	}

	t := model.NewTable(headers...)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		t.AppendRow(row...)
	}
	return t, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
)

func TestReadTable_CSV(t *testing.T) {
	t.Parallel()

	data := "\xef\xbb\xbf Name ,Total Calls,,Total Calls\nEarl,3,x,4\n,,,\nChloe,\"1,200\"\n"
	tb, err := ReadTable("calls.CSV", strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}

	wantHeaders := []string{"Name", "Total Calls", "Unnamed: 2", "Total Calls.1"}
	if diff := cmp.Diff(wantHeaders, tb.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	wantRows := [][]string{
		{"Earl", "3", "x", "4"},
		{"Chloe", "1,200", "", ""},
	}
	if diff := cmp.Diff(wantRows, tb.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_XLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]interface{}{"First Name", "Stage", "Initial Consultation With Pji Law"})
	_ = f.SetSheetRow(sheet, "A2", &[]interface{}{"Ann", "New Lead", "01/05/2025"})
	_ = f.SetSheetRow(sheet, "A3", &[]interface{}{"Bob", "Retained", "02/05/2025"})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	tb, err := ReadTable("leads.xlsx", &buf)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if tb.Len() != 2 {
		t.Fatalf("rows want=2 got=%d", tb.Len())
	}
	if got := tb.Value(1, "Stage"); got != "Retained" {
		t.Fatalf("Stage want=Retained got=%q", got)
	}
}

func TestReadTable_Empty(t *testing.T) {
	t.Parallel()

	if _, err := ReadTable("empty.csv", strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]FileFormat{
		"a.csv": FormatCSV, "b.XLSX": FormatXLSX, "c.xls": FormatXLS, "d.pdf": FormatUnknown,
	}
	for name, want := range cases {
		if got := DetectFormat(name); got != want {
			t.Fatalf("DetectFormat(%q) want=%s got=%s", name, want, got)
		}
	}
}

func TestFilterToRange(t *testing.T) {
	t.Parallel()

	tb := model.NewTable("Name", "Created Date", "Initial Consultation With Pji Law")
	tb.AppendRow("a", "garbage", "01/03/2025 10:00 AM")
	tb.AppendRow("b", "garbage", "02/03/2025")
	tb.AppendRow("c", "", "January 20, 2025 at 3:00pm EST")

	jan := dates.NewRange(dates.Date(2025, 1, 1), dates.Date(2025, 1, 31))
	out, col := FilterToRange(tb, jan)
	if col != "Initial Consultation With Pji Law" {
		t.Fatalf("column want=IC got=%q", col)
	}
	if out.Len() != 2 || out.Value(0, "Name") != "a" || out.Value(1, "Name") != "c" {
		t.Fatalf("unexpected rows: %v", out.Rows)
	}

	// 筛不出任何行时保留全部
	mar := dates.NewRange(dates.Date(2025, 3, 1), dates.Date(2025, 3, 31))
	out, col = FilterToRange(tb, mar)
	if col != "" || out.Len() != 3 {
		t.Fatalf("want all rows kept, got col=%q rows=%d", col, out.Len())
	}

	noDates := model.NewTable("Name")
	noDates.AppendRow("x")
	out, _ = FilterToRange(noDates, jan)
	if out.Len() != 1 {
		t.Fatalf("table without date columns should pass through")
	}
}

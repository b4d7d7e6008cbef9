package pipeline

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseXLSXWithHeaders(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Désignation", "Qté", "Unité", "Référence"},
		{"Vanne a boisseau DN50", 4, "pcs", "VB-DN50"},
		{"Joint torique EPDM", 20, "pcs", "JT-EPDM-50"},
	})
	items, err := parseXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 4 {
		t.Fatalf("qty=%g", items[0].Qty)
	}
	if items[0].RefCode == nil || *items[0].RefCode != "VB-DN50" {
		t.Fatalf("refCode=%v", items[0].RefCode)
	}
	if items[1].Qty != 20 {
		t.Fatalf("qty=%g", items[1].Qty)
	}
}

func TestParseXLSXWithoutHeaders(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Contacteur LC1D18", 3, "pcs"},
		{"Disjoncteur C60N", 6, "pcs"},
	})
	items, err := parseXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 3 || items[1].Qty != 6 {
		t.Fatalf("qty=%g,%g", items[0].Qty, items[1].Qty)
	}
}

func TestParseXLSXMissingQtyDefaultsToOne(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Désignation", "Qté"},
		{"Presse-etoupe laiton", ""},
	})
	items, err := parseXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 1 || !items[0].IsEstimated {
		t.Fatalf("qty=%g estimated=%t", items[0].Qty, items[0].IsEstimated)
	}
}

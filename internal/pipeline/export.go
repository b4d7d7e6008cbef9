package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"rfqdesk/internal"
)

// ExportRequestToXLSX renders one price request as the spreadsheet the
// purchasing team works from.
func ExportRequestToXLSX(request internal.PriceRequest, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"line_no", "description", "qty", "unit", "ref_code", "brand",
		"notes", "estimated", "needs_review",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	meta := [][2]any{
		{"internal_id", request.InternalID},
		{"external_ref", derefString(request.ExternalRef)},
		{"brand", derefString(request.Brand)},
		{"extraction_method", string(request.Method)},
	}
	metaSheet := "Meta"
	idx, err := f.NewSheet(metaSheet)
	if err == nil {
		_ = idx
		for i, kv := range meta {
			keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
			valCell, _ := excelize.CoordinatesToCellName(2, i+1)
			_ = f.SetCellValue(metaSheet, keyCell, kv[0])
			_ = f.SetCellValue(metaSheet, valCell, kv[1])
		}
	}

	for i, item := range request.Items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, i+1)
		set(2, item.Description)
		set(3, item.Qty)
		set(4, derefString(item.Unit))
		set(5, derefString(item.RefCode))
		set(6, derefString(item.Brand))
		set(7, derefString(item.Notes))
		set(8, item.IsEstimated)
		set(9, item.NeedsManualReview)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

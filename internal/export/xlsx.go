package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"dbchat-backend/internal/resultset"
)

// SheetName is the worksheet holding exported results.
const SheetName = "Query Result"

// WriteXLSX writes t as a single-sheet workbook. Cells of numeric columns are
// stored as numbers so spreadsheets can aggregate them.
func WriteXLSX(w io.Writer, t *resultset.Table) error {
	if t == nil {
		return ErrNoTable
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, name := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, name); err != nil {
			return err
		}
		f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	cols := resultset.Infer(t)
	for r, row := range t.Rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var v interface{} = value
			if cols[c].Numeric() && !math.IsNaN(cols[c].Numbers[r]) {
				v = cols[c].Numbers[r]
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return err
			}
		}
	}

	if len(t.Header) > 0 {
		f.SetPanes(SheetName, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

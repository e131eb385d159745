package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes tabular ledger data as a styled xlsx workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName     string `json:"sheet_name"`
	IncludeHeader bool   `json:"include_header"`
	FreezeHeader  bool   `json:"freeze_header"`
	AutoFilter    bool   `json:"auto_filter"`
	NumberFormat  string `json:"number_format"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:     "Transactions",
		IncludeHeader: true,
		FreezeHeader:  true,
		AutoFilter:    true,
		NumberFormat:  "#,##0.00",
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", options.SheetName)
	return &ExcelExporter{file: file, options: options}
}

// Export writes header and rows into the sheet
func (e *ExcelExporter) Export(columns []string, rows []map[string]interface{}) error {
	sheet := e.options.SheetName

	startRow := 1
	if e.options.IncludeHeader {
		headerStyle, err := e.file.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
			Alignment: &excelize.Alignment{
				Horizontal: "center",
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}

		for i, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			e.file.SetCellValue(sheet, cell, col)
			e.file.SetCellStyle(sheet, cell, cell, headerStyle)
		}
		startRow = 2

		if e.options.FreezeHeader {
			e.file.SetPanes(sheet, &excelize.Panes{
				Freeze:      true,
				YSplit:      1,
				TopLeftCell: "A2",
				ActivePane:  "bottomLeft",
			})
		}
	}

	for rowIdx, row := range rows {
		for colIdx, colName := range columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, startRow+rowIdx)
			if err := e.setCellValue(sheet, cell, row[colName]); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if e.options.AutoFilter && e.options.IncludeHeader && len(rows) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(columns), 1)
		e.file.AutoFilter(sheet, "A1:"+lastCol, nil)
	}

	return nil
}

func (e *ExcelExporter) setCellValue(sheet, cell string, val interface{}) error {
	if val == nil {
		return e.file.SetCellValue(sheet, cell, "")
	}

	switch v := val.(type) {
	case time.Time:
		if v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.file.SetCellValue(sheet, cell, v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.file.SetCellValue(sheet, cell, *v)
	case *float64:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.setNumberCell(sheet, cell, *v)
	case float64:
		return e.setNumberCell(sheet, cell, v)
	default:
		return e.file.SetCellValue(sheet, cell, v)
	}
}

func (e *ExcelExporter) setNumberCell(sheet, cell string, v float64) error {
	if err := e.file.SetCellValue(sheet, cell, v); err != nil {
		return err
	}
	if e.options.NumberFormat != "" {
		style, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.NumberFormat})
		if err == nil {
			e.file.SetCellStyle(sheet, cell, cell, style)
		}
	}
	return nil
}

// WriteTo writes the workbook to a writer
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close releases the workbook
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

// Package render produces accountant-facing export documents.
package render

import (
	"context"
	"fmt"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/stats"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportSheet = "Receipts"

var exportHeaders = []string{
	"Date", "Vendor", "Business ID", "Invoice #", "Category",
	"Pre-VAT (₪)", "VAT (₪)", "Total (₪)", "Status", "Notes",
}

// ExcelRenderer implements port.ExportRenderer using excelize. The
// workbook is built from scratch, no template file is needed.
type ExcelRenderer struct {
	logger *zap.Logger
}

// NewExcelRenderer creates an Excel export renderer.
func NewExcelRenderer(logger *zap.Logger) *ExcelRenderer {
	return &ExcelRenderer{logger: logger}
}

// Render writes the export dataset into a single-sheet workbook with a
// totals row at the bottom. Category ids resolve to Hebrew names.
func (r *ExcelRenderer) Render(ctx context.Context, result *stats.ExportResult, registry *entity.CategoryRegistry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(exportSheet, cell, title); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	headerEnd, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", headerEnd, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range result.Receipts {
		row := i + 2
		date := ""
		if rec.Date != nil {
			date = rec.Date.Format("02/01/2006")
		}
		values := []interface{}{
			date,
			rec.VendorName,
			rec.BusinessID,
			rec.InvoiceNumber,
			r.categoryName(registry, rec.CategoryID),
			rec.PreVATAmount,
			rec.VATAmount,
			rec.TotalAmount,
			string(rec.Status),
			rec.Notes,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	totalsRow := len(result.Receipts) + 2
	totals := map[int]interface{}{
		1: "Total",
		7: result.TotalVAT,
		8: result.TotalAmount,
	}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalsRow)
		if err := f.SetCellValue(exportSheet, cell, v); err != nil {
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
	}
	totalsEnd, _ := excelize.CoordinatesToCellName(len(exportHeaders), totalsRow)
	totalsStart, _ := excelize.CoordinatesToCellName(1, totalsRow)
	if err := f.SetCellStyle(exportSheet, totalsStart, totalsEnd, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style totals: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	r.logger.Debug("Export workbook rendered",
		zap.Int("receipts", result.Count),
		zap.Int("size_bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (r *ExcelRenderer) categoryName(registry *entity.CategoryRegistry, id string) string {
	if c, ok := registry.Get(id); ok {
		return c.NameHe
	}
	return id
}

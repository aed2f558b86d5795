// Package report renders the reconciled invoice-audit table as an xlsx
// workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Layout of the generated sheet
const (
	SheetName = "Invoice Audit"

	cellCompany   = "A1"
	cellGenerated = "A2"
	headerRow     = 4
	dataRowStart  = 5

	// amountFormat is the built-in "#,##0.00" number format
	amountFormat = 4
)

var columns = []struct {
	title string
	width float64
}{
	{"Customer", 28},
	{"Invoice #", 16},
	{"Invoice Date", 14},
	{"PO #", 16},
	{"Amount", 14},
	{"Driver", 20},
	{"Source", 12},
	{"Status", 12},
}

const colAmount = 5

// WorkbookWriter implements port.WorkbookWriter with excelize
type WorkbookWriter struct {
	companyName string
	now         func() time.Time
	logger      *zap.Logger
}

// NewWorkbookWriter creates a WorkbookWriter. now may be nil.
func NewWorkbookWriter(companyName string, now func() time.Time, logger *zap.Logger) *WorkbookWriter {
	if now == nil {
		now = time.Now
	}
	return &WorkbookWriter{
		companyName: companyName,
		now:         now,
		logger:      logger,
	}
}

type rowStyles struct {
	text   int
	amount int
}

// Write renders records in the given order, one row each, with the row
// filled in its status color, and a total line at the bottom.
func (ww *WorkbookWriter) Write(w io.Writer, records []*entity.AuditRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	ww.setCell(f, cellCompany, ww.companyName)
	ww.setCell(f, cellGenerated, "Generated "+ww.now().Format("2006-01-02 15:04"))

	if err := ww.writeHeader(f); err != nil {
		return err
	}

	styles := make(map[entity.MatchStatus]rowStyles)
	total := decimal.Zero
	row := dataRowStart
	for _, r := range records {
		st, ok := styles[r.MatchStatus]
		if !ok {
			var err error
			st, err = newRowStyles(f, reconcile.StatusColor(r.MatchStatus))
			if err != nil {
				return err
			}
			styles[r.MatchStatus] = st
		}
		if err := ww.writeRecord(f, row, r, st); err != nil {
			return err
		}
		total = total.Add(r.Amount)
		row++
	}

	if err := ww.writeTotal(f, row+1, total, len(records)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	ww.logger.Info("Audit workbook written",
		zap.Int("records", len(records)),
		zap.String("total", total.StringFixed(2)))
	return nil
}

func (ww *WorkbookWriter) writeHeader(f *excelize.File) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for i, c := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		ww.setCell(f, cell, c.title)
		colName, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, colName, colName, c.width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(columns), headerRow)
	if err := f.SetCellStyle(SheetName, first, last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return f.SetCellStyle(SheetName, cellCompany, cellCompany, bold)
}

func (ww *WorkbookWriter) writeRecord(f *excelize.File, row int, r *entity.AuditRecord, st rowStyles) error {
	date := ""
	if r.InvoiceDate != nil {
		date = r.InvoiceDate.Format("2006-01-02")
	}
	values := []interface{}{
		r.CustomerName,
		r.InvoiceNumber,
		date,
		r.PONumber,
		r.Amount.InexactFloat64(),
		r.DriverName,
		string(r.Source),
		string(r.MatchStatus),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		ww.setCell(f, cell, v)
	}

	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(columns), row)
	if err := f.SetCellStyle(SheetName, first, last, st.text); err != nil {
		return fmt.Errorf("failed to style row %d: %w", row, err)
	}
	amountCell, _ := excelize.CoordinatesToCellName(colAmount, row)
	if err := f.SetCellStyle(SheetName, amountCell, amountCell, st.amount); err != nil {
		return fmt.Errorf("failed to style amount in row %d: %w", row, err)
	}
	return nil
}

func (ww *WorkbookWriter) writeTotal(f *excelize.File, row int, total decimal.Decimal, count int) error {
	label, _ := excelize.CoordinatesToCellName(colAmount-1, row)
	amount, _ := excelize.CoordinatesToCellName(colAmount, row)
	ww.setCell(f, label, fmt.Sprintf("Total (%d)", count))
	ww.setCell(f, amount, total.InexactFloat64())

	style, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		NumFmt: amountFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}
	return f.SetCellStyle(SheetName, label, amount, style)
}

// setCell sets a cell value, logging instead of failing
func (ww *WorkbookWriter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(SheetName, cell, value); err != nil {
		ww.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func newRowStyles(f *excelize.File, color string) (rowStyles, error) {
	var fill excelize.Fill
	if color != "" {
		fill = excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}
	text, err := f.NewStyle(&excelize.Style{Fill: fill})
	if err != nil {
		return rowStyles{}, fmt.Errorf("failed to create row style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{Fill: fill, NumFmt: amountFormat})
	if err != nil {
		return rowStyles{}, fmt.Errorf("failed to create amount style: %w", err)
	}
	return rowStyles{text: text, amount: amount}, nil
}

// Verify interface compliance
var _ port.WorkbookWriter = (*WorkbookWriter)(nil)

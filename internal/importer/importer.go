// Package importer reads third-party invoice audit spreadsheets into
// candidate audit records.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// DefaultHeaderScanRows is how many leading rows are searched for the header.
const DefaultHeaderScanRows = 10

// Config tunes header detection.
type Config struct {
	// HeaderScanRows bounds the search for the header row
	HeaderScanRows int
	// ExtraAliases adds header spellings per field name (e.g. "po_number")
	ExtraAliases map[string][]string
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatXLSX
	formatCSV
	formatTSV
)

func formatOf(name string) fileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return formatXLSX
	case ".csv", ".txt":
		return formatCSV
	case ".tsv":
		return formatTSV
	default:
		return formatUnknown
	}
}

// Importer parses spreadsheets. It is stateless apart from its
// configuration and safe for concurrent use.
type Importer struct {
	aliases  aliasTable
	scanRows int
	logger   *zap.Logger
}

// New creates an Importer. Unknown field names in ExtraAliases are rejected.
func New(cfg Config, logger *zap.Logger) (*Importer, error) {
	aliases, err := newAliasTable(cfg.ExtraAliases)
	if err != nil {
		return nil, err
	}
	scan := cfg.HeaderScanRows
	if scan <= 0 {
		scan = DefaultHeaderScanRows
	}
	return &Importer{
		aliases:  aliases,
		scanRows: scan,
		logger:   logger,
	}, nil
}

// ParseFile opens and parses a spreadsheet from disk.
func (im *Importer) ParseFile(ctx context.Context, path string) (*entity.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return im.ParseReader(ctx, f, filepath.Base(path))
}

// ParseReader parses a spreadsheet stream. The format follows the
// extension of name.
func (im *Importer) ParseReader(ctx context.Context, r io.Reader, name string) (*entity.ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rows [][]string
		err  error
	)
	switch formatOf(name) {
	case formatXLSX:
		rows, err = readWorkbook(r)
	case formatCSV:
		rows, err = readDelimited(r, ',')
	case formatTSV:
		rows, err = readDelimited(r, '\t')
	default:
		return nil, &FormatError{Source: name, Reason: "unsupported file type"}
	}
	if err != nil {
		return nil, &FormatError{Source: name, Reason: err.Error()}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return im.ParseRows(name, rows)
}

// ParseRows applies header detection and row validation to a grid of
// cells. A header with no data rows is an empty result, not an error.
func (im *Importer) ParseRows(name string, rows [][]string) (*entity.ImportResult, error) {
	headerIdx, cols, err := im.findHeader(name, rows)
	if err != nil {
		return nil, err
	}

	result := &entity.ImportResult{
		BatchID:    uuid.NewString(),
		SourceName: name,
	}

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		result.RowsRead++

		rec, reason := im.buildRecord(row, cols)
		if rec == nil {
			result.RowsSkipped++
			im.logger.Debug("Skipping import row",
				zap.String("source", name),
				zap.Int("row", i+1),
				zap.String("reason", reason))
			continue
		}
		result.Records = append(result.Records, rec)
	}

	im.logger.Info("Parsed import file",
		zap.String("source", name),
		zap.String("batch_id", result.BatchID),
		zap.Int("rows_read", result.RowsRead),
		zap.Int("rows_skipped", result.RowsSkipped),
		zap.Int("records", len(result.Records)))

	return result, nil
}

// findHeader returns the first row within the scan window that resolves
// every required field.
func (im *Importer) findHeader(name string, rows [][]string) (int, columnMap, error) {
	if len(rows) == 0 || allBlank(rows) {
		return 0, nil, &FormatError{Source: name, Reason: "file has no rows"}
	}

	var best columnMap
	limit := im.scanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		cols := im.aliases.resolveColumns(rows[i])
		if cols.complete() {
			return i, cols, nil
		}
		if len(cols) > len(best) {
			best = cols
		}
	}
	if best == nil {
		best = columnMap{}
	}
	return 0, nil, &FormatError{
		Source:  name,
		Reason:  "required columns not found",
		Missing: best.missing(),
	}
}

// buildRecord returns nil and a reason when the row is not a valid invoice.
func (im *Importer) buildRecord(row []string, cols columnMap) (*entity.AuditRecord, string) {
	customer := cell(row, cols[FieldCustomer])
	invoice := cell(row, cols[FieldInvoiceNumber])
	po := cell(row, cols[FieldPONumber])

	switch {
	case customer == "":
		return nil, "missing customer"
	case invoice == "":
		return nil, "missing invoice number"
	case po == "":
		return nil, "missing PO"
	}
	for _, s := range []string{customer, invoice, po} {
		if im.aliases.isNoise(s) {
			return nil, "noise row"
		}
	}

	amount := parseAmount(cell(row, cols[FieldAmount]))
	if !amount.IsPositive() {
		return nil, "amount not positive"
	}

	return &entity.AuditRecord{
		CustomerName:  customer,
		InvoiceNumber: invoice,
		InvoiceDate:   parseDate(cell(row, cols[FieldInvoiceDate])),
		PONumber:      po,
		Amount:        amount,
		Source:        entity.SourceImported,
		Matched:       true,
	}, ""
}

// readWorkbook returns the first sheet with raw cell values so dates stay
// as serial numbers and amounts are not display-formatted.
func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}

func readDelimited(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited file: %w", err)
	}
	return rows, nil
}

func allBlank(rows [][]string) bool {
	for _, row := range rows {
		if !isBlankRow(row) {
			return false
		}
	}
	return true
}

var _ port.RecordImporter = (*Importer)(nil)

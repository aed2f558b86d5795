package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
)

// ExportUnbilled renders the billing portal payload for every billable
// load without a billed record. Nothing is persisted.
func (s *reconciliationServiceImpl) ExportUnbilled(ctx context.Context, invoiceDate time.Time, rng *reconcile.DateRange) (string, error) {
	records, err := s.recordRepo.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to load records for export", "error", err)
		return "", fmt.Errorf("get records: %w", err)
	}
	loads, err := s.billableLoads(ctx)
	if err != nil {
		return "", err
	}

	unbilled := reconcile.UnbilledLoads(records, loads, rng)
	s.logger.Info("Unbilled export built", "loads", len(unbilled), "invoice_date", invoiceDate.Format("2006-01-02"))
	return reconcile.FormatUnbilledExport(unbilled, invoiceDate), nil
}

// SaveUnbilledExport writes the unbilled payload to the export directory
// and returns the full path of the file.
func (s *reconciliationServiceImpl) SaveUnbilledExport(ctx context.Context, invoiceDate time.Time, rng *reconcile.DateRange) (string, error) {
	payload, err := s.ExportUnbilled(ctx, invoiceDate, rng)
	if err != nil {
		return "", err
	}

	rel, err := s.paths.Resolve(DocumentUnbilledExport, s.pathVars(invoiceDate))
	if err != nil {
		return "", fmt.Errorf("resolve export path: %w", err)
	}
	full, err := s.fileStorage.Save(ctx, rel, []byte(payload))
	if err != nil {
		s.logger.Error("Failed to save unbilled export", "error", err, "path", rel)
		return "", err
	}
	s.logger.Info("Unbilled export saved", "path", full)
	return full, nil
}

// ExportWorkbook writes the cross-referenced table as a spreadsheet
func (s *reconciliationServiceImpl) ExportWorkbook(ctx context.Context, w io.Writer) error {
	records, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := s.workbook.Write(w, records); err != nil {
		s.logger.Error("Failed to write workbook", "error", err)
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveWorkbook writes the table workbook to the export directory and
// returns the full path of the file.
func (s *reconciliationServiceImpl) SaveWorkbook(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := s.ExportWorkbook(ctx, &buf); err != nil {
		return "", err
	}

	rel, err := s.paths.Resolve(DocumentAuditWorkbook, s.pathVars(s.opts.Now()))
	if err != nil {
		return "", fmt.Errorf("resolve workbook path: %w", err)
	}
	full, err := s.fileStorage.Save(ctx, rel, buf.Bytes())
	if err != nil {
		s.logger.Error("Failed to save workbook", "error", err, "path", rel)
		return "", err
	}
	s.logger.Info("Workbook saved", "path", full)
	return full, nil
}

func (s *reconciliationServiceImpl) pathVars(date time.Time) map[string]string {
	now := s.opts.Now()
	return map[string]string{
		"date":      date.Format("2006-01-02"),
		"timestamp": now.Format("20060102-150405"),
	}
}

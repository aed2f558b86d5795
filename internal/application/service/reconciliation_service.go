package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/domain/lifecycle"
	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
)

// ReconciliationService keeps invoice audit records in step with imported
// invoices and delivered loads, and serves the cross-referenced view.
type ReconciliationService interface {
	// ImportRecords merges importer output into the store in one transaction
	ImportRecords(ctx context.Context, result *entity.ImportResult) (*entity.MergeResult, error)
	ImportFile(ctx context.Context, path string) (*entity.MergeResult, error)
	ImportReader(ctx context.Context, r io.Reader, name string) (*entity.MergeResult, error)

	// SyncLoads creates or refreshes placeholders for billable loads
	SyncLoads(ctx context.Context) (*entity.SyncResult, error)
	SyncFromLoads(ctx context.Context, loads []*entity.Load) (*entity.SyncResult, error)

	// Refresh reloads records and loads and recomputes derived fields
	Refresh(ctx context.Context) ([]*entity.AuditRecord, error)
	Records(ctx context.Context) ([]*entity.AuditRecord, error)

	UpdateRecord(ctx context.Context, rec *entity.AuditRecord) error
	DeleteRecord(ctx context.Context, id int64) error

	ExportUnbilled(ctx context.Context, invoiceDate time.Time, rng *reconcile.DateRange) (string, error)
	SaveUnbilledExport(ctx context.Context, invoiceDate time.Time, rng *reconcile.DateRange) (string, error)
	ExportWorkbook(ctx context.Context, w io.Writer) error
	SaveWorkbook(ctx context.Context) (string, error)

	ImportHistory(ctx context.Context, limit int) ([]*entity.ImportLog, error)
}

// Document names looked up in the path templates.
const (
	DocumentUnbilledExport = "unbilled_export"
	DocumentAuditWorkbook  = "audit_workbook"
)

// Options tunes the reconciliation service.
type Options struct {
	// SyncStatuses are the load statuses that are ready for billing
	SyncStatuses []entity.LoadStatus
	// Now is used for export file names; defaults to time.Now
	Now func() time.Time
}

// DefaultSyncStatuses are the statuses of loads that should be invoiced.
var DefaultSyncStatuses = []entity.LoadStatus{entity.LoadStatusDelivered, entity.LoadStatusPaid}

type reconciliationServiceImpl struct {
	recordRepo    port.AuditRecordRepository
	loadProvider  port.LoadProvider
	importLogRepo port.ImportLogRepository
	txManager     port.TransactionManager
	importer      port.RecordImporter
	workbook      port.WorkbookWriter
	fileStorage   port.FileStorage
	paths         port.DocumentPaths
	machine       *lifecycle.Machine
	opts          Options
	logger        Logger

	// mu serialises every operation that writes records or the view
	mu sync.Mutex

	viewMu sync.RWMutex
	view   []*entity.AuditRecord
	loaded bool
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	recordRepo port.AuditRecordRepository,
	loadProvider port.LoadProvider,
	importLogRepo port.ImportLogRepository,
	txManager port.TransactionManager,
	importer port.RecordImporter,
	workbook port.WorkbookWriter,
	fileStorage port.FileStorage,
	paths port.DocumentPaths,
	opts Options,
	logger Logger,
) ReconciliationService {
	if len(opts.SyncStatuses) == 0 {
		opts.SyncStatuses = DefaultSyncStatuses
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &reconciliationServiceImpl{
		recordRepo:    recordRepo,
		loadProvider:  loadProvider,
		importLogRepo: importLogRepo,
		txManager:     txManager,
		importer:      importer,
		workbook:      workbook,
		fileStorage:   fileStorage,
		paths:         paths,
		machine:       lifecycle.RecordMachine(),
		opts:          opts,
		logger:        logger,
	}
}

// ImportFile parses a spreadsheet and merges it
func (s *reconciliationServiceImpl) ImportFile(ctx context.Context, path string) (*entity.MergeResult, error) {
	result, err := s.importer.ParseFile(ctx, path)
	if err != nil {
		s.logger.Error("Failed to parse import file", "error", err, "path", path)
		return nil, err
	}
	return s.ImportRecords(ctx, result)
}

// ImportReader parses an uploaded spreadsheet and merges it
func (s *reconciliationServiceImpl) ImportReader(ctx context.Context, r io.Reader, name string) (*entity.MergeResult, error) {
	result, err := s.importer.ParseReader(ctx, r, name)
	if err != nil {
		s.logger.Error("Failed to parse import upload", "error", err, "name", name)
		return nil, err
	}
	return s.ImportRecords(ctx, result)
}

// ImportRecords inserts new POs and overwrites existing ones with the
// imported invoice. Any store error rolls the whole batch back.
func (s *reconciliationServiceImpl) ImportRecords(ctx context.Context, result *entity.ImportResult) (*entity.MergeResult, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil import result", entity.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merge := &entity.MergeResult{
		BatchID:     result.BatchID,
		RowsRead:    result.RowsRead,
		RowsSkipped: result.RowsSkipped,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, imported := range result.Records {
			if err := s.mergeImported(txCtx, imported, merge); err != nil {
				return err
			}
		}

		log := &entity.ImportLog{
			BatchID:     result.BatchID,
			SourceName:  result.SourceName,
			RowsRead:    result.RowsRead,
			RowsSkipped: result.RowsSkipped,
			Inserted:    merge.Inserted,
			Updated:     merge.Updated,
		}
		if err := s.importLogRepo.Create(txCtx, log); err != nil {
			return fmt.Errorf("create import log: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to merge import", "error", err, "batch_id", result.BatchID, "source", result.SourceName)
		return nil, err
	}

	s.logger.Info("Import merged",
		"batch_id", merge.BatchID,
		"source", result.SourceName,
		"inserted", merge.Inserted,
		"updated", merge.Updated,
		"rows_skipped", merge.RowsSkipped)

	if _, err := s.refreshLocked(ctx); err != nil {
		return merge, err
	}
	return merge, nil
}

func (s *reconciliationServiceImpl) mergeImported(ctx context.Context, imported *entity.AuditRecord, merge *entity.MergeResult) error {
	if imported == nil || strings.TrimSpace(imported.PONumber) == "" {
		return fmt.Errorf("%w: imported record without PO", entity.ErrInvalidRecord)
	}

	existing, err := s.recordRepo.GetByPO(ctx, imported.PONumber)
	if err != nil {
		return fmt.Errorf("get record by PO %s: %w", imported.PONumber, err)
	}

	_, effect, err := s.machine.Fire(lifecycle.StateOf(existing), lifecycle.TriggerImport)
	if err != nil {
		return err
	}

	switch effect {
	case lifecycle.EffectInsert:
		rec := imported.Clone()
		rec.PONumber = strings.TrimSpace(rec.PONumber)
		rec.Source = entity.SourceImported
		rec.Matched = true
		id, err := s.recordRepo.Add(ctx, rec)
		if err != nil {
			return fmt.Errorf("add record %s: %w", rec.PONumber, err)
		}
		rec.ID = id
		merge.Inserted++
	case lifecycle.EffectOverwrite:
		reconcile.ApplyImport(existing, imported)
		if err := s.recordRepo.Update(ctx, existing); err != nil {
			return fmt.Errorf("update record %s: %w", existing.PONumber, err)
		}
		merge.Updated++
	}
	return nil
}

// SyncLoads syncs every load whose status is ready for billing
func (s *reconciliationServiceImpl) SyncLoads(ctx context.Context) (*entity.SyncResult, error) {
	loads, err := s.billableLoads(ctx)
	if err != nil {
		return nil, err
	}
	return s.SyncFromLoads(ctx, loads)
}

// SyncFromLoads creates a FROM_LOAD placeholder for each new PO and
// refreshes existing placeholders when the load changed. Imported records
// are never touched.
func (s *reconciliationServiceImpl) SyncFromLoads(ctx context.Context, loads []*entity.Load) (*entity.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &entity.SyncResult{}
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, l := range loads {
			if err := s.syncLoad(txCtx, l, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to sync loads", "error", err, "loads", len(loads))
		return nil, err
	}

	s.logger.Info("Loads synced",
		"loads", len(loads),
		"created", res.Created,
		"refreshed", res.Refreshed,
		"unchanged", res.Unchanged,
		"skipped_imported", res.SkippedImported,
		"skipped_no_po", res.SkippedNoPO)

	if _, err := s.refreshLocked(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *reconciliationServiceImpl) syncLoad(ctx context.Context, l *entity.Load, res *entity.SyncResult) error {
	if l == nil || reconcile.NormalizePO(l.PONumber) == "" {
		res.SkippedNoPO++
		return nil
	}

	existing, err := s.recordRepo.GetByPO(ctx, l.PONumber)
	if err != nil {
		return fmt.Errorf("get record by PO %s: %w", l.PONumber, err)
	}

	_, effect, err := s.machine.Fire(lifecycle.StateOf(existing), lifecycle.TriggerLoadSync)
	if err != nil {
		return err
	}

	switch effect {
	case lifecycle.EffectInsert:
		rec := reconcile.PlaceholderFromLoad(l)
		id, err := s.recordRepo.Add(ctx, rec)
		if err != nil {
			return fmt.Errorf("add placeholder for load %d: %w", l.ID, err)
		}
		rec.ID = id
		res.Created++
	case lifecycle.EffectRefresh:
		if !reconcile.NeedsRefresh(existing, l) {
			res.Unchanged++
			return nil
		}
		reconcile.RefreshFromLoad(existing, l)
		if err := s.recordRepo.Update(ctx, existing); err != nil {
			return fmt.Errorf("refresh placeholder for load %d: %w", l.ID, err)
		}
		res.Refreshed++
	default:
		res.SkippedImported++
	}
	return nil
}

// Refresh rebuilds the cross-referenced view from the store
func (s *reconciliationServiceImpl) Refresh(ctx context.Context) ([]*entity.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *reconciliationServiceImpl) refreshLocked(ctx context.Context) ([]*entity.AuditRecord, error) {
	records, err := s.recordRepo.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to load records", "error", err)
		return nil, fmt.Errorf("get records: %w", err)
	}
	loads, err := s.loadProvider.GetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to load loads", "error", err)
		return nil, fmt.Errorf("get loads: %w", err)
	}

	reconcile.CrossReference(records, loads)

	s.viewMu.Lock()
	s.view = records
	s.loaded = true
	s.viewMu.Unlock()

	return cloneRecords(records), nil
}

// Records returns a copy of the current view, loading it on first use
func (s *reconciliationServiceImpl) Records(ctx context.Context) ([]*entity.AuditRecord, error) {
	s.viewMu.RLock()
	if s.loaded {
		out := cloneRecords(s.view)
		s.viewMu.RUnlock()
		return out, nil
	}
	s.viewMu.RUnlock()
	return s.Refresh(ctx)
}

// UpdateRecord applies a user edit. An imported record stays imported.
func (s *reconciliationServiceImpl) UpdateRecord(ctx context.Context, rec *entity.AuditRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", entity.ErrInvalidRecord)
	}
	if strings.TrimSpace(rec.PONumber) == "" {
		return fmt.Errorf("%w: PO number is required", entity.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.recordRepo.GetByID(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("get record %d: %w", rec.ID, err)
	}
	if existing == nil {
		s.logger.Warn("Record not found for update", "id", rec.ID)
		return nil
	}

	upd := rec.Clone()
	upd.PONumber = strings.TrimSpace(upd.PONumber)
	if !upd.Source.Valid() || existing.Source == entity.SourceImported {
		upd.Source = existing.Source
	}
	if upd.Source == entity.SourceImported {
		upd.Matched = true
	}

	if err := s.recordRepo.Update(ctx, upd); err != nil {
		s.logger.Error("Failed to update record", "error", err, "id", rec.ID)
		return err
	}
	s.logger.Info("Record updated", "id", upd.ID, "po_number", upd.PONumber)

	_, err = s.refreshLocked(ctx)
	return err
}

// DeleteRecord removes a record; a missing id is not an error
func (s *reconciliationServiceImpl) DeleteRecord(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recordRepo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete record", "error", err, "id", id)
		return err
	}
	s.logger.Info("Record deleted", "id", id)

	_, err := s.refreshLocked(ctx)
	return err
}

// ImportHistory lists the most recent imports first
func (s *reconciliationServiceImpl) ImportHistory(ctx context.Context, limit int) ([]*entity.ImportLog, error) {
	logs, err := s.importLogRepo.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list import history", "error", err, "limit", limit)
		return nil, err
	}
	return logs, nil
}

func (s *reconciliationServiceImpl) billableLoads(ctx context.Context) ([]*entity.Load, error) {
	var loads []*entity.Load
	for _, status := range s.opts.SyncStatuses {
		batch, err := s.loadProvider.GetByStatus(ctx, status)
		if err != nil {
			s.logger.Error("Failed to get loads by status", "error", err, "status", status)
			return nil, fmt.Errorf("get %s loads: %w", status, err)
		}
		loads = append(loads, batch...)
	}
	return loads, nil
}

func cloneRecords(records []*entity.AuditRecord) []*entity.AuditRecord {
	out := make([]*entity.AuditRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.Clone())
	}
	return out
}

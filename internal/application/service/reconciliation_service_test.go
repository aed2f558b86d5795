package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
	"github.com/haulmark/invoice-audit/internal/importer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      ReconciliationService
	repo     *memRecordRepo
	loads    *mockLoadProvider
	logs     *mockImportLogRepo
	importer *mockImporter
	workbook *mockWorkbook
	storage  *mockFileStorage
	logger   *mockLogger
}

func newFixture(loads ...*entity.Load) *fixture {
	f := &fixture{
		repo:     newMemRecordRepo(),
		loads:    &mockLoadProvider{loads: loads},
		logs:     &mockImportLogRepo{},
		importer: &mockImporter{},
		workbook: &mockWorkbook{},
		storage:  &mockFileStorage{},
		logger:   &mockLogger{},
	}
	f.svc = NewReconciliationService(
		f.repo,
		f.loads,
		f.logs,
		&mockTxManager{repo: f.repo, logs: f.logs},
		f.importer,
		f.workbook,
		f.storage,
		mockPaths{},
		Options{Now: func() time.Time { return time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC) }},
		f.logger,
	)
	return f
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func po100Load() *entity.Load {
	return &entity.Load{
		ID:           42,
		PONumber:     "PO100",
		CustomerName: "Acme",
		GrossAmount:  amount("500.00"),
		DeliveryDate: day(2024, 3, 1),
		DriverName:   "Dan",
		Status:       entity.LoadStatusDelivered,
	}
}

func importOf(recs ...*entity.AuditRecord) *entity.ImportResult {
	for _, r := range recs {
		r.Source = entity.SourceImported
		r.Matched = true
	}
	return &entity.ImportResult{
		BatchID:    "batch-1",
		SourceName: "audit.xlsx",
		Records:    recs,
		RowsRead:   len(recs),
	}
}

func TestSyncFromLoads_CreatesPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())

	res, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	records, err := f.svc.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "PO100", rec.PONumber)
	assert.Equal(t, "Acme", rec.CustomerName)
	assert.Equal(t, "PENDING-42", rec.InvoiceNumber)
	assert.Equal(t, entity.SourceFromLoad, rec.Source)
	assert.False(t, rec.Matched)
	assert.Equal(t, entity.MatchStatusUnbilled, rec.MatchStatus)
	assert.Equal(t, "Dan", rec.DriverName)
	assert.True(t, rec.Amount.Equal(amount("500")))
}

func TestImportRecords_SupersedesPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())

	_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)
	before, err := f.svc.Records(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)

	merge, err := f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{
		CustomerName:  "Acme",
		InvoiceNumber: "INV-77",
		PONumber:      "PO100",
		Amount:        amount("500.00"),
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, merge.Inserted)
	assert.Equal(t, 1, merge.Updated)

	after, err := f.svc.Records(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)

	rec := after[0]
	assert.Equal(t, before[0].ID, rec.ID)
	assert.Equal(t, "INV-77", rec.InvoiceNumber)
	assert.Equal(t, entity.SourceImported, rec.Source)
	assert.True(t, rec.Matched)
	assert.Equal(t, entity.MatchStatusBilled, rec.MatchStatus)
}

func TestImportRecords_InsertsAndLogs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	merge, err := f.svc.ImportRecords(ctx, importOf(
		&entity.AuditRecord{CustomerName: "Acme", InvoiceNumber: "INV-1", PONumber: "PO1", Amount: amount("10")},
		&entity.AuditRecord{CustomerName: "Beta", InvoiceNumber: "INV-2", PONumber: "PO2", Amount: amount("20")},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, merge.Inserted)
	assert.Equal(t, "batch-1", merge.BatchID)

	records, _ := f.svc.Records(ctx)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, entity.SourceImported, r.Source)
		assert.True(t, r.Matched)
		assert.Equal(t, entity.MatchStatusBilled, r.MatchStatus)
	}

	history, err := f.svc.ImportHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "audit.xlsx", history[0].SourceName)
	assert.Equal(t, 2, history[0].Inserted)
}

func TestImportRecords_SamePOTwiceYieldsOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	merge, err := f.svc.ImportRecords(ctx, importOf(
		&entity.AuditRecord{CustomerName: "Acme", InvoiceNumber: "INV-1", PONumber: "PO1", Amount: amount("10")},
		&entity.AuditRecord{CustomerName: "Acme", InvoiceNumber: "INV-1b", PONumber: "po1", Amount: amount("12")},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, merge.Inserted)
	assert.Equal(t, 1, merge.Updated)

	records, _ := f.svc.Records(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "INV-1b", records[0].InvoiceNumber)
	assert.Equal(t, "PO1", records[0].PONumber)
}

func TestImportRecords_StoreErrorPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	storeErr := errors.New("disk full")
	f.repo.addFunc = func(ctx context.Context, rec *entity.AuditRecord) (int64, error) {
		if rec.PONumber == "PO2" {
			return 0, storeErr
		}
		return f.repo.insert(rec)
	}

	_, err := f.svc.ImportRecords(ctx, importOf(
		&entity.AuditRecord{CustomerName: "Acme", InvoiceNumber: "INV-1", PONumber: "PO1", Amount: amount("10")},
		&entity.AuditRecord{CustomerName: "Beta", InvoiceNumber: "INV-2", PONumber: "PO2", Amount: amount("20")},
	))
	require.ErrorIs(t, err, storeErr)

	all, _ := f.repo.GetAll(ctx)
	assert.Empty(t, all)
	assert.Empty(t, f.logs.logs)
}

func TestImportFile_FormatErrorPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.importer.err = &importer.FormatError{Source: "bad.xlsx", Reason: "required columns not found", Missing: []string{"po_number"}}

	_, err := f.svc.ImportFile(ctx, "bad.xlsx")

	var fe *importer.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, f.repo.addCalls)
	assert.Empty(t, f.logs.logs)
}

func TestImportRecords_InvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.ImportRecords(ctx, nil)
	assert.ErrorIs(t, err, entity.ErrInvalidRecord)

	_, err = f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{CustomerName: "Acme", InvoiceNumber: "INV-1", Amount: amount("1")}))
	assert.ErrorIs(t, err, entity.ErrInvalidRecord)
}

func TestSyncFromLoads_NeverTouchesImported(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{
		CustomerName: "Acme Freight", InvoiceNumber: "INV-77", PONumber: "PO100", Amount: amount("480"),
	}))
	require.NoError(t, err)
	updatesBefore := f.repo.updateCalls

	res, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedImported)
	assert.Equal(t, updatesBefore, f.repo.updateCalls)

	records, _ := f.svc.Records(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, entity.SourceImported, records[0].Source)
	assert.Equal(t, "INV-77", records[0].InvoiceNumber)
	assert.Equal(t, "Acme Freight", records[0].CustomerName)
	assert.True(t, records[0].Amount.Equal(amount("480")))
}

func TestSyncFromLoads_RefreshOnlyWhenDifferent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)

	res, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 0, f.repo.updateCalls)

	changed := po100Load()
	changed.GrossAmount = amount("525.00")
	changed.DeliveryDate = day(2024, 3, 2)

	res, err = f.svc.SyncFromLoads(ctx, []*entity.Load{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 1, f.repo.updateCalls)

	records, _ := f.svc.Records(ctx)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(amount("525")))
	assert.Equal(t, 2, records[0].InvoiceDate.Day())
	assert.Equal(t, entity.SourceFromLoad, records[0].Source)
	assert.Equal(t, "PENDING-42", records[0].InvoiceNumber)
}

func TestSyncFromLoads_SkipsLoadsWithoutPO(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	res, err := f.svc.SyncFromLoads(ctx, []*entity.Load{
		{ID: 1, PONumber: "  ", CustomerName: "Acme", GrossAmount: amount("1")},
		nil,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedNoPO)
	assert.Equal(t, 0, f.repo.addCalls)
}

func TestSyncLoads_UsesBillableStatuses(t *testing.T) {
	ctx := context.Background()
	paid := &entity.Load{ID: 2, PONumber: "PO2", CustomerName: "Beta", GrossAmount: amount("20"), Status: entity.LoadStatusPaid}
	transit := &entity.Load{ID: 3, PONumber: "PO3", CustomerName: "Gamma", GrossAmount: amount("30"), Status: entity.LoadStatusInTransit}
	f := newFixture(po100Load(), paid, transit)

	var asked []entity.LoadStatus
	f.loads.getByStatusFunc = func(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error) {
		asked = append(asked, status)
		var out []*entity.Load
		for _, l := range f.loads.loads {
			if l.Status == status {
				out = append(out, l)
			}
		}
		return out, nil
	}

	res, err := f.svc.SyncLoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []entity.LoadStatus{entity.LoadStatusDelivered, entity.LoadStatusPaid}, asked)

	exists, _ := f.repo.ExistsByPO(ctx, "PO3")
	assert.False(t, exists)
}

func TestSyncLoads_ProviderError(t *testing.T) {
	f := newFixture()
	f.loads.getByStatusFunc = func(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error) {
		return nil, errors.New("dispatch db offline")
	}

	_, err := f.svc.SyncLoads(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, f.repo.addCalls)
}

func TestRecords_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())
	_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)

	first, _ := f.svc.Records(ctx)
	first[0].CustomerName = "changed"

	second, _ := f.svc.Records(ctx)
	assert.Equal(t, "Acme", second[0].CustomerName)
}

func TestRefresh_RecomputesAfterLoadChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{
		CustomerName: "Acme", InvoiceNumber: "INV-1", PONumber: "PO100", Amount: amount("10"),
	}))
	require.NoError(t, err)

	records, _ := f.svc.Records(ctx)
	assert.Equal(t, "", records[0].DriverName)

	f.loads.loads = []*entity.Load{po100Load()}
	records, err = f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dan", records[0].DriverName)
}

func TestUpdateRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("not found is a warning", func(t *testing.T) {
		f := newFixture()
		err := f.svc.UpdateRecord(ctx, &entity.AuditRecord{ID: 99, PONumber: "PO9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Record not found for update"}, f.logger.warns)
		assert.Equal(t, 0, f.repo.updateCalls)
	})

	t.Run("empty PO rejected", func(t *testing.T) {
		f := newFixture()
		err := f.svc.UpdateRecord(ctx, &entity.AuditRecord{ID: 1, PONumber: " "})
		assert.ErrorIs(t, err, entity.ErrInvalidRecord)
	})

	t.Run("imported record stays imported", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{
			CustomerName: "Acme", InvoiceNumber: "INV-1", PONumber: "PO1", Amount: amount("10"),
		}))
		require.NoError(t, err)
		records, _ := f.svc.Records(ctx)

		edit := records[0].Clone()
		edit.Source = entity.SourceFromLoad
		edit.Matched = false
		edit.Amount = amount("11")
		require.NoError(t, f.svc.UpdateRecord(ctx, edit))

		records, _ = f.svc.Records(ctx)
		assert.Equal(t, entity.SourceImported, records[0].Source)
		assert.True(t, records[0].Matched)
		assert.True(t, records[0].Amount.Equal(amount("11")))
	})

	t.Run("manual match bills a placeholder", func(t *testing.T) {
		f := newFixture(po100Load())
		_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
		require.NoError(t, err)
		records, _ := f.svc.Records(ctx)

		edit := records[0].Clone()
		edit.Matched = true
		require.NoError(t, f.svc.UpdateRecord(ctx, edit))

		records, _ = f.svc.Records(ctx)
		assert.Equal(t, entity.SourceFromLoad, records[0].Source)
		assert.Equal(t, entity.MatchStatusBilled, records[0].MatchStatus)
	})
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())
	_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)
	records, _ := f.svc.Records(ctx)

	require.NoError(t, f.svc.DeleteRecord(ctx, records[0].ID))
	records, _ = f.svc.Records(ctx)
	assert.Empty(t, records)

	assert.NoError(t, f.svc.DeleteRecord(ctx, 12345))
}

func TestExportUnbilled(t *testing.T) {
	ctx := context.Background()
	unbilled := &entity.Load{
		ID: 7, PONumber: "PO200", CustomerName: "Acme", GrossAmount: amount("123.4"),
		DeliveryDate: day(2024, 3, 20), Status: entity.LoadStatusDelivered,
	}
	f := newFixture(po100Load(), unbilled)

	_, err := f.svc.ImportRecords(ctx, importOf(&entity.AuditRecord{
		CustomerName: "Acme", InvoiceNumber: "INV-77", PONumber: "PO100", Amount: amount("500"),
	}))
	require.NoError(t, err)

	got, err := f.svc.ExportUnbilled(ctx, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme\tCREATE\t4/1/24\tPO200\t123.40", got)

	got, err = f.svc.ExportUnbilled(ctx, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		&reconcile.DateRange{From: day(2024, 3, 21)})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestExportUnbilled_PlaceholderStillUnbilled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())
	_, err := f.svc.SyncLoads(ctx)
	require.NoError(t, err)

	got, err := f.svc.ExportUnbilled(ctx, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme\tCREATE\t4/1/24\tPO100\t500.00", got)
}

func TestSaveUnbilledExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())

	path, err := f.svc.SaveUnbilledExport(ctx, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Equal(t, "/exports/unbilled_export/2024-04-01.txt", path)
	assert.Equal(t, "Acme\tCREATE\t4/1/24\tPO100\t500.00", string(f.storage.saved["unbilled_export/2024-04-01.txt"]))
}

func TestExportWorkbook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(po100Load())
	_, err := f.svc.SyncFromLoads(ctx, []*entity.Load{po100Load()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportWorkbook(ctx, &buf))
	assert.Equal(t, "1 rows", buf.String())
	require.Len(t, f.workbook.written, 1)
	assert.Equal(t, entity.MatchStatusUnbilled, f.workbook.written[0].MatchStatus)

	path, err := f.svc.SaveWorkbook(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/exports/audit_workbook/2024-04-01.txt", path)
}

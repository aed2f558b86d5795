package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/sqlite"
	"github.com/haulmark/invoice-audit/pkg/database"
	"go.uber.org/zap"
)

// AuditRecordRepository implements port.AuditRecordRepository
type AuditRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRecordRepository creates a new audit record repository
func NewAuditRecordRepository(db *sql.DB, logger *zap.Logger) port.AuditRecordRepository {
	return &AuditRecordRepository{
		db:     db,
		logger: logger,
	}
}

const auditRecordColumns = `id, customer_name, invoice_number, invoice_date, po_number,
	amount_cents, source, matched, created_at, updated_at`

// GetAll returns every record ordered by id
func (r *AuditRecordRepository) GetAll(ctx context.Context) ([]*entity.AuditRecord, error) {
	query := `SELECT ` + auditRecordColumns + ` FROM invoice_audit_records ORDER BY id`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list audit records", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*entity.AuditRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, nil
}

// GetByID retrieves a record by its ID
func (r *AuditRecordRepository) GetByID(ctx context.Context, id int64) (*entity.AuditRecord, error) {
	query := `SELECT ` + auditRecordColumns + ` FROM invoice_audit_records WHERE id = ?`

	rec, err := r.scanRecord(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get audit record by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

// GetByPO retrieves the record for a PO, ignoring case and surrounding space
func (r *AuditRecordRepository) GetByPO(ctx context.Context, po string) (*entity.AuditRecord, error) {
	query := `SELECT ` + auditRecordColumns + ` FROM invoice_audit_records WHERE po_number = ?`

	rec, err := r.scanRecord(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, strings.TrimSpace(po)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get audit record by PO", zap.String("po_number", po), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

// Add inserts a record. A taken PO yields entity.ErrDuplicatePO.
func (r *AuditRecordRepository) Add(ctx context.Context, rec *entity.AuditRecord) (int64, error) {
	query := `
		INSERT INTO invoice_audit_records (
			customer_name, invoice_number, invoice_date, po_number,
			amount_cents, source, matched, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	po := strings.TrimSpace(rec.PONumber)
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rec.CustomerName,
		rec.InvoiceNumber,
		nullableDate(rec.InvoiceDate),
		po,
		rec.AmountCents(),
		string(rec.Source),
		boolToInt(rec.Matched),
		now,
		now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.Warn("Duplicate PO rejected", zap.String("po_number", po))
			return 0, fmt.Errorf("%w: %s", entity.ErrDuplicatePO, po)
		}
		r.logger.Error("Failed to add audit record", zap.String("po_number", po), zap.Error(err))
		return 0, fmt.Errorf("failed to add audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	rec.PONumber = po
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

// Update overwrites a record by id. A missing id is logged and ignored.
func (r *AuditRecordRepository) Update(ctx context.Context, rec *entity.AuditRecord) error {
	query := `
		UPDATE invoice_audit_records SET
			customer_name = ?, invoice_number = ?, invoice_date = ?, po_number = ?,
			amount_cents = ?, source = ?, matched = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	po := strings.TrimSpace(rec.PONumber)
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rec.CustomerName,
		rec.InvoiceNumber,
		nullableDate(rec.InvoiceDate),
		po,
		rec.AmountCents(),
		string(rec.Source),
		boolToInt(rec.Matched),
		now,
		rec.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.Warn("Duplicate PO rejected on update", zap.Int64("id", rec.ID), zap.String("po_number", po))
			return fmt.Errorf("%w: %s", entity.ErrDuplicatePO, po)
		}
		r.logger.Error("Failed to update audit record", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update audit record: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		r.logger.Warn("Audit record not found for update", zap.Int64("id", rec.ID))
		return nil
	}

	rec.PONumber = po
	rec.UpdatedAt = now
	return nil
}

// Delete removes a record by id. A missing id is logged and ignored.
func (r *AuditRecordRepository) Delete(ctx context.Context, id int64) error {
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM invoice_audit_records WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete audit record", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete audit record: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		r.logger.Warn("Audit record not found for delete", zap.Int64("id", id))
	}
	return nil
}

// ExistsByPO reports whether a record holds the PO
func (r *AuditRecordRepository) ExistsByPO(ctx context.Context, po string) (bool, error) {
	var exists bool
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM invoice_audit_records WHERE po_number = ?)`,
		strings.TrimSpace(po)).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check PO", zap.String("po_number", po), zap.Error(err))
		return false, fmt.Errorf("failed to check PO: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AuditRecordRepository) scanRecord(row rowScanner) (*entity.AuditRecord, error) {
	var (
		rec     entity.AuditRecord
		date    sql.NullString
		cents   int64
		source  string
		matched int
	)
	err := row.Scan(
		&rec.ID,
		&rec.CustomerName,
		&rec.InvoiceNumber,
		&date,
		&rec.PONumber,
		&cents,
		&source,
		&matched,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.InvoiceDate, err = scanDate(date); err != nil {
		return nil, err
	}
	rec.Amount = fromCents(cents)
	rec.Source = entity.RecordSource(source)
	rec.Matched = matched != 0
	return &rec, nil
}

// Verify interface compliance
var _ port.AuditRecordRepository = (*AuditRecordRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ImportLogRepository implements port.ImportLogRepository
type ImportLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewImportLogRepository creates a new import log repository
func NewImportLogRepository(db *sql.DB, logger *zap.Logger) port.ImportLogRepository {
	return &ImportLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a merged import
func (r *ImportLogRepository) Create(ctx context.Context, log *entity.ImportLog) error {
	query := `
		INSERT INTO import_logs (
			batch_id, source_name, rows_read, rows_skipped, inserted, updated, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if log.ImportedAt.IsZero() {
		log.ImportedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		log.BatchID,
		log.SourceName,
		log.RowsRead,
		log.RowsSkipped,
		log.Inserted,
		log.Updated,
		log.ImportedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create import log",
			zap.String("batch_id", log.BatchID),
			zap.Error(err))
		return fmt.Errorf("failed to create import log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	log.ID = id
	return nil
}

// ListRecent returns up to limit logs, newest first
func (r *ImportLogRepository) ListRecent(ctx context.Context, limit int) ([]*entity.ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, batch_id, source_name, rows_read, rows_skipped, inserted, updated, imported_at
		FROM import_logs
		ORDER BY imported_at DESC, id DESC
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list import logs", zap.Error(err))
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.ImportLog
	for rows.Next() {
		var l entity.ImportLog
		if err := rows.Scan(
			&l.ID,
			&l.BatchID,
			&l.SourceName,
			&l.RowsRead,
			&l.RowsSkipped,
			&l.Inserted,
			&l.Updated,
			&l.ImportedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import logs: %w", err)
	}
	return logs, nil
}

// Verify interface compliance
var _ port.ImportLogRepository = (*ImportLogRepository)(nil)

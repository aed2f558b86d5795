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
	"go.uber.org/zap"
)

// LoadRepository reads the loads table. Save exists for the operator CLI
// and for seeding; reconciliation only uses the read side.
type LoadRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLoadRepository creates a new load repository
func NewLoadRepository(db *sql.DB, logger *zap.Logger) *LoadRepository {
	return &LoadRepository{
		db:     db,
		logger: logger,
	}
}

const loadColumns = `id, po_number, customer_name, gross_cents, delivery_date, driver_name, status`

// GetByStatus returns loads in a status ordered by delivery date
func (r *LoadRepository) GetByStatus(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error) {
	query := `SELECT ` + loadColumns + ` FROM loads WHERE status = ?
		ORDER BY delivery_date IS NULL, delivery_date, id`
	return r.query(ctx, query, string(status))
}

// GetAll returns every load
func (r *LoadRepository) GetAll(ctx context.Context) ([]*entity.Load, error) {
	query := `SELECT ` + loadColumns + ` FROM loads ORDER BY id`
	return r.query(ctx, query)
}

// GetByID retrieves a load by its ID
func (r *LoadRepository) GetByID(ctx context.Context, id int64) (*entity.Load, error) {
	query := `SELECT ` + loadColumns + ` FROM loads WHERE id = ?`

	l, err := scanLoad(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get load", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get load: %w", err)
	}
	return l, nil
}

// Save inserts a load, or replaces it when the id already exists.
// A zero id lets the database assign one.
func (r *LoadRepository) Save(ctx context.Context, l *entity.Load) error {
	query := `
		INSERT INTO loads (id, po_number, customer_name, gross_cents, delivery_date, driver_name, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			po_number = excluded.po_number,
			customer_name = excluded.customer_name,
			gross_cents = excluded.gross_cents,
			delivery_date = excluded.delivery_date,
			driver_name = excluded.driver_name,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	var id interface{}
	if l.ID != 0 {
		id = l.ID
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		id,
		strings.TrimSpace(l.PONumber),
		l.CustomerName,
		l.GrossCents(),
		nullableDate(l.DeliveryDate),
		l.DriverName,
		string(l.Status),
		time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save load", zap.Int64("id", l.ID), zap.Error(err))
		return fmt.Errorf("failed to save load: %w", err)
	}

	if l.ID == 0 {
		newID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		l.ID = newID
	}
	return nil
}

func (r *LoadRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Load, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query loads", zap.Error(err))
		return nil, fmt.Errorf("failed to query loads: %w", err)
	}
	defer rows.Close()

	var loads []*entity.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loads: %w", err)
	}
	return loads, nil
}

func scanLoad(row rowScanner) (*entity.Load, error) {
	var (
		l      entity.Load
		cents  int64
		date   sql.NullString
		status string
	)
	if err := row.Scan(&l.ID, &l.PONumber, &l.CustomerName, &cents, &date, &l.DriverName, &status); err != nil {
		return nil, err
	}

	var err error
	if l.DeliveryDate, err = scanDate(date); err != nil {
		return nil, err
	}
	l.GrossAmount = fromCents(cents)
	l.Status = entity.LoadStatus(status)
	return &l, nil
}

// Verify interface compliance
var _ port.LoadProvider = (*LoadRepository)(nil)

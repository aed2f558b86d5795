package port

import (
	"context"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
)

// AuditRecordRepository defines persistence operations for AuditRecord.
// PO lookups are case-insensitive on the trimmed PO number.
type AuditRecordRepository interface {
	// GetAll returns every record ordered by id
	GetAll(ctx context.Context) ([]*entity.AuditRecord, error)

	// GetByID returns the record with the id, or nil if there is none
	GetByID(ctx context.Context, id int64) (*entity.AuditRecord, error)

	// GetByPO returns the record for a PO, or nil if there is none
	GetByPO(ctx context.Context, po string) (*entity.AuditRecord, error)

	// Add inserts a record and returns its id.
	// Returns entity.ErrDuplicatePO if the PO is already taken.
	Add(ctx context.Context, rec *entity.AuditRecord) (int64, error)

	// Update overwrites a record by id. A missing id is logged and ignored.
	Update(ctx context.Context, rec *entity.AuditRecord) error

	// Delete removes a record by id. A missing id is logged and ignored.
	Delete(ctx context.Context, id int64) error

	ExistsByPO(ctx context.Context, po string) (bool, error)
}

// LoadProvider is the read-only view of dispatched loads
type LoadProvider interface {
	GetByStatus(ctx context.Context, status entity.LoadStatus) ([]*entity.Load, error)
	GetAll(ctx context.Context) ([]*entity.Load, error)
}

// ImportLogRepository defines persistence operations for ImportLog
type ImportLogRepository interface {
	Create(ctx context.Context, log *entity.ImportLog) error
	ListRecent(ctx context.Context, limit int) ([]*entity.ImportLog, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

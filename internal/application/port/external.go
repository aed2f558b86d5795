package port

import (
	"context"
	"io"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
)

// RecordImporter turns a spreadsheet of issued invoices into candidate
// audit records. It never touches the store.
type RecordImporter interface {
	ParseFile(ctx context.Context, path string) (*entity.ImportResult, error)
	ParseReader(ctx context.Context, r io.Reader, name string) (*entity.ImportResult, error)
}

// WorkbookWriter renders the reconciled table as a spreadsheet
type WorkbookWriter interface {
	Write(w io.Writer, records []*entity.AuditRecord) error
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditRecord is one invoice-audit row keyed by PO number.
// MatchStatus and DriverName are derived by the cross-reference pass and
// are never persisted.
type AuditRecord struct {
	ID            int64           `json:"id"`
	CustomerName  string          `json:"customer_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	PONumber      string          `json:"po_number"`
	Amount        decimal.Decimal `json:"amount"`
	Source        RecordSource    `json:"source"`
	Matched       bool            `json:"matched"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	MatchStatus MatchStatus `json:"match_status"`
	DriverName  string      `json:"driver_name,omitempty"`
}

// Clone returns a shallow copy with its own date pointer.
func (r *AuditRecord) Clone() *AuditRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.InvoiceDate != nil {
		d := *r.InvoiceDate
		c.InvoiceDate = &d
	}
	return &c
}

// AmountCents returns the amount rounded to whole cents, the storage unit.
func (r *AuditRecord) AmountCents() int64 {
	return r.Amount.Round(2).Shift(2).IntPart()
}

// MergeResult summarises an import-merge run.
type MergeResult struct {
	BatchID     string `json:"batch_id"`
	RowsRead    int    `json:"rows_read"`
	RowsSkipped int    `json:"rows_skipped"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
}

// SyncResult summarises a load-sync run.
type SyncResult struct {
	Created         int `json:"created"`
	Refreshed       int `json:"refreshed"`
	Unchanged       int `json:"unchanged"`
	SkippedImported int `json:"skipped_imported"`
	SkippedNoPO     int `json:"skipped_no_po"`
}

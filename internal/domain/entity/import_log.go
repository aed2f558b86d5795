package entity

import "time"

// ImportResult is the importer's output: candidate records plus row counts.
type ImportResult struct {
	BatchID     string
	SourceName  string
	Records     []*AuditRecord
	RowsRead    int
	RowsSkipped int
}

// ImportLog is the persisted history entry for one merged import.
type ImportLog struct {
	ID          int64     `json:"id"`
	BatchID     string    `json:"batch_id"`
	SourceName  string    `json:"source_name"`
	RowsRead    int       `json:"rows_read"`
	RowsSkipped int       `json:"rows_skipped"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	ImportedAt  time.Time `json:"imported_at"`
}

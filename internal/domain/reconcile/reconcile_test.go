package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNormalizePO(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"po100", "PO100"},
		{"  PO100 ", "PO100"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePO(tt.in); got != tt.want {
			t.Errorf("NormalizePO(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		record entity.AuditRecord
		want   entity.MatchStatus
	}{
		{"imported", entity.AuditRecord{Source: entity.SourceImported, Matched: true}, entity.MatchStatusBilled},
		{"placeholder", entity.AuditRecord{Source: entity.SourceFromLoad}, entity.MatchStatusUnbilled},
		{"matched placeholder", entity.AuditRecord{Source: entity.SourceFromLoad, Matched: true}, entity.MatchStatusBilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(&tt.record); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrossReference(t *testing.T) {
	records := []*entity.AuditRecord{
		{ID: 1, PONumber: "po100", Source: entity.SourceImported, Matched: true},
		{ID: 2, PONumber: "PO200", Source: entity.SourceFromLoad, DriverName: "stale"},
		{ID: 3, PONumber: "PO300", Source: entity.SourceFromLoad},
	}
	loads := []*entity.Load{
		{ID: 10, PONumber: " PO100", DriverName: "Dan"},
		{ID: 11, PONumber: "PO300", DriverName: "Eve"},
		{ID: 12, PONumber: "", DriverName: "Nobody"},
	}

	CrossReference(records, loads)

	want := []struct {
		status entity.MatchStatus
		driver string
	}{
		{entity.MatchStatusBilled, "Dan"},
		{entity.MatchStatusUnbilled, ""},
		{entity.MatchStatusUnbilled, "Eve"},
	}
	for i, w := range want {
		if records[i].MatchStatus != w.status {
			t.Errorf("record %d status = %v, want %v", records[i].ID, records[i].MatchStatus, w.status)
		}
		if records[i].DriverName != w.driver {
			t.Errorf("record %d driver = %q, want %q", records[i].ID, records[i].DriverName, w.driver)
		}
	}
}

func TestCrossReference_Idempotent(t *testing.T) {
	records := []*entity.AuditRecord{
		{ID: 1, PONumber: "PO1", Source: entity.SourceFromLoad},
		{ID: 2, PONumber: "PO2", Source: entity.SourceImported, Matched: true},
	}
	loads := []*entity.Load{{ID: 1, PONumber: "PO1", DriverName: "Dan"}}

	CrossReference(records, loads)
	first := make([]entity.AuditRecord, len(records))
	for i, r := range records {
		first[i] = *r
	}

	CrossReference(records, loads)
	for i, r := range records {
		if !reflect.DeepEqual(first[i], *r) {
			t.Errorf("second pass changed record %d: %+v -> %+v", r.ID, first[i], *r)
		}
	}
}

func TestPlaceholderFromLoad(t *testing.T) {
	l := &entity.Load{
		ID:           42,
		PONumber:     "PO100 ",
		CustomerName: "Acme",
		GrossAmount:  decimal.RequireFromString("500.00"),
		DeliveryDate: date(2024, 3, 1),
	}

	rec := PlaceholderFromLoad(l)

	if rec.InvoiceNumber != "PENDING-42" {
		t.Errorf("InvoiceNumber = %q, want PENDING-42", rec.InvoiceNumber)
	}
	if rec.Source != entity.SourceFromLoad || rec.Matched {
		t.Errorf("placeholder source/matched = %v/%v", rec.Source, rec.Matched)
	}
	if rec.PONumber != "PO100" || rec.CustomerName != "Acme" {
		t.Errorf("placeholder = %+v", rec)
	}
	if !rec.Amount.Equal(l.GrossAmount) {
		t.Errorf("Amount = %s, want %s", rec.Amount, l.GrossAmount)
	}
	if rec.InvoiceDate == nil || !rec.InvoiceDate.Equal(*l.DeliveryDate) {
		t.Errorf("InvoiceDate = %v, want %v", rec.InvoiceDate, l.DeliveryDate)
	}
	if StatusOf(rec) != entity.MatchStatusUnbilled {
		t.Error("placeholder should be unbilled")
	}

	*l.DeliveryDate = l.DeliveryDate.AddDate(0, 0, 1)
	if rec.InvoiceDate.Day() != 1 {
		t.Error("placeholder shares the load's date pointer")
	}
}

func TestNeedsRefresh(t *testing.T) {
	base := func() (*entity.AuditRecord, *entity.Load) {
		return &entity.AuditRecord{
				CustomerName: "Acme",
				InvoiceDate:  date(2024, 3, 1),
				Amount:       decimal.RequireFromString("500"),
			}, &entity.Load{
				CustomerName: "Acme",
				DeliveryDate: date(2024, 3, 1),
				GrossAmount:  decimal.RequireFromString("500.00"),
			}
	}

	tests := []struct {
		name   string
		mutate func(r *entity.AuditRecord, l *entity.Load)
		want   bool
	}{
		{"identical", func(r *entity.AuditRecord, l *entity.Load) {}, false},
		{"same day different clock", func(r *entity.AuditRecord, l *entity.Load) {
			t := l.DeliveryDate.Add(9 * time.Hour)
			l.DeliveryDate = &t
		}, false},
		{"customer changed", func(r *entity.AuditRecord, l *entity.Load) { l.CustomerName = "Acme LLC" }, true},
		{"amount changed", func(r *entity.AuditRecord, l *entity.Load) { l.GrossAmount = decimal.RequireFromString("501") }, true},
		{"date changed", func(r *entity.AuditRecord, l *entity.Load) { l.DeliveryDate = date(2024, 3, 2) }, true},
		{"date removed", func(r *entity.AuditRecord, l *entity.Load) { l.DeliveryDate = nil }, true},
		{"both undated", func(r *entity.AuditRecord, l *entity.Load) { r.InvoiceDate, l.DeliveryDate = nil, nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, l := base()
			tt.mutate(r, l)
			if got := NeedsRefresh(r, l); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
			if tt.want {
				RefreshFromLoad(r, l)
				if NeedsRefresh(r, l) {
					t.Error("record still differs after RefreshFromLoad")
				}
			}
		})
	}
}

func TestApplyImport(t *testing.T) {
	existing := &entity.AuditRecord{
		ID:            7,
		CustomerName:  "Acme",
		InvoiceNumber: "PENDING-42",
		InvoiceDate:   date(2024, 3, 1),
		PONumber:      "PO100",
		Amount:        decimal.RequireFromString("500"),
		Source:        entity.SourceFromLoad,
	}
	imported := &entity.AuditRecord{
		CustomerName:  "Acme Freight",
		InvoiceNumber: "INV-77",
		PONumber:      "po100",
		Amount:        decimal.RequireFromString("500.00"),
		Source:        entity.SourceImported,
		Matched:       true,
	}

	ApplyImport(existing, imported)

	if existing.ID != 7 || existing.PONumber != "PO100" {
		t.Errorf("identity changed: %+v", existing)
	}
	if existing.InvoiceNumber != "INV-77" || existing.CustomerName != "Acme Freight" {
		t.Errorf("fields not overwritten: %+v", existing)
	}
	if existing.InvoiceDate != nil {
		t.Errorf("InvoiceDate = %v, want nil", existing.InvoiceDate)
	}
	if existing.Source != entity.SourceImported || !existing.Matched {
		t.Errorf("source/matched = %v/%v", existing.Source, existing.Matched)
	}
}

func TestStatusColor(t *testing.T) {
	if StatusColor(entity.MatchStatusBilled) == StatusColor(entity.MatchStatusUnbilled) {
		t.Error("billed and unbilled share a color")
	}
	if StatusColor("") != "" {
		t.Error("unknown status should have no color")
	}
}

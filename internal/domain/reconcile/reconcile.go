// Package reconcile holds the pure billing rules shared by the engine and
// the presentation layer. Nothing here performs I/O.
package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
)

// NormalizePO is the comparison form of a PO number.
func NormalizePO(po string) string {
	return strings.ToUpper(strings.TrimSpace(po))
}

// IsBilled reports whether a record counts as invoiced.
func IsBilled(r *entity.AuditRecord) bool {
	return r.Source == entity.SourceImported || r.Matched
}

// StatusOf derives the match status of a record.
func StatusOf(r *entity.AuditRecord) entity.MatchStatus {
	if IsBilled(r) {
		return entity.MatchStatusBilled
	}
	return entity.MatchStatusUnbilled
}

// IndexLoadsByPO maps normalized PO to load. Loads without a PO are left
// out; when two loads share a PO the later one wins.
func IndexLoadsByPO(loads []*entity.Load) map[string]*entity.Load {
	idx := make(map[string]*entity.Load, len(loads))
	for _, l := range loads {
		if l == nil {
			continue
		}
		po := NormalizePO(l.PONumber)
		if po == "" {
			continue
		}
		idx[po] = l
	}
	return idx
}

// CrossReference annotates every record with its match status and the
// driver of the load sharing its PO. It only writes the derived fields, so
// running it twice over the same inputs gives the same result.
func CrossReference(records []*entity.AuditRecord, loads []*entity.Load) {
	byPO := IndexLoadsByPO(loads)
	for _, r := range records {
		if r == nil {
			continue
		}
		r.MatchStatus = StatusOf(r)
		if l, ok := byPO[NormalizePO(r.PONumber)]; ok {
			r.DriverName = l.DriverName
		} else {
			r.DriverName = ""
		}
	}
}

// PlaceholderFromLoad builds the FROM_LOAD record for a load that has no
// audit record yet.
func PlaceholderFromLoad(l *entity.Load) *entity.AuditRecord {
	rec := &entity.AuditRecord{
		CustomerName:  l.CustomerName,
		InvoiceNumber: entity.PendingInvoicePrefix + strconv.FormatInt(l.ID, 10),
		PONumber:      strings.TrimSpace(l.PONumber),
		Amount:        l.GrossAmount,
		Source:        entity.SourceFromLoad,
		Matched:       false,
	}
	if l.DeliveryDate != nil {
		d := *l.DeliveryDate
		rec.InvoiceDate = &d
	}
	return rec
}

// NeedsRefresh reports whether a placeholder differs from its load in
// customer, date or amount.
func NeedsRefresh(r *entity.AuditRecord, l *entity.Load) bool {
	if r.CustomerName != l.CustomerName {
		return true
	}
	if !sameDay(r.InvoiceDate, l.DeliveryDate) {
		return true
	}
	return !r.Amount.Equal(l.GrossAmount)
}

// RefreshFromLoad copies customer, date and amount from the load.
func RefreshFromLoad(r *entity.AuditRecord, l *entity.Load) {
	r.CustomerName = l.CustomerName
	r.Amount = l.GrossAmount
	if l.DeliveryDate != nil {
		d := *l.DeliveryDate
		r.InvoiceDate = &d
	} else {
		r.InvoiceDate = nil
	}
}

// ApplyImport overwrites an existing record with an imported invoice. The
// record becomes IMPORTED and matched; it never goes back to FROM_LOAD.
func ApplyImport(existing, imported *entity.AuditRecord) {
	existing.CustomerName = imported.CustomerName
	existing.InvoiceNumber = imported.InvoiceNumber
	existing.Amount = imported.Amount
	if imported.InvoiceDate != nil {
		d := *imported.InvoiceDate
		existing.InvoiceDate = &d
	} else {
		existing.InvoiceDate = nil
	}
	existing.Source = entity.SourceImported
	existing.Matched = true
}

// StatusColor is the row tint the table view uses for a status.
func StatusColor(s entity.MatchStatus) string {
	switch s {
	case entity.MatchStatusBilled:
		return "#C8E6C9"
	case entity.MatchStatusUnbilled:
		return "#FFCDD2"
	default:
		return ""
	}
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

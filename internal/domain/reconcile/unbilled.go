package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
)

// ExportDateLayout is the M/D/YY layout the billing portal expects.
const ExportDateLayout = "1/2/06"

// CreateAction is the literal action column of an unbilled export line.
const CreateAction = "CREATE"

// DateRange is an inclusive delivery-date filter. A nil bound is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range, comparing calendar
// days. An undated load only passes a fully open range.
func (r *DateRange) Contains(t *time.Time) bool {
	if r == nil || (r.From == nil && r.To == nil) {
		return true
	}
	if t == nil {
		return false
	}
	day := truncateDay(*t)
	if r.From != nil && day.Before(truncateDay(*r.From)) {
		return false
	}
	if r.To != nil && day.After(truncateDay(*r.To)) {
		return false
	}
	return true
}

// UnbilledLoads returns the loads whose PO has no billed record, filtered
// by delivery date and ordered by delivery date then PO. Loads without a
// PO cannot be invoiced and are left out.
func UnbilledLoads(records []*entity.AuditRecord, loads []*entity.Load, rng *DateRange) []*entity.Load {
	billed := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r != nil && IsBilled(r) {
			billed[NormalizePO(r.PONumber)] = struct{}{}
		}
	}

	var out []*entity.Load
	for _, l := range loads {
		if l == nil {
			continue
		}
		po := NormalizePO(l.PONumber)
		if po == "" {
			continue
		}
		if _, ok := billed[po]; ok {
			continue
		}
		if !rng.Contains(l.DeliveryDate) {
			continue
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DeliveryDate, out[j].DeliveryDate
		switch {
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return NormalizePO(out[i].PONumber) < NormalizePO(out[j].PONumber)
	})
	return out
}

// FormatUnbilledExport renders one tab-separated line per load:
// customer, CREATE, invoice date, PO, amount with two decimals.
func FormatUnbilledExport(loads []*entity.Load, invoiceDate time.Time) string {
	date := invoiceDate.Format(ExportDateLayout)
	lines := make([]string, 0, len(loads))
	for _, l := range loads {
		lines = append(lines, strings.Join([]string{
			cleanField(l.CustomerName),
			CreateAction,
			date,
			cleanField(l.PONumber),
			l.GrossAmount.StringFixed(2),
		}, "\t"))
	}
	return strings.Join(lines, "\n")
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func cleanField(s string) string {
	return strings.TrimSpace(fieldCleaner.Replace(s))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

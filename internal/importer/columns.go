package importer

import (
	"fmt"
	"strings"
)

// Field is a canonical column of an invoice audit sheet.
type Field string

const (
	FieldCustomer      Field = "customer"
	FieldInvoiceNumber Field = "invoice_number"
	FieldInvoiceDate   Field = "invoice_date"
	FieldPONumber      Field = "po_number"
	FieldAmount        Field = "amount"
)

// RequiredFields lists every column a sheet must provide, in report order.
var RequiredFields = []Field{
	FieldCustomer,
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldPONumber,
	FieldAmount,
}

func (f Field) valid() bool {
	for _, r := range RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}

// defaultAliases maps every known header spelling to its field.
// Keys are in normalized form (see normalizeHeader).
var defaultAliases = map[string]Field{
	"DRIVER":        FieldCustomer,
	"DRIVER NAME":   FieldCustomer,
	"CUSTOMER":      FieldCustomer,
	"CUSTOMER NAME": FieldCustomer,
	"NAME":          FieldCustomer,
	"BILL TO":       FieldCustomer,

	"INVOICE":        FieldInvoiceNumber,
	"INVOICE #":      FieldInvoiceNumber,
	"INVOICE NUMBER": FieldInvoiceNumber,
	"INVOICE NO":     FieldInvoiceNumber,
	"INVOICE_NO":     FieldInvoiceNumber,
	"INVOICE_NUMBER": FieldInvoiceNumber,
	"INV_NUM":        FieldInvoiceNumber,
	"INVNUM":         FieldInvoiceNumber,
	"INV #":          FieldInvoiceNumber,
	"INV#":           FieldInvoiceNumber,

	"INV_DATE":     FieldInvoiceDate,
	"INVDATE":      FieldInvoiceDate,
	"INVOICE DATE": FieldInvoiceDate,
	"INVOICE_DATE": FieldInvoiceDate,
	"INV DATE":     FieldInvoiceDate,
	"DATE":         FieldInvoiceDate,

	"PO":             FieldPONumber,
	"PO#":            FieldPONumber,
	"PO #":           FieldPONumber,
	"PO NUMBER":      FieldPONumber,
	"PO_NUMBER":      FieldPONumber,
	"PONUMBER":       FieldPONumber,
	"PO NO":          FieldPONumber,
	"PURCHASE ORDER": FieldPONumber,

	"AMOUNT":         FieldAmount,
	"AMT":            FieldAmount,
	"INV_AMT":        FieldAmount,
	"INVOICE AMOUNT": FieldAmount,
	"TOTAL AMOUNT":   FieldAmount,
	"BALANCE":        FieldAmount,
}

// aliasTable is the effective header lookup of one importer.
type aliasTable map[string]Field

func newAliasTable(extra map[string][]string) (aliasTable, error) {
	t := make(aliasTable, len(defaultAliases))
	for alias, f := range defaultAliases {
		t[alias] = f
	}
	for name, aliases := range extra {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		if !f.valid() {
			return nil, fmt.Errorf("unknown import field %q", name)
		}
		for _, a := range aliases {
			if key := normalizeHeader(a); key != "" {
				t[key] = f
			}
		}
	}
	return t, nil
}

// isAlias reports whether s is spelled like a header.
func (t aliasTable) isAlias(s string) bool {
	_, ok := t[normalizeHeader(s)]
	return ok
}

// columnMap is the resolved position of each field in a row.
type columnMap map[Field]int

func (m columnMap) missing() []string {
	var out []string
	for _, f := range RequiredFields {
		if _, ok := m[f]; !ok {
			out = append(out, string(f))
		}
	}
	return out
}

func (m columnMap) complete() bool {
	return len(m.missing()) == 0
}

// resolveColumns maps a header row onto the canonical fields. The first
// column carrying an alias of a field wins.
func (t aliasTable) resolveColumns(header []string) columnMap {
	cols := make(columnMap, len(RequiredFields))
	for i, cell := range header {
		f, ok := t[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, taken := cols[f]; !taken {
			cols[f] = i
		}
	}
	return cols
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006-01-02",
	"1-2-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-06",
	"02-Jan-2006",
	"2006-01-02 15:04:05",
}

// Serial day numbers outside this window are not treated as dates.
const (
	minDateSerial = 1
	maxDateSerial = 2958465 // 9999-12-31
)

// parseDate returns nil when the cell holds no recognisable date.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < minDateSerial || serial > maxDateSerial {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}

var amountCleaner = strings.NewReplacer("$", "", "USD", "", ",", "", " ", "", "\u00a0", "")

// parseAmount returns zero when the cell is not a number.
// Accounting negatives like "(12.50)" are honoured.
func parseAmount(s string) decimal.Decimal {
	s = amountCleaner.Replace(strings.ToUpper(strings.TrimSpace(s)))
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

var noiseTokens = []string{"SUBTOTAL", "TOTAL", "PAGE"}

// isNoise reports whether a text cell is a footer, page marker or a
// repeated header rather than data.
func (t aliasTable) isNoise(s string) bool {
	u := strings.ToUpper(s)
	for _, tok := range noiseTokens {
		if strings.Contains(u, tok) {
			return true
		}
	}
	return t.isAlias(s)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

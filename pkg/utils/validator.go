package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayouts are the date spellings accepted on the API and command line
var DateLayouts = []string{"2006-01-02", "1/2/2006", "1/2/06"}

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ParseOptionalDate parses s with DateLayouts. An empty string is a nil date.
func ParseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
}

// ParseDateOr parses s, returning def when s is empty
func ParseDateOr(s string, def time.Time) (time.Time, error) {
	t, err := ParseOptionalDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return def, nil
	}
	return *t, nil
}

// ValidateDateOrder checks that from is not after to when both are set
func ValidateDateOrder(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return fmt.Errorf("start date %s is after end date %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return nil
}

// ParseMoney parses a user-entered amount such as "1,234.50" or "$80"
func ParseMoney(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative: %s", s)
	}
	return d.Round(2), nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

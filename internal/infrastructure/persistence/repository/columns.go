package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayout is how calendar dates are stored in TEXT columns
const dateLayout = "2006-01-02"

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func scanDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", ns.String, err)
	}
	return &t, nil
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

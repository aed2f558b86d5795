package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Load is a dispatched load as seen by billing. It is owned by the
// dispatch side of the application and treated as read-only here.
type Load struct {
	ID           int64           `json:"id"`
	PONumber     string          `json:"po_number"`
	CustomerName string          `json:"customer_name"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	DeliveryDate *time.Time      `json:"delivery_date,omitempty"`
	DriverName   string          `json:"driver_name"`
	Status       LoadStatus      `json:"status"`
}

// GrossCents returns the gross amount in whole cents.
func (l *Load) GrossCents() int64 {
	return l.GrossAmount.Round(2).Shift(2).IntPart()
}

package entity

// RecordSource tells where an audit record came from.
type RecordSource string

const (
	SourceImported RecordSource = "IMPORTED"  // formal invoice from a spreadsheet import
	SourceFromLoad RecordSource = "FROM_LOAD" // placeholder created from load data
)

// Valid reports whether s is a known source.
func (s RecordSource) Valid() bool {
	return s == SourceImported || s == SourceFromLoad
}

// MatchStatus is the derived billing state of a record.
type MatchStatus string

const (
	MatchStatusBilled   MatchStatus = "BILLED"
	MatchStatusUnbilled MatchStatus = "UNBILLED"
)

// LoadStatus is the dispatch status of a load.
type LoadStatus string

const (
	LoadStatusBooked     LoadStatus = "BOOKED"
	LoadStatusDispatched LoadStatus = "DISPATCHED"
	LoadStatusInTransit  LoadStatus = "IN_TRANSIT"
	LoadStatusDelivered  LoadStatus = "DELIVERED"
	LoadStatusPaid       LoadStatus = "PAID"
	LoadStatusCancelled  LoadStatus = "CANCELLED"
)

// PendingInvoicePrefix prefixes the invoice number of load placeholders.
const PendingInvoicePrefix = "PENDING-"

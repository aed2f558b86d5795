// Package lifecycle describes the states an audit record moves through,
// keyed by PO number, and which events may move it.
package lifecycle

import "github.com/haulmark/invoice-audit/internal/domain/entity"

// State is the lifecycle position of the record for one PO.
type State string

const (
	StateAbsent   State = "ABSENT"   // no record for the PO yet
	StatePending  State = "PENDING"  // FROM_LOAD placeholder, not yet invoiced
	StateInvoiced State = "INVOICED" // IMPORTED invoice
)

var validStates = map[State]bool{
	StateAbsent:   true,
	StatePending:  true,
	StateInvoiced: true,
}

// IsValid returns true if the state is known.
func (s State) IsValid() bool {
	return validStates[s]
}

func (s State) String() string {
	return string(s)
}

// StateOf places an existing record (or nil) in the lifecycle.
func StateOf(r *entity.AuditRecord) State {
	switch {
	case r == nil:
		return StateAbsent
	case r.Source == entity.SourceImported:
		return StateInvoiced
	default:
		return StatePending
	}
}

package lifecycle

// Trigger is an event that can move a record between states.
type Trigger string

const (
	TriggerImport   Trigger = "IMPORT"    // a valid spreadsheet row for the PO
	TriggerLoadSync Trigger = "LOAD_SYNC" // a delivered or paid load with the PO
)

func (t Trigger) String() string {
	return string(t)
}

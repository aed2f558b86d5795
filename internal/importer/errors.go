package importer

import (
	"fmt"
	"strings"
)

// FormatError reports an input that cannot be imported at all. Nothing
// from such an input is persisted.
type FormatError struct {
	Source  string
	Reason  string
	Missing []string
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("invalid import file %q: %s", e.Source, e.Reason)
	if len(e.Missing) > 0 {
		msg += " (missing: " + strings.Join(e.Missing, ", ") + ")"
	}
	return msg
}

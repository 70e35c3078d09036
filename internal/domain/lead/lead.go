package lead

import "time"

// Lead is a prospective customer row fetched from the external sheet.
// Leads are ephemeral: the source is re-fetched every cycle and the same
// phone may reappear across (or within) cycles, so nothing here is trusted
// as unique or persisted by the core.
type Lead struct {
	Name       string
	Phone      string // raw, as typed into the sheet
	CapturedAt time.Time
}

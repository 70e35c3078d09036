// internal/domain/message/store.go
package message

import (
	"fmt"
	"time"
)

// Store is the append-only log of message events. It is the single source of
// truth for "has this phone already been messaged": all dispatch decisions
// replay it (or a cache kept consistent with it) rather than trusting
// in-memory state across restarts.
type Store interface {
	// Append durably adds one record. A failed write is requeued, never dropped.
	Append(entry Entry) error
	// Phones replays the log and returns the set of phones with at least one
	// row whose status matches the filter. Matching any row (not just the
	// latest) keeps a phone in the do-not-resend set even after its Sent row
	// is rewritten to Seen. No filter means every phone in the log.
	Phones(statuses ...Status) (map[string]bool, error)
	// Entries returns raw rows in the inclusive date range, for the control
	// surface. Zero bounds mean unbounded.
	Entries(from, to time.Time) ([]Entry, error)
	// TransitionToSeen rewrites the most recent Sent row for phone to Seen and
	// returns the recorded name. ok is false when no Sent row exists or the
	// row was already transitioned; calling twice is a no-op after the first.
	TransitionToSeen(phone string) (name string, ok bool, err error)
}

// PersistenceError wraps a log write failure that is being retried.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("log write to %s failed: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

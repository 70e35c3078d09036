package message

import "time"

// Entry is one row of the append-only message log.
// A logical Sent -> Seen transition rewrites the most recent Sent row for the
// phone in place; it never appends a second row. The catalog log uses the same
// type but only ever carries StatusSent and no Seen columns.
type Entry struct {
	Phone         string // normalized, the join key
	Name          string
	Timestamp     time.Time
	Status        Status
	SeenTimestamp time.Time // zero unless Status == StatusSeen
	TimeToSeeSecs int64     // elapsed seconds between send and seen
	LastUpdated   time.Time // zero unless the row was rewritten
}

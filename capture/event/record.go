// Package event defines the record type flowing through rewind. Any
// producer (an instrumented page recorder) or consumer (a replay player)
// imports this package to exchange records with the capture session.
package event

import "encoding/json"

// Kind is the numeric discriminant of a record. Only KindFullSnapshot has
// meaning to the capture core; every other value is an incremental change
// whose semantics belong to the producer and the player.
type Kind int

const (
	KindDomContentLoaded    Kind = 0
	KindLoad                Kind = 1
	KindFullSnapshot        Kind = 2 // complete reconstructable page state, usable as replay anchor
	KindIncrementalSnapshot Kind = 3
	KindMeta                Kind = 4
	KindCustom              Kind = 5
	KindPlugin              Kind = 6
)

// Record is a single timestamped UI mutation.
type Record struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"` // opaque, never inspected
	Timestamp int64           `json:"timestamp"`      // epoch milliseconds
}

// IsSnapshot reports whether r is a full snapshot.
func (r Record) IsSnapshot() bool {
	return r.Type == KindFullSnapshot
}

// Snapshot builds a full-snapshot record.
func Snapshot(ts int64, data json.RawMessage) Record {
	return Record{Type: KindFullSnapshot, Data: data, Timestamp: ts}
}

// Delta builds an incremental record.
func Delta(ts int64, data json.RawMessage) Record {
	return Record{Type: KindIncrementalSnapshot, Data: data, Timestamp: ts}
}

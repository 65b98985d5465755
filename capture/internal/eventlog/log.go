// Package eventlog holds the bounded in-memory record log and the replay
// window extraction that reads it.
//
// Insertion order is the canonical order: entries are only ever appended at
// the tail and dropped by filtering, never reordered. Full snapshots are
// never evicted by age since every later delta needs one as its anchor;
// their count is bounded by the producer's checkout cadence.
package eventlog

import (
	"time"

	"github.com/hazyhaar/rewind/capture/event"
)

// Log is an append-only record sequence trimmed on every append.
// It is not safe for concurrent use; the owning session serialises access.
type Log struct {
	retention int64 // ms
	entries   []event.Record
}

// New creates an empty Log that evicts deltas older than retention,
// measured against the newest appended record.
func New(retention time.Duration) *Log {
	return &Log{retention: retention.Milliseconds()}
}

// Append trims entries outside the retention horizon of rec, then
// appends rec.
func (l *Log) Append(rec event.Record) {
	l.entries = trimInPlace(l.entries, rec.Timestamp-l.retention)
	l.entries = append(l.entries, rec)
}

// All returns a copy of the retained entries, oldest first.
func (l *Log) All() []event.Record {
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]event.Record, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int { return len(l.entries) }

// Clear empties the log.
func (l *Log) Clear() {
	clear(l.entries)
	l.entries = l.entries[:0]
}

// SetAll replaces the content with a copy of recs. No trimming is applied:
// the caller resynchronises from a source that was already trimmed.
func (l *Log) SetAll(recs []event.Record) {
	l.entries = append(l.entries[:0:0], recs...)
}

// Trim returns a new slice holding the entries of recs that survive the
// retention rule relative to the last entry.
func Trim(recs []event.Record, retention time.Duration) []event.Record {
	if len(recs) == 0 {
		return nil
	}
	cutoff := recs[len(recs)-1].Timestamp - retention.Milliseconds()
	out := make([]event.Record, 0, len(recs))
	for _, r := range recs {
		if r.IsSnapshot() || r.Timestamp >= cutoff {
			out = append(out, r)
		}
	}
	return out
}

// trimInPlace keeps snapshots and entries at or after cutoff, reusing the
// backing array.
func trimInPlace(entries []event.Record, cutoff int64) []event.Record {
	kept := entries[:0]
	for _, e := range entries {
		if e.IsSnapshot() || e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}
	clear(entries[len(kept):])
	return kept
}

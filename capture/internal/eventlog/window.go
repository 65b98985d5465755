package eventlog

import (
	"errors"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
)

// ErrNoAnchor is reported by callers when Extract yields nothing because
// no full snapshot exists. Extract itself returns an empty result.
var ErrNoAnchor = errors.New("eventlog: no full snapshot available for replay")

// Extract selects the replayable suffix of entries covering the trailing
// duration d, measured back from the last entry.
//
// The anchor is the latest snapshot at or before the cutoff; when none
// exists the earliest snapshot is used instead. The result runs from the
// anchor to the end, keeping every snapshot and every entry at or after the
// cutoff. Without any snapshot the result is empty.
//
// entries is not modified; the result is a fresh slice.
func Extract(entries []event.Record, d time.Duration) []event.Record {
	if len(entries) == 0 {
		return nil
	}
	if d < 0 {
		d = 0
	}

	cutoff := entries[len(entries)-1].Timestamp - d.Milliseconds()

	anchor := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsSnapshot() && entries[i].Timestamp <= cutoff {
			anchor = i
			break
		}
	}
	if anchor == -1 {
		anchor = firstSnapshot(entries)
		if anchor == -1 {
			return nil
		}
	}

	tail := entries[anchor:]
	out := make([]event.Record, 0, len(tail))
	for _, e := range tail {
		if e.IsSnapshot() || e.Timestamp >= cutoff {
			out = append(out, e)
		}
	}
	return out
}

func firstSnapshot(entries []event.Record) int {
	for i, e := range entries {
		if e.IsSnapshot() {
			return i
		}
	}
	return -1
}

package capture

import (
	"time"

	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/capture/internal/eventlog"
)

// ErrNoAnchor reports a non-empty record set without any full snapshot.
var ErrNoAnchor = eventlog.ErrNoAnchor

// ExtractWindow returns the records needed to replay the trailing d of
// recs, starting at a full snapshot. recs must be in timestamp order.
func ExtractWindow(recs []event.Record, d time.Duration) []event.Record {
	return eventlog.Extract(recs, d)
}

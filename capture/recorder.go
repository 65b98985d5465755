package capture

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/rewind/capture/internal/recorder"
)

// Recorder produces records for a session. Start must not call emit
// synchronously.
type Recorder = recorder.Recorder

// RecorderEmit receives records from a running Recorder.
type RecorderEmit = recorder.Emit

// RecorderHandle stops a running recorder.
type RecorderHandle = recorder.Handle

// RecorderOptions are the sampling options handed to a Recorder.
type RecorderOptions = recorder.Options

// PushRecorder receives records through Deliver.
type PushRecorder = recorder.Push

// FeedRecorder reads records from a stream.
type FeedRecorder = recorder.Feed

// FeedCounts tallies what a FeedRecorder has consumed.
type FeedCounts = recorder.FeedCounts

// Capture kinds.
const (
	KindFullPage = recorder.KindFullPage
	KindViewport = recorder.KindViewport
	KindArea     = recorder.KindArea
)

// ErrUnknownKind is returned by Start for an unsupported capture kind.
var ErrUnknownKind = recorder.ErrUnknownKind

// ErrNotRecording is returned by PushRecorder.Deliver when no run is active.
var ErrNotRecording = recorder.ErrNotRecording

// NewPushRecorder creates an idle push recorder.
func NewPushRecorder() *PushRecorder { return recorder.NewPush() }

// NewFeedRecorder creates a recorder reading JSON records from r.
func NewFeedRecorder(r io.Reader, logger *slog.Logger) *FeedRecorder {
	return recorder.NewFeed(r, logger)
}

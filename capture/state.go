package capture

import (
	"fmt"
	"time"

	"github.com/hazyhaar/rewind/capture/internal/mirror"
)

// RecorderState is whether the recorder is running.
type RecorderState int

const (
	RecorderIdle RecorderState = iota
	RecorderRecording
	RecorderPaused
)

var recorderStateNames = [...]string{"idle", "recording", "paused"}

func (s RecorderState) String() string {
	if s >= 0 && int(s) < len(recorderStateNames) {
		return recorderStateNames[s]
	}
	return fmt.Sprintf("RecorderState(%d)", int(s))
}

func (s RecorderState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RecorderState) UnmarshalText(b []byte) error {
	for i, n := range recorderStateNames {
		if n == string(b) {
			*s = RecorderState(i)
			return nil
		}
	}
	return fmt.Errorf("capture: unknown recorder state %q", b)
}

// SaveState is the state observers see. It extends RecorderState with
// Unsaved: stopped, with records that were neither saved nor discarded.
type SaveState int

const (
	SaveIdle SaveState = iota
	SaveRecording
	SavePaused
	SaveUnsaved
)

var saveStateNames = [...]string{"idle", "recording", "paused", "unsaved"}

func (s SaveState) String() string {
	if s >= 0 && int(s) < len(saveStateNames) {
		return saveStateNames[s]
	}
	return fmt.Sprintf("SaveState(%d)", int(s))
}

func (s SaveState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SaveState) UnmarshalText(b []byte) error {
	for i, n := range saveStateNames {
		if n == string(b) {
			*s = SaveState(i)
			return nil
		}
	}
	return fmt.Errorf("capture: unknown save state %q", b)
}

// saveStateOf maps the recorder state to the observable state.
func saveStateOf(r RecorderState, unsaved bool) SaveState {
	switch r {
	case RecorderRecording:
		return SaveRecording
	case RecorderPaused:
		return SavePaused
	}
	if unsaved {
		return SaveUnsaved
	}
	return SaveIdle
}

// MirrorStats reports the durable mirror's activity.
type MirrorStats = mirror.Stats

// Status is a consistent view of a Session.
type Status struct {
	ID        string        `json:"id,omitempty"`
	Target    string        `json:"target,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Recorder  RecorderState `json:"recorder_state"`
	Save      SaveState     `json:"save_state"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Records   int           `json:"records"`
	Appended  uint64        `json:"appended"`
	Dropped   uint64        `json:"dropped"`
	Mirror    MirrorStats   `json:"mirror"`
}

// IsRecording reports whether the recorder is running, paused or not.
func (s Status) IsRecording() bool { return s.Recorder != RecorderIdle }

// IsPaused reports whether the recorder is paused.
func (s Status) IsPaused() bool { return s.Recorder == RecorderPaused }

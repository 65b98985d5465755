package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/connectivity"
)

// maxDurationMs is the largest millisecond count a time.Duration holds.
const maxDurationMs = math.MaxInt64 / int64(time.Millisecond)

// Message actions.
const (
	ActionStart   = "START_RECORDING"
	ActionStop    = "STOP_RECORDING"
	ActionPause   = "PAUSE_RECORDING"
	ActionResume  = "RESUME_RECORDING"
	ActionData    = "GET_RECORDING_DATA"
	ActionReplay  = "START_REPLAY"
	ActionDiscard = "DISCARD_RECORDING"
	ActionSave    = "SAVE_RECORDING"
)

// Actions lists every message action a Session answers.
var Actions = []string{
	ActionStart, ActionStop, ActionPause, ActionResume,
	ActionData, ActionReplay, ActionDiscard, ActionSave,
}

// Result codes.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeAcquireFailed     = "acquire_failed"
	CodeBadRequest        = "bad_request"
	CodeClosed            = "closed"
	CodeInternal          = "internal"
)

// ActionPayload carries the arguments of every action; each action reads
// the fields it needs.
type ActionPayload struct {
	Target string `json:"target,omitempty"`
	Kind   string `json:"kind,omitempty"`
	// Type is accepted as a synonym of Kind.
	Type string `json:"type,omitempty"`
	// Duration is the replay window in milliseconds.
	Duration int64 `json:"duration,omitempty"`
}

// Result is the answer to every action. Domain failures are reported here,
// never as transport errors.
type Result struct {
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Code        string         `json:"code,omitempty"`
	IsRecording bool           `json:"is_recording"`
	IsPaused    bool           `json:"is_paused"`
	Status      *Status        `json:"status,omitempty"`
	Events      []event.Record `json:"events,omitzero"`
	EventsCount int            `json:"events_count,omitempty"`
}

// HandleAction runs one named action.
func (s *Session) HandleAction(ctx context.Context, action string, p ActionPayload) Result {
	var (
		st     Status
		err    error
		events []event.Record
		count  int
	)
	switch action {
	case ActionStart:
		kind := p.Kind
		if kind == "" {
			kind = p.Type
		}
		st, err = s.Start(ctx, StartRequest{Target: p.Target, Kind: kind})
	case ActionStop:
		st, err = s.Stop()
	case ActionPause:
		st, err = s.Pause()
	case ActionResume:
		st, err = s.Resume()
	case ActionDiscard:
		st = s.Discard()
	case ActionSave:
		st, err = s.MarkSaved()
	case ActionData:
		var data RecordingData
		data, err = s.RecordingData(ctx)
		st = s.Status()
		events, count = data.Events, len(data.Events)
	case ActionReplay:
		if p.Duration < 0 {
			return failure(s.Status(), fmt.Errorf("capture: negative replay duration %d", p.Duration), CodeBadRequest)
		}
		d := s.cfg.ReplayDuration
		if p.Duration > 0 {
			d = time.Duration(min(p.Duration, maxDurationMs)) * time.Millisecond
		}
		events, err = s.ReplayWindow(ctx, d)
		st = s.Status()
		count = len(events)
	default:
		return failure(s.Status(), fmt.Errorf("capture: unknown action %q", action), CodeBadRequest)
	}
	if err != nil {
		return failure(st, err, codeOf(err))
	}

	res := success(st)
	if action == ActionData || action == ActionReplay {
		if events == nil {
			events = []event.Record{}
		}
		res.Events = events
		res.EventsCount = count
	}
	return res
}

// RegisterConnectivity registers every action on r as a local handler.
// Payloads and responses are JSON.
func (s *Session) RegisterConnectivity(r *connectivity.Router) {
	for _, action := range Actions {
		r.RegisterLocal(action, func(ctx context.Context, payload []byte) ([]byte, error) {
			var p ActionPayload
			if len(payload) > 0 && string(payload) != "null" {
				if err := json.Unmarshal(payload, &p); err != nil {
					return json.Marshal(failure(s.Status(), fmt.Errorf("capture: decode payload: %w", err), CodeBadRequest))
				}
			}
			return json.Marshal(s.HandleAction(ctx, action, p))
		})
	}
}

func success(st Status) Result {
	return Result{
		Success:     true,
		IsRecording: st.IsRecording(),
		IsPaused:    st.IsPaused(),
		Status:      &st,
	}
}

func failure(st Status, err error, code string) Result {
	return Result{
		Error:       err.Error(),
		Code:        code,
		IsRecording: st.IsRecording(),
		IsPaused:    st.IsPaused(),
		Status:      &st,
	}
}

func codeOf(err error) string {
	var acq *AcquireError
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.As(err, &acq):
		return CodeAcquireFailed
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrUnknownKind):
		return CodeBadRequest
	}
	return CodeInternal
}

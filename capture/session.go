// Package capture keeps a rolling window of UI-mutation records produced by
// an external recorder and extracts self-contained replays of the most
// recent activity.
//
// A Session owns the record log, its durable mirror and the recording
// state machine:
//
//	sess := capture.New(capture.NewPushRecorder(), durable.NewMemory())
//	defer sess.Close()
//	sess.Start(ctx, capture.StartRequest{Target: "tab-1", Kind: capture.KindFullPage})
//	...
//	replay, err := sess.ReplayWindow(ctx, 30*time.Second)
//
// Every state change and every delivered record is serialised by one lock,
// so observers never see a partially applied transition.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/capture/internal/config"
	"github.com/hazyhaar/rewind/capture/internal/eventlog"
	"github.com/hazyhaar/rewind/capture/internal/mirror"
	"github.com/hazyhaar/rewind/capture/internal/recorder"
	"github.com/hazyhaar/rewind/durable"
	"github.com/hazyhaar/rewind/idgen"
)

const statusWriteTimeout = 5 * time.Second

// StartRequest names what to record.
type StartRequest struct {
	Target string `json:"target"`
	Kind   string `json:"kind,omitempty"` // full-page (default) | viewport | area
}

// RecordingData is the mirrored record list with the recorder flags.
type RecordingData struct {
	Events      []event.Record `json:"events"`
	IsRecording bool           `json:"is_recording"`
	IsPaused    bool           `json:"is_paused"`
}

// Session is a capture session. Create one with New.
type Session struct {
	cfg      CaptureConfig
	rec      recorder.Recorder
	store    durable.Store
	mirror   *mirror.Mirror
	logger   *slog.Logger
	listener func(Status)
	now      func() time.Time
	newID    idgen.Generator

	mu        sync.Mutex
	log       *eventlog.Log
	state     RecorderState
	unsaved   bool
	handle    recorder.Handle
	id        string
	target    string
	kind      string
	startedAt time.Time
	appended  uint64
	dropped   uint64
	closed    bool
	seq       uint64 // bumped on every transition

	pubMu     sync.Mutex
	published uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCaptureConfig sets retention horizons and store keys. Zero fields
// take their defaults.
func WithCaptureConfig(c CaptureConfig) Option {
	return func(s *Session) { s.cfg = c }
}

// WithIDGenerator sets the generator of session IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Session) { s.newID = gen }
}

// WithStatusListener registers fn to receive every status change. fn runs
// outside the session lock, in transition order.
func WithStatusListener(fn func(Status)) Option {
	return func(s *Session) { s.listener = fn }
}

// New creates an idle Session recording through rec and mirroring into
// store. The store stays owned by the caller.
func New(rec recorder.Recorder, store durable.Store, opts ...Option) *Session {
	s := &Session{
		rec:    rec,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  idgen.Default,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	full := config.Config{Capture: s.cfg}
	full.ApplyDefaults()
	s.cfg = full.Capture

	s.log = eventlog.New(s.cfg.MemoryRetention)
	s.mirror = mirror.New(store, s.cfg.EventsKey,
		mirror.WithRetention(s.cfg.PersistRetention),
		mirror.WithLogger(s.logger))
	return s
}

// Config returns the effective capture configuration.
func (s *Session) Config() CaptureConfig { return s.cfg }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Start begins a recording. It is allowed only while the recorder is idle;
// records left unsaved by a previous run are discarded.
func (s *Session) Start(ctx context.Context, req StartRequest) (Status, error) {
	opts, err := recorder.OptionsFor(req.Kind, s.cfg.MemoryRetention)
	if err != nil {
		return s.Status(), fmt.Errorf("capture: start: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, ErrClosed
	}
	if s.state != RecorderIdle {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, &InvalidTransitionError{Op: "start", From: st.Save}
	}
	if s.unsaved {
		s.logger.Warn("capture: discarding unsaved recording", "session", s.id, "records", s.log.Len())
	}
	s.clearLocked()

	h, err := s.rec.Start(ctx, opts, s.deliver)
	if err != nil {
		st, seq := s.transitionLocked()
		s.mu.Unlock()
		s.publish(st, seq)
		return st, &AcquireError{Kind: opts.Kind, Cause: err}
	}

	s.handle = recorder.Once(h)
	s.state = RecorderRecording
	s.id = s.newID()
	s.target = req.Target
	s.kind = opts.Kind
	s.startedAt = s.now()
	s.appended, s.dropped = 0, 0
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	s.logger.Info("capture: recording started", "session", st.ID, "target", st.Target, "kind", st.Kind)
	s.publish(st, seq)
	return st, nil
}

// Pause suspends capture. Only valid while recording.
func (s *Session) Pause() (Status, error) {
	return s.setPaused("pause", RecorderRecording, RecorderPaused)
}

// Resume continues a paused capture.
func (s *Session) Resume() (Status, error) {
	return s.setPaused("resume", RecorderPaused, RecorderRecording)
}

func (s *Session) setPaused(op string, from, to RecorderState) (Status, error) {
	s.mu.Lock()
	if s.state != from {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, &InvalidTransitionError{Op: op, From: st.Save}
	}
	s.state = to
	if p, ok := s.handle.(recorder.Pauser); ok {
		p.SetPaused(to == RecorderPaused)
	}
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	s.logger.Info("capture: recording "+to.String(), "session", st.ID)
	s.publish(st, seq)
	return st, nil
}

// Stop ends a recording and releases the recorder. The log is kept; if it
// holds records the session becomes Unsaved until MarkSaved or Discard.
func (s *Session) Stop() (Status, error) {
	s.mu.Lock()
	if s.state == RecorderIdle {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, &InvalidTransitionError{Op: "stop", From: st.Save}
	}
	h := s.handle
	s.handle = nil
	s.state = RecorderIdle
	s.unsaved = s.log.Len() > 0
	if !s.unsaved {
		s.unbindLocked()
	}
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	s.release(h, st.ID)
	s.logger.Info("capture: recording stopped", "session", st.ID, "records", st.Records, "save_state", st.Save)
	s.publish(st, seq)
	return st, nil
}

// Discard releases the recorder, drops every record (in memory and
// mirrored) and returns to Idle. It always succeeds.
func (s *Session) Discard() Status {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	id := s.id
	s.state = RecorderIdle
	s.clearLocked()
	s.unbindLocked()
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	s.release(h, id)
	s.logger.Info("capture: recording discarded", "session", id)
	s.publish(st, seq)
	return st
}

// MarkSaved acknowledges that the consumer persisted an Unsaved recording.
// The log and the mirror are cleared.
func (s *Session) MarkSaved() (Status, error) {
	s.mu.Lock()
	if s.state != RecorderIdle || !s.unsaved {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, &InvalidTransitionError{Op: "save", From: st.Save}
	}
	id := s.id
	s.clearLocked()
	s.unbindLocked()
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	s.logger.Info("capture: recording saved", "session", id)
	s.publish(st, seq)
	return st, nil
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// ReplayWindow returns the records needed to replay the last d of
// activity, starting at a full snapshot. When the in-memory log is empty
// (after a restart, say) it is reloaded from the mirror first. An empty
// result means no snapshot is available.
func (s *Session) ReplayWindow(ctx context.Context, d time.Duration) ([]event.Record, error) {
	s.mu.Lock()
	entries := s.log.All()
	s.mu.Unlock()

	if len(entries) == 0 {
		loaded, err := s.mirror.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture: replay: load mirror: %w", err)
		}
		s.mu.Lock()
		// Records may have arrived while the store was read.
		if s.log.Len() == 0 && len(loaded) > 0 {
			s.log.SetAll(loaded)
		}
		entries = s.log.All()
		s.mu.Unlock()
	}

	out := eventlog.Extract(entries, d)
	s.logger.Debug("capture: replay window", "duration", d, "entries", len(entries), "replay", len(out))
	return out, nil
}

// RecordingData returns the mirrored records and the recorder flags.
func (s *Session) RecordingData(ctx context.Context) (RecordingData, error) {
	recs, err := s.mirror.Load(ctx)
	if err != nil {
		return RecordingData{}, fmt.Errorf("capture: recording data: %w", err)
	}
	st := s.Status()
	if recs == nil {
		recs = []event.Record{}
	}
	return RecordingData{Events: recs, IsRecording: st.IsRecording(), IsPaused: st.IsPaused()}, nil
}

// Restore reloads the status persisted by a previous process. A recording
// that was running when that process died cannot be resumed: it comes
// back Unsaved, with its mirrored records. Restore only applies to a
// session that has not been used yet.
func (s *Session) Restore(ctx context.Context) (Status, error) {
	data, err := s.store.Read(ctx, s.cfg.StatusKey)
	if err != nil {
		return s.Status(), fmt.Errorf("capture: restore: read status: %w", err)
	}
	var prev Status
	if len(data) > 0 {
		if err := json.Unmarshal(data, &prev); err != nil {
			return s.Status(), fmt.Errorf("capture: restore: decode status: %w", err)
		}
	}
	recs, err := s.mirror.Load(ctx)
	if err != nil {
		return s.Status(), fmt.Errorf("capture: restore: load mirror: %w", err)
	}

	s.mu.Lock()
	if s.state != RecorderIdle || s.unsaved || s.log.Len() > 0 {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, &InvalidTransitionError{Op: "restore", From: st.Save}
	}
	if prev.Save != SaveIdle && len(recs) > 0 {
		s.log.SetAll(recs)
		s.unsaved = true
		s.id = prev.ID
		s.target = prev.Target
		s.kind = prev.Kind
		s.startedAt = prev.StartedAt
	}
	st, seq := s.transitionLocked()
	s.mu.Unlock()

	if st.Save == SaveUnsaved {
		s.logger.Info("capture: restored unsaved recording", "session", st.ID, "previous", prev.Save, "records", st.Records)
	}
	s.publish(st, seq)
	return st, nil
}

// Flush waits until the mirror has written every queued change.
func (s *Session) Flush(ctx context.Context) error {
	return s.mirror.Flush(ctx)
}

// Close releases the recorder and drains the mirror. The persisted status
// is left as it was, so a later Restore sees the interrupted recording.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handle
	s.handle = nil
	id := s.id
	s.mu.Unlock()

	s.release(h, id)
	s.mirror.Close()
	return nil
}

// deliver is the recorder's emit callback.
func (s *Session) deliver(rec event.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != RecorderRecording || s.closed {
		s.dropped++
		return
	}
	s.log.Append(rec)
	s.appended++
	s.mirror.Submit(s.log.All())
}

func (s *Session) release(h recorder.Handle, id string) {
	if h == nil {
		return
	}
	if err := h.Stop(); err != nil {
		s.logger.Warn("capture: recorder stop failed", "session", id, "error", err)
	}
}

func (s *Session) clearLocked() {
	s.log.Clear()
	s.mirror.SubmitClear()
	s.unsaved = false
}

func (s *Session) unbindLocked() {
	s.id, s.target, s.kind = "", "", ""
	s.startedAt = time.Time{}
}

func (s *Session) statusLocked() Status {
	return Status{
		ID:        s.id,
		Target:    s.target,
		Kind:      s.kind,
		Recorder:  s.state,
		Save:      saveStateOf(s.state, s.unsaved),
		StartedAt: s.startedAt,
		Records:   s.log.Len(),
		Appended:  s.appended,
		Dropped:   s.dropped,
		Mirror:    s.mirror.Stats(),
	}
}

func (s *Session) transitionLocked() (Status, uint64) {
	s.seq++
	return s.statusLocked(), s.seq
}

// publish notifies the listener and persists st, skipping anything older
// than what was already published.
func (s *Session) publish(st Status, seq uint64) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if seq <= s.published {
		return
	}
	s.published = seq

	if s.listener != nil {
		s.listener(st)
	}

	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Warn("capture: encode status failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	if err := s.store.Write(ctx, s.cfg.StatusKey, data); err != nil {
		s.logger.Warn("capture: persist status failed", "key", s.cfg.StatusKey, "error", err)
	}
}

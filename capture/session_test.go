package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/durable"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSession(t *testing.T, store durable.Store, opts ...Option) (*Session, *PushRecorder) {
	t.Helper()
	if store == nil {
		store = durable.NewMemory()
	}
	push := NewPushRecorder()
	s := New(push, store, append([]Option{WithLogger(quiet)}, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s, push
}

func flush(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func deliver(t *testing.T, p *PushRecorder, recs ...event.Record) {
	t.Helper()
	if _, err := p.Deliver(recs...); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func mustStart(t *testing.T, s *Session, target string) Status {
	t.Helper()
	st, err := s.Start(context.Background(), StartRequest{Target: target})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st
}

type failingRecorder struct{}

func (failingRecorder) Start(context.Context, RecorderOptions, RecorderEmit) (RecorderHandle, error) {
	return nil, errors.New("tab is gone")
}

func TestSaveStateMapping(t *testing.T) {
	cases := []struct {
		r       RecorderState
		unsaved bool
		want    SaveState
	}{
		{RecorderRecording, false, SaveRecording},
		{RecorderRecording, true, SaveRecording},
		{RecorderPaused, false, SavePaused},
		{RecorderIdle, false, SaveIdle},
		{RecorderIdle, true, SaveUnsaved},
	}
	for _, c := range cases {
		if got := saveStateOf(c.r, c.unsaved); got != c.want {
			t.Errorf("saveStateOf(%s, %v) = %s, want %s", c.r, c.unsaved, got, c.want)
		}
	}
}

func TestStateText(t *testing.T) {
	data, err := json.Marshal(Status{Recorder: RecorderPaused, Save: SaveUnsaved})
	if err != nil {
		t.Fatal(err)
	}
	var back Status
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Recorder != RecorderPaused || back.Save != SaveUnsaved {
		t.Fatalf("round trip: %s -> %+v", data, back)
	}
	var s SaveState
	if err := s.UnmarshalText([]byte("saved")); err == nil {
		t.Fatal("unknown state accepted")
	}
}

func TestStart_RejectedWhileRecording(t *testing.T) {
	s, _ := newSession(t, nil)
	mustStart(t, s, "A")

	st, err := s.Start(context.Background(), StartRequest{Target: "B"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Start: got %v", err)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.From != SaveRecording || ite.Op != "start" {
		t.Fatalf("error detail: %+v", err)
	}
	if st.Target != "A" || st.Save != SaveRecording {
		t.Fatalf("state changed: %+v", st)
	}
}

func TestStart_AcquireFailureStaysIdle(t *testing.T) {
	s := New(failingRecorder{}, durable.NewMemory(), WithLogger(quiet))
	defer s.Close()

	st, err := s.Start(context.Background(), StartRequest{Target: "A"})
	var acq *AcquireError
	if !errors.As(err, &acq) {
		t.Fatalf("got %v, want AcquireError", err)
	}
	if acq.Kind != KindFullPage || acq.Unwrap() == nil {
		t.Fatalf("error detail: %+v", acq)
	}
	if st.Save != SaveIdle || st.Target != "" {
		t.Fatalf("status after failure: %+v", st)
	}
}

func TestStart_UnknownKind(t *testing.T) {
	s, push := newSession(t, nil)
	_, err := s.Start(context.Background(), StartRequest{Kind: "window"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("got %v", err)
	}
	if push.Active() {
		t.Fatal("recorder started for an unknown kind")
	}
}

func TestStart_AssignsSessionAndKind(t *testing.T) {
	s, push := newSession(t, nil)
	st, err := s.Start(context.Background(), StartRequest{Target: "tab-1", Kind: KindArea})
	if err != nil {
		t.Fatal(err)
	}
	if st.ID == "" || st.Kind != KindArea || st.StartedAt.IsZero() {
		t.Fatalf("status: %+v", st)
	}
	if got := push.Options().Sampling.Mousemove; got != 50*time.Millisecond {
		t.Fatalf("area sampling not applied: %s", got)
	}
	if push.Options().CheckoutEvery != s.Config().MemoryRetention {
		t.Fatalf("checkout interval: %s", push.Options().CheckoutEvery)
	}
}

func TestPause_SuppressesRecords(t *testing.T) {
	s, push := newSession(t, nil)
	mustStart(t, s, "A")
	deliver(t, push, event.Snapshot(1000, nil), event.Delta(1100, nil))

	if _, err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	n, _ := push.Deliver(event.Delta(1200, nil))
	if n != 0 {
		t.Fatalf("recorder accepted %d records while paused", n)
	}
	// A record that slips past the recorder is still refused.
	s.deliver(event.Delta(1250, nil))

	st := s.Status()
	if st.Records != 2 || st.Dropped != 1 || st.Save != SavePaused {
		t.Fatalf("status while paused: %+v", st)
	}

	if _, err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double Pause: %v", err)
	}
	if _, err := s.Resume(); err != nil {
		t.Fatal(err)
	}
	deliver(t, push, event.Delta(1300, nil))
	if s.Status().Records != 3 {
		t.Fatalf("records after resume: %d", s.Status().Records)
	}
	if _, err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Resume while recording: %v", err)
	}
}

func TestDeliver_DroppedWhileIdle(t *testing.T) {
	s, _ := newSession(t, nil)
	s.deliver(event.Snapshot(1, nil))
	st := s.Status()
	if st.Records != 0 || st.Dropped != 1 {
		t.Fatalf("status: %+v", st)
	}
}

func TestStop_LeavesUnsaved(t *testing.T) {
	s, push := newSession(t, nil)
	mustStart(t, s, "A")
	deliver(t, push, event.Snapshot(1, nil), event.Delta(2, nil))

	st, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveUnsaved || st.Records != 2 || st.Target != "A" {
		t.Fatalf("after Stop: %+v", st)
	}
	if push.Active() {
		t.Fatal("recorder not released")
	}
	if _, err := s.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Stop while idle: %v", err)
	}

	st, err = s.MarkSaved()
	if err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveIdle || st.Records != 0 || st.Target != "" {
		t.Fatalf("after MarkSaved: %+v", st)
	}
	if _, err := s.MarkSaved(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second MarkSaved: %v", err)
	}
}

func TestStop_EmptyLogIsIdle(t *testing.T) {
	s, _ := newSession(t, nil)
	mustStart(t, s, "A")
	st, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveIdle {
		t.Fatalf("got %s", st.Save)
	}
}

func TestStart_FromUnsavedDiscardsOldRecords(t *testing.T) {
	s, push := newSession(t, nil)
	mustStart(t, s, "A")
	deliver(t, push, event.Snapshot(1, nil))
	s.Stop()

	st := mustStart(t, s, "B")
	if st.Records != 0 || st.Target != "B" {
		t.Fatalf("after restart: %+v", st)
	}
}

func TestDiscard_Idempotent(t *testing.T) {
	store := durable.NewMemory()
	s, push := newSession(t, store)
	mustStart(t, s, "A")
	deliver(t, push, event.Snapshot(1, nil), event.Delta(2, nil))
	flush(t, s)

	first := s.Discard()
	second := s.Discard()
	for _, st := range []Status{first, second} {
		if st.Save != SaveIdle || st.Records != 0 || st.Target != "" {
			t.Fatalf("after Discard: %+v", st)
		}
	}
	if push.Active() {
		t.Fatal("recorder not released")
	}

	flush(t, s)
	data, _ := store.Read(context.Background(), s.Config().EventsKey)
	if data != nil {
		t.Fatalf("mirror not cleared: %s", data)
	}
	recs, err := s.ReplayWindow(context.Background(), time.Minute)
	if err != nil || len(recs) != 0 {
		t.Fatalf("replay after discard: %v, %v", recs, err)
	}
}

func TestReplayWindow_AnchorsOnSnapshot(t *testing.T) {
	s, push := newSession(t, nil)
	mustStart(t, s, "A")
	deliver(t, push,
		event.Snapshot(0, nil),
		event.Delta(10_000, nil),
		event.Snapshot(20_000, nil),
		event.Delta(40_000, nil),
		event.Delta(55_000, nil),
		event.Delta(60_000, nil),
	)

	recs, err := s.ReplayWindow(context.Background(), 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var ts []int64
	for _, r := range recs {
		ts = append(ts, r.Timestamp)
	}
	want := []int64{20_000, 40_000, 55_000, 60_000}
	if len(ts) != len(want) {
		t.Fatalf("got %v, want %v", ts, want)
	}
	for i := range want {
		if ts[i] != want[i] {
			t.Fatalf("got %v, want %v", ts, want)
		}
	}
}

func TestReplayWindow_RecoversFromMirror(t *testing.T) {
	store := durable.NewMemory()
	a, push := newSession(t, store)
	mustStart(t, a, "A")
	deliver(t, push, event.Snapshot(1000, nil), event.Delta(2000, nil), event.Delta(3000, nil))
	a.Close()

	b, _ := newSession(t, store)
	recs, err := b.ReplayWindow(context.Background(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || !recs[0].IsSnapshot() {
		t.Fatalf("recovered %+v", recs)
	}
	if b.Status().Records != 3 {
		t.Fatalf("recovered records not installed: %+v", b.Status())
	}
}

func TestRestore_InterruptedRecordingIsUnsaved(t *testing.T) {
	store := durable.NewMemory()
	a, push := newSession(t, store)
	started := mustStart(t, a, "tab-7")
	deliver(t, push, event.Snapshot(1, nil), event.Delta(2, nil))
	a.Pause()
	a.Close()

	b, _ := newSession(t, store)
	st, err := b.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveUnsaved || st.Records != 2 || st.Target != "tab-7" || st.ID != started.ID {
		t.Fatalf("restored %+v", st)
	}
	if st.IsRecording() {
		t.Fatal("restored session claims to be recording")
	}

	if _, err := b.Restore(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Restore: %v", err)
	}
	if _, err := b.MarkSaved(); err != nil {
		t.Fatalf("MarkSaved after restore: %v", err)
	}
}

func TestRestore_NothingPersisted(t *testing.T) {
	s, _ := newSession(t, nil)
	st, err := s.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveIdle {
		t.Fatalf("got %+v", st)
	}
}

func TestStatusListener_SeesTransitionsInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []SaveState
	s, push := newSession(t, nil, WithStatusListener(func(st Status) {
		mu.Lock()
		seen = append(seen, st.Save)
		mu.Unlock()
	}))

	mustStart(t, s, "A")
	deliver(t, push, event.Snapshot(1, nil))
	s.Pause()
	s.Resume()
	s.Stop()
	s.Discard()

	mu.Lock()
	defer mu.Unlock()
	want := []SaveState{SaveRecording, SavePaused, SaveRecording, SaveUnsaved, SaveIdle}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got %v, want %v", seen, want)
		}
	}
}

func TestStatus_PersistedUnderStatusKey(t *testing.T) {
	store := durable.NewMemory()
	s, _ := newSession(t, store)
	mustStart(t, s, "A")

	data, err := store.Read(context.Background(), "record-state")
	if err != nil || data == nil {
		t.Fatalf("status not persisted: %v", err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Save != SaveRecording || st.Target != "A" {
		t.Fatalf("persisted %+v", st)
	}
}

func TestRetention_TrimsLiveLog(t *testing.T) {
	s, push := newSession(t, nil, WithCaptureConfig(CaptureConfig{MemoryRetention: time.Second}))
	mustStart(t, s, "A")
	deliver(t, push,
		event.Snapshot(0, nil),
		event.Delta(100, nil),
		event.Delta(5000, nil),
		event.Delta(5500, nil),
	)
	if got := s.Status().Records; got != 3 {
		t.Fatalf("records = %d, want 3 (snapshot + two recent deltas)", got)
	}
}

func TestClose_ReleasesRecorder(t *testing.T) {
	s, push := newSession(t, nil)
	mustStart(t, s, "A")
	s.Close()
	if push.Active() {
		t.Fatal("recorder still active after Close")
	}
	if _, err := s.Start(context.Background(), StartRequest{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close: %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	st, err := OpenStore(StoreConfig{Backend: BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()
	if _, err := OpenStore(StoreConfig{Backend: "etcd"}); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestStart_UsesIDGenerator(t *testing.T) {
	n := 0
	seq := func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
	s, _ := newSession(t, nil, WithIDGenerator(seq))
	if st := mustStart(t, s, "A"); st.ID != "rec-1" {
		t.Fatalf("first id %q", st.ID)
	}
	s.Discard()
	if st := mustStart(t, s, "A"); st.ID != "rec-2" {
		t.Fatalf("second id %q", st.ID)
	}
}

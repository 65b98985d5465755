package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hazyhaar/rewind/capture/event"
)

// Feed is a Recorder that reads records from a stream (JSON lines or a
// JSON array), such as the stdout of an instrumented browser piped into
// `rewind serve --feed -`. The stream is consumed by a single reader
// goroutine, started on the first Start; records read while no run is
// active, or while the run is paused, are discarded. Lines that are not
// records are counted and skipped.
type Feed struct {
	r      io.Reader
	logger *slog.Logger

	startOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex
	run    *feedRun
	counts FeedCounts
	err    error
}

// FeedCounts tallies what a Feed has consumed.
type FeedCounts struct {
	Read      uint64 `json:"read"`
	Discarded uint64 `json:"discarded"` // read while no run accepted them
	Invalid   uint64 `json:"invalid"`   // lines skipped as malformed
}

// NewFeed creates a Feed over r. A nil logger means slog.Default().
func NewFeed(r io.Reader, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{r: r, logger: logger, done: make(chan struct{})}
}

type feedRun struct {
	f      *Feed
	emit   Emit
	paused bool
}

// Start activates a run and, the first time, the reader goroutine.
func (f *Feed) Start(_ context.Context, opts Options, emit Emit) (Handle, error) {
	f.mu.Lock()
	if f.run != nil {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	run := &feedRun{f: f, emit: emit}
	f.run = run
	f.mu.Unlock()

	f.startOnce.Do(func() { go f.loop() })
	f.logger.Debug("recorder: feed run started", "kind", opts.Kind)
	return run, nil
}

// Done is closed once the stream is exhausted or failed.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Err returns the error that ended the stream, nil on a clean EOF.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Counts returns a snapshot of the feed's tallies.
func (f *Feed) Counts() FeedCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *Feed) loop() {
	defer close(f.done)
	dec := event.NewDecoder(f.r)
	for {
		rec, err := dec.Next()
		var lineErr *event.LineError
		if errors.As(err, &lineErr) {
			f.mu.Lock()
			f.counts.Invalid++
			f.mu.Unlock()
			f.logger.Warn("recorder: feed line skipped", "line", lineErr.Line, "error", lineErr.Err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.logger.Info("recorder: feed ended")
				return
			}
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
			f.logger.Error("recorder: feed decode failed", "error", err)
			return
		}

		f.mu.Lock()
		f.counts.Read++
		var emit Emit
		if f.run != nil && !f.run.paused {
			emit = f.run.emit
		} else {
			f.counts.Discarded++
		}
		f.mu.Unlock()

		if emit != nil {
			emit(rec)
		}
	}
}

func (r *feedRun) Stop() error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.run == r {
		r.f.run = nil
	}
	return nil
}

func (r *feedRun) SetPaused(paused bool) {
	r.f.mu.Lock()
	r.paused = paused
	r.f.mu.Unlock()
}

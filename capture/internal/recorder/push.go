package recorder

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/rewind/capture/event"
)

// ErrNotRecording is returned by Push.Deliver when no run is active.
var ErrNotRecording = errors.New("recorder: not recording")

// Push is a Recorder fed by an external producer: records arrive through
// Deliver (the HTTP ingest endpoint, tests) instead of being observed.
type Push struct {
	mu   sync.Mutex
	run  *pushRun
	opts Options
}

// NewPush creates an idle push recorder.
func NewPush() *Push {
	return &Push{}
}

type pushRun struct {
	p      *Push
	emit   Emit
	paused bool
}

// Start activates the recorder. Only one run may be active at a time.
func (p *Push) Start(_ context.Context, opts Options, emit Emit) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return nil, ErrBusy
	}
	p.run = &pushRun{p: p, emit: emit}
	p.opts = opts
	return p.run, nil
}

// Deliver forwards records to the active run. Records are swallowed while
// the run is paused; accepted reports how many reached emit.
func (p *Push) Deliver(recs ...event.Record) (accepted int, err error) {
	p.mu.Lock()
	run := p.run
	if run == nil {
		p.mu.Unlock()
		return 0, ErrNotRecording
	}
	if run.paused {
		p.mu.Unlock()
		return 0, nil
	}
	emit := run.emit
	p.mu.Unlock()

	// emit takes the session lock; it must run without p.mu held.
	for _, r := range recs {
		emit(r)
	}
	return len(recs), nil
}

// Active reports whether a run is in progress.
func (p *Push) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Options returns the options of the latest run.
func (p *Push) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

func (r *pushRun) Stop() error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	if r.p.run == r {
		r.p.run = nil
	}
	return nil
}

func (r *pushRun) SetPaused(paused bool) {
	r.p.mu.Lock()
	r.paused = paused
	r.p.mu.Unlock()
}

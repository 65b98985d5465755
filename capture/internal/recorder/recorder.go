// Package recorder is the boundary to the external component that turns UI
// mutations into records. rewind never observes a page itself: a Recorder
// is started with the sampling options of a capture kind and calls emit for
// every record it produces until its Handle is stopped.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
)

// Capture kinds.
const (
	KindFullPage = "full-page"
	KindViewport = "viewport"
	KindArea     = "area"
)

// ErrUnknownKind is returned by OptionsFor for an unsupported capture kind.
var ErrUnknownKind = errors.New("recorder: unknown capture kind")

// ErrBusy is returned by Start when the recorder already has an active handle.
var ErrBusy = errors.New("recorder: already started")

// Sampling throttles high-frequency mutations.
type Sampling struct {
	Scroll    time.Duration `json:"scroll"`
	Mousemove time.Duration `json:"mousemove"`
	Input     string        `json:"input"` // "last" keeps only the final value of a burst
}

// Options configures one recording run.
type Options struct {
	Kind string `json:"kind"`
	// CheckoutEvery asks the recorder for a fresh full snapshot at this
	// cadence so a retention window always contains an anchor.
	CheckoutEvery time.Duration `json:"checkout_every"`
	RecordCanvas  bool          `json:"record_canvas"`
	CollectFonts  bool          `json:"collect_fonts"`
	Sampling      Sampling      `json:"sampling"`
}

// OptionsFor returns the options for a capture kind. An empty kind means
// full-page.
func OptionsFor(kind string, checkoutEvery time.Duration) (Options, error) {
	if kind == "" {
		kind = KindFullPage
	}
	o := Options{
		Kind:          kind,
		CheckoutEvery: checkoutEvery,
		RecordCanvas:  true,
		CollectFonts:  true,
		Sampling: Sampling{
			Scroll:    150 * time.Millisecond,
			Mousemove: 100 * time.Millisecond,
			Input:     "last",
		},
	}
	switch kind {
	case KindFullPage:
		o.Sampling.Scroll = 100 * time.Millisecond
	case KindViewport:
	case KindArea:
		o.Sampling.Mousemove = 50 * time.Millisecond
	default:
		return Options{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return o, nil
}

// Emit receives records from a running recorder. It may be called from any
// goroutine and must not block on I/O.
type Emit func(event.Record)

// Recorder starts recording runs.
type Recorder interface {
	Start(ctx context.Context, opts Options, emit Emit) (Handle, error)
}

// Handle stops a running recorder.
type Handle interface {
	Stop() error
}

// Pauser is implemented by handles whose recorder can suppress emission
// itself while paused.
type Pauser interface {
	SetPaused(paused bool)
}

// Once wraps h so that Stop reaches it at most once. SetPaused is forwarded
// when h supports it.
func Once(h Handle) Handle {
	return &onceHandle{h: h}
}

type onceHandle struct {
	h    Handle
	once sync.Once
	err  error
}

func (o *onceHandle) Stop() error {
	o.once.Do(func() { o.err = o.h.Stop() })
	return o.err
}

func (o *onceHandle) SetPaused(paused bool) {
	if p, ok := o.h.(Pauser); ok {
		p.SetPaused(paused)
	}
}

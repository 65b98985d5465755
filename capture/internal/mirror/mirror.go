// Package mirror copies the live record log into a durable store in the
// background. Writes are coalesced: only the latest submitted state is
// persisted (last-write-wins), and failures are logged, counted and
// dropped so the capture path never waits on the store.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/capture/internal/eventlog"
	"github.com/hazyhaar/rewind/durable"
)

// Stats reports mirror activity.
type Stats struct {
	Writes   uint64 `json:"writes"`
	Clears   uint64 `json:"clears"`
	Failures uint64 `json:"failures"`
	Skipped  uint64 `json:"skipped"` // superseded before they were written
}

// op is a pending store operation. A nil records slice with clear set
// means "remove the key".
type op struct {
	clear   bool
	records []event.Record
}

// Mirror owns one background writer for one store key.
type Mirror struct {
	store     durable.Store
	key       string
	retention time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	pending  *op
	inflight *op // being applied by the writer
	stats    Stats
	idle     *sync.Cond

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithRetention trims deltas older than d (relative to the newest record)
// before each write. Zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(m *Mirror) { m.retention = d }
}

// WithWriteTimeout bounds each store call. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Mirror) { m.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// New creates a Mirror and starts its writer goroutine. Call Close to
// flush and stop it.
func New(store durable.Store, key string, opts ...Option) *Mirror {
	m := &Mirror{
		store:   store,
		key:     key,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.idle = sync.NewCond(&m.mu)
	go m.loop()
	return m
}

// Submit queues records for persistence. It never blocks on the store.
func (m *Mirror) Submit(records []event.Record) {
	cp := make([]event.Record, len(records))
	copy(cp, records)
	m.enqueue(&op{records: cp})
}

// SubmitClear queues removal of the mirrored key.
func (m *Mirror) SubmitClear() {
	m.enqueue(&op{clear: true})
}

// Load returns the mirrored records. A queued operation that has not
// reached the store yet is authoritative, so callers read their own writes.
func (m *Mirror) Load(ctx context.Context) ([]event.Record, error) {
	m.mu.Lock()
	p := m.pending
	if p == nil {
		p = m.inflight
	}
	if p != nil {
		var out []event.Record
		if !p.clear {
			out = m.trim(p.records)
		}
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	data, err := m.store.Read(ctx, m.key)
	if err != nil {
		return nil, err
	}
	return event.UnmarshalRecords(data)
}

// Flush blocks until every queued operation has been applied or ctx ends.
func (m *Mirror) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.idle.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.pending != nil || m.inflight != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.idle.Wait()
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (m *Mirror) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close applies the last queued operation and stops the writer. It does
// not close the store.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

func (m *Mirror) enqueue(o *op) {
	m.mu.Lock()
	if m.pending != nil {
		m.stats.Skipped++
	}
	m.pending = o
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.wake:
			m.drain()
		case <-m.stop:
			m.drain()
			return
		}
	}
}

// drain applies pending operations until none is left.
func (m *Mirror) drain() {
	for {
		m.mu.Lock()
		m.inflight = nil
		o := m.pending
		m.pending = nil
		if o == nil {
			m.idle.Broadcast()
			m.mu.Unlock()
			return
		}
		m.inflight = o
		m.mu.Unlock()

		m.apply(o)
	}
}

func (m *Mirror) apply(o *op) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if o.clear {
		err := m.store.Clear(ctx, m.key)
		m.record(err, true)
		if err != nil {
			m.logger.Warn("mirror: clear failed", "key", m.key, "error", err)
		}
		return
	}

	recs := m.trim(o.records)
	data, err := event.MarshalRecords(recs)
	if err == nil {
		err = m.store.Write(ctx, m.key, data)
	}
	m.record(err, false)
	if err != nil {
		m.logger.Warn("mirror: write failed", "key", m.key, "records", len(recs), "error", err)
	}
}

// trim returns a copy of recs cut to the persisted retention.
func (m *Mirror) trim(recs []event.Record) []event.Record {
	if m.retention > 0 {
		return eventlog.Trim(recs, m.retention)
	}
	return append([]event.Record(nil), recs...)
}

func (m *Mirror) record(err error, isClear bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil:
		m.stats.Failures++
	case isClear:
		m.stats.Clears++
	default:
		m.stats.Writes++
	}
}

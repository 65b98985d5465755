// Package durable provides the key-value stores rewind mirrors its record
// log into. Values are opaque bytes; the capture session decides what they
// hold.
//
//	store := durable.NewMemory()
//	db, err := durable.OpenSQLite("data/rewind.db")
//	rs, err := durable.NewRedis(&durable.RedisConfig{Host: "localhost", Port: 6379})
//
// All implementations are safe for concurrent use.
package durable

import (
	"context"
	"errors"
	"sync"
)

// Store is a durable key-value sink.
type Store interface {
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value []byte) error
	// Read returns the value stored under key, or nil, nil when absent.
	Read(ctx context.Context, key string) ([]byte, error)
	// Clear removes key. Clearing an absent key is not an error.
	Clear(ctx context.Context, key string) error
	// Close releases the store's resources.
	Close() error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("durable: store closed")

// Memory is an in-process Store. Data does not survive the process; it
// backs tests and single-run sessions.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = cloneBytes(value)
	return nil
}

func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return cloneBytes(v), nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

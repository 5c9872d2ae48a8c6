// Package local persists per-install client state: the voter identity, the
// voted-pairs cache and the rate-limit counters.
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/pkg/metrics"
)

// Sentinel errors.
var (
	ErrClosed = errors.New("local store closed")
)

// Store is a string key/value store with optional per-key expiry.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes value under key. A ttl <= 0 never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store, mainly for tests and ephemeral runs.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]entry
	clock  clockwork.Clock
	closed bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock used for expiry.
func WithMemoryClock(c clockwork.Clock) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		data:  make(map[string]entry),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	e, ok := m.data[key]
	if !ok || (!e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt)) {
		metrics.RecordLocalOp("get", "miss")
		return "", false, nil
	}
	metrics.RecordLocalOp("get", "hit")
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.data[key] = e
	metrics.RecordLocalOp("set", "ok")
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	metrics.RecordLocalOp("delete", "ok")
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

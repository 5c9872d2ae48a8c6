// Package report collects user-facing error notices raised by the vote and
// sync paths.
package report

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const (
	// DefaultDismiss applies when Report is called with a zero duration.
	DefaultDismiss  = 5 * time.Second
	defaultCapacity = 100
)

// Reporter receives fire-and-forget error notices. A negative autoDismiss
// keeps the notice until dismissed explicitly.
type Reporter interface {
	Report(ctx context.Context, title, detail string, autoDismiss time.Duration)
}

// Entry is one notice in the feed.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Feed is an in-memory Reporter holding the newest notices first.
// Expired notices are dropped lazily on read.
type Feed struct {
	mu       sync.Mutex
	entries  []Entry
	clock    clockwork.Clock
	capacity int
	logger   logger.Logger
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(f *Feed) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithCapacity bounds the number of retained notices.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// NewFeed creates an empty feed.
func NewFeed(opts ...Option) *Feed {
	f := &Feed{
		clock:    clockwork.NewRealClock(),
		capacity: defaultCapacity,
		logger:   logger.Get().Named("report"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Report adds a notice to the head of the feed.
func (f *Feed) Report(ctx context.Context, title, detail string, autoDismiss time.Duration) {
	if autoDismiss == 0 {
		autoDismiss = DefaultDismiss
	}
	now := f.clock.Now()
	e := Entry{
		ID:        uuid.NewString(),
		Title:     title,
		Detail:    detail,
		CreatedAt: now,
	}
	if autoDismiss > 0 {
		e.ExpiresAt = now.Add(autoDismiss)
	}

	f.mu.Lock()
	f.entries = append([]Entry{e}, f.entries...)
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
	f.mu.Unlock()

	metrics.RecordErrorReport(title)
	f.logger.Warn(ctx, title, logger.String("detail", detail), logger.String("report_id", e.ID))
}

// List returns live notices, newest first.
func (f *Feed) List() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Dismiss removes a notice by id. It reports whether one was removed.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every notice.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}

func (f *Feed) pruneLocked() {
	now := f.clock.Now()
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt) {
			kept = append(kept, e)
		}
	}
	f.entries = kept
}

// Package ratelimit enforces the per-voter vote cadence and hourly quota.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

// Persisted state keys.
const (
	KeyLastVote    = "arena_last_vote_time"
	KeyHourlyCount = "arena_hourly_vote_count"
	KeyWindowStart = "arena_hourly_window_start"
)

const (
	defaultMinInterval = time.Second
	defaultWindow      = time.Hour
	defaultHourlyQuota = 50
)

// KV is the persisted key/value store the limiter keeps its counters in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// State is a snapshot of the limiter counters, times in unix milliseconds.
type State struct {
	LastVoteMS    int64 `json:"last_vote_ms"`
	WindowStartMS int64 `json:"window_start_ms"`
	HourlyCount   int   `json:"hourly_count"`
}

// Limiter gates vote submissions. Counters advance only via RecordSuccess.
type Limiter struct {
	mu          sync.Mutex
	kv          KV
	clock       clockwork.Clock
	minInterval time.Duration
	window      time.Duration
	quota       int
	state       State
	logger      logger.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a Limiter persisting to kv: one vote per second, 50 per hour.
func New(kv KV, opts ...Option) *Limiter {
	l := &Limiter{
		kv:          kv,
		clock:       clockwork.NewRealClock(),
		minInterval: defaultMinInterval,
		window:      defaultWindow,
		quota:       defaultHourlyQuota,
		logger:      logger.Get().Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the persisted counters. Missing or unparsable values read as
// zero. An expired window is reset on load.
func (l *Limiter) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var st State
	var err error
	if st.LastVoteMS, err = l.readInt(ctx, KeyLastVote); err != nil {
		return err
	}
	if st.WindowStartMS, err = l.readInt(ctx, KeyWindowStart); err != nil {
		return err
	}
	count, err := l.readInt(ctx, KeyHourlyCount)
	if err != nil {
		return err
	}
	st.HourlyCount = int(count)
	l.state = st
	l.resetExpiredLocked(l.clock.Now().UnixMilli())
	return nil
}

func (l *Limiter) readInt(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		l.logger.Warn(ctx, "ignoring unparsable rate limit value", logger.String("key", key), logger.String("value", raw))
		return 0, nil
	}
	return v, nil
}

func (l *Limiter) resetExpiredLocked(now int64) {
	if now-l.state.WindowStartMS > l.window.Milliseconds() {
		l.state.HourlyCount = 0
		l.state.WindowStartMS = now
	}
}

// Check reports whether a vote may be submitted now. It fails with
// ErrTooFrequent inside the cadence interval and ErrHourlyQuotaExceeded once
// the window quota is used up. Check never consumes quota.
func (l *Limiter) Check(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UnixMilli()
	if l.state.LastVoteMS != 0 && now-l.state.LastVoteMS < l.minInterval.Milliseconds() {
		return model.ErrTooFrequent
	}
	l.resetExpiredLocked(now)
	if l.state.WindowStartMS == 0 {
		l.state.WindowStartMS = now
	}
	if l.state.HourlyCount >= l.quota {
		return model.ErrHourlyQuotaExceeded
	}
	return nil
}

// RecordSuccess advances the counters after a committed vote and persists
// all three keys.
func (l *Limiter) RecordSuccess(ctx context.Context) error {
	l.mu.Lock()
	now := l.clock.Now().UnixMilli()
	if l.state.WindowStartMS == 0 {
		l.state.WindowStartMS = now
	}
	l.state.LastVoteMS = now
	l.state.HourlyCount++
	st := l.state
	l.mu.Unlock()

	for key, v := range map[string]int64{
		KeyLastVote:    st.LastVoteMS,
		KeyHourlyCount: int64(st.HourlyCount),
		KeyWindowStart: st.WindowStartMS,
	} {
		if err := l.kv.Set(ctx, key, strconv.FormatInt(v, 10), 0); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	return nil
}

// Snapshot returns the current counters.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

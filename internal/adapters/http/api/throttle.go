package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	throttleCleanupEvery = 5 * time.Minute
	throttleIdleAfter    = 10 * time.Minute
)

// Throttle applies a token bucket per client address.
type Throttle struct {
	mu        sync.Mutex
	clients   map[string]*throttleEntry
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithThrottleClock sets the clock used for token refill and cleanup.
func WithThrottleClock(c clockwork.Clock) ThrottleOption {
	return func(t *Throttle) {
		if c != nil {
			t.clock = c
		}
	}
}

// NewThrottle allows perSecond sustained requests and burst immediate ones
// per client address.
func NewThrottle(perSecond float64, burst int, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		clients: make(map[string]*throttleEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.cleanupAt = t.clock.Now().Add(throttleCleanupEvery)
	return t
}

// Allow reports whether a request from addr may proceed.
func (t *Throttle) Allow(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if now.After(t.cleanupAt) {
		t.cleanupLocked(now)
		t.cleanupAt = now.Add(throttleCleanupEvery)
	}

	e, ok := t.clients[addr]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.clients[addr] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (t *Throttle) cleanupLocked(now time.Time) {
	cutoff := now.Add(-throttleIdleAfter)
	for addr, e := range t.clients {
		if e.lastSeen.Before(cutoff) {
			delete(t.clients, addr)
		}
	}
}

// Clients returns the number of tracked client addresses.
func (t *Throttle) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Middleware rejects requests over the limit with 429.
func (t *Throttle) Middleware(next http.HandlerFunc) http.HandlerFunc {
	retryAfter := "1"
	if t.rate > 0 && t.rate < 1 {
		retryAfter = strconv.Itoa(int(1/float64(t.rate)) + 1)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(clientAddr(r)) {
			metrics.RecordHTTPThrottled()
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "throttled", ErrThrottled)
			return
		}
		next(w, r)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package worker turns candidate change notifications into catalog refreshes.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Refresher reloads the candidate catalog from the remote store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the loop to exit.
	Shutdown(ctx context.Context) error
}

// RefreshWorker drains bursts of change events and refreshes once per burst.
// Events carry only the changed id, so every burst triggers a full reload.
type RefreshWorker struct {
	queue     Queue
	refresher Refresher
	name      string

	refreshes atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewRefreshWorker creates a worker reading from q.
func NewRefreshWorker(q Queue, r Refresher, opts ...Option) *RefreshWorker {
	w := &RefreshWorker{
		queue:     q,
		refresher: r,
		name:      "refresh-worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *RefreshWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			burst := 1 + drain(events)
			if err := w.process(ctx, event, burst); err != nil {
				w.logger.Error(ctx, "refresh failed", logger.Error(err))
			}
		}
	}
}

// drain discards events already waiting and returns how many there were.
func drain(events <-chan Event) int {
	n := 0
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (w *RefreshWorker) process(ctx context.Context, first Event, burst int) error {
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	for i := 0; i < burst; i++ {
		metrics.RecordQueueDequeue()
		metrics.RecordChangeEvent()
	}

	w.logger.Debug(ctx, "refreshing catalog",
		logger.String("kind", string(first.Kind)),
		logger.String("candidate_id", first.CandidateID),
		logger.Int("coalesced", burst),
		logger.Duration("age", queue.Since(first)),
	)
	if err := w.refresher.Refresh(ctx); err != nil {
		metrics.RecordErrorByComponent("worker", "refresh_error")
		return fmt.Errorf("refresh after %s of %s: %w", first.Kind, first.CandidateID, err)
	}
	w.refreshes.Add(1)
	return nil
}

// Refreshes returns how many refreshes completed successfully.
func (w *RefreshWorker) Refreshes() int64 {
	return w.refreshes.Load()
}

// Shutdown stops the worker.
func (w *RefreshWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

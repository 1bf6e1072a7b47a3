package event

import (
	"context"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/exception"
)

// Queue is a bounded, non-blocking sink. Full-queue publishes are dropped and
// counted rather than stalling a tracker loop.
type Queue struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	metrics *obs.Metrics
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int, metrics *obs.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity), metrics: metrics}
}

// TryPublish enqueues an event without blocking. The send happens under the
// read lock, so it can never race Close's close of the channel.
func (q *Queue) TryPublish(e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Emit implements Sink. Failures are counted and logged, never propagated.
func (q *Queue) Emit(e Event) {
	err := q.TryPublish(e)
	switch err {
	case nil:
	case exception.ErrQueueFull:
		q.metrics.IncQueueDrop()
		logs.Warnf("event queue full, dropped %s for %s", e.Kind, e.ClanTag)
	case exception.ErrQueueClosed:
		q.metrics.IncQueueClosed()
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// LogSink writes every event through the structured logger. It is the default
// sink when no notifier is wired.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(e Event) {
	logs.Infof("event %s clan=%s at=%s", e.Kind, e.ClanTag, e.At.Format("15:04:05"))
}

package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrShutdown is returned by Offer and Take after the queue has been shut
// down. It marks the end of the sequence, not a failure.
var ErrShutdown = errors.New("queue: shut down")

// Queue is an ordered multi-producer/multi-consumer delivery queue.
// Use [NewBounded] or [NewUnbounded] to create one.
type Queue[T any] struct {
	capacity int // 0 = unbounded

	in   chan T
	out  chan T
	done chan struct{}

	shutdown sync.Once
}

// NewBounded creates a queue holding at most capacity items. Offer blocks
// while the queue is full. capacity must be >= 1.
func NewBounded[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return newQueue[T](capacity)
}

// NewUnbounded creates a queue without a capacity limit. Offer never blocks
// on capacity.
func NewUnbounded[T any]() *Queue[T] {
	return newQueue[T](0)
}

func newQueue[T any](capacity int) *Queue[T] {
	q := &Queue[T]{
		capacity: capacity,
		in:       make(chan T),
		out:      make(chan T),
		done:     make(chan struct{}),
	}
	go q.pump()
	return q
}

// pump owns the buffer. It stops accepting items once the buffer is at
// capacity (bounded mode), which is what blocks producers.
func (q *Queue[T]) pump() {
	var buf []T
	for {
		in := q.in
		if q.capacity > 0 && len(buf) >= q.capacity {
			in = nil
		}

		var (
			out  chan T
			head T
		)
		if len(buf) > 0 {
			out = q.out
			head = buf[0]
		}

		select {
		case <-q.done:
			return
		case v := <-in:
			buf = append(buf, v)
		case out <- head:
			buf = buf[1:]
		}
	}
}

// Offer enqueues v. For a bounded queue it blocks while the queue is full.
// It returns ErrShutdown if the queue has been shut down, or the context
// error if ctx is canceled while waiting.
func (q *Queue[T]) Offer(ctx context.Context, v T) error {
	if q.IsShutdown() {
		return ErrShutdown
	}
	select {
	case <-q.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	case q.in <- v:
		return nil
	}
}

// Take dequeues the next item, blocking until one is available. It returns
// ErrShutdown once the queue has been shut down, or the context error if ctx
// is canceled while waiting.
func (q *Queue[T]) Take(ctx context.Context) (v T, err error) {
	if q.IsShutdown() {
		return v, ErrShutdown
	}
	select {
	case <-q.done:
		return v, ErrShutdown
	case <-ctx.Done():
		return v, ctx.Err()
	case v = <-q.out:
		return v, nil
	}
}

// TryTake dequeues the next item without blocking.
func (q *Queue[T]) TryTake() (v T, ok bool) {
	select {
	case <-q.done:
		return v, false
	case v = <-q.out:
		return v, true
	default:
		return v, false
	}
}

// Shutdown terminates the queue. It is idempotent; buffered items are
// discarded and all current and future Offer/Take calls observe closure.
func (q *Queue[T]) Shutdown() {
	q.shutdown.Do(func() { close(q.done) })
}

// Done is closed when the queue has been shut down.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// IsShutdown reports whether Shutdown has been called.
func (q *Queue[T]) IsShutdown() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

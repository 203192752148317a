// Package queue provides a generic delivery queue that adapts push-style
// callback delivery into pull-style consumption.
//
// A [Queue] is ordered and safe for multiple producers and multiple
// consumers. It comes in two flavors:
//
//   - Unbounded ([NewUnbounded]): Offer never blocks on capacity.
//   - Bounded ([NewBounded]): Offer blocks while the queue is full. This is
//     the backpressure mechanism: a substrate callback pushing into a full
//     bounded queue stalls until the consumer catches up. Sharing one small
//     bounded queue across many deliveries stalls all of them, so size
//     bounded queues for the slowest acceptable consumer.
//
// # Shutdown
//
// [Queue.Shutdown] is terminal and idempotent. After shutdown no further
// items are delivered: pending and future [Queue.Take] calls return
// [ErrShutdown], pending and future [Queue.Offer] calls return
// [ErrShutdown], and buffered items are discarded. [Queue.Done] is closed on
// shutdown so bridges can deregister substrate listeners promptly.
//
// Reading until ErrShutdown is the normal way a consumer's sequence
// terminates; it is not a fault:
//
//	for {
//	    ev, err := q.Take(ctx)
//	    if err != nil {
//	        break // queue shut down (or ctx canceled)
//	    }
//	    handle(ev)
//	}
package queue

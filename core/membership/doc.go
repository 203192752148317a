// Package membership tracks cluster membership and republishes membership
// changes as a pull-based event stream.
//
// The package bridges a push-style membership substrate (a [Runtime]
// implementation, e.g. the NATS-backed one in adapters/nats, or
// [MemoryCluster] for tests) into [queue.Queue] consumption:
//
//	mon, _ := membership.NewMonitor(membership.Options{Runtime: rt})
//	_ = mon.Join(ctx, "node-a:4222")
//
//	events, _ := mon.Events(ctx)
//	for {
//	    ev, err := events.Take(ctx)
//	    if err != nil {
//	        break
//	    }
//	    switch e := ev.(type) {
//	    case membership.MemberUp:
//	        // e.Member joined and is up
//	    case membership.LeaderChanged:
//	        // e.Leader
//	    }
//	}
//
// # Cancellation
//
// An event subscription is canceled exclusively by shutting down its queue.
// The monitor watches the queue and deregisters the runtime listener as soon
// as it is shut down, so no subscription leaks.
//
// # Backpressure
//
// Events are pushed into the queue from the runtime's delivery goroutine. A
// bounded queue that is full blocks that goroutine until the consumer
// catches up. This is deliberate, but it means a single slow consumer with a
// small bounded queue can stall other deliveries sharing the runtime's
// dispatch path.
//
// # Consistency
//
// [Monitor.State] is a point-in-time snapshot, approximately consistent with
// the latest delivered event. An event subscription observes every event
// emitted after the Events call returned; events racing with subscription
// setup may be missed.
package membership

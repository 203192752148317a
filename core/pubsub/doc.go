// Package pubsub bridges a distributed topic registry into typed publish
// and queue-based listen operations.
//
// The substrate is abstracted as a [Mediator] (NATS-backed in adapters/nats,
// [MemoryMediator] for tests). On top of it, [PubSub] adds payload typing
// and the queue bridge:
//
//	ps, _ := pubsub.New[string](pubsub.Options{Mediator: med})
//
//	q, _ := ps.Listen(ctx, "t1")
//	_ = ps.Publish(ctx, "t1", "hello")
//
//	msg, _ := q.Take(ctx) // "hello"
//
// # Subscription acknowledgment
//
// Listen and ListenWith do not return before the mediator acknowledged the
// registration. A caller that proceeds after Listen returned is guaranteed
// not to miss a payload published to that topic/group afterwards
// (at-least-once from that point on). This ordering is the component's core
// correctness property.
//
// # Groups
//
// A subscription may name a group ([WithGroup]). Publishing with
// [WithOnePerGroup] delivers each message to at most one member of every
// registered group; subscribers without a group each count as their own
// group. Without the option, every individual subscriber receives the
// message. Both are delivery guarantees of the substrate that the mediator
// configures, not logic reimplemented here.
//
// # Cancellation
//
// Shutting down the listen queue is the only way to unsubscribe; the
// mediator registration is removed promptly and no further deliveries are
// attempted.
package pubsub

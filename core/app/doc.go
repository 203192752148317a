// Package app wires the bridge pieces into one runnable unit: a routing
// transport, a membership monitor, and a pub/sub mediator, with in-memory
// defaults so a single-process setup needs no configuration.
//
//	a, err := app.Run(app.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Stop()
//
//	counters, err := sharding.Start(ctx, a.ShardingOptions("counter"), countBehavior)
//	events, err := pubsub.New[OrderEvent](a.PubSubOptions())
//
// For a real cluster, pass the NATS-backed transport, runtime and mediator
// from adapters/nats instead of the defaults.
package app

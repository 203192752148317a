// Package cluster provides shard-based message routing with consistent
// hashing. It is the routing substrate the sharding bridge
// (core/sharding) registers entity types with: shard assignment and
// key-to-shard hashing live here, entity semantics live there.
//
// # Architecture
//
// The cluster consists of three main components:
//
//   - [Client]: Routes messages to shards via key or shard ID
//   - [Node]: Subscribes to owned shards and handles incoming messages
//   - [Transport]: Abstracts the underlying messaging infrastructure
//
// # Shard Distribution
//
// Shards are distributed across nodes using Highest Random Weight (HRW)
// consistent hashing via [ShardsForNode]. This ensures:
//
//   - Even distribution of shards across nodes
//   - Minimal shard movement when nodes join or leave
//   - Deterministic assignment given the same node list
//
// Keys are mapped to shards using [ShardFromString], which provides
// consistent, uniform distribution using BLAKE2b hashing. The Seed
// separates routing domains: two setups with different seeds never agree on
// shard placement, which is how distinct entity types stay apart.
//
// # Client Usage
//
//	client, err := cluster.NewClient(cluster.ClientOptions{
//	    Transport: natsTransport,
//	    NumShards: 64,
//	})
//
//	// Route by key (e.g. entity ID, tenant ID)
//	resp, err := client.Key("user:123").Request(ctx, GetUserQuery{ID: "123"})
//
//	// Route directly to shard
//	resp, err := client.Shard(5).Request(ctx, payload)
//
// # Node Usage
//
//	node := cluster.NewNode(cluster.NodeOptions{
//	    NodeID:    "node-1",
//	    Transport: natsTransport,
//	    Shards:    cluster.ShardsForNode("node-1", allNodeIDs, 64, ""),
//	    Handler: func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
//	        return response, nil
//	    },
//	})
//	node.Run(ctx)
//
// # Transport Layer
//
// The transport layer is abstracted via [Transport], [ClientTransport] and
// [ServerTransport]. The adapters/nats package provides the NATS
// implementation; [NewInMemoryTransport] serves tests and single-process
// runs.
//
// # Envelope
//
// Messages are wrapped in [Envelope] which carries:
//
//   - Shard: Target shard number
//   - Type: Message type for routing to handlers
//   - Data: Encoded payload
//   - Headers: Optional metadata (use [WithHeader]; x-cbr-* names are
//     reserved)
//   - TTL: Optional time-to-live (use [WithTTL])
//
// # Error Handling
//
// Common errors include:
//
//   - [ErrTransportNoShardSubscriber]: No node owns the target shard
//   - [ErrEnvelopeExpired]: Message TTL exceeded before delivery
//   - [ErrHandlerTimeout]: Handler exceeded context deadline
package cluster

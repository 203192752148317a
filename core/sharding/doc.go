// Package sharding distributes named entities across cluster nodes and
// delivers messages to them by entity id.
//
// Every entity id maps to a stable shard; each shard is owned by exactly
// one node. An entity comes to life on the first message addressed to it
// and keeps in-memory state until it is stopped, passivates itself, or is
// evicted under the entity cap. Messages for one entity are processed
// strictly one at a time, in arrival order; different entities run
// concurrently.
package sharding

// Package cache provides small cache primitives behind a single interface.
//
//   - [Mem]: unbounded map-backed store, entries live until deleted
//   - [LRU]: bounded store evicting the least recently used entry
//   - [Nop]: stores nothing, every lookup misses
//
// [NewTyped] wraps any of them with a typed accessor.
//
// The sharding bridge uses these as its entity cell registry: Mem for
// unbounded hosting, LRU when a cap on live entities is configured
// (eviction doubles as passivation).
package cache

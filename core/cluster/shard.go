package cluster

import (
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/codewandler/cbridge-go/internal/hrw"
)

// ShardFromString derives a stable shard (0..numShards-1) from an arbitrary
// string key. The optional seed separates routing domains.
func ShardFromString(key string, numShards uint32, seed string) uint32 {
	if numShards == 0 {
		return 0
	}
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	h.Write([]byte(key))
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum)
	return uint32(v % uint64(numShards))
}

// ShardsForNode returns the shards nodeID owns given the full node list,
// using HRW consistent hashing. Every node computing this with the same
// inputs agrees on the assignment.
func ShardsForNode(nodeID string, nodeIDs []string, numShards uint32, seed string) []uint32 {
	if numShards == 0 || len(nodeIDs) == 0 {
		return nil
	}

	nodes := append([]string(nil), nodeIDs...)
	sort.Strings(nodes)

	owned := make([]uint32, 0, numShards/uint32(len(nodes))+1)

	for shard := uint32(0); shard < numShards; shard++ {
		key := fmt.Sprintf("shard:%d", shard)
		if best, ok := hrw.Best(key, nodes, seed); ok && best == nodeID {
			owned = append(owned, shard)
		}
	}

	return owned
}

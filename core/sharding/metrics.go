package sharding

import "github.com/codewandler/cbridge-go/core/metrics"

// ShardingMetrics defines the metrics interface for entity sharding.
// All methods are thread-safe.
type ShardingMetrics interface {
	HandleDuration(name string) metrics.Timer
	HandleCompleted(name string, success bool)

	EntityStarted(name string)
	// EntityStopped reasons: stop, passivate, evict
	EntityStopped(name string, reason string)
	EntitiesActive(name string, count int)
}

type nopShardingMetrics struct{}

func (nopShardingMetrics) HandleDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopShardingMetrics) HandleCompleted(string, bool)        {}
func (nopShardingMetrics) EntityStarted(string)                {}
func (nopShardingMetrics) EntityStopped(string, string)        {}
func (nopShardingMetrics) EntitiesActive(string, int)          {}

// NopShardingMetrics returns a no-op ShardingMetrics implementation.
func NopShardingMetrics() ShardingMetrics { return nopShardingMetrics{} }

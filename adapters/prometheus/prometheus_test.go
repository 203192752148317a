package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClusterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClusterMetrics(reg)

	require.NotNil(t, m)

	// Test client operations
	timer := m.RequestDuration("cbr.entity.msg")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.RequestCompleted("cbr.entity.msg", true)
	m.RequestCompleted("cbr.entity.msg", false)
	m.NotifyCompleted("cbr.entity.stop", true)

	// Test transport errors
	m.TransportError("no_subscriber")
	m.TransportError("timeout")

	// Test handler operations
	timer = m.HandlerDuration("cbr.entity.msg")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.HandlerCompleted("cbr.entity.msg", true)

	// Test shards
	m.ShardsOwned("node-1", 10)

	// Verify metrics were registered
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["cbr_cluster_request_duration_seconds"])
	assert.True(t, names["cbr_cluster_transport_errors_total"])
	assert.True(t, names["cbr_cluster_shards_owned"])
}

func TestNewPubSubMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPubSubMetrics(reg)

	require.NotNil(t, m)

	timer := m.PublishDuration("news")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.PublishCompleted("news", true)
	m.PublishCompleted("news", false)
	m.SubscribeCompleted("news", true)
	m.Delivered("news")
	m.DeliveryError("news", "decode")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["cbr_pubsub_publish_duration_seconds"])
	assert.True(t, names["cbr_pubsub_delivered_total"])
	assert.True(t, names["cbr_pubsub_delivery_errors_total"])
}

func TestNewShardingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShardingMetrics(reg)

	require.NotNil(t, m)

	timer := m.HandleDuration("counter")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.HandleCompleted("counter", true)
	m.HandleCompleted("counter", false)
	m.EntityStarted("counter")
	m.EntityStopped("counter", "passivate")
	m.EntityStopped("counter", "evict")
	m.EntitiesActive("counter", 42)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["cbr_sharding_handle_duration_seconds"])
	assert.True(t, names["cbr_sharding_entities_stopped_total"])
	assert.True(t, names["cbr_sharding_entities_active"])
}

func TestNewAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllMetrics(reg)

	require.NotNil(t, m)
	require.NotNil(t, m.Cluster)
	require.NotNil(t, m.PubSub)
	require.NotNil(t, m.Sharding)

	// All metrics should be usable
	m.Cluster.RequestCompleted("test", true)
	m.PubSub.Delivered("test")
	m.Sharding.EntityStarted("test")

	// Verify all metric families registered
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}

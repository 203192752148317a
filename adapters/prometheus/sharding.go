package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/cbridge-go/core/metrics"
	"github.com/codewandler/cbridge-go/core/sharding"
)

// shardingMetrics implements sharding.ShardingMetrics using Prometheus.
type shardingMetrics struct {
	handleDuration *prometheus.HistogramVec
	handledTotal   *prometheus.CounterVec
	startedTotal   *prometheus.CounterVec
	stoppedTotal   *prometheus.CounterVec
	entitiesActive *prometheus.GaugeVec
}

// NewShardingMetrics creates a new Prometheus implementation of ShardingMetrics.
func NewShardingMetrics(reg prometheus.Registerer) sharding.ShardingMetrics {
	m := &shardingMetrics{
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbr_sharding_handle_duration_seconds",
			Help:    "Entity message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"entity_type"}),

		handledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_sharding_handled_total",
			Help: "Total number of entity messages handled",
		}, []string{"entity_type", "success"}),

		startedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_sharding_entities_started_total",
			Help: "Total number of entity starts",
		}, []string{"entity_type"}),

		stoppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_sharding_entities_stopped_total",
			Help: "Total number of entity stops by reason",
		}, []string{"entity_type", "reason"}),

		entitiesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cbr_sharding_entities_active",
			Help: "Number of live entities on this node",
		}, []string{"entity_type"}),
	}

	reg.MustRegister(
		m.handleDuration,
		m.handledTotal,
		m.startedTotal,
		m.stoppedTotal,
		m.entitiesActive,
	)

	return m
}

func (m *shardingMetrics) HandleDuration(name string) metrics.Timer {
	return newTimer(m.handleDuration.WithLabelValues(name))
}

func (m *shardingMetrics) HandleCompleted(name string, success bool) {
	m.handledTotal.WithLabelValues(name, boolToStr(success)).Inc()
}

func (m *shardingMetrics) EntityStarted(name string) {
	m.startedTotal.WithLabelValues(name).Inc()
}

func (m *shardingMetrics) EntityStopped(name string, reason string) {
	m.stoppedTotal.WithLabelValues(name, reason).Inc()
}

func (m *shardingMetrics) EntitiesActive(name string, count int) {
	m.entitiesActive.WithLabelValues(name).Set(float64(count))
}

var _ sharding.ShardingMetrics = (*shardingMetrics)(nil)

package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/cbridge-go/core/metrics"
	"github.com/codewandler/cbridge-go/core/pubsub"
)

// pubsubMetrics implements pubsub.PubSubMetrics using Prometheus.
type pubsubMetrics struct {
	publishDuration  *prometheus.HistogramVec
	publishesTotal   *prometheus.CounterVec
	subscribesTotal  *prometheus.CounterVec
	deliveredTotal   *prometheus.CounterVec
	deliveryErrTotal *prometheus.CounterVec
}

// NewPubSubMetrics creates a new Prometheus implementation of PubSubMetrics.
func NewPubSubMetrics(reg prometheus.Registerer) pubsub.PubSubMetrics {
	m := &pubsubMetrics{
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbr_pubsub_publish_duration_seconds",
			Help:    "Publish latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"topic"}),

		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_pubsub_publishes_total",
			Help: "Total number of publishes",
		}, []string{"topic", "success"}),

		subscribesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_pubsub_subscribes_total",
			Help: "Total number of subscription attempts",
		}, []string{"topic", "success"}),

		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_pubsub_delivered_total",
			Help: "Total number of payloads handed to listener queues",
		}, []string{"topic"}),

		deliveryErrTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbr_pubsub_delivery_errors_total",
			Help: "Total number of deliveries dropped before reaching a queue",
		}, []string{"topic", "error_type"}),
	}

	reg.MustRegister(
		m.publishDuration,
		m.publishesTotal,
		m.subscribesTotal,
		m.deliveredTotal,
		m.deliveryErrTotal,
	)

	return m
}

func (m *pubsubMetrics) PublishDuration(topic string) metrics.Timer {
	return newTimer(m.publishDuration.WithLabelValues(topic))
}

func (m *pubsubMetrics) PublishCompleted(topic string, success bool) {
	m.publishesTotal.WithLabelValues(topic, boolToStr(success)).Inc()
}

func (m *pubsubMetrics) SubscribeCompleted(topic string, success bool) {
	m.subscribesTotal.WithLabelValues(topic, boolToStr(success)).Inc()
}

func (m *pubsubMetrics) Delivered(topic string) {
	m.deliveredTotal.WithLabelValues(topic).Inc()
}

func (m *pubsubMetrics) DeliveryError(topic string, errorType string) {
	m.deliveryErrTotal.WithLabelValues(topic, errorType).Inc()
}

var _ pubsub.PubSubMetrics = (*pubsubMetrics)(nil)

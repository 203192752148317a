package pubsub

import "github.com/codewandler/cbridge-go/core/metrics"

// PubSubMetrics defines the metrics interface for the pub/sub bridge.
// All methods are thread-safe.
type PubSubMetrics interface {
	PublishDuration(topic string) metrics.Timer
	PublishCompleted(topic string, success bool)
	SubscribeCompleted(topic string, success bool)

	// Delivered counts payloads handed to a listener queue.
	Delivered(topic string)
	// DeliveryError counts deliveries dropped before reaching a queue,
	// e.g. decode failures.
	DeliveryError(topic string, errorType string)
}

type nopPubSubMetrics struct{}

func (nopPubSubMetrics) PublishDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopPubSubMetrics) PublishCompleted(string, bool)        {}
func (nopPubSubMetrics) SubscribeCompleted(string, bool)      {}
func (nopPubSubMetrics) Delivered(string)                     {}
func (nopPubSubMetrics) DeliveryError(string, string)         {}

// NopPubSubMetrics returns a no-op PubSubMetrics implementation.
func NopPubSubMetrics() PubSubMetrics { return nopPubSubMetrics{} }

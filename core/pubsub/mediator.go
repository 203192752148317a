package pubsub

import (
	"context"
	"errors"
)

var (
	ErrMediatorClosed = errors.New("pubsub: mediator closed")
	ErrTopicRequired  = errors.New("pubsub: topic is required")
)

// Envelope wraps a published payload for serialization and delivery. Wire
// serializers cover this shape once, not every payload type.
type Envelope struct {
	Topic string `json:"topic"`
	Group string `json:"group,omitempty"`
	Data  []byte `json:"data"`
}

// DeliverFunc receives the payload bytes of one delivered message. It is
// invoked from the mediator's delivery goroutine; blocking in it stalls that
// delivery path.
type DeliverFunc func(data []byte)

// Subscription is a registered topic listener.
type Subscription interface {
	Unsubscribe() error
}

// Mediator is the topic registry capability of the underlying substrate.
type Mediator interface {
	// Publish forwards env to the topic, fire-and-forget. When onePerGroup
	// is true, delivery fans out at most once per registered group instead
	// of to every individual subscriber.
	Publish(ctx context.Context, env Envelope, onePerGroup bool) error

	// Subscribe registers deliver for the topic, optionally as a member of
	// group. It returns only after the substrate acknowledged the
	// registration: no message published to the topic afterwards may be
	// invisibly dropped for this subscriber.
	Subscribe(ctx context.Context, topic, group string, deliver DeliverFunc) (Subscription, error)
}

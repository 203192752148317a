package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/cbridge-go/core/queue"
	"github.com/codewandler/cbridge-go/internal/codec"
)

const defaultRequestTimeout = 5 * time.Second

type Options struct {
	Mediator Mediator     // required
	Log      *slog.Logger // optional
	Metrics  PubSubMetrics

	// RequestTimeout bounds Publish and the subscription acknowledgment
	// when the caller's context carries no deadline. Default 5s.
	RequestTimeout time.Duration
}

// PublishOption configures a single Publish call.
type PublishOption func(*PublishOptions)

type PublishOptions struct {
	// OnePerGroup delivers to at most one subscriber per registered group.
	OnePerGroup bool
}

// WithOnePerGroup makes delivery fan out once per registered group instead
// of to every individual subscriber.
func WithOnePerGroup() PublishOption {
	return func(o *PublishOptions) { o.OnePerGroup = true }
}

// ListenOption configures a Listen/ListenWith call.
type ListenOption func(*ListenOptions)

type ListenOptions struct {
	// Group makes the subscription a member of the named delivery group.
	Group string
}

// WithGroup subscribes as a member of the given group.
func WithGroup(group string) ListenOption {
	return func(o *ListenOptions) { o.Group = group }
}

// PubSub publishes and listens with typed payloads over a [Mediator].
// Create one per payload type A; the mediator handle itself is obtained once
// per process and shared.
type PubSub[A any] struct {
	med     Mediator
	log     *slog.Logger
	metrics PubSubMetrics
	timeout time.Duration
}

// New creates a typed pub/sub bundle over the given mediator.
func New[A any](opts Options) (*PubSub[A], error) {
	if opts.Mediator == nil {
		return nil, fmt.Errorf("pubsub: Options.Mediator is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopPubSubMetrics()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &PubSub[A]{
		med:     opts.Mediator,
		log:     log.With(slog.String("component", "pubsub")),
		metrics: m,
		timeout: timeout,
	}, nil
}

// Publisher is the publish-only view of a [PubSub].
type Publisher[A any] interface {
	Publish(ctx context.Context, topic string, data A, opts ...PublishOption) error
}

// Subscriber is the listen-only view of a [PubSub].
type Subscriber[A any] interface {
	Listen(ctx context.Context, topic string, opts ...ListenOption) (*queue.Queue[A], error)
	ListenWith(ctx context.Context, topic string, q *queue.Queue[A], opts ...ListenOption) (*queue.Queue[A], error)
}

// NewPublisher creates a publish-only view.
func NewPublisher[A any](opts Options) (Publisher[A], error) { return New[A](opts) }

// NewSubscriber creates a listen-only view.
func NewSubscriber[A any](opts Options) (Subscriber[A], error) { return New[A](opts) }

func (p *PubSub[A]) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Publish wraps data in an envelope and forwards it to the mediator,
// fire-and-forget.
func (p *PubSub[A]) Publish(ctx context.Context, topic string, data A, opts ...PublishOption) error {
	if topic == "" {
		return ErrTopicRequired
	}
	var po PublishOptions
	for _, opt := range opts {
		opt(&po)
	}

	payload, err := codec.Default.Marshal(data)
	if err != nil {
		p.metrics.PublishCompleted(topic, false)
		return fmt.Errorf("pubsub: encode payload: %w", err)
	}

	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	defer p.metrics.PublishDuration(topic).ObserveDuration()

	err = p.med.Publish(ctx, Envelope{Topic: topic, Data: payload}, po.OnePerGroup)
	p.metrics.PublishCompleted(topic, err == nil)
	if err != nil {
		return fmt.Errorf("pubsub: publish %q: %w", topic, err)
	}
	return nil
}

// Listen subscribes to the topic on a new unbounded queue.
func (p *PubSub[A]) Listen(ctx context.Context, topic string, opts ...ListenOption) (*queue.Queue[A], error) {
	return p.ListenWith(ctx, topic, queue.NewUnbounded[A](), opts...)
}

// ListenWith subscribes to the topic, pushing every received payload onto q.
// It does not return before the mediator acknowledged the subscription: a
// caller that proceeds afterwards misses no subsequently published message.
//
// Shutting down q (or canceling ctx, which shuts it down) unsubscribes.
func (p *PubSub[A]) ListenWith(ctx context.Context, topic string, q *queue.Queue[A], opts ...ListenOption) (*queue.Queue[A], error) {
	if topic == "" {
		return nil, ErrTopicRequired
	}
	var lo ListenOptions
	for _, opt := range opts {
		opt(&lo)
	}

	ackCtx, cancel := p.opCtx(ctx)
	defer cancel()

	sub, err := p.med.Subscribe(ackCtx, topic, lo.Group, func(data []byte) {
		var a A
		if err := codec.Default.Unmarshal(data, &a); err != nil {
			p.metrics.DeliveryError(topic, "decode")
			p.log.Error("failed to decode payload",
				slog.String("topic", topic),
				slog.Any("error", err),
			)
			return
		}
		// Blocks while q is full (backpressure); no-op after shutdown.
		if err := q.Offer(context.Background(), a); err == nil {
			p.metrics.Delivered(topic)
		}
	})
	p.metrics.SubscribeCompleted(topic, err == nil)
	if err != nil {
		return nil, fmt.Errorf("pubsub: subscribe %q: %w", topic, err)
	}

	go func() {
		select {
		case <-q.Done():
		case <-ctx.Done():
			q.Shutdown()
		}
		if err := sub.Unsubscribe(); err != nil {
			p.log.Warn("failed to unsubscribe",
				slog.String("topic", topic),
				slog.Any("error", err),
			)
		}
	}()

	return q, nil
}

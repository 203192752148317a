package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/cbridge-go/core/queue"
)

const defaultRequestTimeout = 5 * time.Second

type Options struct {
	Runtime Runtime      // required
	Log     *slog.Logger // optional

	// RequestTimeout bounds Join/Leave/State when the caller's context
	// carries no deadline. Default 5s.
	RequestTimeout time.Duration
}

// Monitor exposes cluster membership as snapshots and event queues.
type Monitor struct {
	rt      Runtime
	log     *slog.Logger
	timeout time.Duration
}

func NewMonitor(opts Options) (*Monitor, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("membership: Options.Runtime is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Monitor{
		rt:      opts.Runtime,
		log:     log.With(slog.String("component", "membership")),
		timeout: timeout,
	}, nil
}

// opCtx applies the configured timeout unless the caller already set one.
func (m *Monitor) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Join instructs the local node to join the cluster via the given seeds.
// It completes once the join request was issued.
func (m *Monitor) Join(ctx context.Context, seeds ...Address) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	if err := m.rt.Join(ctx, seeds); err != nil {
		return fmt.Errorf("membership: join: %w", err)
	}
	m.log.Info("join issued", slog.Any("seeds", seeds))
	return nil
}

// Leave requests graceful removal of the local node from the cluster.
func (m *Monitor) Leave(ctx context.Context) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	if err := m.rt.Leave(ctx); err != nil {
		return fmt.Errorf("membership: leave: %w", err)
	}
	m.log.Info("leave issued")
	return nil
}

// State returns the current membership snapshot.
func (m *Monitor) State(ctx context.Context) (ClusterState, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	st, err := m.rt.State(ctx)
	if err != nil {
		return ClusterState{}, fmt.Errorf("membership: state: %w", err)
	}
	return st, nil
}

// Events subscribes to membership events on a new unbounded queue.
func (m *Monitor) Events(ctx context.Context) (*queue.Queue[Event], error) {
	return m.EventsWith(ctx, queue.NewUnbounded[Event]())
}

// EventsWith subscribes to membership events, pushing every event emitted by
// the runtime onto q in emission order. If q is bounded and full, the push
// blocks the runtime's delivery goroutine (backpressure).
//
// Shutting down q (or canceling ctx, which shuts it down) is the only way to
// unsubscribe; the runtime listener is deregistered promptly.
func (m *Monitor) EventsWith(ctx context.Context, q *queue.Queue[Event]) (*queue.Queue[Event], error) {
	sub, err := m.rt.Subscribe(func(e Event) {
		// Blocks while q is full; returns immediately after shutdown.
		_ = q.Offer(context.Background(), e)
	})
	if err != nil {
		return nil, fmt.Errorf("membership: subscribe: %w", err)
	}

	go func() {
		select {
		case <-q.Done():
		case <-ctx.Done():
			q.Shutdown()
		}
		if err := sub.Unsubscribe(); err != nil {
			m.log.Warn("failed to unsubscribe membership listener", slog.Any("error", err))
		}
	}()

	return q, nil
}

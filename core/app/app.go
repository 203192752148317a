package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cbridge-go/core/cluster"
	"github.com/codewandler/cbridge-go/core/membership"
	"github.com/codewandler/cbridge-go/core/pubsub"
	"github.com/codewandler/cbridge-go/core/sharding"
)

type Config struct {
	Context context.Context
	Log     *slog.Logger

	// NodeID identifies this process in membership and shard assignment.
	// Generated when empty.
	NodeID string

	// Transport carries sharded entity messages. Defaults to in-memory.
	Transport cluster.Transport

	// Membership tracks cluster nodes. Defaults to a single-node
	// in-memory cluster.
	Membership membership.Runtime

	// Seeds are passed to the membership join on Run.
	Seeds []membership.Address

	// Mediator carries pub/sub messages. Defaults to in-memory.
	Mediator pubsub.Mediator

	// RequestTimeout bounds operations called without a deadline.
	RequestTimeout time.Duration
}

// App bundles the running bridge: one node's transport, membership
// monitor and pub/sub mediator.
type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger

	nodeID    string
	transport cluster.Transport
	monitor   *membership.Monitor
	mediator  pubsub.Mediator
	timeout   time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

func New(config Config) (*App, error) {
	a := &App{done: make(chan struct{})}

	a.nodeID = config.NodeID
	if a.nodeID == "" {
		a.nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	a.log = log.With(slog.String("node", a.nodeID))

	baseCtx := config.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	a.ctx, a.cancelCtx = context.WithCancel(baseCtx)

	a.transport = config.Transport
	if a.transport == nil {
		a.transport = cluster.NewInMemoryTransport()
	}

	rt := config.Membership
	if rt == nil {
		rt = membership.NewMemoryCluster().Node(membership.Address(a.nodeID))
	}

	a.timeout = config.RequestTimeout

	monitor, err := membership.NewMonitor(membership.Options{
		Runtime:        rt,
		Log:            a.log,
		RequestTimeout: a.timeout,
	})
	if err != nil {
		return nil, err
	}
	a.monitor = monitor

	a.mediator = config.Mediator
	if a.mediator == nil {
		a.mediator = pubsub.NewMemoryMediator().WithLog(a.log)
	}

	return a, nil
}

// Run joins cluster membership. The app serves until Stop or until the
// configured context is canceled.
func (a *App) Run(seeds ...membership.Address) error {
	if err := a.monitor.Join(a.ctx, seeds...); err != nil {
		return fmt.Errorf("app: join cluster: %w", err)
	}
	a.log.Info("app started")
	return nil
}

// Run creates the app and joins the cluster in one call.
func Run(config Config) (*App, error) {
	a, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := a.Run(config.Seeds...); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) NodeID() string { return a.nodeID }

// Context is canceled when the app stops.
func (a *App) Context() context.Context { return a.ctx }

func (a *App) Transport() cluster.Transport { return a.transport }

func (a *App) Monitor() *membership.Monitor { return a.monitor }

func (a *App) Mediator() pubsub.Mediator { return a.mediator }

// PubSubOptions returns ready pub/sub options bound to this app's
// mediator, for pubsub.New / NewPublisher / NewSubscriber.
func (a *App) PubSubOptions() pubsub.Options {
	return pubsub.Options{
		Mediator:       a.mediator,
		Log:            a.log,
		RequestTimeout: a.timeout,
	}
}

// ShardingOptions returns ready sharding options for one entity type,
// bound to this app's transport and membership.
func (a *App) ShardingOptions(name string) sharding.Options {
	return sharding.Options{
		Name:           name,
		Transport:      a.transport,
		NodeID:         a.nodeID,
		Monitor:        a.monitor,
		Log:            a.log,
		RequestTimeout: a.timeout,
	}
}

// Done is closed once the app stopped.
func (a *App) Done() <-chan struct{} { return a.done }

// Stop leaves the cluster and cancels the app context. Idempotent.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.monitor.Leave(leaveCtx); err != nil {
			a.log.Warn("leave cluster", slog.Any("error", err))
		}
		a.cancelCtx()
		close(a.done)
		a.log.Info("app stopped")
	})
}

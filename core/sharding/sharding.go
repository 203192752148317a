package sharding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cbridge-go/core/cluster"
	"github.com/codewandler/cbridge-go/core/membership"
	"github.com/codewandler/cbridge-go/internal/codec"
)

const (
	// MsgEntityMessage carries a payload addressed to a single entity.
	MsgEntityMessage = "cbr.entity.msg"
	// MsgEntityStop stops an entity and discards its state.
	MsgEntityStop = "cbr.entity.stop"

	defaultNumShards      = uint32(100)
	defaultRequestTimeout = 5 * time.Second
)

var (
	ErrNameRequired      = errors.New("sharding: entity type name is required")
	ErrTransportRequired = errors.New("sharding: transport is required")
	ErrEntityIDRequired  = errors.New("sharding: entity id is required")
)

type Options struct {
	// Name identifies the entity type. It seeds shard routing, so all
	// nodes and proxies of one entity type must use the same name.
	Name string

	Transport cluster.Transport

	// NumShards must agree across all nodes and proxies (default 100).
	NumShards uint32

	// NodeID identifies this node for shard assignment. Generated when
	// empty.
	NodeID string

	// NodeIDs is the full node list shards are distributed over. When
	// empty it is taken from Monitor, falling back to just NodeID.
	NodeIDs []string

	// Monitor supplies the node list from cluster membership when
	// NodeIDs is not set.
	Monitor *membership.Monitor

	Log     *slog.Logger
	Metrics ShardingMetrics

	// RequestTimeout bounds Send/Stop when the caller's context has no
	// deadline (default 5s).
	RequestTimeout time.Duration

	// MaxActiveEntities caps live entities per node; beyond it the least
	// recently used entity is evicted and restarted fresh on its next
	// message. <= 0 keeps entities until stopped or passivated.
	MaxActiveEntities int
}

func (o *Options) withDefaults() (Options, error) {
	opts := *o
	if opts.Name == "" {
		return opts, ErrNameRequired
	}
	if opts.Transport == nil {
		return opts, ErrTransportRequired
	}
	if opts.NumShards == 0 {
		opts.NumShards = defaultNumShards
	}
	if opts.NodeID == "" {
		opts.NodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	opts.Log = opts.Log.With(slog.String("entity_type", opts.Name))
	if opts.Metrics == nil {
		opts.Metrics = NopShardingMetrics()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return opts, nil
}

// nodeIDs resolves the node list used for shard assignment.
func (o Options) nodeIDs(ctx context.Context) ([]string, error) {
	if len(o.NodeIDs) > 0 {
		return o.NodeIDs, nil
	}
	if o.Monitor != nil {
		state, err := o.Monitor.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("sharding: resolve node list: %w", err)
		}
		if ids := state.UpNodeIDs(); len(ids) > 0 {
			return ids, nil
		}
	}
	return []string{o.NodeID}, nil
}

// Behavior handles one message for one entity. Calls for the same entity
// never overlap; the entity view is only valid during the call. A behavior
// should not fail for domain reasons (model those in state); returned
// errors and panics are reported to the sender.
type Behavior[Msg any, S any] func(ctx context.Context, entity Entity[S], msg Msg) error

// Sharding sends messages to entities of one type, wherever they live.
type Sharding[Msg any] struct {
	name    string
	client  *cluster.Client
	log     *slog.Logger
	timeout time.Duration
}

// Start runs entity hosting on this node and returns a handle for sending.
// The node serves the shards assigned to it until ctx is canceled.
func Start[Msg any, S any](ctx context.Context, opts Options, behavior Behavior[Msg, S]) (*Sharding[Msg], error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	nodeIDs, err := o.nodeIDs(ctx)
	if err != nil {
		return nil, err
	}

	handler, closeHandler := newEntityHandler(o, behavior)

	node := cluster.NewNode(cluster.NodeOptions{
		Log:       o.Log,
		NodeID:    o.NodeID,
		Transport: o.Transport,
		Shards:    cluster.ShardsForNode(o.NodeID, nodeIDs, o.NumShards, o.Name),
		Handler:   handler,
	})
	if err := node.Run(ctx); err != nil {
		closeHandler()
		return nil, fmt.Errorf("sharding: start node: %w", err)
	}
	context.AfterFunc(ctx, closeHandler)

	return newHandle[Msg](o)
}

// StartProxy returns a send-only handle. The local node hosts no entities.
func StartProxy[Msg any](ctx context.Context, opts Options) (*Sharding[Msg], error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return newHandle[Msg](o)
}

func newHandle[Msg any](o Options) (*Sharding[Msg], error) {
	client, err := cluster.NewClient(cluster.ClientOptions{
		Transport: o.Transport,
		NumShards: o.NumShards,
		Seed:      o.Name,
	})
	if err != nil {
		return nil, err
	}
	return &Sharding[Msg]{
		name:    o.Name,
		client:  client,
		log:     o.Log,
		timeout: o.RequestTimeout,
	}, nil
}

func (s *Sharding[Msg]) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Send delivers msg to the entity with the given id, starting it if
// needed. It returns after the entity handled the message; behavior
// errors come back to the caller.
func (s *Sharding[Msg]) Send(ctx context.Context, id string, msg Msg) error {
	if id == "" {
		return ErrEntityIDRequired
	}
	data, err := codec.Default.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sharding: encode message: %w", err)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Key(id).NotifyRaw(ctx, MsgEntityMessage, data)
}

// Stop stops the entity and discards its state. Stopping an entity that
// is not running is a no-op. A later Send starts it fresh.
func (s *Sharding[Msg]) Stop(ctx context.Context, id string) error {
	if id == "" {
		return ErrEntityIDRequired
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Key(id).NotifyRaw(ctx, MsgEntityStop, nil)
}

package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	NodeOptions struct {
		Log       *slog.Logger
		NodeID    string
		Transport ServerTransport
		Shards    []uint32
		Handler   ServerHandlerFunc
		Metrics   ClusterMetrics
	}

	Node struct {
		log     *slog.Logger
		nodeID  string
		t       ServerTransport
		h       ServerHandlerFunc
		shards  []uint32
		metrics ClusterMetrics
	}
)

func NewNode(opts NodeOptions) *Node {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	hdl := opts.Handler
	if hdl == nil {
		hdl = func(ctx context.Context, env Envelope) ([]byte, error) {
			return nil, fmt.Errorf("no handler registered")
		}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopClusterMetrics()
	}

	return &Node{
		log:     log.With(slog.String("node", nodeID)),
		nodeID:  nodeID,
		t:       opts.Transport,
		shards:  opts.Shards,
		h:       hdl,
		metrics: metrics,
	}
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.nodeID }

func (n *Node) handleMsg(ctx context.Context, env Envelope) (data []byte, err error) {
	n.log.Debug(
		"handle",
		slog.Group(
			"envelope",
			slog.Int("shard", env.Shard),
			slog.String("type", env.Type),
			slog.Any("headers", env.Headers),
		),
	)

	if env.Expired() {
		return nil, ErrEnvelopeExpired
	}

	// === handle internal messages ===

	switch env.Type {
	case MsgNodeInfo:
		return json.Marshal(GetNodeInfoResponse{
			NodeID: n.nodeID,
			Shards: n.shards,
		})
	}

	// use handler
	defer n.metrics.HandlerDuration(env.Type).ObserveDuration()
	data, err = n.h(ctx, env)
	n.metrics.HandlerCompleted(env.Type, err == nil)
	if err != nil {
		n.log.Error(
			"failed to handle message",
			slog.Group(
				"message",
				slog.String("type", env.Type),
				slog.Any("headers", env.Headers),
				slog.String("data", string(env.Data)),
			),
			slog.Any("error", err),
		)
	}
	return
}

func (n *Node) Run(ctx context.Context) error {
	n.log.Info("starting node", slog.Int("num_shards", len(n.shards)))
	for _, s := range n.shards {
		_, err := n.t.SubscribeShard(ctx, s, n.handleMsg)
		if err != nil {
			return fmt.Errorf("failed to subscribe to shard %d: %w", s, err)
		}
	}
	n.metrics.ShardsOwned(n.nodeID, len(n.shards))
	return nil
}

package sharding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codewandler/cbridge-go/core/cache"
	"github.com/codewandler/cbridge-go/core/cluster"
	"github.com/codewandler/cbridge-go/core/perkey"
	"github.com/codewandler/cbridge-go/internal/codec"
)

// newEntityHandler builds the node-side handler hosting entity cells. The
// returned close func shuts the per-entity scheduler down.
func newEntityHandler[Msg any, S any](o Options, behavior Behavior[Msg, S]) (cluster.ServerHandlerFunc, func()) {
	var store cache.Cache
	if o.MaxActiveEntities > 0 {
		store = cache.NewLRU(cache.LRUOpts{
			Size: o.MaxActiveEntities,
			OnEvict: func(id string, _ any) {
				o.Metrics.EntityStopped(o.Name, "evict")
				o.Log.Debug("entity evicted", slog.String("entity_id", id))
			},
		})
	} else {
		store = cache.NewMem()
	}

	var (
		cells = cache.NewTyped[*cell[S]](store)
		sched = perkey.New[string]()
	)

	handler := func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
		id, ok := env.Key()
		if !ok {
			return nil, cluster.ErrMissingKeyHeader
		}

		switch env.Type {
		case MsgEntityStop:
			return nil, sched.DoContext(ctx, id, func() error {
				if _, ok := cells.Get(id); !ok {
					return nil
				}
				cells.Delete(id)
				o.Metrics.EntityStopped(o.Name, "stop")
				o.Metrics.EntitiesActive(o.Name, cells.Len())
				o.Log.Debug("entity stopped", slog.String("entity_id", id))
				return nil
			})

		case MsgEntityMessage:
			var msg Msg
			if err := codec.Default.Unmarshal(env.Data, &msg); err != nil {
				return nil, fmt.Errorf("sharding: decode message for %q: %w", id, err)
			}

			defer o.Metrics.HandleDuration(o.Name).ObserveDuration()
			err := sched.DoContext(ctx, id, func() error {
				c, ok := cells.Get(id)
				if !ok {
					c = newCell[S](id)
					cells.Put(id, c)
					o.Metrics.EntityStarted(o.Name)
					o.Metrics.EntitiesActive(o.Name, cells.Len())
					o.Log.Debug("entity started", slog.String("entity_id", id))
				}

				err := invokeBehavior(ctx, behavior, c, msg)

				if c.passivate {
					cells.Delete(id)
					o.Metrics.EntityStopped(o.Name, "passivate")
					o.Metrics.EntitiesActive(o.Name, cells.Len())
					o.Log.Debug("entity passivated", slog.String("entity_id", id))
				}
				return err
			})
			o.Metrics.HandleCompleted(o.Name, err == nil)
			return nil, err

		default:
			return nil, fmt.Errorf("sharding: unknown message type %q", env.Type)
		}
	}

	return handler, sched.Close
}

// invokeBehavior turns a behavior panic into an error so one broken
// entity cannot take the node down.
func invokeBehavior[Msg any, S any](ctx context.Context, behavior Behavior[Msg, S], c *cell[S], msg Msg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sharding: entity %q panicked: %v", c.id, r)
		}
	}()
	return behavior(ctx, c, msg)
}

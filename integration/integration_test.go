package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cbridge-go/core/app"
	"github.com/codewandler/cbridge-go/core/membership"
	"github.com/codewandler/cbridge-go/core/pubsub"
	"github.com/codewandler/cbridge-go/core/sharding"
)

type (
	deposit struct {
		Amount int `json:"amount"`
	}
	accountState struct {
		Balance int `json:"balance"`
	}
	balanceChanged struct {
		Account string `json:"account"`
		Balance int    `json:"balance"`
	}
)

// TestIntegration drives the full bridge in one process: two nodes join a
// shared membership, entities absorb deposits, and every balance change is
// broadcast over pub/sub.
func TestIntegration(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	hub := membership.NewMemoryCluster()

	a1, err := app.Run(app.Config{NodeID: "node-1", Membership: hub.Node("node-1")})
	require.NoError(t, err)
	t.Cleanup(a1.Stop)

	a2, err := app.Run(app.Config{NodeID: "node-2", Membership: hub.Node("node-2"), Transport: a1.Transport()})
	require.NoError(t, err)
	t.Cleanup(a2.Stop)

	// both nodes see the same membership
	state, err := a1.Monitor().State(t.Context())
	require.NoError(t, err)
	require.Len(t, state.Members, 2)
	require.Equal(t, membership.Address("node-1"), state.Leader)

	// membership events flow into a queue
	events, err := a2.Monitor().Events(t.Context())
	require.NoError(t, err)
	defer events.Shutdown()

	// pub/sub: the account entity publishes every balance change
	ps1, err := pubsub.New[balanceChanged](a1.PubSubOptions())
	require.NoError(t, err)

	changes, err := ps1.Listen(t.Context(), "balance-changes")
	require.NoError(t, err)

	// sharded account entities on both nodes, same mediator for publishing
	behavior := func(ctx context.Context, e sharding.Entity[accountState], msg deposit) error {
		s, _ := e.State()
		s.Balance += msg.Amount
		e.SetState(s)
		return ps1.Publish(ctx, "balance-changes", balanceChanged{Account: e.ID(), Balance: s.Balance})
	}

	shardOpts := func(a *app.App) sharding.Options {
		o := a.ShardingOptions("account")
		o.NodeIDs = []string{"node-1", "node-2"}
		o.NumShards = 40
		return o
	}

	accounts1, err := sharding.Start(a1.Context(), shardOpts(a1), behavior)
	require.NoError(t, err)
	_, err = sharding.Start(a2.Context(), shardOpts(a2), behavior)
	require.NoError(t, err)

	// deposits from node 1's handle, routed to whichever node owns the shard
	require.NoError(t, accounts1.Send(t.Context(), "acc-1", deposit{Amount: 100}))
	require.NoError(t, accounts1.Send(t.Context(), "acc-1", deposit{Amount: 50}))
	require.NoError(t, accounts1.Send(t.Context(), "acc-2", deposit{Amount: 7}))

	// state accumulated per account, broadcasts observed in order per entity
	balances := map[string]int{}
	for i := 0; i < 3; i++ {
		ev, err := changes.Take(t.Context())
		require.NoError(t, err)
		balances[ev.Account] = ev.Balance
	}
	require.Equal(t, 150, balances["acc-1"])
	require.Equal(t, 7, balances["acc-2"])

	// stop resets entity state
	require.NoError(t, accounts1.Stop(t.Context(), "acc-1"))
	require.NoError(t, accounts1.Send(t.Context(), "acc-1", deposit{Amount: 1}))
	ev, err := changes.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, balanceChanged{Account: "acc-1", Balance: 1}, ev)

	// a node leaving shows up in membership events
	a2.Stop()
	sawLeft := false
	deadline, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	for !sawLeft {
		e, err := events.Take(deadline)
		require.NoError(t, err)
		if left, ok := e.(membership.MemberLeft); ok && left.Member.Addr == "node-2" {
			sawLeft = true
		}
	}
}

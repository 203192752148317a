package sharding

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cbridge-go/core/cluster"
	"github.com/codewandler/cbridge-go/core/membership"
	"github.com/codewandler/cbridge-go/ports/kv"
)

type counterMsg struct {
	Delta int `json:"delta"`
}

// counterBehavior keeps a running total in entity state and reports every
// new total on out.
func counterBehavior(out chan<- int) Behavior[counterMsg, int] {
	return func(ctx context.Context, e Entity[int], msg counterMsg) error {
		n, _ := e.State()
		n += msg.Delta
		e.SetState(n)
		out <- n
		return nil
	}
}

func TestSharding_Counter(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	out := make(chan int, 8)
	s, err := Start(t.Context(), Options{
		Name:      "counter",
		Transport: tr,
		NumShards: 10,
	}, counterBehavior(out))
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: 1}))
	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: 1}))
	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: -1}))

	require.Equal(t, 1, <-out)
	require.Equal(t, 2, <-out)
	require.Equal(t, 1, <-out)
}

func TestSharding_EntitiesAreIndependent(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	out := make(chan int, 8)
	s, err := Start(t.Context(), Options{
		Name:      "counter",
		Transport: tr,
	}, counterBehavior(out))
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "a", counterMsg{Delta: 5}))
	require.NoError(t, s.Send(t.Context(), "b", counterMsg{Delta: 7}))

	require.Equal(t, 5, <-out)
	require.Equal(t, 7, <-out)
}

func TestSharding_StopDiscardsState(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	out := make(chan int, 8)
	s, err := Start(t.Context(), Options{
		Name:      "counter",
		Transport: tr,
	}, counterBehavior(out))
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: 3}))
	require.Equal(t, 3, <-out)

	require.NoError(t, s.Stop(t.Context(), "c-1"))

	// entity restarts with fresh state
	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: 1}))
	require.Equal(t, 1, <-out)

	// stopping an unknown entity is a no-op
	require.NoError(t, s.Stop(t.Context(), "never-started"))
}

type passivatingMsg struct {
	Passivate bool `json:"passivate"`
}

func TestSharding_Passivate(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	starts := make(chan string, 8)
	s, err := Start(t.Context(), Options{
		Name:      "sessions",
		Transport: tr,
	}, func(ctx context.Context, e Entity[int], msg passivatingMsg) error {
		if _, ok := e.State(); !ok {
			starts <- e.ID()
			e.SetState(1)
		}
		if msg.Passivate {
			e.Passivate()
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "s-1", passivatingMsg{}))
	require.NoError(t, s.Send(t.Context(), "s-1", passivatingMsg{Passivate: true}))
	require.NoError(t, s.Send(t.Context(), "s-1", passivatingMsg{}))

	// started twice: initial start, then again after passivation
	require.Equal(t, "s-1", <-starts)
	require.Equal(t, "s-1", <-starts)
	require.Empty(t, starts)
}

func TestSharding_MaxActiveEntities_Evicts(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	var starts atomic.Int32
	s, err := Start(t.Context(), Options{
		Name:              "capped",
		Transport:         tr,
		MaxActiveEntities: 2,
	}, func(ctx context.Context, e Entity[int], msg counterMsg) error {
		if _, ok := e.State(); !ok {
			starts.Add(1)
			e.SetState(0)
		}
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		require.NoError(t, s.Send(t.Context(), id, counterMsg{}))
	}
	require.Equal(t, int32(3), starts.Load())

	// e-1 was evicted and starts fresh
	require.NoError(t, s.Send(t.Context(), "e-1", counterMsg{}))
	require.Equal(t, int32(4), starts.Load())

	// e-3 is still live, no restart
	require.NoError(t, s.Send(t.Context(), "e-3", counterMsg{}))
	require.Equal(t, int32(4), starts.Load())
}

func TestSharding_NoOverlapPerEntity(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	var (
		inflight atomic.Int32
		overlaps atomic.Int32
		handled  atomic.Int32
	)
	s, err := Start(t.Context(), Options{
		Name:      "serial",
		Transport: tr,
	}, func(ctx context.Context, e Entity[int], msg counterMsg) error {
		if inflight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Send(t.Context(), "hot", counterMsg{Delta: 1}))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(16), handled.Load())
	require.Equal(t, int32(0), overlaps.Load())
}

func TestSharding_BehaviorErrorReachesSender(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	s, err := Start(t.Context(), Options{
		Name:      "fragile",
		Transport: tr,
	}, func(ctx context.Context, e Entity[int], msg counterMsg) error {
		if msg.Delta < 0 {
			panic("negative delta")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "f-1", counterMsg{Delta: 1}))

	err = s.Send(t.Context(), "f-1", counterMsg{Delta: -1})
	require.ErrorContains(t, err, "panicked")

	// the node survives a panicking entity
	require.NoError(t, s.Send(t.Context(), "f-1", counterMsg{Delta: 2}))
}

func TestSharding_Proxy(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	out := make(chan int, 8)
	_, err := Start(t.Context(), Options{
		Name:      "counter",
		Transport: tr,
		NodeID:    "host",
	}, counterBehavior(out))
	require.NoError(t, err)

	proxy, err := StartProxy[counterMsg](t.Context(), Options{
		Name:      "counter",
		Transport: tr,
	})
	require.NoError(t, err)

	require.NoError(t, proxy.Send(t.Context(), "c-1", counterMsg{Delta: 4}))
	require.Equal(t, 4, <-out)
}

func TestSharding_MultiNode(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	nodeIDs := []string{"n-1", "n-2", "n-3"}

	var (
		mu     sync.Mutex
		onNode = map[string]string{} // entity id -> hosting node
	)

	for _, nodeID := range nodeIDs {
		nodeID := nodeID
		_, err := Start(t.Context(), Options{
			Name:      "spread",
			Transport: tr,
			NodeID:    nodeID,
			NodeIDs:   nodeIDs,
			NumShards: 60,
		}, func(ctx context.Context, e Entity[int], msg counterMsg) error {
			mu.Lock()
			onNode[e.ID()] = nodeID
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}

	proxy, err := StartProxy[counterMsg](t.Context(), Options{
		Name:      "spread",
		Transport: tr,
		NumShards: 60,
	})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, proxy.Send(t.Context(), string(rune('a'+i)), counterMsg{}))
	}

	// every entity landed somewhere, and more than one node hosts
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, onNode, 30)
	hosts := map[string]bool{}
	for _, n := range onNode {
		hosts[n] = true
	}
	require.Greater(t, len(hosts), 1)
}

func TestSharding_NodeListFromMembership(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)

	hub := membership.NewMemoryCluster()
	mon, err := membership.NewMonitor(membership.Options{Runtime: hub.Node("n-1")})
	require.NoError(t, err)
	require.NoError(t, mon.Join(t.Context()))

	out := make(chan int, 1)
	s, err := Start(t.Context(), Options{
		Name:      "counter",
		Transport: tr,
		NodeID:    "n-1",
		Monitor:   mon,
	}, counterBehavior(out))
	require.NoError(t, err)

	require.NoError(t, s.Send(t.Context(), "c-1", counterMsg{Delta: 9}))
	require.Equal(t, 9, <-out)
}

type persistedMsg struct {
	Add int `json:"add"`
}

// Entity state does not survive passivation; behaviors that need that load
// and save through an external store.
func TestSharding_ExternalStatePersistence(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)
	store := kv.NewMemStore()

	out := make(chan int, 8)
	s, err := Start(t.Context(), Options{
		Name:      "persisted",
		Transport: tr,
	}, func(ctx context.Context, e Entity[int], msg persistedMsg) error {
		n, ok := e.State()
		if !ok {
			// first message after start or passivation, restore
			if saved, err := kv.Get[int](ctx, store, e.ID()); err == nil {
				n = saved
			}
		}
		n += msg.Add
		e.SetState(n)
		if err := kv.Put(ctx, store, e.ID(), n, kv.PutOptions{}); err != nil {
			return err
		}
		out <- n
		e.Passivate()
		return nil
	})
	require.NoError(t, err)

	// every message passivates, yet the total accumulates via the store
	require.NoError(t, s.Send(t.Context(), "p-1", persistedMsg{Add: 2}))
	require.NoError(t, s.Send(t.Context(), "p-1", persistedMsg{Add: 3}))
	require.NoError(t, s.Send(t.Context(), "p-1", persistedMsg{Add: 5}))

	require.Equal(t, 2, <-out)
	require.Equal(t, 5, <-out)
	require.Equal(t, 10, <-out)
}

func TestSharding_OptionValidation(t *testing.T) {
	tr := cluster.NewInMemoryTransport()

	_, err := StartProxy[counterMsg](t.Context(), Options{Transport: tr})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = StartProxy[counterMsg](t.Context(), Options{Name: "x"})
	require.ErrorIs(t, err, ErrTransportRequired)

	s, err := StartProxy[counterMsg](t.Context(), Options{Name: "x", Transport: tr})
	require.NoError(t, err)
	require.ErrorIs(t, s.Send(t.Context(), "", counterMsg{}), ErrEntityIDRequired)
	require.ErrorIs(t, s.Stop(t.Context(), ""), ErrEntityIDRequired)
}

package membership

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codewandler/cbridge-go/core/ds"
)

// MemoryCluster is an in-process membership substrate for tests and local
// runs. Every Runtime obtained via [MemoryCluster.Node] shares the same
// membership table; Join/Leave on any node is observed by all subscribers.
type MemoryCluster struct {
	mu      sync.RWMutex
	members map[Address]Member
	order   *ds.Set[Address]
	leader  Address
	subs    map[uint64]func(Event)

	// dispatchMu serializes event emission so every subscriber observes
	// the same order. A blocking listener stalls dispatch, which is the
	// documented backpressure behavior.
	dispatchMu sync.Mutex

	seq atomic.Uint64
}

func NewMemoryCluster() *MemoryCluster {
	return &MemoryCluster{
		members: make(map[Address]Member),
		order:   ds.NewSet[Address](),
		subs:    make(map[uint64]func(Event)),
	}
}

// Node returns the Runtime for a node with the given address and roles.
func (c *MemoryCluster) Node(addr Address, roles ...string) Runtime {
	return &memoryRuntime{hub: c, addr: addr, roles: roles}
}

// SetUnreachable marks a member unreachable and emits MemberUnreachable.
// Test hook standing in for the substrate's failure detector.
func (c *MemoryCluster) SetUnreachable(addr Address) {
	c.mu.RLock()
	m, ok := c.members[addr]
	c.mu.RUnlock()
	if ok {
		c.emit(MemberUnreachable{Member: m})
	}
}

// SetReachable marks a member reachable again and emits MemberReachable.
func (c *MemoryCluster) SetReachable(addr Address) {
	c.mu.RLock()
	m, ok := c.members[addr]
	c.mu.RUnlock()
	if ok {
		c.emit(MemberReachable{Member: m})
	}
}

func (c *MemoryCluster) emit(events ...Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	for _, e := range events {
		c.mu.RLock()
		listeners := make([]func(Event), 0, len(c.subs))
		for _, l := range c.subs {
			listeners = append(listeners, l)
		}
		c.mu.RUnlock()

		for _, l := range listeners {
			l(e)
		}
	}
}

func (c *MemoryCluster) snapshot() ClusterState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	members := make([]Member, 0, len(c.members))
	for _, addr := range c.order.Values() {
		if m, ok := c.members[addr]; ok {
			members = append(members, m)
		}
	}
	return ClusterState{Members: members, Leader: c.leader}
}

// electLocked recomputes the leader (lowest up address). Returns the event
// to emit, if the leader changed. Caller holds c.mu.
func (c *MemoryCluster) electLocked() (Event, bool) {
	var leader Address
	for _, m := range c.members {
		if m.Status != StatusUp {
			continue
		}
		if leader == "" || m.Addr < leader {
			leader = m.Addr
		}
	}
	if leader == c.leader {
		return nil, false
	}
	c.leader = leader
	return LeaderChanged{Leader: leader}, true
}

func (c *MemoryCluster) join(addr Address, roles []string) {
	c.mu.Lock()
	if _, ok := c.members[addr]; ok {
		c.mu.Unlock()
		return
	}
	m := Member{Addr: addr, Status: StatusJoining, Roles: roles}
	c.members[addr] = m
	c.order.Add(addr)
	c.mu.Unlock()

	c.emit(MemberJoined{Member: m})

	c.mu.Lock()
	m.Status = StatusUp
	c.members[addr] = m
	leaderEv, changed := c.electLocked()
	c.mu.Unlock()

	c.emit(MemberUp{Member: m})
	if changed {
		c.emit(leaderEv)
	}
}

func (c *MemoryCluster) leave(addr Address) error {
	c.mu.Lock()
	m, ok := c.members[addr]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotJoined, addr)
	}
	delete(c.members, addr)
	c.order.Remove(addr)
	leaderEv, changed := c.electLocked()
	c.mu.Unlock()

	m.Status = StatusLeaving
	c.emit(MemberLeft{Member: m})
	m.Status = StatusExiting
	c.emit(MemberExited{Member: m})
	m.Status = StatusRemoved
	c.emit(MemberRemoved{Member: m})
	if changed {
		c.emit(leaderEv)
	}
	return nil
}

type memoryRuntime struct {
	hub    *MemoryCluster
	addr   Address
	roles  []string
	joined atomic.Bool
}

func (r *memoryRuntime) Join(_ context.Context, _ []Address) error {
	r.hub.join(r.addr, r.roles)
	r.joined.Store(true)
	return nil
}

func (r *memoryRuntime) Leave(_ context.Context) error {
	if !r.joined.Swap(false) {
		return ErrNotJoined
	}
	return r.hub.leave(r.addr)
}

func (r *memoryRuntime) State(_ context.Context) (ClusterState, error) {
	if !r.joined.Load() {
		return ClusterState{}, ErrNotJoined
	}
	return r.hub.snapshot(), nil
}

func (r *memoryRuntime) Subscribe(listener func(Event)) (Subscription, error) {
	id := r.hub.seq.Add(1)
	r.hub.mu.Lock()
	r.hub.subs[id] = listener
	r.hub.mu.Unlock()
	return &memorySubscription{hub: r.hub, id: id}, nil
}

type memorySubscription struct {
	hub  *MemoryCluster
	id   uint64
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
	return nil
}

var _ Runtime = (*memoryRuntime)(nil)

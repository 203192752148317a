package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/cbridge-go/core/membership"
	"github.com/codewandler/cbridge-go/core/sf"
)

type MembershipConfig struct {
	Connect       Connector    // If nil, ConnectDefault() is used.
	Log           *slog.Logger // Optional.
	SubjectPrefix string       // SubjectPrefix for member subjects, e.g. "cbr" -> cbr.member.state

	// Addr is this node's address. Required.
	Addr  membership.Address
	Roles []string

	// HeartbeatInterval is how often this node announces itself
	// (default 1s).
	HeartbeatInterval time.Duration

	// SuspectAfter marks a silent member unreachable (default 3x the
	// heartbeat interval).
	SuspectAfter time.Duration

	// RemoveAfter removes a silent member entirely (default 10x the
	// heartbeat interval).
	RemoveAfter time.Duration
}

// heartbeatMsg is one member's self-announcement on the state subject.
type heartbeatMsg struct {
	Addr  membership.Address `json:"addr"`
	Roles []string           `json:"roles,omitempty"`
}

// leaveMsg announces a graceful leave.
type leaveMsg struct {
	Addr membership.Address `json:"addr"`
}

// syncReply carries one peer's member view to a joining node.
type syncReply struct {
	Members []membership.Member `json:"members"`
}

type memberInfo struct {
	member      membership.Member
	lastSeen    time.Time
	unreachable bool
}

// Membership implements cluster membership over NATS core subjects.
//
// Every member heartbeats on <prefix>.member.state; peers that miss
// heartbeats are first marked unreachable and eventually removed.
// Graceful leaves go out on <prefix>.member.leave. A joining node asks
// any peer for the current view via request/reply on
// <prefix>.member.sync. The leader is the lowest up address; every node
// derives it locally from the same view.
type Membership struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	addr  membership.Address
	roles []string

	heartbeatEvery time.Duration
	suspectAfter   time.Duration
	removeAfter    time.Duration

	mu      sync.RWMutex
	members map[membership.Address]*memberInfo
	leader  membership.Address
	subs    map[uint64]func(membership.Event)

	// dispatchMu serializes event emission so every subscriber observes
	// the same order.
	dispatchMu sync.Mutex

	// syncSF deduplicates concurrent sync-reply snapshots.
	syncSF sf.Singleflight[[]byte]

	natsSubs []*natsgo.Subscription
	stop     context.CancelFunc
	stopped  chan struct{}

	joined atomic.Bool
	seq    atomic.Uint64
}

func NewMembership(cfg MembershipConfig) (*Membership, error) {
	if cfg.Addr == "" {
		return nil, errors.New("nats: MembershipConfig.Addr is required")
	}

	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	suspect := cfg.SuspectAfter
	if suspect <= 0 {
		suspect = 3 * heartbeat
	}
	remove := cfg.RemoveAfter
	if remove <= 0 {
		remove = 10 * heartbeat
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Membership{
		nc:             nc,
		closeNc:        closeNc,
		log:            log.With(slog.String("membership", "nats"), slog.String("addr", string(cfg.Addr))),
		prefix:         cfg.SubjectPrefix,
		addr:           cfg.Addr,
		roles:          cfg.Roles,
		heartbeatEvery: heartbeat,
		suspectAfter:   suspect,
		removeAfter:    remove,
		members:        make(map[membership.Address]*memberInfo),
		subs:           make(map[uint64]func(membership.Event)),
	}, nil
}

func (m *Membership) subject(kind string) string {
	p := m.prefix
	if p == "" {
		p = defaultSubjectPrefix
	}
	return p + ".member." + kind
}

// Join announces this node and pulls the current view from a peer. Seeds
// are ignored: the NATS server is the rendezvous point.
func (m *Membership) Join(ctx context.Context, _ []membership.Address) error {
	if m.joined.Swap(true) {
		return nil
	}

	subs := []struct {
		subject string
		cb      natsgo.MsgHandler
	}{
		{m.subject("state"), m.onHeartbeat},
		{m.subject("leave"), m.onLeave},
		{m.subject("sync"), m.onSyncRequest},
	}
	for _, s := range subs {
		sub, err := m.nc.Subscribe(s.subject, s.cb)
		if err != nil {
			m.joined.Store(false)
			return fmt.Errorf("nats: subscribe %s: %w", s.subject, err)
		}
		m.natsSubs = append(m.natsSubs, sub)
	}
	if err := m.nc.FlushWithContext(ctx); err != nil {
		m.joined.Store(false)
		return fmt.Errorf("nats: flush membership subscriptions: %w", err)
	}

	// Pull the current view from any responding peer. No responders
	// means we are the first node.
	if err := m.syncFromPeer(ctx); err != nil {
		m.log.Debug("no peer view", slog.Any("error", err))
	}

	// Announce ourselves before the first tick.
	m.observeHeartbeat(heartbeatMsg{Addr: m.addr, Roles: m.roles})
	if err := m.publishHeartbeat(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	m.stopped = make(chan struct{})
	go m.run(runCtx)

	m.log.Info("joined cluster")
	return nil
}

func (m *Membership) Leave(ctx context.Context) error {
	if !m.joined.Swap(false) {
		return membership.ErrNotJoined
	}

	data, _ := json.Marshal(leaveMsg{Addr: m.addr})
	if err := m.nc.Publish(m.subject("leave"), data); err != nil {
		m.log.Warn("publish leave", slog.Any("error", err))
	}
	_ = m.nc.FlushWithContext(ctx)

	m.stop()
	<-m.stopped

	for _, s := range m.natsSubs {
		_ = s.Unsubscribe()
	}
	m.natsSubs = nil

	// Local view: we are gone.
	m.removeMember(m.addr, true)

	m.log.Info("left cluster")
	return nil
}

func (m *Membership) State(_ context.Context) (membership.ClusterState, error) {
	if !m.joined.Load() {
		return membership.ClusterState{}, membership.ErrNotJoined
	}
	return m.snapshot(), nil
}

func (m *Membership) Subscribe(listener func(membership.Event)) (membership.Subscription, error) {
	id := m.seq.Add(1)
	m.mu.Lock()
	m.subs[id] = listener
	m.mu.Unlock()
	return &membershipSubscription{m: m, id: id}, nil
}

// Close leaves the cluster if needed and releases the connection.
func (m *Membership) Close() error {
	if m.joined.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Leave(ctx)
	}
	m.closeNc()
	return nil
}

/* ---------------------- internals ---------------------- */

func (m *Membership) run(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.publishHeartbeat(); err != nil {
				m.log.Warn("publish heartbeat", slog.Any("error", err))
			}
			m.detectFailures()
		}
	}
}

func (m *Membership) publishHeartbeat() error {
	data, err := json.Marshal(heartbeatMsg{Addr: m.addr, Roles: m.roles})
	if err != nil {
		return err
	}
	return m.nc.Publish(m.subject("state"), data)
}

func (m *Membership) syncFromPeer(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, m.heartbeatEvery)
	defer cancel()

	msg, err := m.nc.RequestWithContext(reqCtx, m.subject("sync"), nil)
	if err != nil {
		return err
	}

	var reply syncReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode sync reply: %w", err)
	}

	for _, member := range reply.Members {
		if member.Addr == m.addr {
			continue
		}
		m.observeHeartbeat(heartbeatMsg{Addr: member.Addr, Roles: member.Roles})
	}
	return nil
}

func (m *Membership) onHeartbeat(msg *natsgo.Msg) {
	var hb heartbeatMsg
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		m.log.Error("decode heartbeat", slog.Any("error", err))
		return
	}
	m.observeHeartbeat(hb)
}

func (m *Membership) onLeave(msg *natsgo.Msg) {
	var lv leaveMsg
	if err := json.Unmarshal(msg.Data, &lv); err != nil {
		m.log.Error("decode leave", slog.Any("error", err))
		return
	}
	if lv.Addr == m.addr {
		return
	}
	m.removeMember(lv.Addr, true)
}

func (m *Membership) onSyncRequest(msg *natsgo.Msg) {
	if msg.Reply == "" {
		return
	}
	data, err := m.syncSF.Do("sync", func() (*[]byte, error) {
		s := m.snapshot()
		b, err := json.Marshal(syncReply{Members: s.Members})
		if err != nil {
			return nil, err
		}
		return &b, nil
	})
	if err != nil {
		m.log.Error("encode sync reply", slog.Any("error", err))
		return
	}
	if err := m.nc.Publish(msg.Reply, *data); err != nil {
		m.log.Error("publish sync reply", slog.Any("error", err))
	}
}

// observeHeartbeat records a member sighting, admitting new members and
// recovering unreachable ones.
func (m *Membership) observeHeartbeat(hb heartbeatMsg) {
	now := time.Now()

	m.mu.Lock()
	info, known := m.members[hb.Addr]
	if known {
		info.lastSeen = now
		wasUnreachable := info.unreachable
		info.unreachable = false
		member := info.member
		m.mu.Unlock()
		if wasUnreachable {
			m.emit(membership.MemberReachable{Member: member})
		}
		return
	}

	member := membership.Member{Addr: hb.Addr, Status: membership.StatusJoining, Roles: hb.Roles}
	m.members[hb.Addr] = &memberInfo{member: member, lastSeen: now}
	m.mu.Unlock()

	m.emit(membership.MemberJoined{Member: member})

	m.mu.Lock()
	info, still := m.members[hb.Addr]
	if !still {
		m.mu.Unlock()
		return
	}
	member.Status = membership.StatusUp
	info.member = member
	leaderEv, changed := m.electLocked()
	m.mu.Unlock()

	m.emit(membership.MemberUp{Member: member})
	if changed {
		m.emit(leaderEv)
	}
}

// removeMember drops a member from the view. Graceful removals walk the
// leaving/exiting/removed sequence; detector removals were already
// announced as unreachable.
func (m *Membership) removeMember(addr membership.Address, graceful bool) {
	m.mu.Lock()
	info, ok := m.members[addr]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.members, addr)
	member := info.member
	leaderEv, changed := m.electLocked()
	m.mu.Unlock()

	if graceful {
		member.Status = membership.StatusLeaving
		m.emit(membership.MemberLeft{Member: member})
		member.Status = membership.StatusExiting
		m.emit(membership.MemberExited{Member: member})
	}
	member.Status = membership.StatusRemoved
	m.emit(membership.MemberRemoved{Member: member})
	if changed {
		m.emit(leaderEv)
	}
}

// detectFailures marks silent members unreachable and removes the long
// gone.
func (m *Membership) detectFailures() {
	now := time.Now()

	var (
		newlyUnreachable []membership.Member
		gone             []membership.Address
	)

	m.mu.Lock()
	for addr, info := range m.members {
		if addr == m.addr {
			continue
		}
		silent := now.Sub(info.lastSeen)
		switch {
		case silent > m.removeAfter:
			gone = append(gone, addr)
		case silent > m.suspectAfter && !info.unreachable:
			info.unreachable = true
			newlyUnreachable = append(newlyUnreachable, info.member)
		}
	}
	m.mu.Unlock()

	for _, member := range newlyUnreachable {
		m.log.Warn("member unreachable", slog.String("member", string(member.Addr)))
		m.emit(membership.MemberUnreachable{Member: member})
	}
	for _, addr := range gone {
		m.log.Warn("member removed by failure detector", slog.String("member", string(addr)))
		m.removeMember(addr, false)
	}
}

// electLocked recomputes the leader (lowest up address). Returns the event
// to emit, if the leader changed. Caller holds m.mu.
func (m *Membership) electLocked() (membership.Event, bool) {
	var leader membership.Address
	for _, info := range m.members {
		if info.member.Status != membership.StatusUp || info.unreachable {
			continue
		}
		if leader == "" || info.member.Addr < leader {
			leader = info.member.Addr
		}
	}
	if leader == m.leader {
		return nil, false
	}
	m.leader = leader
	return membership.LeaderChanged{Leader: leader}, true
}

func (m *Membership) snapshot() membership.ClusterState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]membership.Member, 0, len(m.members))
	for _, info := range m.members {
		members = append(members, info.member)
	}
	return membership.ClusterState{Members: members, Leader: m.leader}
}

func (m *Membership) emit(events ...membership.Event) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	for _, e := range events {
		m.mu.RLock()
		listeners := make([]func(membership.Event), 0, len(m.subs))
		for _, l := range m.subs {
			listeners = append(listeners, l)
		}
		m.mu.RUnlock()

		for _, l := range listeners {
			l(e)
		}
	}
}

type membershipSubscription struct {
	m    *Membership
	id   uint64
	once sync.Once
}

func (s *membershipSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.subs, s.id)
		s.m.mu.Unlock()
	})
	return nil
}

var _ membership.Runtime = (*Membership)(nil)

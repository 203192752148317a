package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cbridge-go/core/ds"
	"github.com/codewandler/cbridge-go/core/queue"
)

// MemoryMediator is an in-process Mediator for tests and local runs.
//
// Deliveries run on a single dispatch goroutine, mirroring a shared
// substrate dispatch pool: a subscriber blocking on a full bounded queue
// stalls deliveries for everyone behind it.
type MemoryMediator struct {
	log *slog.Logger

	mu     sync.RWMutex
	topics *ds.Map[topicState]

	deliveries *queue.Queue[delivery]
	closed     atomic.Bool
	done       chan struct{}
}

type delivery struct {
	env         Envelope
	onePerGroup bool
}

type topicState struct {
	id     string
	subs   []*memSub
	groups map[string][]*memSub
	rr     map[string]int
}

// Create implements ds.MapFactory.
func (topicState) Create(id string) *topicState {
	return &topicState{
		id:     id,
		groups: make(map[string][]*memSub),
		rr:     make(map[string]int),
	}
}

type memSub struct {
	id      string
	topic   string
	group   string
	deliver DeliverFunc
}

func NewMemoryMediator() *MemoryMediator {
	m := &MemoryMediator{
		log:        slog.New(slog.DiscardHandler),
		topics:     ds.NewMap[topicState](),
		deliveries: queue.NewUnbounded[delivery](),
		done:       make(chan struct{}),
	}
	go m.dispatch()
	return m
}

func (m *MemoryMediator) WithLog(log *slog.Logger) *MemoryMediator {
	m.log = log.With(slog.String("mediator", "mem"))
	return m
}

// Publish enqueues the envelope for dispatch and returns immediately.
func (m *MemoryMediator) Publish(_ context.Context, env Envelope, onePerGroup bool) error {
	if env.Topic == "" {
		return ErrTopicRequired
	}
	if m.closed.Load() {
		return ErrMediatorClosed
	}
	if err := m.deliveries.Offer(context.Background(), delivery{env: env, onePerGroup: onePerGroup}); err != nil {
		return ErrMediatorClosed
	}
	return nil
}

// Subscribe registers deliver for the topic. Registration is effective when
// Subscribe returns; there is no network acknowledgment to wait for.
func (m *MemoryMediator) Subscribe(_ context.Context, topic, group string, deliver DeliverFunc) (Subscription, error) {
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if m.closed.Load() {
		return nil, ErrMediatorClosed
	}

	s := &memSub{
		id:      gonanoid.Must(8),
		topic:   topic,
		group:   group,
		deliver: deliver,
	}

	m.mu.Lock()
	ts := m.topics.Ensure(topic)
	ts.subs = append(ts.subs, s)
	if group != "" {
		ts.groups[group] = append(ts.groups[group], s)
	}
	m.mu.Unlock()

	m.log.Debug("subscribed", slog.String("topic", topic), slog.String("group", group))

	return &memMediatorSub{m: m, sub: s}, nil
}

// Close terminates the mediator. Pending deliveries are discarded.
func (m *MemoryMediator) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.deliveries.Shutdown()
	<-m.done
	return nil
}

func (m *MemoryMediator) dispatch() {
	defer close(m.done)
	for {
		d, err := m.deliveries.Take(context.Background())
		if err != nil {
			return
		}

		for _, s := range m.targets(d) {
			s.deliver(d.env.Data)
		}
	}
}

// targets resolves the subscribers one delivery fans out to.
func (m *MemoryMediator) targets(d delivery) []*memSub {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.topics.Data()[d.env.Topic]
	if !ok {
		return nil
	}

	if !d.onePerGroup {
		return append([]*memSub(nil), ts.subs...)
	}

	// one member per group; ungrouped subscribers each count as their own
	// group
	out := make([]*memSub, 0, len(ts.groups))
	for group, members := range ts.groups {
		if len(members) == 0 {
			continue
		}
		idx := ts.rr[group] % len(members)
		ts.rr[group]++
		out = append(out, members[idx])
	}
	for _, s := range ts.subs {
		if s.group == "" {
			out = append(out, s)
		}
	}
	return out
}

type memMediatorSub struct {
	m    *MemoryMediator
	sub  *memSub
	once sync.Once
}

func (s *memMediatorSub) Unsubscribe() error {
	s.once.Do(func() {
		m := s.m
		m.mu.Lock()
		defer m.mu.Unlock()

		ts, ok := m.topics.Data()[s.sub.topic]
		if !ok {
			return
		}
		ts.subs = removeSub(ts.subs, s.sub)
		if s.sub.group != "" {
			ts.groups[s.sub.group] = removeSub(ts.groups[s.sub.group], s.sub)
			if len(ts.groups[s.sub.group]) == 0 {
				delete(ts.groups, s.sub.group)
			}
		}
		if len(ts.subs) == 0 {
			m.topics.Remove(s.sub.topic)
		}
	})
	return nil
}

func removeSub(subs []*memSub, target *memSub) []*memSub {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

var _ Mediator = (*MemoryMediator)(nil)

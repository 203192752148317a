package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/cbridge-go/core/pubsub"
)

var ErrInvalidTopic = errors.New("nats: topic must not contain '.', '*', '>' or whitespace")

type MediatorConfig struct {
	Connect       Connector    // If nil, ConnectDefault() is used.
	Log           *slog.Logger // Optional.
	SubjectPrefix string       // SubjectPrefix for topic subjects, e.g. "cbr" -> cbr.ps.<topic>.cast
}

// Mediator distributes pub/sub envelopes over NATS core subjects.
//
// Every topic maps to two subjects: <prefix>.ps.<topic>.cast for
// broadcast delivery and <prefix>.ps.<topic>.grp for one-per-group
// delivery. Grouped subscribers join a NATS queue group on the grp
// subject so each group receives each message once; ungrouped
// subscribers listen on both subjects individually.
type Mediator struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}

	closed atomic.Bool
}

func NewMediator(cfg MediatorConfig) (*Mediator, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Mediator{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("mediator", "nats")),
		prefix:  cfg.SubjectPrefix,
		subs:    make(map[*natsSubscription]struct{}),
	}, nil
}

func validTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, ".*> \t\n")
}

func (m *Mediator) subjectCast(topic string) string {
	p := m.prefix
	if p == "" {
		p = defaultSubjectPrefix
	}
	return p + ".ps." + topic + ".cast"
}

func (m *Mediator) subjectGroup(topic string) string {
	p := m.prefix
	if p == "" {
		p = defaultSubjectPrefix
	}
	return p + ".ps." + topic + ".grp"
}

func (m *Mediator) Publish(_ context.Context, env pubsub.Envelope, onePerGroup bool) error {
	if m.closed.Load() {
		return pubsub.ErrMediatorClosed
	}
	if !validTopic(env.Topic) {
		return ErrInvalidTopic
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	subj := m.subjectCast(env.Topic)
	if onePerGroup {
		subj = m.subjectGroup(env.Topic)
	}
	if err := m.nc.Publish(subj, payload); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// Subscribe registers deliver for the topic. The returned subscription is
// only handed back after a flush round-trip, so anything published
// afterwards reaches this subscriber.
func (m *Mediator) Subscribe(ctx context.Context, topic, group string, deliver pubsub.DeliverFunc) (pubsub.Subscription, error) {
	if m.closed.Load() {
		return nil, pubsub.ErrMediatorClosed
	}
	if !validTopic(topic) {
		return nil, ErrInvalidTopic
	}

	cb := func(msg *natsgo.Msg) {
		var env pubsub.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			m.log.Error("failed to decode envelope", slog.String("topic", topic), slog.Any("error", err))
			return
		}
		deliver(env.Data)
	}

	castSub, err := m.nc.Subscribe(m.subjectCast(topic), cb)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe topic: %w", err)
	}

	// One-per-group deliveries: queue-subscribe under the group name so
	// NATS picks one member; an ungrouped subscriber is its own group.
	var grpSub *natsgo.Subscription
	if group != "" {
		grpSub, err = m.nc.QueueSubscribe(m.subjectGroup(topic), group, cb)
	} else {
		grpSub, err = m.nc.Subscribe(m.subjectGroup(topic), cb)
	}
	if err != nil {
		_ = castSub.Unsubscribe()
		return nil, fmt.Errorf("nats: subscribe topic group: %w", err)
	}

	// Round-trip to the server: once this returns, the subscriptions are
	// registered and later publishes cannot miss them.
	if err := m.nc.FlushWithContext(ctx); err != nil {
		_ = castSub.Unsubscribe()
		_ = grpSub.Unsubscribe()
		return nil, fmt.Errorf("nats: flush subscription: %w", err)
	}

	s := &natsSubscription{m: m, subs: []*natsgo.Subscription{castSub, grpSub}}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	return s, nil
}

func (m *Mediator) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	for s := range m.subs {
		for _, sub := range s.subs {
			_ = sub.Unsubscribe()
		}
	}
	m.subs = map[*natsSubscription]struct{}{}
	m.mu.Unlock()
	if m.nc != nil {
		m.nc.Drain()
		m.closeNc()
	}
	return nil
}

type natsSubscription struct {
	m    *Mediator
	subs []*natsgo.Subscription
	once sync.Once
}

func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		for _, sub := range s.subs {
			if e := sub.Unsubscribe(); e != nil && err == nil {
				err = e
			}
		}
		s.m.mu.Lock()
		delete(s.m.subs, s)
		s.m.mu.Unlock()
	})
	return err
}

var _ pubsub.Mediator = (*Mediator)(nil)

package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cbridge-go/core/queue"
)

func createMediator(t *testing.T) *MemoryMediator {
	m := NewMemoryMediator()
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return m
}

func TestPubSub_ListenThenPublish(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	q, err := ps.Listen(t.Context(), "t1")
	require.NoError(t, err)
	defer q.Shutdown()

	// listen completed: this publish must not be missed
	require.NoError(t, ps.Publish(t.Context(), "t1", "hello"))

	msg, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "hello", msg)
}

func TestPubSub_PublishOrder(t *testing.T) {
	med := createMediator(t)

	ps, err := New[int](Options{Mediator: med})
	require.NoError(t, err)

	q, err := ps.Listen(t.Context(), "nums")
	require.NoError(t, err)
	defer q.Shutdown()

	for i := 0; i < 50; i++ {
		require.NoError(t, ps.Publish(t.Context(), "nums", i))
	}
	for i := 0; i < 50; i++ {
		v, err := q.Take(t.Context())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestPubSub_Broadcast_ReachesAllSubscribers(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	q1, err := ps.Listen(t.Context(), "t", WithGroup("g1"))
	require.NoError(t, err)
	defer q1.Shutdown()
	q2, err := ps.Listen(t.Context(), "t", WithGroup("g1"))
	require.NoError(t, err)
	defer q2.Shutdown()
	q3, err := ps.Listen(t.Context(), "t")
	require.NoError(t, err)
	defer q3.Shutdown()

	require.NoError(t, ps.Publish(t.Context(), "t", "all"))

	for _, q := range []*queue.Queue[string]{q1, q2, q3} {
		v, err := q.Take(t.Context())
		require.NoError(t, err)
		require.Equal(t, "all", v)
	}
}

func TestPubSub_OnePerGroup(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	q1, err := ps.Listen(t.Context(), "t", WithGroup("g1"))
	require.NoError(t, err)
	defer q1.Shutdown()
	q2, err := ps.Listen(t.Context(), "t", WithGroup("g1"))
	require.NoError(t, err)
	defer q2.Shutdown()

	require.NoError(t, ps.Publish(t.Context(), "t", "once", WithOnePerGroup()))

	// exactly one of the two group members receives it, never both,
	// never neither
	received := 0
	deadline := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-deadline:
			break loop
		default:
		}
		if _, ok := q1.TryTake(); ok {
			received++
		}
		if _, ok := q2.TryTake(); ok {
			received++
		}
		if received > 0 {
			// allow a moment for an (incorrect) second delivery
			<-time.After(50 * time.Millisecond)
			if _, ok := q1.TryTake(); ok {
				received++
			}
			if _, ok := q2.TryTake(); ok {
				received++
			}
			break loop
		}
	}
	require.Equal(t, 1, received)
}

func TestPubSub_OnePerGroup_UngroupedCountsAsOwnGroup(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	grouped, err := ps.Listen(t.Context(), "t", WithGroup("g1"))
	require.NoError(t, err)
	defer grouped.Shutdown()
	solo, err := ps.Listen(t.Context(), "t")
	require.NoError(t, err)
	defer solo.Shutdown()

	require.NoError(t, ps.Publish(t.Context(), "t", "m", WithOnePerGroup()))

	v, err := solo.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "m", v)

	v, err = grouped.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "m", v)
}

func TestPubSub_QueueShutdownUnsubscribes(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	q, err := ps.Listen(t.Context(), "t1")
	require.NoError(t, err)
	q.Shutdown()

	// registration removed from the mediator once the watcher ran
	require.Eventually(t, func() bool {
		med.mu.RLock()
		defer med.mu.RUnlock()
		_, ok := med.topics.Data()["t1"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	// publishing afterwards is not an error, just undelivered
	require.NoError(t, ps.Publish(t.Context(), "t1", "late"))
}

func TestPubSub_PublisherSubscriberViews(t *testing.T) {
	med := createMediator(t)

	pub, err := NewPublisher[string](Options{Mediator: med})
	require.NoError(t, err)
	sub, err := NewSubscriber[string](Options{Mediator: med})
	require.NoError(t, err)

	q, err := sub.Listen(t.Context(), "t")
	require.NoError(t, err)
	defer q.Shutdown()

	require.NoError(t, pub.Publish(t.Context(), "t", "via views"))

	v, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, "via views", v)
}

func TestPubSub_TopicRequired(t *testing.T) {
	med := createMediator(t)

	ps, err := New[string](Options{Mediator: med})
	require.NoError(t, err)

	require.ErrorIs(t, ps.Publish(t.Context(), "", "x"), ErrTopicRequired)
	_, err = ps.Listen(t.Context(), "")
	require.ErrorIs(t, err, ErrTopicRequired)
}

func TestMemoryMediator_Closed(t *testing.T) {
	med := NewMemoryMediator()
	require.NoError(t, med.Close())
	require.NoError(t, med.Close()) // idempotent

	require.ErrorIs(t, med.Publish(t.Context(), Envelope{Topic: "t"}, false), ErrMediatorClosed)
	_, err := med.Subscribe(t.Context(), "t", "", func([]byte) {})
	require.ErrorIs(t, err, ErrMediatorClosed)
}

func TestPubSub_StructPayload(t *testing.T) {
	type chatMsg struct {
		From string `json:"from"`
		Text string `json:"text"`
	}

	med := createMediator(t)

	ps, err := New[chatMsg](Options{Mediator: med})
	require.NoError(t, err)

	q, err := ps.Listen(t.Context(), "chat")
	require.NoError(t, err)
	defer q.Shutdown()

	require.NoError(t, ps.Publish(t.Context(), "chat", chatMsg{From: "a", Text: "hi"}))

	v, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, chatMsg{From: "a", Text: "hi"}, v)
}

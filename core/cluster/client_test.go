package cluster

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	tr := CreateInMemoryTransport(t)

	var (
		mu   sync.Mutex
		seen []Envelope
	)
	last := func() Envelope {
		mu.Lock()
		defer mu.Unlock()
		return seen[len(seen)-1]
	}
	CreateTestCluster(t, tr, 2, 32, "seed", func(ctx context.Context, env Envelope) ([]byte, error) {
		mu.Lock()
		seen = append(seen, env)
		mu.Unlock()
		return env.Data, nil
	})

	c, err := NewClient(ClientOptions{
		Transport: tr,
		NumShards: 32,
		Seed:      "seed",
	})
	require.NoError(t, err)

	t.Run("request key routes stable shard with key header", func(t *testing.T) {
		data, err := c.RequestKey(t.Context(), "entity-1", "echo", []byte("hi"))
		require.NoError(t, err)
		require.Equal(t, []byte("hi"), data)

		env := last()
		require.Equal(t, int(ShardFromString("entity-1", 32, "seed")), env.Shard)
		key, ok := env.GetHeader(envHeaderKey)
		require.True(t, ok)
		require.Equal(t, "entity-1", key)
	})

	t.Run("notify key carries key header", func(t *testing.T) {
		require.NoError(t, c.NotifyKey(t.Context(), "entity-2", "echo", []byte("fire")))
		key, ok := last().GetHeader(envHeaderKey)
		require.True(t, ok)
		require.Equal(t, "entity-2", key)
	})

	t.Run("shard out of range", func(t *testing.T) {
		_, err := c.RequestShard(t.Context(), 32, "echo", nil)
		require.ErrorContains(t, err, "out of range")
	})
}

func TestClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOptions{NumShards: 1})
	require.ErrorContains(t, err, "Transport is required")

	_, err = NewClient(ClientOptions{Transport: NewInMemoryTransport()})
	require.ErrorContains(t, err, "NumShards is required")
}

func TestClient_ReservedHeader(t *testing.T) {
	tr := CreateInMemoryTransport(t)

	c, err := NewClient(ClientOptions{Transport: tr, NumShards: 4})
	require.NoError(t, err)

	_, err = c.RequestShard(t.Context(), 0, "echo", nil, WithHeader("x-cbr-hax", "1"))
	require.ErrorIs(t, err, ErrReservedHeader)
}

func TestClient_DefaultEnvelopeOptions(t *testing.T) {
	tr := CreateInMemoryTransport(t)

	var seen Envelope
	CreateTestCluster(t, tr, 1, 4, "", func(ctx context.Context, env Envelope) ([]byte, error) {
		seen = env
		return nil, nil
	})

	c, err := NewClient(ClientOptions{
		Transport:       tr,
		NumShards:       4,
		EnvelopeOptions: []EnvelopeOption{WithHeader("app", "demo")},
	})
	require.NoError(t, err)

	_, err = c.RequestShard(t.Context(), 1, "echo", nil)
	require.NoError(t, err)

	v, ok := seen.GetHeader("app")
	require.True(t, ok)
	require.Equal(t, "demo", v)
}

func TestClient_TypedRequest(t *testing.T) {
	tr := CreateInMemoryTransport(t)

	CreateTestCluster(t, tr, 2, 16, "", func(ctx context.Context, env Envelope) ([]byte, error) {
		return env.Data, nil
	})

	c, err := NewClient(ClientOptions{Transport: tr, NumShards: 16})
	require.NoError(t, err)

	info, err := c.Key("k").GetNodeInfo(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, info.NodeID)
	require.NotEmpty(t, info.Shards)
}

package nats

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cbridge-go/core/cluster"
)

func TestNats_Transport(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	connectNatsC := NewTestContainer(t)

	t.Run("connect & close", func(t *testing.T) {
		nc, disconnect, err := connectNatsC()
		require.NoError(t, err)
		require.NotNil(t, nc)
		require.NoError(t, nc.Flush())
		disconnect()
	})

	t.Run("request reply", func(t *testing.T) {
		tp, err := NewTransport(TransportConfig{
			Connect:       connectNatsC,
			Log:           slog.Default(),
			SubjectPrefix: "test",
		})
		require.NoError(t, err)
		require.NotNil(t, tp)

		s, err := tp.SubscribeShard(t.Context(), 23, func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
			return env.Data, nil
		})
		require.NoError(t, err)
		require.NotNil(t, s)

		data, err := tp.Request(t.Context(), cluster.Envelope{Shard: 23, Data: []byte("hello")})
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))

		// tear down
		require.NoError(t, s.Unsubscribe())
		require.NoError(t, tp.Close())
	})

	t.Run("sharded cluster over nats", func(t *testing.T) {
		tp, err := NewTransport(TransportConfig{
			Connect:       connectNatsC,
			SubjectPrefix: "clustered",
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tp.Close() })

		cluster.CreateTestCluster(t, tp, 3, 64, "seed", cluster.NewKeyHandler(func(key string) (cluster.ServerHandlerFunc, error) {
			return func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
				return []byte(key), nil
			}, nil
		}))

		c, err := cluster.NewClient(cluster.ClientOptions{
			Transport: tp,
			NumShards: 64,
			Seed:      "seed",
		})
		require.NoError(t, err)

		data, err := c.Key("tenant-7").Request(t.Context(), "ping")
		require.NoError(t, err)
		require.Equal(t, "tenant-7", string(data))
	})
}

package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_TTL(t *testing.T) {
	t.Run("no ttl never expires", func(t *testing.T) {
		e := Envelope{Shard: 0, Data: []byte("x")}
		require.False(t, e.Expired())
		require.Equal(t, time.Duration(0), e.TTL())
	})

	t.Run("fresh envelope not expired", func(t *testing.T) {
		var e Envelope
		WithTTL(time.Minute)(&e)
		require.False(t, e.Expired())
		require.Greater(t, e.TTL(), 50*time.Second)
	})

	t.Run("elapsed ttl expires", func(t *testing.T) {
		e := Envelope{
			TTLMs:       10,
			CreatedAtMs: time.Now().UnixMilli() - 1000,
		}
		require.True(t, e.Expired())
		require.Equal(t, time.Duration(0), e.TTL())
	})
}

func TestEnvelope_Validate(t *testing.T) {
	t.Run("plain headers ok", func(t *testing.T) {
		var e Envelope
		WithHeader("tenant", "t-1")(&e)
		require.NoError(t, e.Validate())
	})

	t.Run("key header ok", func(t *testing.T) {
		var e Envelope
		WithHeader(envHeaderKey, "entity-1")(&e)
		require.NoError(t, e.Validate())
	})

	t.Run("reserved header rejected", func(t *testing.T) {
		var e Envelope
		WithHeader("x-cbr-internal", "nope")(&e)
		require.ErrorIs(t, e.Validate(), ErrReservedHeader)
	})

	t.Run("reserved header rejected case insensitive", func(t *testing.T) {
		var e Envelope
		WithHeader("X-CBR-Internal", "nope")(&e)
		require.ErrorIs(t, e.Validate(), ErrReservedHeader)
	})
}

func TestEnvelope_GetHeader(t *testing.T) {
	var e Envelope
	_, ok := e.GetHeader("missing")
	require.False(t, ok)

	WithHeader("a", "1")(&e)
	v, ok := e.GetHeader("a")
	require.True(t, ok)
	require.Equal(t, "1", v)
}
